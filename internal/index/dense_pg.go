package index

import (
	"context"

	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/repo"
)

// PGDenseIndex serves nearest-neighbor search from the pgvector-backed
// chunks table and persists mutations through the chunk repo.
type PGDenseIndex struct {
	chunks *repo.ChunkRepo
}

func NewPGDenseIndex(chunks *repo.ChunkRepo) *PGDenseIndex {
	return &PGDenseIndex{chunks: chunks}
}

func (p *PGDenseIndex) Search(ctx context.Context, embedding []float32, domain string, limit int) ([]DenseHit, error) {
	if limit <= 0 || len(embedding) == 0 {
		return nil, nil
	}
	chunks, distances, err := p.chunks.SearchByEmbedding(ctx, embedding, domain, limit)
	if err != nil {
		return nil, err
	}
	hits := make([]DenseHit, 0, len(chunks))
	for i, chunk := range chunks {
		hits = append(hits, DenseHit{Chunk: chunk, Distance: distances[i]})
	}
	return hits, nil
}

func (p *PGDenseIndex) Add(ctx context.Context, chunks []*model.Chunk) error {
	return p.chunks.BatchCreate(ctx, chunks)
}

func (p *PGDenseIndex) DeleteDocument(ctx context.Context, docID string) error {
	_, err := p.chunks.DeleteByDocument(ctx, docID)
	return err
}

func (p *PGDenseIndex) Count(ctx context.Context) (int, error) {
	return p.chunks.Count(ctx)
}
