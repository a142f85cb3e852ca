package index

import (
	"context"
	"errors"

	"github.com/ragline/ragline/internal/model"
)

// ErrNotReady reports an index that has no snapshot to serve yet.
var ErrNotReady = errors.New("index not ready")

type LexicalHit struct {
	Chunk *model.Chunk
	Score float64
}

type DenseHit struct {
	Chunk    *model.Chunk
	Distance float64
}

// DenseIndex is the nearest-neighbor store over chunk embeddings. The
// memory implementation serves from process RAM; the Postgres one delegates
// to pgvector.
type DenseIndex interface {
	Search(ctx context.Context, embedding []float32, domain string, limit int) ([]DenseHit, error)
	Add(ctx context.Context, chunks []*model.Chunk) error
	DeleteDocument(ctx context.Context, docID string) error
	Count(ctx context.Context) (int, error)
}
