package index

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ragline/ragline/internal/model"
)

// MemoryDenseIndex holds chunk embeddings in process memory. Mutations
// build a new snapshot and swap it atomically; reads are lock-free.
type MemoryDenseIndex struct {
	writeMu sync.Mutex
	snap    atomic.Pointer[denseSnapshot]
	dist    func(a, b []float32) float64
}

type denseSnapshot struct {
	chunks []*model.Chunk
}

func NewMemoryDenseIndex(dist func(a, b []float32) float64) *MemoryDenseIndex {
	idx := &MemoryDenseIndex{dist: dist}
	idx.snap.Store(&denseSnapshot{})
	return idx
}

func (m *MemoryDenseIndex) Search(ctx context.Context, embedding []float32, domain string, limit int) ([]DenseHit, error) {
	snap := m.snap.Load()
	if snap == nil {
		return nil, ErrNotReady
	}
	if limit <= 0 || len(embedding) == 0 {
		return nil, nil
	}
	hits := make([]DenseHit, 0, limit)
	for _, chunk := range snap.chunks {
		if domain != "" && chunk.Domain != domain {
			continue
		}
		if len(chunk.Embedding) == 0 {
			continue
		}
		hits = append(hits, DenseHit{
			Chunk:    chunk,
			Distance: m.dist(embedding, chunk.Embedding),
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		if hits[i].Chunk.Ctime != hits[j].Chunk.Ctime {
			return hits[i].Chunk.Ctime > hits[j].Chunk.Ctime
		}
		return hits[i].Chunk.ID < hits[j].Chunk.ID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (m *MemoryDenseIndex) Add(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	old := m.snap.Load()
	replaced := make(map[string]bool, len(chunks))
	for _, chunk := range chunks {
		replaced[chunk.ID] = true
	}
	next := make([]*model.Chunk, 0, len(old.chunks)+len(chunks))
	for _, chunk := range old.chunks {
		if !replaced[chunk.ID] {
			next = append(next, chunk)
		}
	}
	next = append(next, chunks...)
	m.snap.Store(&denseSnapshot{chunks: next})
	return nil
}

func (m *MemoryDenseIndex) DeleteDocument(ctx context.Context, docID string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	old := m.snap.Load()
	next := make([]*model.Chunk, 0, len(old.chunks))
	for _, chunk := range old.chunks {
		if chunk.DocumentID != docID {
			next = append(next, chunk)
		}
	}
	m.snap.Store(&denseSnapshot{chunks: next})
	return nil
}

func (m *MemoryDenseIndex) Count(ctx context.Context) (int, error) {
	snap := m.snap.Load()
	if snap == nil {
		return 0, nil
	}
	return len(snap.chunks), nil
}
