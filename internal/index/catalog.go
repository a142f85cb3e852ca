package index

import (
	"sort"
	"sync"

	"github.com/ragline/ragline/internal/model"
)

// Catalog is the in-memory registry of documents and chunks that the
// serving indexes are built from. Writers hold the lock; readers get
// copied slices and never observe partial updates.
type Catalog struct {
	mu     sync.RWMutex
	docs   map[string]*model.Document
	chunks map[string]*model.Chunk
}

func NewCatalog() *Catalog {
	return &Catalog{
		docs:   make(map[string]*model.Document),
		chunks: make(map[string]*model.Chunk),
	}
}

func (c *Catalog) PutDocument(doc *model.Document, chunks []*model.Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.docs[doc.ID]; ok {
		for _, id := range old.ChunkIDs {
			delete(c.chunks, id)
		}
	}
	ids := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		c.chunks[chunk.ID] = chunk
		ids = append(ids, chunk.ID)
	}
	doc.ChunkIDs = ids
	c.docs[doc.ID] = doc
}

// RemoveDocument drops the document and all of its chunks, returning the
// removed chunk ids.
func (c *Catalog) RemoveDocument(docID string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.docs[docID]
	if !ok {
		return nil, false
	}
	for _, id := range doc.ChunkIDs {
		delete(c.chunks, id)
	}
	delete(c.docs, docID)
	return doc.ChunkIDs, true
}

func (c *Catalog) Document(docID string) (*model.Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[docID]
	return doc, ok
}

func (c *Catalog) Chunk(chunkID string) (*model.Chunk, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chunk, ok := c.chunks[chunkID]
	return chunk, ok
}

// Documents returns every document, newest first.
func (c *Catalog) Documents() []*model.Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.Document, 0, len(c.docs))
	for _, doc := range c.docs {
		out = append(out, doc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ctime != out[j].Ctime {
			return out[i].Ctime > out[j].Ctime
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Chunks returns a stable-ordered copy of every chunk.
func (c *Catalog) Chunks() []*model.Chunk {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*model.Chunk, 0, len(c.chunks))
	for _, chunk := range c.chunks {
		out = append(out, chunk)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *Catalog) Counts() (docs int, chunks int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs), len(c.chunks)
}
