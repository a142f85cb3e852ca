package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/ai"
	"github.com/ragline/ragline/internal/cache"
	"github.com/ragline/ragline/internal/filestore"
	"github.com/ragline/ragline/internal/index"
	"github.com/ragline/ragline/internal/ingest"
	"github.com/ragline/ragline/internal/metrics"
	"github.com/ragline/ragline/internal/model"
	appErr "github.com/ragline/ragline/internal/pkg/errors"
	"github.com/ragline/ragline/internal/pkg/timeutil"
	"github.com/ragline/ragline/internal/pkg/vecmath"
	"github.com/ragline/ragline/internal/repo"
)

const defaultDomain = "general"

// IngestService owns the corpus: it turns uploads into embedded chunks,
// keeps the catalog and both indexes in step, and drops stale cache entries
// whenever a domain's content changes.
type IngestService struct {
	docs    *repo.DocumentRepo
	chunks  *repo.ChunkRepo
	manager *ai.Manager
	chunker *ingest.Chunker
	catalog *index.Catalog
	dense   index.DenseIndex
	lexical *index.LexicalIndex
	cache   *cache.SemanticCache
	archive filestore.Store
	metrics *metrics.Metrics
}

// NewIngestService wires the ingestion path. docs/chunks and archive may be
// nil when persistence or archiving is disabled.
func NewIngestService(docs *repo.DocumentRepo, chunks *repo.ChunkRepo, manager *ai.Manager,
	chunker *ingest.Chunker, catalog *index.Catalog, dense index.DenseIndex,
	lexical *index.LexicalIndex, sc *cache.SemanticCache, archive filestore.Store,
	m *metrics.Metrics) *IngestService {

	return &IngestService{
		docs:    docs,
		chunks:  chunks,
		manager: manager,
		chunker: chunker,
		catalog: catalog,
		dense:   dense,
		lexical: lexical,
		cache:   sc,
		archive: archive,
		metrics: m,
	}
}

type ChunkInput struct {
	Content   string
	Embedding []float32
	Section   string
}

type AddDocumentInput struct {
	Title     string
	Domain    string
	Tags      []string
	Content   string
	Chunks    []ChunkInput
	Origin    string
	SourceURI string
}

type AddDocumentResult struct {
	Document   *model.Document
	ChunkCount int
}

// AddDocument ingests one document, either pre-chunked or as raw content to
// split and embed here. The document becomes visible to queries atomically
// once both indexes have swapped in the new snapshot.
func (s *IngestService) AddDocument(ctx context.Context, in AddDocumentInput) (*AddDocumentResult, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: document title is required", appErr.ErrInvalid)
	}
	domain := strings.TrimSpace(in.Domain)
	if domain == "" {
		domain = defaultDomain
	}
	if len(in.Chunks) == 0 && strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("%w: document content or chunks are required", appErr.ErrInvalid)
	}
	origin := in.Origin
	if origin == "" {
		origin = model.OriginUpload
	}

	doc := &model.Document{
		ID:     newID(),
		Domain: domain,
		Title:  title,
		Tags:   in.Tags,
		Origin: origin,
		Ctime:  timeutil.NowUnix(),
	}
	chunks, err := s.buildChunks(ctx, doc, in)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document produced no chunks", appErr.ErrInvalid)
	}

	if s.docs != nil {
		if err := s.docs.Create(ctx, doc); err != nil {
			return nil, err
		}
	}
	if err := s.dense.Add(ctx, chunks); err != nil {
		return nil, fmt.Errorf("index chunks: %w", err)
	}
	s.catalog.PutDocument(doc, chunks)
	s.lexical.Rebuild(s.catalog.Chunks())

	s.archiveContent(ctx, doc.ID, in.Content)
	s.invalidateDomain(ctx, domain)
	s.updateIndexStats()

	logutil.GetLogger(ctx).Info("document ingested",
		zap.String("document_id", doc.ID),
		zap.String("domain", domain),
		zap.Int("chunks", len(chunks)))
	return &AddDocumentResult{Document: doc, ChunkCount: len(chunks)}, nil
}

func (s *IngestService) buildChunks(ctx context.Context, doc *model.Document, in AddDocumentInput) ([]*model.Chunk, error) {
	var chunks []*model.Chunk
	if len(in.Chunks) > 0 {
		for i, ci := range in.Chunks {
			content := strings.TrimSpace(ci.Content)
			if content == "" {
				return nil, fmt.Errorf("%w: chunk %d has no content", appErr.ErrInvalid, i)
			}
			chunks = append(chunks, &model.Chunk{
				ID:         newID(),
				DocumentID: doc.ID,
				Domain:     doc.Domain,
				Content:    content,
				Embedding:  vecmath.Clone(ci.Embedding),
				Tags:       doc.Tags,
				Source:     &model.SourceRef{URI: in.SourceURI, Section: ci.Section},
				Position:   i,
				Ctime:      doc.Ctime,
			})
		}
	} else {
		for _, piece := range s.chunker.Split(ctx, in.Content) {
			chunks = append(chunks, &model.Chunk{
				ID:         newID(),
				DocumentID: doc.ID,
				Domain:     doc.Domain,
				Content:    piece.Content,
				Tags:       doc.Tags,
				Source:     &model.SourceRef{URI: in.SourceURI, Section: piece.Section},
				Position:   piece.Position,
				Ctime:      doc.Ctime,
			})
		}
	}
	for _, ch := range chunks {
		if len(ch.Embedding) > 0 {
			continue
		}
		embedding, err := s.manager.Embed(ctx, ch.Content, ai.TaskTypeDocument)
		if err != nil {
			return nil, fmt.Errorf("embed chunk %d: %w", ch.Position, err)
		}
		ch.Embedding = embedding
	}
	return chunks, nil
}

// DeleteDocument removes the document everywhere: store, indexes, catalog,
// and the domain's cache entries.
func (s *IngestService) DeleteDocument(ctx context.Context, docID string) error {
	doc, ok := s.catalog.Document(docID)
	if !ok {
		return fmt.Errorf("%w: document %s", appErr.ErrNotFound, docID)
	}
	if s.docs != nil {
		if err := s.docs.Delete(ctx, docID); err != nil && !appErr.IsNotFound(err) {
			return err
		}
	}
	if err := s.dense.DeleteDocument(ctx, docID); err != nil {
		return fmt.Errorf("deindex document: %w", err)
	}
	s.catalog.RemoveDocument(docID)
	s.lexical.Rebuild(s.catalog.Chunks())
	s.invalidateDomain(ctx, doc.Domain)
	s.updateIndexStats()

	logutil.GetLogger(ctx).Info("document deleted",
		zap.String("document_id", docID),
		zap.String("domain", doc.Domain))
	return nil
}

func (s *IngestService) GetDocument(ctx context.Context, docID string) (*model.Document, error) {
	_ = ctx
	doc, ok := s.catalog.Document(docID)
	if !ok {
		return nil, fmt.Errorf("%w: document %s", appErr.ErrNotFound, docID)
	}
	return doc, nil
}

func (s *IngestService) ListDocuments(ctx context.Context) []*model.Document {
	_ = ctx
	return s.catalog.Documents()
}

// Bootstrap reloads the catalog and lexical index from the document store.
// Without persistence configured it is a no-op and the corpus starts empty.
func (s *IngestService) Bootstrap(ctx context.Context) error {
	if s.docs == nil {
		return nil
	}
	docs, err := s.docs.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("load documents: %w", err)
	}
	chunks, err := s.chunks.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("load chunks: %w", err)
	}
	byDoc := make(map[string][]*model.Chunk, len(docs))
	for _, ch := range chunks {
		byDoc[ch.DocumentID] = append(byDoc[ch.DocumentID], ch)
	}
	for _, doc := range docs {
		s.catalog.PutDocument(doc, byDoc[doc.ID])
	}
	s.lexical.Rebuild(s.catalog.Chunks())
	s.updateIndexStats()

	logutil.GetLogger(ctx).Info("index bootstrapped",
		zap.Int("documents", len(docs)),
		zap.Int("chunks", len(chunks)))
	return nil
}

type CorpusStats struct {
	Documents    int `json:"documents"`
	Chunks       int `json:"chunks"`
	DenseEntries int `json:"dense_entries"`
	LexicalTerms int `json:"lexical_terms"`
}

func (s *IngestService) Stats(ctx context.Context) CorpusStats {
	docs, chunks := s.catalog.Counts()
	stats := CorpusStats{
		Documents:    docs,
		Chunks:       chunks,
		LexicalTerms: s.lexical.Size(),
	}
	if n, err := s.dense.Count(ctx); err == nil {
		stats.DenseEntries = n
	}
	return stats
}

// archiveContent is best-effort; the indexed chunks are the system of
// record and a failed archive write never fails the ingest.
func (s *IngestService) archiveContent(ctx context.Context, docID, content string) {
	if s.archive == nil || content == "" {
		return
	}
	key := docID + ".md"
	if err := s.archive.Save(ctx, key, strings.NewReader(content), int64(len(content))); err != nil {
		logutil.GetLogger(ctx).Warn("archive document failed",
			zap.String("document_id", docID), zap.Error(err))
	}
}

func (s *IngestService) invalidateDomain(ctx context.Context, domain string) {
	removed, err := s.cache.InvalidateDomain(ctx, domain)
	if err != nil {
		logutil.GetLogger(ctx).Warn("invalidate domain cache failed",
			zap.String("domain", domain), zap.Error(err))
		return
	}
	if removed > 0 {
		logutil.GetLogger(ctx).Info("domain cache invalidated",
			zap.String("domain", domain), zap.Int("removed", removed))
	}
}

func (s *IngestService) updateIndexStats() {
	docs, chunks := s.catalog.Counts()
	s.metrics.UpdateIndexStats(docs, chunks)
}
