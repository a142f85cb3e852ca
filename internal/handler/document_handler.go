package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ragline/ragline/internal/pkg/errcode"
	"github.com/ragline/ragline/internal/pkg/response"
	"github.com/ragline/ragline/internal/service"
)

type DocumentHandler struct {
	ingest *service.IngestService
}

func NewDocumentHandler(ingest *service.IngestService) *DocumentHandler {
	return &DocumentHandler{ingest: ingest}
}

type documentChunk struct {
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding"`
	Section   string    `json:"section"`
}

type documentRequest struct {
	Title     string          `json:"title"`
	Domain    string          `json:"domain"`
	Tags      []string        `json:"tags"`
	Content   string          `json:"content"`
	Chunks    []documentChunk `json:"chunks"`
	SourceURI string          `json:"source_uri"`
}

func (h *DocumentHandler) Create(c *gin.Context) {
	var req documentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.Title == "" {
		response.Error(c, errcode.ErrInvalid, "title required")
		return
	}
	chunks := make([]service.ChunkInput, 0, len(req.Chunks))
	for _, ch := range req.Chunks {
		chunks = append(chunks, service.ChunkInput{
			Content:   ch.Content,
			Embedding: ch.Embedding,
			Section:   ch.Section,
		})
	}
	result, err := h.ingest.AddDocument(c.Request.Context(), service.AddDocumentInput{
		Title:     req.Title,
		Domain:    req.Domain,
		Tags:      req.Tags,
		Content:   req.Content,
		Chunks:    chunks,
		SourceURI: req.SourceURI,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"document": result.Document, "chunk_count": result.ChunkCount})
}

func (h *DocumentHandler) List(c *gin.Context) {
	docs := h.ingest.ListDocuments(c.Request.Context())
	response.Success(c, gin.H{"items": docs, "total": len(docs)})
}

func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.ingest.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, doc)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	if err := h.ingest.DeleteDocument(c.Request.Context(), c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"ok": true})
}
