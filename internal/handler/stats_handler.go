package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ragline/ragline/internal/pkg/response"
	"github.com/ragline/ragline/internal/service"
)

type StatsHandler struct {
	ingest  *service.IngestService
	queries *service.StatsRecorder
}

func NewStatsHandler(ingest *service.IngestService, queries *service.StatsRecorder) *StatsHandler {
	return &StatsHandler{ingest: ingest, queries: queries}
}

func (h *StatsHandler) Get(c *gin.Context) {
	response.Success(c, gin.H{
		"corpus":  h.ingest.Stats(c.Request.Context()),
		"queries": h.queries.Snapshot(),
	})
}
