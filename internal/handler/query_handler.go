package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ragline/ragline/internal/model"
	"github.com/ragline/ragline/internal/pkg/errcode"
	"github.com/ragline/ragline/internal/pkg/response"
	"github.com/ragline/ragline/internal/service"
)

type QueryHandler struct {
	queries *service.QueryService
}

func NewQueryHandler(queries *service.QueryService) *QueryHandler {
	return &QueryHandler{queries: queries}
}

type queryRequest struct {
	Question string `json:"question"`
	Domain   string `json:"domain"`
}

func (h *QueryHandler) Ask(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	question := strings.TrimSpace(req.Question)
	if question == "" {
		response.Error(c, errcode.ErrInvalid, "question required")
		return
	}
	domain := strings.TrimSpace(req.Domain)
	if domain == "" {
		domain = "general"
	}
	answer, err := h.queries.Query(c.Request.Context(), &model.Query{
		Text:   question,
		Domain: domain,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, answer)
}
