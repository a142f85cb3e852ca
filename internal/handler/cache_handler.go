package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ragline/ragline/internal/cache"
	"github.com/ragline/ragline/internal/pkg/errcode"
	"github.com/ragline/ragline/internal/pkg/response"
)

type CacheHandler struct {
	cache *cache.SemanticCache
}

func NewCacheHandler(sc *cache.SemanticCache) *CacheHandler {
	return &CacheHandler{cache: sc}
}

func (h *CacheHandler) InvalidateDomain(c *gin.Context) {
	domain := c.Param("domain")
	if domain == "" {
		response.Error(c, errcode.ErrInvalid, "domain required")
		return
	}
	removed, err := h.cache.InvalidateDomain(c.Request.Context(), domain)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"domain": domain, "removed": removed})
}
