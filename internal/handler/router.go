package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ragline/ragline/internal/middleware"
	"github.com/ragline/ragline/internal/pkg/jwt"
)

type RouterDeps struct {
	Query     *QueryHandler
	Documents *DocumentHandler
	Cache     *CacheHandler
	Stats     *StatsHandler
	Health    *HealthHandler

	JWTSecret      []byte
	HashedAPIKeys  []string
	QueryRateLimit time.Duration
}

func (d RouterDeps) authEnabled() bool {
	return len(d.JWTSecret) > 0 || len(d.HashedAPIKeys) > 0
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", deps.Health.Live)
	api.GET("/readyz", deps.Health.Ready)
	api.GET("/metrics", gin.WrapH(promhttp.Handler()))
	api.GET("/stats", deps.Stats.Get)

	queryGroup := api.Group("")
	queryGroup.Use(middleware.RateLimit(deps.QueryRateLimit))
	if deps.authEnabled() {
		queryGroup.Use(middleware.AuthOptional(deps.JWTSecret, deps.HashedAPIKeys))
	}
	queryGroup.POST("/query", deps.Query.Ask)

	ingestGroup := api.Group("")
	if deps.authEnabled() {
		ingestGroup.Use(middleware.Auth(deps.JWTSecret, deps.HashedAPIKeys, jwt.ScopeIngest))
	}
	ingestGroup.POST("/documents", deps.Documents.Create)
	ingestGroup.GET("/documents", deps.Documents.List)
	ingestGroup.GET("/documents/:id", deps.Documents.Get)
	ingestGroup.DELETE("/documents/:id", deps.Documents.Delete)
	ingestGroup.DELETE("/cache/:domain", deps.Cache.InvalidateDomain)
}
