package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/ragline/ragline/internal/middleware"
	"github.com/ragline/ragline/internal/pkg/errcode"
	appErr "github.com/ragline/ragline/internal/pkg/errors"
	"github.com/ragline/ragline/internal/pkg/response"
)

func requestID(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextRequestIDKey)
	id, _ := value.(string)
	return id
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("request_id", requestID(c)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err))
	switch {
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrForbidden):
		response.Error(c, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, "conflict")
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, errcode.ErrTooMany, "too many requests")
	case errors.Is(err, appErr.ErrRetrievalUnavailable):
		response.Error(c, errcode.ErrRetrievalUnavailable, "retrieval unavailable")
	case errors.Is(err, appErr.ErrGenerationFailed):
		response.Error(c, errcode.ErrGenerationFailed, "generation failed")
	case errors.Is(err, appErr.ErrCacheUnavailable):
		response.Error(c, errcode.ErrCacheUnavailable, "cache unavailable")
	case errors.Is(err, appErr.ErrDeadlineExceeded):
		response.Error(c, errcode.ErrDeadlineExceeded, "request deadline exceeded")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
