package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/voicerag/internal/middleware"
	"github.com/xxxsen/voicerag/internal/pkg/errcode"
	appErr "github.com/xxxsen/voicerag/internal/pkg/errors"
	"github.com/xxxsen/voicerag/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Error("request failed",
		zap.String("request_id", c.GetString(middleware.ContextRequestIDKey)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Error(err),
	)
	switch {
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, "invalid request")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrConfiguration):
		response.Error(c, errcode.ErrAIUnavailable, "language model is not configured")
	case errors.Is(err, appErr.ErrIngestion):
		response.Error(c, errcode.ErrIngestFailed, "document ingestion failed")
	case errors.Is(err, appErr.ErrExternalService):
		response.Error(c, errcode.ErrUpstreamFailed, "upstream service failed")
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, errcode.ErrTooMany, "too many requests")
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
