package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fleveque/site-ledger/internal/llm"
	"github.com/fleveque/site-ledger/internal/service"
	"github.com/fleveque/site-ledger/internal/storage"
)

// writeError maps service and provider errors onto HTTP statuses. Caller
// mistakes are echoed back; anything unexpected is logged and hidden.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, llm.ErrNoProvidersConfigured):
		c.JSON(http.StatusPreconditionFailed, gin.H{
			"error": err.Error(),
			"hint":  "configure your API keys in Settings",
		})
	case errors.Is(err, llm.ErrInvalidImageData):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, llm.ErrAllProvidersFailed):
		c.JSON(http.StatusBadGateway, gin.H{
			"error": err.Error(),
			"hint":  "check your provider configuration in Settings",
		})
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("request timed out", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "timed out"})
	default:
		logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// bindJSON decodes the body or answers 400. It reports whether to go on.
func bindJSON(c *gin.Context, dest any) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return false
	}
	return true
}
