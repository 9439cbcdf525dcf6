package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fleveque/site-ledger/internal/middleware"
	"github.com/fleveque/site-ledger/internal/service"
)

// SessionHandler reports and ends the caller's AI session.
type SessionHandler struct {
	ai *service.AIService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(ai *service.AIService) *SessionHandler {
	return &SessionHandler{ai: ai}
}

// Current returns who the token belongs to.
// Route: GET /api/v1/session
func (h *SessionHandler) Current(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user_id": middleware.UserID(c)})
}

// SignOut drops the caller's in-memory adapters and keys. The next request
// initializes a fresh session from the store.
// Route: POST /api/v1/session/sign-out
func (h *SessionHandler) SignOut(c *gin.Context) {
	h.ai.Forget(middleware.UserID(c))
	c.Status(http.StatusNoContent)
}
