package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fleveque/site-ledger/internal/middleware"
	"github.com/fleveque/site-ledger/internal/model"
	"github.com/fleveque/site-ledger/internal/service"
)

// SettingsHandler manages the caller's provider credentials.
type SettingsHandler struct {
	settings *service.SettingsService
	logger   *zap.Logger
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(settings *service.SettingsService, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, logger: logger}
}

// providerView is a ProviderConfig as the settings screen sees it: the key
// is never sent back in full.
type providerView struct {
	ID        string             `json:"id"`
	Provider  model.ProviderName `json:"provider"`
	APIKey    string             `json:"api_key"`
	IsActive  bool               `json:"is_active"`
	Priority  int                `json:"priority"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func viewOf(cfg model.ProviderConfig) providerView {
	return providerView{
		ID:        cfg.ID,
		Provider:  cfg.Provider,
		APIKey:    cfg.MaskedKey(),
		IsActive:  cfg.IsActive,
		Priority:  cfg.Priority,
		UpdatedAt: cfg.UpdatedAt,
	}
}

// List returns the caller's provider configs with masked keys.
// Route: GET /api/v1/settings/providers
func (h *SettingsHandler) List(c *gin.Context) {
	cfgs, err := h.settings.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	out := make([]providerView, 0, len(cfgs))
	for _, cfg := range cfgs {
		out = append(out, viewOf(cfg))
	}
	c.JSON(http.StatusOK, out)
}

type saveProviderRequest struct {
	Provider model.ProviderName `json:"provider"`
	APIKey   string             `json:"api_key"`
	IsActive *bool              `json:"is_active"`
	Priority int                `json:"priority"`
}

// Save creates or replaces the caller's config for one provider.
// Route: PUT /api/v1/settings/providers
func (h *SettingsHandler) Save(c *gin.Context) {
	var req saveProviderRequest
	if !bindJSON(c, &req) {
		return
	}

	cfg := &model.ProviderConfig{
		UserID:   middleware.UserID(c),
		Provider: req.Provider,
		APIKey:   req.APIKey,
		IsActive: req.IsActive == nil || *req.IsActive,
		Priority: req.Priority,
	}
	if err := h.settings.Save(c.Request.Context(), cfg); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, viewOf(*cfg))
}

// Delete removes one of the caller's configs.
// Route: DELETE /api/v1/settings/providers/:id
func (h *SettingsHandler) Delete(c *gin.Context) {
	if err := h.settings.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}
