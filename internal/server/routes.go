package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fleveque/site-ledger/internal/config"
	"github.com/fleveque/site-ledger/internal/handler"
	"github.com/fleveque/site-ledger/internal/middleware"
)

// RegisterRoutes sets up all HTTP routes on the Gin engine.
// In Go, we pass dependencies explicitly: no DI container, no magic.
// Each handler gets exactly the dependencies it needs.
func RegisterRoutes(r *gin.Engine, cfg *config.Config, deps Deps, logger *zap.Logger) {
	maxUpload := cfg.Receipts.MaxUploadBytes

	healthHandler := handler.NewHealthHandler(deps.DB, logger)
	aiHandler := handler.NewAIHandler(deps.AI, deps.Receipts, maxUpload, logger)
	settingsHandler := handler.NewSettingsHandler(deps.Settings, logger)
	assistantHandler := handler.NewAssistantHandler(deps.Assistant, deps.Transactions, maxUpload, logger)
	sessionHandler := handler.NewSessionHandler(deps.AI)
	adminHandler := handler.NewAdminHandler(deps.LLMCallRepo, logger)

	// Public endpoints (no auth)
	r.GET("/healthz", healthHandler.Healthz)

	// CORS middleware applies to the entire API group.
	api := r.Group("/api/v1")
	api.Use(middleware.CORS(cfg.CORS.AllowedOrigins))

	// Multipart bodies are parsed in memory up to this size.
	if maxUpload > 0 {
		r.MaxMultipartMemory = maxUpload
	}

	authed := api.Group("")
	authed.Use(middleware.BearerAuth(cfg.Auth.JWTSecret))
	authed.Use(middleware.RateLimit(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst))
	{
		authed.GET("/session", sessionHandler.Current)
		authed.POST("/session/sign-out", sessionHandler.SignOut)

		authed.POST("/ai/initialize", aiHandler.Initialize)
		authed.GET("/ai/status", aiHandler.Status)
		authed.GET("/ai/providers/ranked", aiHandler.Ranked)
		authed.POST("/ai/analyze/image", aiHandler.AnalyzeImage)
		authed.POST("/ai/analyze/text", aiHandler.AnalyzeText)
		authed.POST("/ai/chat", aiHandler.Chat)

		authed.GET("/settings/providers", settingsHandler.List)
		authed.PUT("/settings/providers", settingsHandler.Save)
		authed.DELETE("/settings/providers/:id", settingsHandler.Delete)

		authed.POST("/assistant/messages", assistantHandler.Message)
		authed.POST("/transactions", assistantHandler.Confirm)
		authed.GET("/transactions", assistantHandler.List)
	}

	// Admin endpoints (separate auth with admin keys)
	admin := api.Group("/admin")
	admin.Use(middleware.AdminKeyAuth(cfg.Auth.AdminKeys))
	{
		admin.GET("/stats", adminHandler.Stats)
	}
}
