// Package app wires configuration into the storage, provider and service
// layers. Both binaries build the same object graph through Build.
package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/fleveque/site-ledger/internal/config"
	"github.com/fleveque/site-ledger/internal/llm"
	"github.com/fleveque/site-ledger/internal/service"
	"github.com/fleveque/site-ledger/internal/storage"
)

// App is the assembled service graph.
type App struct {
	DB           *sqlx.DB
	Providers    storage.ProviderConfigRepository
	LLMCalls     storage.LLMCallRepository
	AI           *service.AIService
	Settings     *service.SettingsService
	Assistant    *service.AssistantService
	Transactions *service.TransactionService
	Receipts     *service.ReceiptProcessor
}

// RegistryFactory returns a factory that builds one fresh set of vendor
// adapters per user session, configured from cfg.
func RegistryFactory(cfg config.LLMConfig, logger *zap.Logger) service.RegistryFactory {
	return func() *llm.Registry {
		return llm.NewRegistry(
			llm.NewGeminiProvider(llm.GeminiConfig{
				Model:   cfg.Gemini.Model,
				BaseURL: cfg.Gemini.BaseURL,
			}, logger),
			llm.NewClaudeProvider(llm.ClaudeConfig{
				Model:      cfg.Claude.Model,
				BaseURL:    cfg.Claude.BaseURL,
				ProxyURL:   cfg.Claude.ProxyURL,
				ProxyToken: cfg.Claude.ProxyToken,
			}, logger),
			llm.NewOpenAIProvider(llm.OpenAIConfig{
				Model:   cfg.OpenAI.Model,
				BaseURL: cfg.OpenAI.BaseURL,
			}, logger),
		)
	}
}

// Build opens the database and receipt directory and wires the services.
// newRegistry may be nil, in which case the configured vendors are used.
// The caller owns Close.
func Build(cfg *config.Config, newRegistry service.RegistryFactory, logger *zap.Logger) (*App, error) {
	if cfg.Storage.Driver == storage.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.DSN), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := storage.NewDatabase(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return nil, err
	}

	receiptStore, err := storage.NewReceiptStore(cfg.Storage.ReceiptDir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating receipt store: %w", err)
	}

	if newRegistry == nil {
		newRegistry = RegistryFactory(cfg.LLM, logger)
	}

	providers := storage.NewProviderConfigRepository(db)
	calls := storage.NewLLMCallRepository(db)
	receipts := service.NewReceiptProcessor(receiptStore, cfg.Receipts.MaxDimension)

	ai := service.NewAIService(providers, newRegistry, logger,
		service.WithCallRecorder(calls),
		service.WithRateLimit(cfg.LLM.RatePerMinute),
		service.WithSessionTTL(cfg.Auth.TokenTTL),
	)

	return &App{
		DB:           db,
		Providers:    providers,
		LLMCalls:     calls,
		AI:           ai,
		Settings:     service.NewSettingsService(providers, ai, cfg.LLM.SettingsTimeout, logger),
		Assistant:    service.NewAssistantService(ai, receipts, logger),
		Transactions: service.NewTransactionService(storage.NewTransactionRepository(db), logger),
		Receipts:     receipts,
	}, nil
}

// Close releases the database.
func (a *App) Close() error {
	return a.DB.Close()
}
