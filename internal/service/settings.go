package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/fleveque/site-ledger/internal/model"
	"github.com/fleveque/site-ledger/internal/storage"
)

// DefaultSettingsTimeout bounds the settings listing read.
const DefaultSettingsTimeout = 10 * time.Second

// SettingsService is the CRUD surface over provider credentials. Saving a
// config also reconfigures the user's live adapter so the next request
// uses the new key without re-initializing.
type SettingsService struct {
	store       storage.ProviderConfigRepository
	ai          *AIService
	validate    *validator.Validate
	listTimeout time.Duration
	logger      *zap.Logger
}

// NewSettingsService creates a SettingsService. A zero listTimeout uses
// DefaultSettingsTimeout.
func NewSettingsService(store storage.ProviderConfigRepository, ai *AIService, listTimeout time.Duration, logger *zap.Logger) *SettingsService {
	if listTimeout <= 0 {
		listTimeout = DefaultSettingsTimeout
	}
	return &SettingsService{
		store:       store,
		ai:          ai,
		validate:    newValidator(),
		listTimeout: listTimeout,
		logger:      logger,
	}
}

// Save validates and upserts cfg on (user, provider).
func (s *SettingsService) Save(ctx context.Context, cfg *model.ProviderConfig) error {
	if err := s.validate.Struct(cfg); err != nil {
		return validationError(err)
	}

	if err := s.store.Upsert(ctx, cfg); err != nil {
		return fmt.Errorf("saving provider settings: %w", err)
	}

	s.logger.Info("provider settings saved",
		zap.String("user_id", cfg.UserID),
		zap.String("provider", string(cfg.Provider)),
		zap.Bool("active", cfg.IsActive),
		zap.Int("priority", cfg.Priority),
	)

	if cfg.IsActive {
		s.ai.Configure(cfg.UserID, cfg.Provider, cfg.APIKey)
	}
	return nil
}

// List returns every config of the user, active or not, ordered by priority.
// The read is abandoned after the configured timeout.
func (s *SettingsService) List(ctx context.Context, userID string) ([]model.ProviderConfig, error) {
	ctx, cancel := context.WithTimeout(ctx, s.listTimeout)
	defer cancel()

	cfgs, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error("loading provider settings", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return cfgs, nil
}

// Delete removes one of the user's configs. The live adapter keeps its key
// until the session is initialized again; ranking already skips the
// deleted row on the next request.
func (s *SettingsService) Delete(ctx context.Context, userID, id string) error {
	if err := s.store.Delete(ctx, userID, id); err != nil {
		return err
	}
	s.logger.Info("provider settings deleted", zap.String("user_id", userID), zap.String("id", id))
	return nil
}
