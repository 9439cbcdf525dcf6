package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fleveque/site-ledger/internal/model"
)

// ProviderConfigRepository is the credential store: one row per
// (user, provider) with the API key, activation flag and failover priority.
type ProviderConfigRepository interface {
	// ListActive returns the user's active configs ordered by priority.
	// Rows sharing a priority keep creation order.
	ListActive(ctx context.Context, userID string) ([]model.ProviderConfig, error)
	ListByUser(ctx context.Context, userID string) ([]model.ProviderConfig, error)
	// Upsert inserts or replaces the row for (cfg.UserID, cfg.Provider) and
	// fills in ID and timestamps.
	Upsert(ctx context.Context, cfg *model.ProviderConfig) error
	Delete(ctx context.Context, userID, id string) error
}

// sqlProviderConfigRepository works for both drivers: queries are written
// with ? placeholders and passed through db.Rebind, which turns them into
// $1, $2... for Postgres.
type sqlProviderConfigRepository struct {
	db *sqlx.DB
}

// NewProviderConfigRepository creates a SQL-backed ProviderConfigRepository.
func NewProviderConfigRepository(db *sqlx.DB) ProviderConfigRepository {
	return &sqlProviderConfigRepository{db: db}
}

func (r *sqlProviderConfigRepository) ListActive(ctx context.Context, userID string) ([]model.ProviderConfig, error) {
	var cfgs []model.ProviderConfig
	err := r.db.SelectContext(ctx, &cfgs, r.db.Rebind(`
		SELECT * FROM provider_configs
		WHERE user_id = ? AND is_active = ?
		ORDER BY priority ASC, created_at ASC`),
		userID, true)
	if err != nil {
		return nil, fmt.Errorf("listing active provider configs: %w", err)
	}
	return cfgs, nil
}

func (r *sqlProviderConfigRepository) ListByUser(ctx context.Context, userID string) ([]model.ProviderConfig, error) {
	var cfgs []model.ProviderConfig
	err := r.db.SelectContext(ctx, &cfgs, r.db.Rebind(`
		SELECT * FROM provider_configs
		WHERE user_id = ?
		ORDER BY priority ASC, created_at ASC`),
		userID)
	if err != nil {
		return nil, fmt.Errorf("listing provider configs: %w", err)
	}
	return cfgs, nil
}

func (r *sqlProviderConfigRepository) Upsert(ctx context.Context, cfg *model.ProviderConfig) error {
	now := time.Now().UTC()
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	cfg.CreatedAt = now
	cfg.UpdatedAt = now

	// The unique (user_id, provider) constraint makes this an upsert; on
	// conflict the existing row keeps its id and created_at.
	query, args, err := sqlx.Named(`
		INSERT INTO provider_configs (id, user_id, provider, api_key, is_active, priority, created_at, updated_at)
		VALUES (:id, :user_id, :provider, :api_key, :is_active, :priority, :created_at, :updated_at)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			api_key = excluded.api_key,
			is_active = excluded.is_active,
			priority = excluded.priority,
			updated_at = excluded.updated_at
		RETURNING id`, cfg)
	if err != nil {
		return fmt.Errorf("binding provider config: %w", err)
	}

	if err := r.db.QueryRowxContext(ctx, r.db.Rebind(query), args...).Scan(&cfg.ID); err != nil {
		return fmt.Errorf("upserting provider config: %w", err)
	}

	var stored model.ProviderConfig
	err = r.db.GetContext(ctx, &stored, r.db.Rebind("SELECT * FROM provider_configs WHERE id = ?"), cfg.ID)
	if err != nil {
		return fmt.Errorf("reloading provider config: %w", err)
	}
	*cfg = stored
	return nil
}

func (r *sqlProviderConfigRepository) Delete(ctx context.Context, userID, id string) error {
	result, err := r.db.ExecContext(ctx,
		r.db.Rebind("DELETE FROM provider_configs WHERE id = ? AND user_id = ?"), id, userID)
	if err != nil {
		return fmt.Errorf("deleting provider config %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deleted rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// getOne is shared by repositories that look rows up by id and owner.
func getOne(ctx context.Context, db *sqlx.DB, dest any, query string, args ...any) error {
	err := db.GetContext(ctx, dest, db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
