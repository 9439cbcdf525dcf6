package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fleveque/site-ledger/internal/model"
)

// LLMCallRepository handles persistence of LLM call tracking.
type LLMCallRepository interface {
	Create(ctx context.Context, call *model.LLMCall) error
	Count(ctx context.Context) (int64, error)
	StatsByProvider(ctx context.Context) ([]model.ProviderCallStats, error)
}

type sqlLLMCallRepository struct {
	db *sqlx.DB
}

// NewLLMCallRepository creates a SQL-backed LLMCallRepository.
func NewLLMCallRepository(db *sqlx.DB) LLMCallRepository {
	return &sqlLLMCallRepository{db: db}
}

func (r *sqlLLMCallRepository) Create(ctx context.Context, call *model.LLMCall) error {
	if call.ID == "" {
		call.ID = uuid.NewString()
	}
	if call.CreatedAt.IsZero() {
		call.CreatedAt = time.Now().UTC()
	}

	query, args, err := sqlx.Named(`
		INSERT INTO llm_calls (id, user_id, provider, model, operation, success, duration_ms, error_message, created_at)
		VALUES (:id, :user_id, :provider, :model, :operation, :success, :duration_ms, :error_message, :created_at)`, call)
	if err != nil {
		return fmt.Errorf("binding llm call record: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("creating llm call record: %w", err)
	}
	return nil
}

func (r *sqlLLMCallRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM llm_calls")
	return count, err
}

func (r *sqlLLMCallRepository) StatsByProvider(ctx context.Context) ([]model.ProviderCallStats, error) {
	var stats []model.ProviderCallStats
	err := r.db.SelectContext(ctx, &stats, `
		SELECT provider,
		       COUNT(*) AS total,
		       SUM(CASE WHEN success THEN 1 ELSE 0 END) AS succeeded
		FROM llm_calls
		GROUP BY provider
		ORDER BY provider`)
	if err != nil {
		return nil, fmt.Errorf("aggregating llm calls: %w", err)
	}
	return stats, nil
}
