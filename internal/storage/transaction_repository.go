package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/fleveque/site-ledger/internal/model"
)

// TransactionRepository persists confirmed transactions.
type TransactionRepository interface {
	Create(ctx context.Context, tx *model.Transaction) error
	GetByID(ctx context.Context, userID, id string) (*model.Transaction, error)
	ListByProject(ctx context.Context, userID, projectID string) ([]model.Transaction, error)
}

type sqlTransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository creates a SQL-backed TransactionRepository.
func NewTransactionRepository(db *sqlx.DB) TransactionRepository {
	return &sqlTransactionRepository{db: db}
}

func (r *sqlTransactionRepository) Create(ctx context.Context, tx *model.Transaction) error {
	now := time.Now().UTC()
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.CreatedAt = now
	tx.UpdatedAt = now

	query, args, err := sqlx.Named(`
		INSERT INTO transactions (
			id, user_id, project_id, amount, type, category, subcategory, description,
			vendor_name, payment_method, transaction_date, receipt_id, is_verified, notes,
			created_at, updated_at
		) VALUES (
			:id, :user_id, :project_id, :amount, :type, :category, :subcategory, :description,
			:vendor_name, :payment_method, :transaction_date, :receipt_id, :is_verified, :notes,
			:created_at, :updated_at
		)`, tx)
	if err != nil {
		return fmt.Errorf("binding transaction: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("creating transaction: %w", err)
	}
	return nil
}

func (r *sqlTransactionRepository) GetByID(ctx context.Context, userID, id string) (*model.Transaction, error) {
	var tx model.Transaction
	err := getOne(ctx, r.db, &tx, "SELECT * FROM transactions WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("getting transaction %s: %w", id, err)
	}
	return &tx, nil
}

func (r *sqlTransactionRepository) ListByProject(ctx context.Context, userID, projectID string) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := r.db.SelectContext(ctx, &txs, r.db.Rebind(`
		SELECT * FROM transactions
		WHERE user_id = ? AND project_id = ?
		ORDER BY transaction_date DESC, created_at DESC`),
		userID, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing transactions for project %s: %w", projectID, err)
	}
	return txs, nil
}
