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

// TransactionService turns confirmed drafts into stored transactions.
type TransactionService struct {
	repo     storage.TransactionRepository
	validate *validator.Validate
	now      func() time.Time
	logger   *zap.Logger
}

// NewTransactionService creates a TransactionService.
func NewTransactionService(repo storage.TransactionRepository, logger *zap.Logger) *TransactionService {
	return &TransactionService{
		repo:     repo,
		validate: newValidator(),
		now:      time.Now,
		logger:   logger,
	}
}

// Confirmation is the stored transaction plus the assistant's reply.
type Confirmation struct {
	Transaction *model.Transaction `json:"transaction"`
	Message     string             `json:"message"`
}

// Confirm stores a draft. Missing fields fall back the same way the
// assistant seeds drafts: expense, the type's draft category, today.
func (s *TransactionService) Confirm(ctx context.Context, userID string, draft model.TransactionDraft) (*Confirmation, error) {
	if err := s.validate.Struct(draft); err != nil {
		return nil, validationError(err)
	}

	t := draft.Type
	if !t.Valid() {
		t = model.TypeExpense
	}
	category := snapCategory(t, draft.Category)
	date := draft.TransactionDate
	if date == "" {
		date = s.now().Format(time.DateOnly)
	}

	tx := &model.Transaction{
		UserID:          userID,
		ProjectID:       draft.ProjectID,
		Amount:          draft.Amount,
		Type:            t,
		Category:        category,
		Subcategory:     draft.Subcategory,
		Description:     draft.Description,
		VendorName:      draft.VendorName,
		PaymentMethod:   draft.PaymentMethod,
		TransactionDate: date,
		ReceiptID:       draft.ReceiptID,
		Notes:           draft.Notes,
	}
	if err := s.repo.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("confirming transaction: %w", err)
	}

	s.logger.Info("transaction confirmed",
		zap.String("user_id", userID),
		zap.String("project_id", tx.ProjectID),
		zap.String("id", tx.ID),
	)

	return &Confirmation{
		Transaction: tx,
		Message:     fmt.Sprintf("Transaction confirmed! Added %s of %s for %s.", tx.Type, FormatINR(tx.Amount), tx.Category),
	}, nil
}

// List returns a project's transactions, newest first.
func (s *TransactionService) List(ctx context.Context, userID, projectID string) ([]model.Transaction, error) {
	if projectID == "" {
		return nil, invalidInput("project_id is required")
	}
	return s.repo.ListByProject(ctx, userID, projectID)
}
