// Package model defines the core data types for the site ledger.
// Struct tags map fields for sqlx (`db:"..."`), JSON responses (`json:"..."`)
// and request validation (`validate:"..."`).
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// TransactionType is either income or expense. The zero value means the
// type could not be determined and serializes as JSON null.
type TransactionType string

const (
	TypeIncome  TransactionType = "income"
	TypeExpense TransactionType = "expense"
)

// Valid reports whether t is one of the two known types.
func (t TransactionType) Valid() bool {
	return t == TypeIncome || t == TypeExpense
}

func (t TransactionType) MarshalJSON() ([]byte, error) {
	if t == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(t))
}

func (t *TransactionType) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("transaction type: %w", err)
	}
	*t = TransactionType(s)
	return nil
}

// TransactionAnalysis is the normalized result of asking a model to read a
// receipt image or a free-text message. It is built once per request and
// never mutated afterwards.
type TransactionAnalysis struct {
	Amount          float64         `json:"amount"`
	Type            TransactionType `json:"type"`
	Category        string          `json:"category,omitempty"`
	Subcategory     string          `json:"subcategory,omitempty"`
	Description     string          `json:"description"`
	VendorName      string          `json:"vendorName,omitempty"`
	TransactionDate string          `json:"transactionDate,omitempty"`
	PaymentMethod   string          `json:"paymentMethod,omitempty"`
	Confidence      float64         `json:"confidence"`
}

// TransactionDraft is a pending, unsaved transaction seeded from an analysis.
// The user may edit it before confirming.
type TransactionDraft struct {
	ProjectID       string          `json:"project_id" validate:"required"`
	Amount          float64         `json:"amount" validate:"gte=0"`
	Type            TransactionType `json:"type" validate:"omitempty,oneof=income expense"`
	Category        string          `json:"category"`
	Subcategory     string          `json:"subcategory,omitempty"`
	Description     string          `json:"description,omitempty"`
	VendorName      string          `json:"vendor_name,omitempty"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	TransactionDate string          `json:"transaction_date" validate:"omitempty,datetime=2006-01-02"`
	ReceiptID       string          `json:"receipt_id,omitempty"`
	Notes           string          `json:"notes,omitempty"`
}

// Transaction is a confirmed income or expense entry for a project.
type Transaction struct {
	ID              string          `db:"id" json:"id"`
	UserID          string          `db:"user_id" json:"user_id"`
	ProjectID       string          `db:"project_id" json:"project_id"`
	Amount          float64         `db:"amount" json:"amount"`
	Type            TransactionType `db:"type" json:"type"`
	Category        string          `db:"category" json:"category"`
	Subcategory     string          `db:"subcategory" json:"subcategory,omitempty"`
	Description     string          `db:"description" json:"description,omitempty"`
	VendorName      string          `db:"vendor_name" json:"vendor_name,omitempty"`
	PaymentMethod   string          `db:"payment_method" json:"payment_method,omitempty"`
	TransactionDate string          `db:"transaction_date" json:"transaction_date"`
	ReceiptID       string          `db:"receipt_id" json:"receipt_id,omitempty"`
	IsVerified      bool            `db:"is_verified" json:"is_verified"`
	Notes           string          `db:"notes" json:"notes,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}
