package transaction

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Domain errors
var (
	ErrInvalidType   = errors.New("transaction type must be DEBIT or CREDIT")
	ErrInvalidStatus = errors.New("transaction status must be PENDING or POSTED")
	ErrForbidden     = errors.New("transaction belongs to another user")
)

type Transaction struct {
	ID              string          `json:"id"` // aggregator transaction id, the dedup key
	UserID          int64           `json:"userId"`
	AccountID       string          `json:"accountId"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        string          `json:"currency"`
	Description     string          `json:"description"`
	Category        *string         `json:"category,omitempty"`
	TransactionDate time.Time       `json:"transactionDate"`
	Type            string          `json:"type"`   // "DEBIT" or "CREDIT"
	Status          string          `json:"status"` // "PENDING" or "POSTED"
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// UpsertParams is used for syncing transactions from the provider
type UpsertParams struct {
	ID              string // Provider's transaction id (used as PK)
	UserID          int64
	AccountID       string
	Amount          decimal.Decimal
	Currency        string
	Description     string
	Category        *string
	TransactionDate time.Time
	Type            string
	Status          string
}

// Validate validates the upsert parameters
func (p UpsertParams) Validate() error {
	if p.ID == "" {
		return errors.New("transaction ID is required")
	}
	if p.UserID <= 0 {
		return errors.New("valid user ID is required")
	}
	if p.AccountID == "" {
		return errors.New("account ID is required")
	}
	if p.TransactionDate.IsZero() {
		return errors.New("transaction date is required")
	}
	if p.Type != "DEBIT" && p.Type != "CREDIT" {
		return ErrInvalidType
	}
	if p.Status != "PENDING" && p.Status != "POSTED" {
		return ErrInvalidStatus
	}
	return nil
}
