package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bankconn/internal/domain/account"
	"bankconn/internal/domain/transaction"
)

// TransactionRepository implements transaction.Repository for ledger_transactions.
type TransactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a new PostgreSQL transaction repository
func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

var _ transaction.Repository = (*TransactionRepository)(nil)

// Upsert deduplicates on the aggregator transaction id. Concurrent deliveries
// of the same id converge on one row.
func (r *TransactionRepository) Upsert(ctx context.Context, params transaction.UpsertParams) (bool, error) {
	query := `
		INSERT INTO ledger_transactions (
			id, user_id, account_id, amount, currency, description, category,
			transaction_date, type, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			description = EXCLUDED.description,
			category = COALESCE(EXCLUDED.category, ledger_transactions.category),
			transaction_date = EXCLUDED.transaction_date,
			type = EXCLUDED.type,
			status = EXCLUDED.status,
			updated_at = NOW()
		WHERE ledger_transactions.user_id = EXCLUDED.user_id
		RETURNING (xmax = 0)
	`

	var category sql.NullString
	if params.Category != nil {
		category = sql.NullString{String: *params.Category, Valid: true}
	}

	var created bool
	err := r.db.QueryRowContext(ctx, query,
		params.ID, params.UserID, params.AccountID, params.Amount, params.Currency,
		params.Description, category, params.TransactionDate, params.Type, params.Status,
	).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return false, transaction.ErrForbidden
	}
	if isForeignKeyViolation(err) {
		return false, fmt.Errorf("transaction %s: %w", params.ID, account.ErrAccountNotFound)
	}
	if err != nil {
		return false, fmt.Errorf("failed to upsert transaction: %w", err)
	}
	return created, nil
}

func (r *TransactionRepository) LatestDate(ctx context.Context, accountID string) (*time.Time, error) {
	var latest sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(transaction_date) FROM ledger_transactions WHERE account_id = $1`,
		accountID,
	).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest transaction date: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	t := latest.Time
	return &t, nil
}
