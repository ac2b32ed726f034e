package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bankconn/internal/domain/account"
)

// AccountRepository implements account.Repository for the ledger_accounts table.
type AccountRepository struct {
	db *DB
}

// NewAccountRepository creates a new PostgreSQL account repository
func NewAccountRepository(db *DB) *AccountRepository {
	return &AccountRepository{db: db}
}

var _ account.Repository = (*AccountRepository)(nil)

// Upsert writes the account in a single statement keyed on the aggregator id.
// xmax = 0 on the returned row means it was inserted rather than updated.
func (r *AccountRepository) Upsert(ctx context.Context, params account.UpsertParams) (bool, error) {
	query := `
		INSERT INTO ledger_accounts (id, user_id, item_id, name, type, subtype, currency, balance)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			item_id = EXCLUDED.item_id,
			name = EXCLUDED.name,
			type = EXCLUDED.type,
			subtype = EXCLUDED.subtype,
			currency = EXCLUDED.currency,
			balance = EXCLUDED.balance,
			updated_at = NOW()
		WHERE ledger_accounts.user_id = EXCLUDED.user_id
		RETURNING (xmax = 0)
	`

	var created bool
	err := r.db.QueryRowContext(ctx, query,
		params.ID, params.UserID, params.ItemID, params.Name,
		params.Type, nullString(params.Subtype), params.Currency, params.Balance,
	).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return false, account.ErrForbidden
	}
	if err != nil {
		return false, fmt.Errorf("failed to upsert account: %w", err)
	}
	return created, nil
}

// ListByItemID retrieves the user's accounts for one item
func (r *AccountRepository) ListByItemID(ctx context.Context, userID int64, itemID string) ([]*account.Account, error) {
	query := `
		SELECT id, user_id, item_id, name, type, subtype, currency, balance, created_at, updated_at
		FROM ledger_accounts
		WHERE user_id = $1 AND item_id = $2
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query, userID, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.Account
	for rows.Next() {
		var acc account.Account
		var subtype sql.NullString
		if err := rows.Scan(
			&acc.ID, &acc.UserID, &acc.ItemID, &acc.Name, &acc.Type, &subtype,
			&acc.Currency, &acc.Balance, &acc.CreatedAt, &acc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		acc.Subtype = subtype.String
		accounts = append(accounts, &acc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}
	return accounts, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
