package transaction

import (
	"context"
	"time"
)

// Repository defines the interface for transaction data access
type Repository interface {
	// Upsert inserts or updates a transaction keyed on the provider's id.
	// Re-delivering the same transaction is a no-op apart from refreshed
	// fields; created reports whether a new row was written. A transaction
	// stored for another user is left untouched and ErrForbidden is returned.
	Upsert(ctx context.Context, params UpsertParams) (created bool, err error)

	// LatestDate returns the newest transaction date stored for an account,
	// or nil when the account has none.
	LatestDate(ctx context.Context, accountID string) (*time.Time, error)
}
