package account

import "context"

// Repository defines the interface for account data access
// This interface is defined in the domain layer, but implemented in the infrastructure layer
type Repository interface {
	// Upsert creates or updates an account keyed on its aggregator ID.
	// created is true when a new row was inserted. An account that already
	// belongs to another user is left untouched and ErrForbidden is returned.
	Upsert(ctx context.Context, params UpsertParams) (created bool, err error)

	// ListByItemID retrieves the user's accounts for one item
	ListByItemID(ctx context.Context, userID int64, itemID string) ([]*Account, error)
}
