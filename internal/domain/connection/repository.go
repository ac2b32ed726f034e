package connection

import (
	"context"
	"time"
)

// Repository defines data access for bank connections.
// Implemented by the postgres package.
type Repository interface {
	// UpsertByItemID inserts or updates the connection keyed on item ID.
	// created_at and user_id are only written on insert. Returns
	// ErrItemOwnedByAnotherUser when the item exists under a different user.
	UpsertByItemID(ctx context.Context, params UpsertParams) (*Connection, error)

	// ListByUserID returns all connections owned by a user.
	ListByUserID(ctx context.Context, userID int64) ([]*Connection, error)

	// GetByItemID returns the connection for an item or ErrConnectionNotFound.
	GetByItemID(ctx context.Context, itemID string) (*Connection, error)

	// DeleteByItemAndUser removes the connection only if the user owns it.
	// Returns ErrConnectionNotFound when zero rows were affected.
	DeleteByItemAndUser(ctx context.Context, itemID string, userID int64) error

	// UpdateStatus records an observed status without touching the snapshot.
	UpdateStatus(ctx context.Context, itemID string, status ItemStatus) error

	// ReplaceSnapshot swaps in a freshly fetched accounts snapshot. Older
	// fetches never overwrite newer ones.
	ReplaceSnapshot(ctx context.Context, params SnapshotParams) error

	// ListStale returns connections not synced since olderThan, skipping
	// those waiting on the user.
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*Connection, error)
}
