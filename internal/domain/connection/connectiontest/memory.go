// Package connectiontest provides an in-memory connection.Repository with the
// same upsert, ownership and snapshot-ordering rules as the Postgres one.
package connectiontest

import (
	"context"
	"sort"
	"sync"
	"time"

	"bankconn/internal/domain/connection"
)

// MemoryRepository is safe for concurrent use.
type MemoryRepository struct {
	mu    sync.Mutex
	rows  map[string]connection.Connection
	now   func() time.Time
	Calls int
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string]connection.Connection), now: time.Now}
}

var _ connection.Repository = (*MemoryRepository)(nil)

func (m *MemoryRepository) UpsertByItemID(ctx context.Context, params connection.UpsertParams) (*connection.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++

	now := m.now()
	existing, ok := m.rows[params.ItemID]
	if ok && existing.UserID != params.UserID {
		return nil, connection.ErrItemOwnedByAnotherUser
	}
	if !ok {
		existing = connection.Connection{
			ItemID:    params.ItemID,
			UserID:    params.UserID,
			Accounts:  []connection.AccountSnapshot{},
			CreatedAt: now,
		}
	}

	existing.Provider = params.Provider
	existing.Status = params.Status
	newer := existing.LastSyncAt == nil ||
		(params.LastSyncAt != nil && !existing.LastSyncAt.After(*params.LastSyncAt))
	if params.Accounts != nil && newer {
		existing.Accounts = cloneAccounts(params.Accounts)
	}
	if params.LastSyncAt != nil && newer {
		t := *params.LastSyncAt
		existing.LastSyncAt = &t
	}
	existing.UpdatedAt = now
	m.rows[params.ItemID] = existing

	out := clone(existing)
	return &out, nil
}

func (m *MemoryRepository) ListByUserID(ctx context.Context, userID int64) ([]*connection.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++

	var out []*connection.Connection
	for _, row := range m.rows {
		if row.UserID == userID {
			c := clone(row)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) GetByItemID(ctx context.Context, itemID string) (*connection.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++

	row, ok := m.rows[itemID]
	if !ok {
		return nil, connection.ErrConnectionNotFound
	}
	c := clone(row)
	return &c, nil
}

func (m *MemoryRepository) DeleteByItemAndUser(ctx context.Context, itemID string, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++

	row, ok := m.rows[itemID]
	if !ok || row.UserID != userID {
		return connection.ErrConnectionNotFound
	}
	delete(m.rows, itemID)
	return nil
}

func (m *MemoryRepository) UpdateStatus(ctx context.Context, itemID string, status connection.ItemStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++

	row, ok := m.rows[itemID]
	if !ok {
		return connection.ErrConnectionNotFound
	}
	row.Status = status
	row.UpdatedAt = m.now()
	m.rows[itemID] = row
	return nil
}

func (m *MemoryRepository) ReplaceSnapshot(ctx context.Context, params connection.SnapshotParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++

	row, ok := m.rows[params.ItemID]
	if !ok {
		return connection.ErrConnectionNotFound
	}
	if row.LastSyncAt != nil && row.LastSyncAt.After(params.FetchedAt) {
		return nil
	}
	fetchedAt := params.FetchedAt
	row.Status = params.Status
	row.Accounts = cloneAccounts(params.Accounts)
	row.LastSyncAt = &fetchedAt
	row.UpdatedAt = m.now()
	m.rows[params.ItemID] = row
	return nil
}

func (m *MemoryRepository) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*connection.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++

	var out []*connection.Connection
	for _, row := range m.rows {
		if row.Status.RequiresUserAction() {
			continue
		}
		if row.LastSyncAt != nil && !row.LastSyncAt.Before(olderThan) {
			continue
		}
		c := clone(row)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of stored connections.
func (m *MemoryRepository) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// CallCount returns how many repository methods have been invoked.
func (m *MemoryRepository) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

func clone(c connection.Connection) connection.Connection {
	c.Accounts = cloneAccounts(c.Accounts)
	if c.LastSyncAt != nil {
		t := *c.LastSyncAt
		c.LastSyncAt = &t
	}
	return c
}

func cloneAccounts(in []connection.AccountSnapshot) []connection.AccountSnapshot {
	out := make([]connection.AccountSnapshot, len(in))
	copy(out, in)
	return out
}
