package connection

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"
)

// AccountsFetcher loads the current accounts of an item from the aggregator.
type AccountsFetcher interface {
	FetchSnapshots(ctx context.Context, itemID string) ([]AccountSnapshot, error)
}

// Service contains the business logic for bank connection operations
type Service struct {
	repo    Repository
	fetcher AccountsFetcher
	now     func() time.Time
}

// NewService creates a new connection service. fetcher may be nil, in which
// case links are stored without an accounts snapshot.
func NewService(repo Repository, fetcher AccountsFetcher) *Service {
	return &Service{repo: repo, fetcher: fetcher, now: time.Now}
}

// LinkParams is the input of a completed aggregator link flow.
type LinkParams struct {
	UserID   int64
	ItemID   string
	Status   string
	Provider string
}

// Link creates or refreshes the connection for a freshly linked item.
// The accounts snapshot is fetched best-effort: a failed fetch keeps whatever
// snapshot is already stored.
func (s *Service) Link(ctx context.Context, params LinkParams) (*Connection, error) {
	if params.UserID <= 0 {
		return nil, ErrInvalidUserID
	}
	itemID := strings.TrimSpace(params.ItemID)
	if itemID == "" {
		return nil, ErrInvalidItemID
	}

	status := StatusUpdated
	if params.Status != "" {
		parsed, err := ParseItemStatus(params.Status)
		if err != nil {
			return nil, err
		}
		status = parsed
	}

	provider, err := ParseProvider(params.Provider)
	if err != nil {
		return nil, err
	}

	upsert := UpsertParams{
		ItemID:   itemID,
		UserID:   params.UserID,
		Provider: provider,
		Status:   status,
	}

	if s.fetcher != nil {
		// Stamped before the fetch, like the balance sync, so snapshot ordering
		// compares request start times.
		fetchedAt := s.now()
		accounts, err := s.fetcher.FetchSnapshots(ctx, itemID)
		if err != nil {
			log.Printf("User %d: Failed to fetch accounts for item %s, keeping stored snapshot: %v", params.UserID, itemID, err)
		} else {
			upsert.Accounts = accounts
			upsert.LastSyncAt = &fetchedAt
		}
	}

	if err := upsert.Validate(); err != nil {
		return nil, err
	}

	return s.repo.UpsertByItemID(ctx, upsert)
}

// List returns the caller's connections.
func (s *Service) List(ctx context.Context, userID int64) ([]*Connection, error) {
	if userID <= 0 {
		return nil, ErrInvalidUserID
	}
	conns, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if conns == nil {
		conns = []*Connection{}
	}
	return conns, nil
}

// GetOwned returns the connection for itemID if userID owns it. A connection
// owned by someone else is reported as not found.
func (s *Service) GetOwned(ctx context.Context, itemID string, userID int64) (*Connection, error) {
	if userID <= 0 {
		return nil, ErrInvalidUserID
	}
	if strings.TrimSpace(itemID) == "" {
		return nil, ErrInvalidItemID
	}

	conn, err := s.repo.GetByItemID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if conn.UserID != userID {
		return nil, ErrConnectionNotFound
	}
	return conn, nil
}

// Unlink deletes the caller's connection. Ownership is enforced by the
// repository's delete predicate.
func (s *Service) Unlink(ctx context.Context, itemID string, userID int64) error {
	if userID <= 0 {
		return ErrInvalidUserID
	}
	if strings.TrimSpace(itemID) == "" {
		return ErrInvalidItemID
	}

	if err := s.repo.DeleteByItemAndUser(ctx, itemID, userID); err != nil {
		if errors.Is(err, ErrConnectionNotFound) {
			return ErrConnectionNotFound
		}
		return err
	}
	return nil
}
