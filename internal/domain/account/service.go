package account

import (
	"context"
	"errors"
)

// Service contains the business logic for account operations
type Service struct {
	repo Repository
}

// NewService creates a new account service
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// UpsertAccount creates or updates an account with validation
func (s *Service) UpsertAccount(ctx context.Context, params UpsertParams) (bool, error) {
	// Apply default currency if not provided
	if params.Currency == "" {
		params.Currency = "BRL"
	}

	if err := params.Validate(); err != nil {
		return false, err
	}

	return s.repo.Upsert(ctx, params)
}

// ListByItem retrieves the accounts of one item owned by the user
func (s *Service) ListByItem(ctx context.Context, userID int64, itemID string) ([]*Account, error) {
	if userID <= 0 {
		return nil, errors.New("valid user ID is required")
	}
	if itemID == "" {
		return nil, errors.New("item ID is required")
	}

	return s.repo.ListByItemID(ctx, userID, itemID)
}
