package account

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

// MockRepository is a mock implementation of Repository interface
type MockRepository struct {
	UpsertFunc       func(ctx context.Context, params UpsertParams) (bool, error)
	ListByItemIDFunc func(ctx context.Context, userID int64, itemID string) ([]*Account, error)
}

func (m *MockRepository) Upsert(ctx context.Context, params UpsertParams) (bool, error) {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, params)
	}
	return false, nil
}

func (m *MockRepository) ListByItemID(ctx context.Context, userID int64, itemID string) ([]*Account, error) {
	if m.ListByItemIDFunc != nil {
		return m.ListByItemIDFunc(ctx, userID, itemID)
	}
	return nil, nil
}

func TestUpsertAccount(t *testing.T) {
	ctx := context.Background()

	base := UpsertParams{
		ID:      "acc-1",
		UserID:  1,
		ItemID:  "item-1",
		Name:    "Conta",
		Type:    "BANK",
		Balance: decimal.NewFromInt(100),
	}

	tests := []struct {
		name        string
		params      UpsertParams
		mock        func() *MockRepository
		wantCreated bool
		wantErr     bool
		errType     error
	}{
		{
			name:   "Success - Defaults Currency",
			params: base,
			mock: func() *MockRepository {
				return &MockRepository{
					UpsertFunc: func(ctx context.Context, params UpsertParams) (bool, error) {
						if params.Currency != "BRL" {
							t.Errorf("Currency = %s, want BRL", params.Currency)
						}
						return true, nil
					},
				}
			},
			wantCreated: true,
		},
		{
			name: "Invalid Type Never Reaches Repository",
			params: func() UpsertParams {
				p := base
				p.Type = "UNKNOWN"
				return p
			}(),
			mock: func() *MockRepository {
				return &MockRepository{
					UpsertFunc: func(ctx context.Context, params UpsertParams) (bool, error) {
						t.Error("Upsert should not be called")
						return false, nil
					},
				}
			},
			wantErr: true,
			errType: ErrInvalidAccountType,
		},
		{
			name:   "Owned By Another User",
			params: base,
			mock: func() *MockRepository {
				return &MockRepository{
					UpsertFunc: func(ctx context.Context, params UpsertParams) (bool, error) {
						return false, ErrForbidden
					},
				}
			},
			wantErr: true,
			errType: ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := NewService(tt.mock())
			created, err := service.UpsertAccount(ctx, tt.params)
			if (err != nil) != tt.wantErr {
				t.Fatalf("UpsertAccount() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.errType != nil && !errors.Is(err, tt.errType) {
				t.Errorf("UpsertAccount() error = %v, want %v", err, tt.errType)
			}
			if created != tt.wantCreated {
				t.Errorf("created = %v, want %v", created, tt.wantCreated)
			}
		})
	}
}

func TestListByItem(t *testing.T) {
	ctx := context.Background()
	repo := &MockRepository{
		ListByItemIDFunc: func(ctx context.Context, userID int64, itemID string) ([]*Account, error) {
			return []*Account{{ID: "acc-1", UserID: userID, ItemID: itemID}}, nil
		},
	}
	service := NewService(repo)

	accounts, err := service.ListByItem(ctx, 1, "item-1")
	if err != nil {
		t.Fatalf("ListByItem() error = %v", err)
	}
	if len(accounts) != 1 || accounts[0].ItemID != "item-1" {
		t.Errorf("ListByItem() = %+v", accounts)
	}

	if _, err := service.ListByItem(ctx, 0, "item-1"); err == nil {
		t.Error("ListByItem() with invalid user should fail")
	}
	if _, err := service.ListByItem(ctx, 1, ""); err == nil {
		t.Error("ListByItem() with empty item should fail")
	}
}
