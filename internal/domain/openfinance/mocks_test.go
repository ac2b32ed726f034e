package openfinance

import (
	"context"
	"sync"
	"time"

	"bankconn/internal/domain/account"
	"bankconn/internal/domain/connection"
	"bankconn/internal/domain/connection/connectiontest"
	"bankconn/internal/domain/transaction"
	ofclient "bankconn/internal/infrastructure/openfinance"
)

// MockClient implements ofclient.ClientInterface
type MockClient struct {
	FetchItemFunc         func(ctx context.Context, itemID string) (*ofclient.Item, error)
	RequestRefreshFunc    func(ctx context.Context, itemID string) (*ofclient.Item, error)
	FetchAccountsFunc     func(ctx context.Context, itemID string) ([]ofclient.Account, error)
	FetchTransactionsFunc func(ctx context.Context, accountID string, from time.Time) ([]ofclient.Transaction, error)
}

func (m *MockClient) FetchItem(ctx context.Context, itemID string) (*ofclient.Item, error) {
	if m.FetchItemFunc != nil {
		return m.FetchItemFunc(ctx, itemID)
	}
	return &ofclient.Item{ID: itemID, Status: "UPDATED"}, nil
}

func (m *MockClient) RequestRefresh(ctx context.Context, itemID string) (*ofclient.Item, error) {
	if m.RequestRefreshFunc != nil {
		return m.RequestRefreshFunc(ctx, itemID)
	}
	return &ofclient.Item{ID: itemID, Status: "UPDATING"}, nil
}

func (m *MockClient) FetchAccounts(ctx context.Context, itemID string) ([]ofclient.Account, error) {
	if m.FetchAccountsFunc != nil {
		return m.FetchAccountsFunc(ctx, itemID)
	}
	return []ofclient.Account{}, nil
}

func (m *MockClient) FetchTransactions(ctx context.Context, accountID string, from time.Time) ([]ofclient.Transaction, error) {
	if m.FetchTransactionsFunc != nil {
		return m.FetchTransactionsFunc(ctx, accountID, from)
	}
	return []ofclient.Transaction{}, nil
}

// memAccountRepo implements account.Repository keyed on account id.
type memAccountRepo struct {
	mu   sync.Mutex
	rows map[string]account.UpsertParams
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{rows: make(map[string]account.UpsertParams)}
}

func (m *memAccountRepo) Upsert(ctx context.Context, params account.UpsertParams) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.rows[params.ID]
	if ok && existing.UserID != params.UserID {
		return false, account.ErrForbidden
	}
	m.rows[params.ID] = params
	return !ok, nil
}

func (m *memAccountRepo) ListByItemID(ctx context.Context, userID int64, itemID string) ([]*account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*account.Account
	for _, p := range m.rows {
		if p.UserID == userID && p.ItemID == itemID {
			out = append(out, &account.Account{ID: p.ID, UserID: p.UserID, ItemID: p.ItemID, Name: p.Name, Balance: p.Balance})
		}
	}
	return out, nil
}

// memTransactionRepo implements transaction.Repository keyed on transaction id.
type memTransactionRepo struct {
	mu   sync.Mutex
	rows map[string]transaction.UpsertParams
}

func newMemTransactionRepo() *memTransactionRepo {
	return &memTransactionRepo{rows: make(map[string]transaction.UpsertParams)}
}

func (m *memTransactionRepo) Upsert(ctx context.Context, params transaction.UpsertParams) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.rows[params.ID]
	if ok && existing.UserID != params.UserID {
		return false, transaction.ErrForbidden
	}
	m.rows[params.ID] = params
	return !ok, nil
}

func (m *memTransactionRepo) LatestDate(ctx context.Context, accountID string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *time.Time
	for _, p := range m.rows {
		if p.AccountID != accountID {
			continue
		}
		if latest == nil || p.TransactionDate.After(*latest) {
			d := p.TransactionDate
			latest = &d
		}
	}
	return latest, nil
}

func (m *memTransactionRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func seedConnection(repo *connectiontest.MemoryRepository, userID int64, itemID string) {
	_, err := repo.UpsertByItemID(context.Background(), connection.UpsertParams{
		ItemID:   itemID,
		UserID:   userID,
		Provider: connection.ProviderPluggy,
		Status:   connection.StatusUpdated,
	})
	if err != nil {
		panic(err)
	}
}
