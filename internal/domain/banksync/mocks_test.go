package banksync

import (
	"context"
	"sync"

	"bankconn/internal/domain/connection"
	"bankconn/internal/domain/openfinance"
	ofclient "bankconn/internal/infrastructure/openfinance"
)

// MockClient implements AggregatorClient. Statuses are served in order; the
// last one repeats.
type MockClient struct {
	mu                 sync.Mutex
	Statuses           []string
	FetchItemFunc      func(ctx context.Context, itemID string) (*ofclient.Item, error)
	RequestRefreshFunc func(ctx context.Context, itemID string) (*ofclient.Item, error)
	FetchCalls         int
	RefreshCalls       int
}

func (m *MockClient) FetchItem(ctx context.Context, itemID string) (*ofclient.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FetchCalls++
	if m.FetchItemFunc != nil {
		return m.FetchItemFunc(ctx, itemID)
	}
	if len(m.Statuses) == 0 {
		return &ofclient.Item{ID: itemID, Status: "UPDATED"}, nil
	}
	idx := m.FetchCalls - 1
	if idx >= len(m.Statuses) {
		idx = len(m.Statuses) - 1
	}
	return &ofclient.Item{ID: itemID, Status: m.Statuses[idx]}, nil
}

func (m *MockClient) RequestRefresh(ctx context.Context, itemID string) (*ofclient.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RefreshCalls++
	if m.RequestRefreshFunc != nil {
		return m.RequestRefreshFunc(ctx, itemID)
	}
	return &ofclient.Item{ID: itemID, Status: "UPDATING"}, nil
}

func (m *MockClient) fetchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.FetchCalls
}

func (m *MockClient) refreshCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.RefreshCalls
}

// MockLedger implements LedgerSyncer and records call order.
type MockLedger struct {
	mu                      sync.Mutex
	Calls                   []string
	SyncTransactionsFunc    func(ctx context.Context, userID int64, itemID string) (*openfinance.TransactionSyncResult, error)
	SyncAccountBalancesFunc func(ctx context.Context, userID int64, itemID string) (*openfinance.AccountSyncResult, error)
}

func (m *MockLedger) SyncTransactions(ctx context.Context, userID int64, itemID string) (*openfinance.TransactionSyncResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, "transactions")
	m.mu.Unlock()
	if m.SyncTransactionsFunc != nil {
		return m.SyncTransactionsFunc(ctx, userID, itemID)
	}
	return &openfinance.TransactionSyncResult{UserID: userID, ItemID: itemID, Created: 1}, nil
}

func (m *MockLedger) SyncAccountBalances(ctx context.Context, userID int64, itemID string) (*openfinance.AccountSyncResult, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, "balances")
	m.mu.Unlock()
	if m.SyncAccountBalancesFunc != nil {
		return m.SyncAccountBalancesFunc(ctx, userID, itemID)
	}
	return &openfinance.AccountSyncResult{UserID: userID, ItemID: itemID, Updated: 2}, nil
}

func (m *MockLedger) calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Calls...)
}

// MockStore implements ConnectionStore.
type MockStore struct {
	mu               sync.Mutex
	GetByItemIDFunc  func(ctx context.Context, itemID string) (*connection.Connection, error)
	UpdateStatusFunc func(ctx context.Context, itemID string, status connection.ItemStatus) error
	Calls            int
	Recorded         []connection.ItemStatus
}

func (m *MockStore) GetByItemID(ctx context.Context, itemID string) (*connection.Connection, error) {
	m.mu.Lock()
	m.Calls++
	m.mu.Unlock()
	if m.GetByItemIDFunc != nil {
		return m.GetByItemIDFunc(ctx, itemID)
	}
	return nil, connection.ErrConnectionNotFound
}

func (m *MockStore) UpdateStatus(ctx context.Context, itemID string, status connection.ItemStatus) error {
	m.mu.Lock()
	m.Calls++
	m.Recorded = append(m.Recorded, status)
	m.mu.Unlock()
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, itemID, status)
	}
	return nil
}

func ownedBy(userID int64) func(ctx context.Context, itemID string) (*connection.Connection, error) {
	return func(ctx context.Context, itemID string) (*connection.Connection, error) {
		return &connection.Connection{ItemID: itemID, UserID: userID, Provider: connection.ProviderPluggy, Status: connection.StatusUpdated}, nil
	}
}

// recordingNotifier implements Notifier.
type recordingNotifier struct {
	mu             sync.Mutex
	actionRequired []string
	newTxCounts    []int
}

func (r *recordingNotifier) NotifyActionRequired(ctx context.Context, userID int64, itemID, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actionRequired = append(r.actionRequired, code)
}

func (r *recordingNotifier) NotifyNewTransactions(ctx context.Context, userID int64, itemID string, count int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.newTxCounts = append(r.newTxCounts, count)
}

// recordingPublisher implements EventPublisher.
type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (r *recordingPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = append(r.keys, routingKey)
	return nil
}

func (r *recordingPublisher) published() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}
