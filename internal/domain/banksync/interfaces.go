// Package banksync drives an aggregator item to a usable state and reconciles
// it into the ledger, either on user request (manual sync) or when the
// aggregator pushes an event (webhook).
package banksync

import (
	"context"

	"bankconn/internal/domain/connection"
	"bankconn/internal/domain/openfinance"
	ofclient "bankconn/internal/infrastructure/openfinance"
)

// AggregatorClient is the subset of the aggregator API the engine drives.
type AggregatorClient interface {
	FetchItem(ctx context.Context, itemID string) (*ofclient.Item, error)
	RequestRefresh(ctx context.Context, itemID string) (*ofclient.Item, error)
}

// LedgerSyncer reconciles one item into the ledger. Both operations must be
// idempotent and safe to call concurrently for the same (userID, itemID).
type LedgerSyncer interface {
	SyncTransactions(ctx context.Context, userID int64, itemID string) (*openfinance.TransactionSyncResult, error)
	SyncAccountBalances(ctx context.Context, userID int64, itemID string) (*openfinance.AccountSyncResult, error)
}

// ConnectionStore is the part of connection.Repository the engine needs.
type ConnectionStore interface {
	GetByItemID(ctx context.Context, itemID string) (*connection.Connection, error)
	UpdateStatus(ctx context.Context, itemID string, status connection.ItemStatus) error
}

// Notifier tells the user about sync results on their devices.
type Notifier interface {
	NotifyActionRequired(ctx context.Context, userID int64, itemID, code string)
	NotifyNewTransactions(ctx context.Context, userID int64, itemID string, count int)
}

// EventPublisher emits domain events to other services.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
}

type ledgerFuncs struct {
	transactions func(ctx context.Context, userID int64, itemID string) (*openfinance.TransactionSyncResult, error)
	balances     func(ctx context.Context, userID int64, itemID string) (*openfinance.AccountSyncResult, error)
}

func (l ledgerFuncs) SyncTransactions(ctx context.Context, userID int64, itemID string) (*openfinance.TransactionSyncResult, error) {
	return l.transactions(ctx, userID, itemID)
}

func (l ledgerFuncs) SyncAccountBalances(ctx context.Context, userID int64, itemID string) (*openfinance.AccountSyncResult, error) {
	return l.balances(ctx, userID, itemID)
}

// NewLedger joins the balance and transaction sync services into a LedgerSyncer.
func NewLedger(accounts *openfinance.AccountSyncService, transactions *openfinance.TransactionSyncService) LedgerSyncer {
	return ledgerFuncs{transactions: transactions.SyncTransactions, balances: accounts.SyncAccountBalances}
}

type noopNotifier struct{}

func (noopNotifier) NotifyActionRequired(context.Context, int64, string, string) {}
func (noopNotifier) NotifyNewTransactions(context.Context, int64, string, int)   {}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, any) error { return nil }
