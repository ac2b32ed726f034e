package openfinance

import (
	"context"
	"time"
)

// ClientInterface defines the methods required from the aggregator API client.
// Every error returned is a *ProviderError.
type ClientInterface interface {
	FetchItem(ctx context.Context, itemID string) (*Item, error)
	RequestRefresh(ctx context.Context, itemID string) (*Item, error)
	FetchAccounts(ctx context.Context, itemID string) ([]Account, error)
	FetchTransactions(ctx context.Context, accountID string, from time.Time) ([]Transaction, error)
}
