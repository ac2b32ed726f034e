package openfinance

import (
	"context"
	"fmt"
	"log"
	"time"

	"bankconn/internal/domain/account"
	"bankconn/internal/domain/connection"
	"bankconn/internal/domain/transaction"
	ofclient "bankconn/internal/infrastructure/openfinance"
)

const (
	// initialLookback bounds the first fetch of an account with no stored transactions.
	initialLookback = 365 * 24 * time.Hour
	// overlapWindow re-reads recent days so late-posted and edited transactions are picked up.
	overlapWindow = 7 * 24 * time.Hour
)

// TransactionSyncResult contains the results of a transaction sync operation
type TransactionSyncResult struct {
	UserID            int64                 `json:"-"`
	ItemID            string                `json:"-"`
	TransactionsFound int                   `json:"transactionsFound"`
	Created           int                   `json:"created"`
	Updated           int                   `json:"updated"`
	Skipped           int                   `json:"skipped"` // rejected by validation, e.g. unknown type
	Errors            []string              `json:"errors,omitempty"`
	ItemStatus        connection.ItemStatus `json:"itemStatus,omitempty"`
	Code              string                `json:"code,omitempty"`
}

// LoginRequired reports whether the sync stopped because the item needs the user.
func (r *TransactionSyncResult) LoginRequired() bool {
	return r != nil && r.Code != ""
}

// TransactionSyncService handles syncing transactions from the aggregator
type TransactionSyncService struct {
	client          ofclient.ClientInterface
	accountService  *account.Service
	transactionRepo transaction.Repository
	connRepo        connection.Repository
	now             func() time.Time
}

// NewTransactionSyncService creates a new transaction sync service
func NewTransactionSyncService(
	client ofclient.ClientInterface,
	accountService *account.Service,
	transactionRepo transaction.Repository,
	connRepo connection.Repository,
) *TransactionSyncService {
	return &TransactionSyncService{
		client:          client,
		accountService:  accountService,
		transactionRepo: transactionRepo,
		connRepo:        connRepo,
		now:             time.Now,
	}
}

// SyncTransactions pulls new and changed transactions for every account of
// the item. Transactions are deduplicated by their aggregator id, so
// concurrent or repeated runs converge on the same rows.
func (s *TransactionSyncService) SyncTransactions(ctx context.Context, userID int64, itemID string) (*TransactionSyncResult, error) {
	result := &TransactionSyncResult{UserID: userID, ItemID: itemID, Errors: []string{}}

	if err := ensureOwner(ctx, s.connRepo, userID, itemID); err != nil {
		return result, err
	}

	status, err := fetchStatus(ctx, s.client, itemID)
	if err != nil {
		if ofclient.IsLoginRequired(err) {
			result.Code = CodeLoginRequired
			return result, nil
		}
		return result, fmt.Errorf("failed to fetch item status: %w", err)
	}
	result.ItemStatus = status
	if code := CodeForStatus(status); code != "" {
		result.Code = code
		log.Printf("User %d: Item %s is %s, skipping transaction sync", userID, itemID, status)
		return result, nil
	}

	apiAccounts, err := s.client.FetchAccounts(ctx, itemID)
	if err != nil {
		if ofclient.IsLoginRequired(err) {
			result.Code = CodeLoginRequired
			return result, nil
		}
		return result, fmt.Errorf("failed to fetch accounts from provider: %w", err)
	}

	for _, apiAccount := range apiAccounts {
		// The transaction rows reference the ledger account, which may not
		// exist yet when this runs before the balance sync.
		if _, err := upsertLedgerAccount(ctx, s.accountService, userID, itemID, apiAccount); err != nil {
			errMsg := fmt.Sprintf("failed to sync account %s: %v", apiAccount.ID, err)
			result.Errors = append(result.Errors, errMsg)
			log.Printf("User %d: %s", userID, errMsg)
			continue
		}

		if err := s.syncAccount(ctx, userID, apiAccount, result); err != nil {
			if ofclient.IsLoginRequired(err) {
				result.Code = CodeLoginRequired
				return result, nil
			}
			errMsg := fmt.Sprintf("failed to sync transactions for account %s: %v", apiAccount.ID, err)
			result.Errors = append(result.Errors, errMsg)
			log.Printf("User %d: %s", userID, errMsg)
		}
	}

	log.Printf("User %d: Transaction sync completed for item %s: found=%d, created=%d, updated=%d, skipped=%d, errors=%d",
		userID, itemID, result.TransactionsFound, result.Created, result.Updated, result.Skipped, len(result.Errors))

	return result, nil
}

func (s *TransactionSyncService) syncAccount(ctx context.Context, userID int64, apiAccount ofclient.Account, result *TransactionSyncResult) error {
	from := s.now().Add(-initialLookback)
	latest, err := s.transactionRepo.LatestDate(ctx, apiAccount.ID)
	if err != nil {
		return fmt.Errorf("failed to read latest transaction date: %w", err)
	}
	if latest != nil {
		from = latest.Add(-overlapWindow)
	}

	apiTxs, err := s.client.FetchTransactions(ctx, apiAccount.ID, from)
	if err != nil {
		return err
	}
	result.TransactionsFound += len(apiTxs)

	for _, apiTx := range apiTxs {
		params := transaction.UpsertParams{
			ID:              apiTx.ID,
			UserID:          userID,
			AccountID:       apiAccount.ID,
			Amount:          apiTx.Amount,
			Currency:        apiTx.CurrencyCode,
			Description:     apiTx.Description,
			Category:        apiTx.Category,
			TransactionDate: apiTx.Date,
			Type:            apiTx.Type,
			Status:          apiTx.Status,
		}
		if params.Currency == "" {
			params.Currency = apiAccount.CurrencyCode
		}
		if err := params.Validate(); err != nil {
			log.Printf("User %d: Skipping transaction %s: %v", userID, apiTx.ID, err)
			result.Skipped++
			continue
		}

		created, err := s.transactionRepo.Upsert(ctx, params)
		if err != nil {
			errMsg := fmt.Sprintf("failed to upsert transaction %s: %v", apiTx.ID, err)
			result.Errors = append(result.Errors, errMsg)
			log.Printf("User %d: %s", userID, errMsg)
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	return nil
}
