// Package openfinance provides domain services for syncing financial data
package openfinance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"bankconn/internal/domain/account"
	"bankconn/internal/domain/connection"
	ofclient "bankconn/internal/infrastructure/openfinance"
)

// Result codes surfaced when the item cannot be synced until the user acts.
const (
	CodeLoginRequired    = "LOGIN_REQUIRED"
	CodeWaitingUserInput = "WAITING_USER_INPUT"
)

// CodeForStatus returns the machine-readable code for a user-action status,
// or "" for any other status.
func CodeForStatus(status connection.ItemStatus) string {
	switch status.Normalize() {
	case connection.StatusWaitingUserInput:
		return CodeWaitingUserInput
	case connection.StatusLoginError:
		return CodeLoginRequired
	default:
		return ""
	}
}

// AccountSyncResult contains the results of a balance sync
type AccountSyncResult struct {
	UserID        int64                 `json:"-"`
	ItemID        string                `json:"-"`
	AccountsFound int                   `json:"accountsFound"`
	Created       int                   `json:"created"`
	Updated       int                   `json:"updated"`
	Errors        []string              `json:"errors,omitempty"`
	ItemStatus    connection.ItemStatus `json:"itemStatus,omitempty"`
	Code          string                `json:"code,omitempty"`
}

// LoginRequired reports whether the sync stopped because the item needs the user.
func (r *AccountSyncResult) LoginRequired() bool {
	return r != nil && r.Code != ""
}

// AccountSyncService mirrors aggregator accounts into the ledger and the
// connection's accounts snapshot.
type AccountSyncService struct {
	client         ofclient.ClientInterface
	accountService *account.Service
	connRepo       connection.Repository
	now            func() time.Time
}

// NewAccountSyncService creates a new account sync service
func NewAccountSyncService(
	client ofclient.ClientInterface,
	accountService *account.Service,
	connRepo connection.Repository,
) *AccountSyncService {
	return &AccountSyncService{
		client:         client,
		accountService: accountService,
		connRepo:       connRepo,
		now:            time.Now,
	}
}

var _ connection.AccountsFetcher = (*AccountSyncService)(nil)

// FetchSnapshots loads the item's accounts and maps them to snapshots.
func (s *AccountSyncService) FetchSnapshots(ctx context.Context, itemID string) ([]connection.AccountSnapshot, error) {
	accounts, err := s.client.FetchAccounts(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return toSnapshots(accounts), nil
}

// SyncAccountBalances refreshes ledger balances and the connection snapshot
// for one item. Safe to run concurrently for the same item: ledger writes are
// upserts and the snapshot write is ordered by fetch time.
func (s *AccountSyncService) SyncAccountBalances(ctx context.Context, userID int64, itemID string) (*AccountSyncResult, error) {
	result := &AccountSyncResult{UserID: userID, ItemID: itemID, Errors: []string{}}

	if err := ensureOwner(ctx, s.connRepo, userID, itemID); err != nil {
		return result, err
	}

	status, err := fetchStatus(ctx, s.client, itemID)
	if err != nil {
		if ofclient.IsLoginRequired(err) {
			result.Code = CodeLoginRequired
			log.Printf("User %d: Item %s needs a new login, skipping balance sync", userID, itemID)
			return result, nil
		}
		return result, fmt.Errorf("failed to fetch item status: %w", err)
	}
	result.ItemStatus = status
	if code := CodeForStatus(status); code != "" {
		result.Code = code
		recordStatus(ctx, s.connRepo, itemID, status)
		log.Printf("User %d: Item %s is %s, skipping balance sync", userID, itemID, status)
		return result, nil
	}

	fetchedAt := s.now()
	apiAccounts, err := s.client.FetchAccounts(ctx, itemID)
	if err != nil {
		if ofclient.IsLoginRequired(err) {
			result.Code = CodeLoginRequired
			return result, nil
		}
		return result, fmt.Errorf("failed to fetch accounts from provider: %w", err)
	}
	result.AccountsFound = len(apiAccounts)

	log.Printf("User %d: Syncing %d accounts for item %s", userID, result.AccountsFound, itemID)

	for _, apiAccount := range apiAccounts {
		created, err := upsertLedgerAccount(ctx, s.accountService, userID, itemID, apiAccount)
		if err != nil {
			errMsg := fmt.Sprintf("failed to sync account %s: %v", apiAccount.ID, err)
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

	err = s.connRepo.ReplaceSnapshot(ctx, connection.SnapshotParams{
		ItemID:    itemID,
		Status:    status,
		Accounts:  toSnapshots(apiAccounts),
		FetchedAt: fetchedAt,
	})
	if err != nil {
		return result, fmt.Errorf("failed to store accounts snapshot: %w", err)
	}

	log.Printf("User %d: Balance sync complete for item %s - Created: %d, Updated: %d, Errors: %d",
		userID, itemID, result.Created, result.Updated, len(result.Errors))

	return result, nil
}

func upsertLedgerAccount(ctx context.Context, svc *account.Service, userID int64, itemID string, a ofclient.Account) (bool, error) {
	return svc.UpsertAccount(ctx, account.UpsertParams{
		ID:       a.ID,
		UserID:   userID,
		ItemID:   itemID,
		Name:     a.DisplayName(),
		Type:     a.Type,
		Subtype:  a.Subtype,
		Currency: a.CurrencyCode,
		Balance:  a.Balance,
	})
}

func toSnapshots(accounts []ofclient.Account) []connection.AccountSnapshot {
	out := make([]connection.AccountSnapshot, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, connection.AccountSnapshot{
			ID:       a.ID,
			Name:     a.DisplayName(),
			Number:   maskNumber(a.Number),
			Balance:  a.Balance,
			Currency: a.CurrencyCode,
			Type:     a.Type,
			Subtype:  a.Subtype,
		})
	}
	return out
}

// maskNumber keeps the last four characters of an account number.
func maskNumber(number string) string {
	if len(number) <= 4 {
		return number
	}
	masked := make([]byte, len(number))
	for i := range masked {
		if i < len(number)-4 {
			masked[i] = '*'
		} else {
			masked[i] = number[i]
		}
	}
	return string(masked)
}

func ensureOwner(ctx context.Context, repo connection.Repository, userID int64, itemID string) error {
	conn, err := repo.GetByItemID(ctx, itemID)
	if err != nil {
		return err
	}
	if conn.UserID != userID {
		return connection.ErrConnectionNotFound
	}
	return nil
}

func fetchStatus(ctx context.Context, client ofclient.ClientInterface, itemID string) (connection.ItemStatus, error) {
	item, err := client.FetchItem(ctx, itemID)
	if err != nil {
		return "", err
	}
	status, err := connection.ParseItemStatus(item.Status)
	if err != nil {
		return "", fmt.Errorf("item %s: %w (%q)", itemID, err, item.Status)
	}
	return status, nil
}

func recordStatus(ctx context.Context, repo connection.Repository, itemID string, status connection.ItemStatus) {
	if err := repo.UpdateStatus(ctx, itemID, status); err != nil && !errors.Is(err, connection.ErrConnectionNotFound) {
		log.Printf("Item %s: Failed to record status %s: %v", itemID, status, err)
	}
}
