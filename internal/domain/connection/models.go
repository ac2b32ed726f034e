package connection

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Provider identifies the aggregator a connection was linked through.
type Provider string

const (
	ProviderPluggy Provider = "PLUGGY"
)

// ItemStatus mirrors the aggregator's status for an item.
// The aggregator owns the transitions; this service only observes them.
type ItemStatus string

const (
	StatusUpdating          ItemStatus = "UPDATING"
	StatusUpdated           ItemStatus = "UPDATED"
	StatusWaitingUserInput  ItemStatus = "WAITING_USER_INPUT"
	StatusWaitingUserAction ItemStatus = "WAITING_USER_ACTION"
	StatusLoginError        ItemStatus = "LOGIN_ERROR"
	StatusLoginRequired     ItemStatus = "LOGIN_REQUIRED" // legacy alias of LOGIN_ERROR
	StatusOutdated          ItemStatus = "OUTDATED"
)

var knownStatuses = map[ItemStatus]struct{}{
	StatusUpdating:          {},
	StatusUpdated:           {},
	StatusWaitingUserInput:  {},
	StatusWaitingUserAction: {},
	StatusLoginError:        {},
	StatusLoginRequired:     {},
	StatusOutdated:          {},
}

// Domain errors
var (
	ErrConnectionNotFound     = errors.New("bank connection not found")
	ErrItemOwnedByAnotherUser = errors.New("item is linked to another user")
	ErrInvalidItemID          = errors.New("item ID is required")
	ErrInvalidUserID          = errors.New("valid user ID is required")
	ErrInvalidStatus          = errors.New("invalid item status")
	ErrUnsupportedProvider    = errors.New("unsupported provider")
)

// ParseItemStatus normalizes a raw status string. The legacy LOGIN_REQUIRED
// value is folded into LOGIN_ERROR.
func ParseItemStatus(raw string) (ItemStatus, error) {
	s := ItemStatus(strings.ToUpper(strings.TrimSpace(raw)))
	if _, ok := knownStatuses[s]; !ok {
		return "", ErrInvalidStatus
	}
	return s.Normalize(), nil
}

// Normalize maps legacy aliases onto their canonical status.
func (s ItemStatus) Normalize() ItemStatus {
	if s == StatusLoginRequired {
		return StatusLoginError
	}
	return s
}

// RequiresUserAction reports whether the item cannot progress until the user
// interacts with the aggregator again (relink or answer an MFA prompt).
func (s ItemStatus) RequiresUserAction() bool {
	switch s.Normalize() {
	case StatusWaitingUserInput, StatusLoginError:
		return true
	default:
		return false
	}
}

// IsLoginError reports whether the status is a login failure.
func (s ItemStatus) IsLoginError() bool {
	return s.Normalize() == StatusLoginError
}

// ParseProvider validates a provider name; empty defaults to Pluggy.
func ParseProvider(raw string) (Provider, error) {
	if strings.TrimSpace(raw) == "" {
		return ProviderPluggy, nil
	}
	p := Provider(strings.ToUpper(strings.TrimSpace(raw)))
	if p != ProviderPluggy {
		return "", ErrUnsupportedProvider
	}
	return p, nil
}

// AccountSnapshot is the stored view of one aggregator account at the time of
// the last successful fetch.
type AccountSnapshot struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Number   string          `json:"number"` // masked
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
	Type     string          `json:"type"`
	Subtype  string          `json:"subtype"`
}

// Connection is the local record of one linked aggregator item.
type Connection struct {
	ItemID     string            `json:"itemId"`
	UserID     int64             `json:"userId"`
	Provider   Provider          `json:"provider"`
	Status     ItemStatus        `json:"status"`
	Accounts   []AccountSnapshot `json:"accounts"`
	LastSyncAt *time.Time        `json:"lastSyncAt"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// UpsertParams contains the fields written when a connection is linked.
// A nil Accounts leaves any stored snapshot untouched.
type UpsertParams struct {
	ItemID     string
	UserID     int64
	Provider   Provider
	Status     ItemStatus
	Accounts   []AccountSnapshot
	LastSyncAt *time.Time
}

// Validate checks the upsert parameters.
func (p UpsertParams) Validate() error {
	if strings.TrimSpace(p.ItemID) == "" {
		return ErrInvalidItemID
	}
	if p.UserID <= 0 {
		return ErrInvalidUserID
	}
	if p.Provider != ProviderPluggy {
		return ErrUnsupportedProvider
	}
	if _, ok := knownStatuses[p.Status]; !ok {
		return ErrInvalidStatus
	}
	return nil
}

// SnapshotParams replaces the accounts snapshot after a successful fetch.
type SnapshotParams struct {
	ItemID    string
	Status    ItemStatus
	Accounts  []AccountSnapshot
	FetchedAt time.Time
}
