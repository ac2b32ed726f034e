package banksync

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"bankconn/internal/domain/connection"
)

// Routing keys of published domain events.
const (
	RoutingKeySynced         = "bank_connection.synced"
	RoutingKeyActionRequired = "bank_connection.action_required"
)

// Sources of a sync run.
const (
	SourceManual    = "manual"
	SourceWebhook   = "webhook"
	SourceScheduled = "scheduled"
	SourceLink      = "link"
)

// SyncedEvent is published after a sync run that reached the ledger.
type SyncedEvent struct {
	EventID             string      `json:"eventId"`
	UserID              int64       `json:"userId"`
	ItemID              string      `json:"itemId"`
	Source              string      `json:"source"`
	Outcome             OutcomeKind `json:"outcome"`
	TransactionsCreated int         `json:"transactionsCreated"`
	AccountsSynced      int         `json:"accountsSynced"`
	OccurredAt          time.Time   `json:"occurredAt"`
}

// ActionRequiredEvent is published when an item needs the user.
type ActionRequiredEvent struct {
	EventID    string                `json:"eventId"`
	UserID     int64                 `json:"userId"`
	ItemID     string                `json:"itemId"`
	Source     string                `json:"source"`
	Code       string                `json:"code"`
	ItemStatus connection.ItemStatus `json:"itemStatus,omitempty"`
	OccurredAt time.Time             `json:"occurredAt"`
}

type emitter struct {
	notifier  Notifier
	publisher EventPublisher
}

func newEmitter(n Notifier, p EventPublisher) emitter {
	if n == nil {
		n = noopNotifier{}
	}
	if p == nil {
		p = noopPublisher{}
	}
	return emitter{notifier: n, publisher: p}
}

func (e emitter) actionRequired(ctx context.Context, userID int64, source string, out *Outcome) {
	e.notifier.NotifyActionRequired(ctx, userID, out.ItemID, out.Code)
	e.publish(ctx, RoutingKeyActionRequired, ActionRequiredEvent{
		EventID:    uuid.NewString(),
		UserID:     userID,
		ItemID:     out.ItemID,
		Source:     source,
		Code:       out.Code,
		ItemStatus: out.ItemStatus,
		OccurredAt: time.Now().UTC(),
	})
}

func (e emitter) synced(ctx context.Context, userID int64, source string, out *Outcome) {
	ev := SyncedEvent{
		EventID:    uuid.NewString(),
		UserID:     userID,
		ItemID:     out.ItemID,
		Source:     source,
		Outcome:    out.Kind,
		OccurredAt: time.Now().UTC(),
	}
	if out.Transactions != nil {
		ev.TransactionsCreated = out.Transactions.Created
	}
	if out.Accounts != nil {
		ev.AccountsSynced = out.Accounts.Created + out.Accounts.Updated
	}
	e.publish(ctx, RoutingKeySynced, ev)
}

// publish never fails the sync; events are informational.
func (e emitter) publish(ctx context.Context, routingKey string, event any) {
	if err := e.publisher.Publish(ctx, routingKey, event); err != nil {
		log.Printf("Failed to publish %s event: %v", routingKey, err)
	}
}
