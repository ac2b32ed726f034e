package banksync

import (
	"context"
	"errors"
	"fmt"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"bankconn/internal/domain/connection"
)

// Webhook event types the engine reacts to.
const (
	EventTransactionsCreated = "transactions/created"
	EventItemUpdated         = "item/updated"
)

var relevantEvents = map[string]struct{}{
	EventTransactionsCreated: {},
	EventItemUpdated:         {},
}

// IsRelevantEvent reports whether an event type triggers a sync.
func IsRelevantEvent(eventType string) bool {
	_, ok := relevantEvents[eventType]
	return ok
}

// Ack reasons.
const (
	AckSynced         = "synced"
	AckIgnoredType    = "ignored_event_type"
	AckUnknownItem    = "unknown_item"
	AckActionRequired = "action_required"
)

// Event is a decoded aggregator push notification.
type Event struct {
	ID     string
	Type   string
	ItemID string
}

// Ack is returned to the sender. Every Ack means "do not re-deliver".
type Ack struct {
	EventType           string `json:"event"`
	ItemID              string `json:"itemId,omitempty"`
	Processed           bool   `json:"processed"`
	Reason              string `json:"reason"`
	TransactionsCreated int    `json:"transactionsCreated"`
	TransactionsUpdated int    `json:"transactionsUpdated"`
	AccountsSynced      int    `json:"accountsSynced"`
}

// WebhookIngestor reconciles items when the aggregator pushes an event.
type WebhookIngestor struct {
	store  ConnectionStore
	ledger LedgerSyncer
	events emitter
}

// NewWebhookIngestor creates the push-path ingestor.
func NewWebhookIngestor(deps Deps) *WebhookIngestor {
	return &WebhookIngestor{
		store:  deps.Store,
		ledger: deps.Ledger,
		events: newEmitter(deps.Notifier, deps.Publisher),
	}
}

// HandleEvent processes one event. Irrelevant and orphaned events are
// acknowledged without side effects. An error means an internal failure the
// sender should retry.
func (w *WebhookIngestor) HandleEvent(ctx context.Context, ev Event) (*Ack, error) {
	ctx, span := syncTracer.Start(ctx, "banksync.webhook",
		trace.WithAttributes(
			attribute.String("webhook.event", ev.Type),
			attribute.String("item.id", ev.ItemID),
		),
	)
	defer span.End()

	ack := &Ack{EventType: ev.Type, ItemID: ev.ItemID}

	if !IsRelevantEvent(ev.Type) || ev.ItemID == "" {
		ack.Reason = AckIgnoredType
		w.count(ctx, ack)
		return ack, nil
	}

	conn, err := w.store.GetByItemID(ctx, ev.ItemID)
	if err != nil {
		if errors.Is(err, connection.ErrConnectionNotFound) {
			log.Printf("Item %s: Webhook %s for unknown item, discarding", ev.ItemID, ev.Type)
			ack.Reason = AckUnknownItem
			w.count(ctx, ack)
			return ack, nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to resolve connection: %w", err)
	}

	out := &Outcome{ItemID: ev.ItemID, ItemStatus: conn.Status}
	syncLedger(ctx, w.ledger, conn.UserID, out, true)
	out.finish()

	if out.Transactions != nil {
		ack.TransactionsCreated = out.Transactions.Created
		ack.TransactionsUpdated = out.Transactions.Updated
	}
	if out.Accounts != nil {
		ack.AccountsSynced = out.Accounts.Created + out.Accounts.Updated
	}

	switch out.Kind {
	case OutcomeActionRequired:
		// Re-delivery would hit the same login wall.
		ack.Processed = true
		ack.Reason = AckActionRequired
		w.events.actionRequired(ctx, conn.UserID, SourceWebhook, out)

	case OutcomeSuccess:
		ack.Processed = true
		ack.Reason = AckSynced
		if ack.TransactionsCreated > 0 {
			w.events.notifier.NotifyNewTransactions(ctx, conn.UserID, ev.ItemID, ack.TransactionsCreated)
		}
		w.events.synced(ctx, conn.UserID, SourceWebhook, out)

	default:
		err := fmt.Errorf("webhook sync of item %s: %s: %v", ev.ItemID, out.Kind, out.Errors)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		webhookEvents.Add(ctx, 1, metric.WithAttributes(
			attribute.String("event", ev.Type),
			attribute.String("result", "error"),
		))
		log.Printf("User %d: %v", conn.UserID, err)
		return nil, err
	}

	log.Printf("User %d: Webhook %s for item %s processed: created=%d updated=%d accounts=%d",
		conn.UserID, ev.Type, ev.ItemID, ack.TransactionsCreated, ack.TransactionsUpdated, ack.AccountsSynced)
	w.count(ctx, ack)
	return ack, nil
}

func (w *WebhookIngestor) count(ctx context.Context, ack *Ack) {
	webhookEvents.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", ack.EventType),
		attribute.String("result", ack.Reason),
	))
}
