package banksync

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Reconcile runs the ledger sync for an item without refreshing or polling.
// It backs the background syncs (after linking and from the stale sweep),
// where the aggregator's own webhooks will follow any refresh.
func (o *Orchestrator) Reconcile(ctx context.Context, userID int64, itemID, source string) (*Outcome, error) {
	ctx, span := syncTracer.Start(ctx, "banksync.reconcile",
		trace.WithAttributes(
			attribute.Int64("user.id", userID),
			attribute.String("item.id", itemID),
			attribute.String("sync.source", source),
		),
	)
	defer span.End()

	out := &Outcome{ItemID: itemID}
	syncLedger(ctx, o.ledger, userID, out, false)
	out.finish()

	log.Printf("User %d: %s sync of item %s finished: %s", userID, source, itemID, out.Kind)

	switch out.Kind {
	case OutcomeActionRequired:
		o.events.actionRequired(ctx, userID, source, out)
	case OutcomeFailure:
		return out, fmt.Errorf("%s sync of item %s failed: %v", source, itemID, out.Errors)
	default:
		o.events.synced(ctx, userID, source, out)
	}
	return out, nil
}
