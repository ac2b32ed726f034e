package banksync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"bankconn/internal/domain/connection"
	ofclient "bankconn/internal/infrastructure/openfinance"
)

// Caller errors of ManualSync.
var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrMissingItemID      = errors.New("itemId is required")
	ErrConnectionNotFound = connection.ErrConnectionNotFound
)

// Deps are the collaborators shared by the manual and webhook paths.
// Notifier and Publisher are optional.
type Deps struct {
	Client    AggregatorClient
	Store     ConnectionStore
	Ledger    LedgerSyncer
	Notifier  Notifier
	Publisher EventPublisher
}

// Config tunes the manual sync path.
type Config struct {
	PollAttempts   int
	PollInterval   time.Duration
	RefreshUpdated bool // request a refresh even when the item is already UPDATED
	// Timeout bounds a whole ManualSync. Zero means no bound beyond polling.
	Timeout time.Duration
}

// Orchestrator runs user-triggered syncs.
type Orchestrator struct {
	client         AggregatorClient
	store          ConnectionStore
	ledger         LedgerSyncer
	poller         *Poller
	events         emitter
	refreshUpdated bool
	timeout        time.Duration
}

// NewOrchestrator creates the manual sync orchestrator.
func NewOrchestrator(deps Deps, cfg Config) *Orchestrator {
	return &Orchestrator{
		client:         deps.Client,
		store:          deps.Store,
		ledger:         deps.Ledger,
		poller:         NewPoller(deps.Client, deps.Store, cfg.PollAttempts, cfg.PollInterval),
		events:         newEmitter(deps.Notifier, deps.Publisher),
		refreshUpdated: cfg.RefreshUpdated,
		timeout:        cfg.Timeout,
	}
}

// ManualSync refreshes one item on behalf of its owner and reconciles it into
// the ledger. Every step after classification contributes to the Outcome;
// only caller errors and store failures are returned as errors.
func (o *Orchestrator) ManualSync(ctx context.Context, callerID int64, itemID string) (*Outcome, error) {
	ctx, span := syncTracer.Start(ctx, "banksync.manual_sync",
		trace.WithAttributes(
			attribute.Int64("user.id", callerID),
			attribute.String("item.id", itemID),
		),
	)
	defer span.End()

	if callerID <= 0 {
		return nil, ErrUnauthorized
	}
	if itemID == "" {
		return nil, ErrMissingItemID
	}

	runCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	conn, err := o.store.GetByItemID(runCtx, itemID)
	if err != nil {
		if errors.Is(err, connection.ErrConnectionNotFound) {
			return nil, ErrConnectionNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to load connection: %w", err)
	}
	if conn.UserID != callerID {
		return nil, ErrConnectionNotFound
	}

	out := &Outcome{ItemID: itemID, ItemStatus: conn.Status}
	o.run(runCtx, callerID, out)
	out.finish()

	log.Printf("User %d: Manual sync of item %s finished: %s (refreshed=%v, polls=%d, errors=%d)",
		callerID, itemID, out.Kind, out.Refreshed, out.PollAttempts, len(out.Errors))

	span.SetAttributes(attribute.String("sync.outcome", string(out.Kind)))
	manualSyncs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(out.Kind))))

	if out.Kind == OutcomeActionRequired {
		o.events.actionRequired(ctx, callerID, SourceManual, out)
	} else {
		o.events.synced(ctx, callerID, SourceManual, out)
	}
	return out, nil
}

func (o *Orchestrator) run(ctx context.Context, userID int64, out *Outcome) {
	itemID := out.ItemID

	action, stop := o.classify(ctx, userID, out)
	if stop {
		return
	}

	switch action {
	case ActionUserRequired:
		out.requireAction(out.ItemStatus, "", "item requires user action at the aggregator")
		return

	case ActionRefresh:
		if _, err := o.client.RequestRefresh(ctx, itemID); err != nil {
			switch ofclient.KindOf(err) {
			case ofclient.KindLoginRequired:
				out.requireAction(connection.StatusLoginError, "", "refresh rejected: login required")
				return
			case ofclient.KindSandboxRestricted:
				out.addWarning(fmt.Sprintf("refresh not available: %v", err))
			default:
				out.addError(fmt.Sprintf("refresh request failed: %v", err))
			}
			log.Printf("User %d: Refresh of item %s failed, syncing available data: %v", userID, itemID, err)
			break
		}
		out.Refreshed = true
		if o.poll(ctx, out) {
			return
		}

	case ActionPollOnly:
		if o.poll(ctx, out) {
			return
		}
	}

	syncLedger(ctx, o.ledger, userID, out, false)
}

// classify fetches the live status. A login failure stops the run; any other
// failure skips straight to the ledger sync.
func (o *Orchestrator) classify(ctx context.Context, userID int64, out *Outcome) (StatusAction, bool) {
	item, err := o.client.FetchItem(ctx, out.ItemID)
	if err != nil {
		if ofclient.IsLoginRequired(err) {
			out.requireAction(connection.StatusLoginError, "", "status check rejected: login required")
			return ActionUserRequired, true
		}
		out.addError(fmt.Sprintf("status check failed: %v", err))
		log.Printf("User %d: Failed to fetch status of item %s: %v", userID, out.ItemID, err)
		return ActionSyncOnly, false
	}

	status, err := connection.ParseItemStatus(item.Status)
	if err != nil {
		log.Printf("User %d: Item %s reported unknown status %q, requesting refresh", userID, out.ItemID, item.Status)
		return ActionRefresh, false
	}

	out.ItemStatus = status
	if err := o.store.UpdateStatus(ctx, out.ItemID, status); err != nil {
		log.Printf("User %d: Failed to record status %s for item %s: %v", userID, status, out.ItemID, err)
	}
	return Classify(status, o.refreshUpdated), false
}

// poll returns true when the run must stop for user action.
func (o *Orchestrator) poll(ctx context.Context, out *Outcome) bool {
	res := o.poller.Poll(ctx, out.ItemID)
	out.PollAttempts = res.Attempts
	if res.Status != "" {
		out.ItemStatus = res.Status
	}
	if res.UserActionRequired {
		out.requireAction(res.Status, "", "item requires user action after refresh")
		return true
	}
	if !res.Terminal {
		out.addWarning(fmt.Sprintf("item still %s after %d polls, synced available data", out.ItemStatus, res.Attempts))
	}
	return false
}

// syncLedger runs both ledger operations in the requested order, merging
// their results into out. A login-required signal from either stops the run.
func syncLedger(ctx context.Context, ledger LedgerSyncer, userID int64, out *Outcome, transactionsFirst bool) {
	steps := []func() bool{
		func() bool { return syncBalances(ctx, ledger, userID, out) },
		func() bool { return syncTransactions(ctx, ledger, userID, out) },
	}
	if transactionsFirst {
		steps[0], steps[1] = steps[1], steps[0]
	}
	for _, step := range steps {
		if !step() {
			return
		}
	}
}

func syncBalances(ctx context.Context, ledger LedgerSyncer, userID int64, out *Outcome) bool {
	res, err := ledger.SyncAccountBalances(ctx, userID, out.ItemID)
	out.Accounts = res
	if err != nil {
		if ofclient.IsLoginRequired(err) {
			out.requireAction(connection.StatusLoginError, "", "balance sync rejected: login required")
			return false
		}
		out.addError(fmt.Sprintf("balance sync failed: %v", err))
		return true
	}
	if res.LoginRequired() {
		out.requireAction(res.ItemStatus, res.Code, "balance sync found the item waiting on the user")
		return false
	}
	progressed := true
	if res != nil {
		if res.ItemStatus != "" {
			out.ItemStatus = res.ItemStatus
		}
		progressed = recordRowErrors(out, "balance sync", res.Errors, res.Created+res.Updated)
	}
	if progressed {
		out.ledgerOK++
	}
	return true
}

func syncTransactions(ctx context.Context, ledger LedgerSyncer, userID int64, out *Outcome) bool {
	res, err := ledger.SyncTransactions(ctx, userID, out.ItemID)
	out.Transactions = res
	if err != nil {
		if ofclient.IsLoginRequired(err) {
			out.requireAction(connection.StatusLoginError, "", "transaction sync rejected: login required")
			return false
		}
		out.addError(fmt.Sprintf("transaction sync failed: %v", err))
		return true
	}
	if res.LoginRequired() {
		out.requireAction(res.ItemStatus, res.Code, "transaction sync found the item waiting on the user")
		return false
	}
	if res == nil || recordRowErrors(out, "transaction sync", res.Errors, res.Created+res.Updated) {
		out.ledgerOK++
	}
	return true
}

// recordRowErrors folds per-row failures of a ledger step into out. It
// reports whether the step still wrote something.
func recordRowErrors(out *Outcome, step string, rowErrors []string, written int) bool {
	if len(rowErrors) == 0 {
		return true
	}
	out.addError(fmt.Sprintf("%s: %d row(s) failed, first: %s", step, len(rowErrors), rowErrors[0]))
	return written > 0
}
