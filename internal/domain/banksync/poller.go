package banksync

import (
	"context"
	"errors"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"bankconn/internal/domain/connection"
	ofclient "bankconn/internal/infrastructure/openfinance"
)

const (
	DefaultPollAttempts = 4
	DefaultPollInterval = time.Second
)

// StatusRecorder persists each status the poller observes.
type StatusRecorder interface {
	UpdateStatus(ctx context.Context, itemID string, status connection.ItemStatus) error
}

// PollResult is the outcome of one bounded polling run.
type PollResult struct {
	Status             connection.ItemStatus // last status observed, empty if none
	Attempts           int
	Terminal           bool
	UserActionRequired bool
	LastErr            error // last non-terminal fetch failure, informational only
}

// Poller waits for an item to settle after a refresh. A run never lasts
// longer than attempts × interval, however slow the aggregator is.
type Poller struct {
	client      AggregatorClient
	recorder    StatusRecorder
	maxAttempts int
	interval    time.Duration
	sleep       func(ctx context.Context, d time.Duration) bool
}

// NewPoller creates a poller. Non-positive attempts or interval fall back to
// the defaults. recorder may be nil.
func NewPoller(client AggregatorClient, recorder StatusRecorder, attempts int, interval time.Duration) *Poller {
	if attempts <= 0 {
		attempts = DefaultPollAttempts
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		client:      client,
		recorder:    recorder,
		maxAttempts: attempts,
		interval:    interval,
		sleep:       sleepContext,
	}
}

// Poll fetches the item status until it is terminal or attempts run out.
// Exhaustion and cancellation are not errors: the result carries whatever
// was last observed.
func (p *Poller) Poll(ctx context.Context, itemID string) PollResult {
	var result PollResult
	defer func() {
		pollAttempts.Record(ctx, int64(result.Attempts),
			metric.WithAttributes(attribute.Bool("terminal", result.Terminal)))
	}()

	pollCtx, cancel := context.WithTimeout(ctx, p.Budget())
	defer cancel()

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if attempt > 1 && !p.sleep(pollCtx, p.interval) {
			log.Printf("Item %s: Polling stopped after %d attempts: %v", itemID, result.Attempts, pollCtx.Err())
			return result
		}

		result.Attempts = attempt
		item, err := p.client.FetchItem(pollCtx, itemID)
		if err != nil {
			if ofclient.IsLoginRequired(err) {
				result.Status = connection.StatusLoginError
				result.Terminal = true
				result.UserActionRequired = true
				p.record(ctx, itemID, result.Status)
				return result
			}
			result.LastErr = err
			log.Printf("Item %s: Poll attempt %d failed: %v", itemID, attempt, err)
			continue
		}

		status, err := connection.ParseItemStatus(item.Status)
		if err != nil {
			result.LastErr = err
			log.Printf("Item %s: Poll attempt %d returned unknown status %q", itemID, attempt, item.Status)
			continue
		}

		result.Status = status
		p.record(ctx, itemID, status)

		if isTerminal(status) {
			result.Terminal = true
			result.UserActionRequired = status.RequiresUserAction()
			return result
		}
	}

	log.Printf("Item %s: Polling exhausted after %d attempts, last status %q", itemID, result.Attempts, result.Status)
	return result
}

// Budget is the wall-clock bound of one Poll.
func (p *Poller) Budget() time.Duration {
	return time.Duration(p.maxAttempts) * p.interval
}

func (p *Poller) record(ctx context.Context, itemID string, status connection.ItemStatus) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.UpdateStatus(ctx, itemID, status); err != nil && !errors.Is(err, connection.ErrConnectionNotFound) {
		log.Printf("Item %s: Failed to record status %s: %v", itemID, status, err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
