package scheduler

import (
	"context"
	"fmt"
	"log"

	"bankconn/internal/domain/banksync"
)

// Reconciler runs the ledger sync for one item. Implemented by
// *banksync.Orchestrator.
type Reconciler interface {
	Reconcile(ctx context.Context, userID int64, itemID, source string) (*banksync.Outcome, error)
}

// ItemSyncJob reconciles one bank connection into the ledger.
type ItemSyncJob struct {
	userID     int64
	itemID     string
	source     string
	reconciler Reconciler
}

// NewItemSyncJob creates a sync job for an item. source is recorded on the
// published events (link, scheduled).
func NewItemSyncJob(userID int64, itemID, source string, reconciler Reconciler) *ItemSyncJob {
	return &ItemSyncJob{
		userID:     userID,
		itemID:     itemID,
		source:     source,
		reconciler: reconciler,
	}
}

// Execute runs the reconciliation. Partial failures are logged but do not
// fail the job; the next sweep picks the item up again.
func (j *ItemSyncJob) Execute(ctx context.Context) error {
	out, err := j.reconciler.Reconcile(ctx, j.userID, j.itemID, j.source)
	if err != nil {
		return fmt.Errorf("item %s: %w", j.itemID, err)
	}

	if out != nil && out.Kind == banksync.OutcomePartialFailure {
		log.Printf("User %d: %s sync of item %s partially failed: %v", j.userID, j.source, j.itemID, out.Errors)
	}
	return nil
}

func (j *ItemSyncJob) UserID() int64 {
	return j.userID
}

func (j *ItemSyncJob) ItemID() string {
	return j.itemID
}

func (j *ItemSyncJob) Description() string {
	return fmt.Sprintf("%s sync of item %s", j.source, j.itemID)
}

// Dispatcher turns sync requests into ItemSyncJobs on a worker pool.
type Dispatcher struct {
	pool       *WorkerPool
	reconciler Reconciler
}

func NewDispatcher(pool *WorkerPool, reconciler Reconciler) *Dispatcher {
	return &Dispatcher{pool: pool, reconciler: reconciler}
}

// EnqueueItemSync queues a background sync. It never blocks the caller.
func (d *Dispatcher) EnqueueItemSync(userID int64, itemID, source string) error {
	return d.pool.Submit(NewItemSyncJob(userID, itemID, source, d.reconciler))
}
