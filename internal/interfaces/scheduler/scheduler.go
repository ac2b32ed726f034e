package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"bankconn/internal/domain/banksync"
	"bankconn/internal/domain/connection"
)

const defaultBatchSize = 100

// StaleLister finds connections due for reconciliation.
type StaleLister interface {
	ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*connection.Connection, error)
}

// Config holds the sweep settings.
type Config struct {
	Schedule     string // standard 5-field cron expression
	StaleAfter   time.Duration
	BatchSize    int
	RunOnStartup bool
}

// Scheduler periodically queues a reconciliation for every connection that
// has not been synced within StaleAfter. It covers webhooks the aggregator
// failed to deliver.
type Scheduler struct {
	cron       *cron.Cron
	pool       *WorkerPool
	lister     StaleLister
	reconciler Reconciler
	config     Config
	now        func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewScheduler validates the cron expression and registers the sweep. The
// pool is shared with other producers and is not started or stopped here.
func NewScheduler(config Config, pool *WorkerPool, lister StaleLister, reconciler Reconciler) (*Scheduler, error) {
	if config.StaleAfter <= 0 {
		return nil, errors.New("stale-after must be positive")
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaultBatchSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		pool:       pool,
		lister:     lister,
		reconciler: reconciler,
		config:     config,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}

	cronLogger := cron.PrintfLogger(log.Default())
	s.cron = cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))
	if _, err := s.cron.AddFunc(config.Schedule, s.runSweep); err != nil {
		cancel()
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", config.Schedule, err)
	}

	log.Printf("Scheduler initialized: sweep %q, stale after %v, batch %d", config.Schedule, config.StaleAfter, config.BatchSize)
	return s, nil
}

// Start begins the cron loop.
func (s *Scheduler) Start() {
	if s.config.RunOnStartup {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.runSweep()
		}()
	}
	s.cron.Start()
	log.Println("Scheduler started")
}

func (s *Scheduler) runSweep() {
	ctx, cancel := context.WithTimeout(s.ctx, time.Minute)
	defer cancel()

	if _, err := s.Sweep(ctx); err != nil {
		log.Printf("Scheduler: sweep failed: %v", err)
	}
}

// Sweep queues one ItemSyncJob per stale connection and returns how many
// were accepted by the pool.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.config.StaleAfter)

	stale, err := s.lister.ListStale(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale connections: %w", err)
	}
	if len(stale) == 0 {
		log.Println("Scheduler: no stale connections")
		return 0, nil
	}

	jobs := make([]Job, 0, len(stale))
	for _, conn := range stale {
		jobs = append(jobs, NewItemSyncJob(conn.UserID, conn.ItemID, banksync.SourceScheduled, s.reconciler))
	}

	log.Printf("Scheduler: %d stale connections older than %s", len(jobs), cutoff.Format(time.RFC3339))
	return s.pool.SubmitBatch(jobs), nil
}

// Shutdown stops the cron loop and waits for a running sweep.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	s.cancel()
	stopped := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Scheduler: shutdown complete")
	case <-time.After(timeout):
		log.Println("Scheduler: shutdown timed out")
	}
}
