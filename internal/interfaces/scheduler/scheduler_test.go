package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"bankconn/internal/domain/banksync"
	"bankconn/internal/domain/connection"
)

type MockReconciler struct {
	ReconcileFunc func(ctx context.Context, userID int64, itemID, source string) (*banksync.Outcome, error)
}

func (m *MockReconciler) Reconcile(ctx context.Context, userID int64, itemID, source string) (*banksync.Outcome, error) {
	if m.ReconcileFunc != nil {
		return m.ReconcileFunc(ctx, userID, itemID, source)
	}
	return &banksync.Outcome{Kind: banksync.OutcomeSuccess, ItemID: itemID}, nil
}

type MockLister struct {
	ListStaleFunc func(ctx context.Context, olderThan time.Time, limit int) ([]*connection.Connection, error)
}

func (m *MockLister) ListStale(ctx context.Context, olderThan time.Time, limit int) ([]*connection.Connection, error) {
	if m.ListStaleFunc != nil {
		return m.ListStaleFunc(ctx, olderThan, limit)
	}
	return nil, nil
}

func TestItemSyncJob_Execute(t *testing.T) {
	tests := []struct {
		name    string
		outcome *banksync.Outcome
		err     error
		wantErr bool
	}{
		{"success", &banksync.Outcome{Kind: banksync.OutcomeSuccess}, nil, false},
		{"partial failure is not retried", &banksync.Outcome{Kind: banksync.OutcomePartialFailure, Errors: []string{"x"}}, nil, false},
		{"action required", &banksync.Outcome{Kind: banksync.OutcomeActionRequired}, nil, false},
		{"failure", &banksync.Outcome{Kind: banksync.OutcomeFailure}, errors.New("nothing synced"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotSource string
			r := &MockReconciler{ReconcileFunc: func(ctx context.Context, userID int64, itemID, source string) (*banksync.Outcome, error) {
				gotSource = source
				return tt.outcome, tt.err
			}}
			job := NewItemSyncJob(4, "item-1", banksync.SourceLink, r)

			err := job.Execute(context.Background())
			if (err != nil) != tt.wantErr {
				t.Errorf("Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
			if gotSource != banksync.SourceLink {
				t.Errorf("source = %q", gotSource)
			}
			if job.UserID() != 4 || job.ItemID() != "item-1" {
				t.Errorf("job = %+v", job)
			}
		})
	}
}

func TestDispatcher_EnqueueItemSync(t *testing.T) {
	pool := NewWorkerPool(1, 0, 1)
	d := NewDispatcher(pool, &MockReconciler{})

	if err := d.EnqueueItemSync(1, "item-1", banksync.SourceLink); err != nil {
		t.Fatalf("EnqueueItemSync() error = %v", err)
	}
	job := (<-pool.jobs).(*ItemSyncJob)
	if job.itemID != "item-1" || job.source != banksync.SourceLink {
		t.Errorf("queued job = %+v", job)
	}
}

func TestScheduler_Sweep(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var gotCutoff time.Time
	var gotLimit int
	lister := &MockLister{ListStaleFunc: func(ctx context.Context, olderThan time.Time, limit int) ([]*connection.Connection, error) {
		gotCutoff, gotLimit = olderThan, limit
		return []*connection.Connection{
			{ItemID: "a", UserID: 1},
			{ItemID: "b", UserID: 2},
		}, nil
	}}
	pool := NewWorkerPool(1, 0, 10)

	s, err := NewScheduler(Config{Schedule: "0 */6 * * *", StaleAfter: 12 * time.Hour}, pool, lister, &MockReconciler{})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	s.now = func() time.Time { return now }

	n, err := s.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Sweep() = %d, want 2", n)
	}
	if !gotCutoff.Equal(now.Add(-12 * time.Hour)) {
		t.Errorf("cutoff = %v", gotCutoff)
	}
	if gotLimit != defaultBatchSize {
		t.Errorf("limit = %d, want %d", gotLimit, defaultBatchSize)
	}

	for _, want := range []string{"a", "b"} {
		job := (<-pool.jobs).(*ItemSyncJob)
		if job.itemID != want || job.source != banksync.SourceScheduled {
			t.Errorf("job = %+v, want item %s", job, want)
		}
	}
}

func TestScheduler_SweepListError(t *testing.T) {
	lister := &MockLister{ListStaleFunc: func(ctx context.Context, olderThan time.Time, limit int) ([]*connection.Connection, error) {
		return nil, errors.New("db down")
	}}
	s, err := NewScheduler(Config{Schedule: "@hourly", StaleAfter: time.Hour, BatchSize: 5}, NewWorkerPool(1, 0, 1), lister, &MockReconciler{})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	if _, err := s.Sweep(context.Background()); err == nil {
		t.Error("Sweep() expected error")
	}
}

func TestNewScheduler_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"bad schedule", Config{Schedule: "every tuesday", StaleAfter: time.Hour}},
		{"zero stale after", Config{Schedule: "@hourly"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewScheduler(tt.config, NewWorkerPool(1, 0, 1), &MockLister{}, &MockReconciler{}); err == nil {
				t.Error("NewScheduler() expected error")
			}
		})
	}
}

func TestScheduler_StartAndShutdown(t *testing.T) {
	s, err := NewScheduler(Config{Schedule: "@daily", StaleAfter: time.Hour}, NewWorkerPool(1, 0, 1), &MockLister{}, &MockReconciler{})
	if err != nil {
		t.Fatalf("NewScheduler() error = %v", err)
	}
	s.Start()
	s.Shutdown(time.Second)
}
