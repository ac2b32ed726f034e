package banksync

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"bankconn/internal/domain/connection"
	"bankconn/internal/domain/openfinance"
	ofclient "bankconn/internal/infrastructure/openfinance"
)

func newTestOrchestrator(client *MockClient, store *MockStore, ledger *MockLedger, n Notifier, p EventPublisher) (*Orchestrator, *int) {
	o := NewOrchestrator(Deps{Client: client, Store: store, Ledger: ledger, Notifier: n, Publisher: p}, Config{PollAttempts: 4, PollInterval: time.Second})
	sleeps := 0
	o.poller.sleep = func(ctx context.Context, d time.Duration) bool {
		sleeps++
		return true
	}
	return o, &sleeps
}

func TestManualSync_CallerErrors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		callerID int64
		itemID   string
		store    *MockStore
		wantErr  error
	}{
		{"unauthenticated", 0, "item-1", &MockStore{GetByItemIDFunc: ownedBy(1)}, ErrUnauthorized},
		{"missing item id", 1, "", &MockStore{GetByItemIDFunc: ownedBy(1)}, ErrMissingItemID},
		{"unknown item", 1, "item-1", &MockStore{}, ErrConnectionNotFound},
		{"owned by someone else", 1, "item-1", &MockStore{GetByItemIDFunc: ownedBy(2)}, ErrConnectionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &MockClient{}
			ledger := &MockLedger{}
			o, _ := newTestOrchestrator(client, tt.store, ledger, nil, nil)

			_, err := o.ManualSync(ctx, tt.callerID, tt.itemID)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ManualSync() error = %v, want %v", err, tt.wantErr)
			}
			if client.fetchCalls() != 0 || client.refreshCalls() != 0 || len(ledger.calls()) != 0 {
				t.Error("caller errors must not reach the aggregator or the ledger")
			}
		})
	}
}

func TestManualSync_StoreFailureIsInternal(t *testing.T) {
	store := &MockStore{GetByItemIDFunc: func(ctx context.Context, itemID string) (*connection.Connection, error) {
		return nil, errors.New("connection refused")
	}}
	o, _ := newTestOrchestrator(&MockClient{}, store, &MockLedger{}, nil, nil)

	_, err := o.ManualSync(context.Background(), 1, "item-1")
	if err == nil || errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("ManualSync() error = %v, want internal error", err)
	}
}

func TestManualSync_StatusPaths(t *testing.T) {
	tests := []struct {
		name          string
		statuses      []string
		wantKind      OutcomeKind
		wantCode      string
		wantRefresh   int
		wantFetches   int
		wantSleeps    int
		wantLedger    []string
		wantRefreshed bool
	}{
		{
			name:        "UPDATED syncs without refresh or poll",
			statuses:    []string{"UPDATED"},
			wantKind:    OutcomeSuccess,
			wantFetches: 1,
			wantLedger:  []string{"balances", "transactions"},
		},
		{
			name:        "WAITING_USER_INPUT requires action without refresh",
			statuses:    []string{"WAITING_USER_INPUT"},
			wantKind:    OutcomeActionRequired,
			wantCode:    openfinance.CodeWaitingUserInput,
			wantFetches: 1,
		},
		{
			name:        "LOGIN_ERROR requires action without refresh",
			statuses:    []string{"LOGIN_ERROR"},
			wantKind:    OutcomeActionRequired,
			wantCode:    openfinance.CodeLoginRequired,
			wantFetches: 1,
		},
		{
			name:        "UPDATING polls without refresh then syncs",
			statuses:    []string{"UPDATING", "UPDATING", "UPDATED"},
			wantKind:    OutcomeSuccess,
			wantFetches: 3,
			wantSleeps:  1,
			wantLedger:  []string{"balances", "transactions"},
		},
		{
			name:          "OUTDATED refreshes then polls",
			statuses:      []string{"OUTDATED", "UPDATING", "UPDATED"},
			wantKind:      OutcomeSuccess,
			wantRefresh:   1,
			wantRefreshed: true,
			wantFetches:   3,
			wantSleeps:    1,
			wantLedger:    []string{"balances", "transactions"},
		},
		{
			name:          "poll exhaustion still syncs",
			statuses:      []string{"OUTDATED", "UPDATING"},
			wantKind:      OutcomeSuccess,
			wantRefresh:   1,
			wantRefreshed: true,
			wantFetches:   5,
			wantSleeps:    3,
			wantLedger:    []string{"balances", "transactions"},
		},
		{
			name:          "refresh then WAITING_USER_INPUT stops",
			statuses:      []string{"OUTDATED", "WAITING_USER_INPUT"},
			wantKind:      OutcomeActionRequired,
			wantCode:      openfinance.CodeWaitingUserInput,
			wantRefresh:   1,
			wantRefreshed: true,
			wantFetches:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &MockClient{Statuses: tt.statuses}
			ledger := &MockLedger{}
			o, sleeps := newTestOrchestrator(client, &MockStore{GetByItemIDFunc: ownedBy(1)}, ledger, nil, nil)

			out, err := o.ManualSync(context.Background(), 1, "item-1")
			if err != nil {
				t.Fatalf("ManualSync() error = %v", err)
			}
			if out.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s (errors %v)", out.Kind, tt.wantKind, out.Errors)
			}
			if out.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", out.Code, tt.wantCode)
			}
			if client.refreshCalls() != tt.wantRefresh {
				t.Errorf("refresh calls = %d, want %d", client.refreshCalls(), tt.wantRefresh)
			}
			if out.Refreshed != tt.wantRefreshed {
				t.Errorf("Refreshed = %v, want %v", out.Refreshed, tt.wantRefreshed)
			}
			if client.fetchCalls() != tt.wantFetches {
				t.Errorf("status fetches = %d, want %d", client.fetchCalls(), tt.wantFetches)
			}
			if *sleeps != tt.wantSleeps {
				t.Errorf("sleeps = %d, want %d", *sleeps, tt.wantSleeps)
			}
			if got := ledger.calls(); !reflect.DeepEqual(got, tt.wantLedger) {
				t.Errorf("ledger calls = %v, want %v", got, tt.wantLedger)
			}
		})
	}
}

func TestManualSync_RefreshFailures(t *testing.T) {
	tests := []struct {
		name       string
		kind       ofclient.ErrorKind
		wantKind   OutcomeKind
		wantLedger []string
	}{
		{"login required skips ledger", ofclient.KindLoginRequired, OutcomeActionRequired, nil},
		{"sandbox restriction syncs available data", ofclient.KindSandboxRestricted, OutcomeSuccess, []string{"balances", "transactions"}},
		{"unknown failure is partial", ofclient.KindUnknown, OutcomePartialFailure, []string{"balances", "transactions"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &MockClient{
				Statuses: []string{"OUTDATED"},
				RequestRefreshFunc: func(ctx context.Context, itemID string) (*ofclient.Item, error) {
					return nil, &ofclient.ProviderError{Kind: tt.kind, Op: "refresh item"}
				},
			}
			ledger := &MockLedger{}
			o, sleeps := newTestOrchestrator(client, &MockStore{GetByItemIDFunc: ownedBy(1)}, ledger, nil, nil)

			out, err := o.ManualSync(context.Background(), 1, "item-1")
			if err != nil {
				t.Fatalf("ManualSync() error = %v", err)
			}
			if out.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", out.Kind, tt.wantKind)
			}
			if got := ledger.calls(); !reflect.DeepEqual(got, tt.wantLedger) {
				t.Errorf("ledger calls = %v, want %v", got, tt.wantLedger)
			}
			if *sleeps != 0 || client.fetchCalls() != 1 {
				t.Errorf("a failed refresh must not be polled (sleeps=%d fetches=%d)", *sleeps, client.fetchCalls())
			}
		})
	}
}

func TestManualSync_LedgerEscalation(t *testing.T) {
	loginErr := &ofclient.ProviderError{Kind: ofclient.KindLoginRequired, Op: "fetch accounts"}

	tests := []struct {
		name       string
		ledger     *MockLedger
		wantKind   OutcomeKind
		wantLedger []string
	}{
		{
			name: "balances report login code",
			ledger: &MockLedger{SyncAccountBalancesFunc: func(ctx context.Context, userID int64, itemID string) (*openfinance.AccountSyncResult, error) {
				return &openfinance.AccountSyncResult{Code: openfinance.CodeLoginRequired}, nil
			}},
			wantKind:   OutcomeActionRequired,
			wantLedger: []string{"balances"},
		},
		{
			name: "balances return login error",
			ledger: &MockLedger{SyncAccountBalancesFunc: func(ctx context.Context, userID int64, itemID string) (*openfinance.AccountSyncResult, error) {
				return nil, loginErr
			}},
			wantKind:   OutcomeActionRequired,
			wantLedger: []string{"balances"},
		},
		{
			name: "transactions report login code",
			ledger: &MockLedger{SyncTransactionsFunc: func(ctx context.Context, userID int64, itemID string) (*openfinance.TransactionSyncResult, error) {
				return &openfinance.TransactionSyncResult{Code: openfinance.CodeLoginRequired}, nil
			}},
			wantKind:   OutcomeActionRequired,
			wantLedger: []string{"balances", "transactions"},
		},
		{
			name: "balances fail transactions succeed",
			ledger: &MockLedger{SyncAccountBalancesFunc: func(ctx context.Context, userID int64, itemID string) (*openfinance.AccountSyncResult, error) {
				return nil, errors.New("db timeout")
			}},
			wantKind:   OutcomePartialFailure,
			wantLedger: []string{"balances", "transactions"},
		},
		{
			name: "both fail",
			ledger: &MockLedger{
				SyncAccountBalancesFunc: func(ctx context.Context, userID int64, itemID string) (*openfinance.AccountSyncResult, error) {
					return nil, errors.New("db timeout")
				},
				SyncTransactionsFunc: func(ctx context.Context, userID int64, itemID string) (*openfinance.TransactionSyncResult, error) {
					return nil, errors.New("db timeout")
				},
			},
			wantKind:   OutcomeFailure,
			wantLedger: []string{"balances", "transactions"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := newTestOrchestrator(&MockClient{}, &MockStore{GetByItemIDFunc: ownedBy(1)}, tt.ledger, nil, nil)

			out, err := o.ManualSync(context.Background(), 1, "item-1")
			if err != nil {
				t.Fatalf("ManualSync() error = %v", err)
			}
			if out.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", out.Kind, tt.wantKind)
			}
			if out.Kind == OutcomeActionRequired && out.Code != openfinance.CodeLoginRequired {
				t.Errorf("Code = %q, want %q", out.Code, openfinance.CodeLoginRequired)
			}
			if got := tt.ledger.calls(); !reflect.DeepEqual(got, tt.wantLedger) {
				t.Errorf("ledger calls = %v, want %v", got, tt.wantLedger)
			}
		})
	}
}

func TestManualSync_RowFailures(t *testing.T) {
	tests := []struct {
		name       string
		ledger     *MockLedger
		wantKind   OutcomeKind
		wantErrors int
	}{
		{
			name: "every row fails",
			ledger: &MockLedger{
				SyncAccountBalancesFunc: func(ctx context.Context, userID int64, itemID string) (*openfinance.AccountSyncResult, error) {
					return &openfinance.AccountSyncResult{AccountsFound: 2, Errors: []string{"a1", "a2"}}, nil
				},
				SyncTransactionsFunc: func(ctx context.Context, userID int64, itemID string) (*openfinance.TransactionSyncResult, error) {
					return &openfinance.TransactionSyncResult{TransactionsFound: 5, Errors: []string{"t1", "t2", "t3", "t4", "t5"}}, nil
				},
			},
			wantKind:   OutcomeFailure,
			wantErrors: 2,
		},
		{
			name: "some transactions written",
			ledger: &MockLedger{
				SyncTransactionsFunc: func(ctx context.Context, userID int64, itemID string) (*openfinance.TransactionSyncResult, error) {
					return &openfinance.TransactionSyncResult{TransactionsFound: 3, Created: 2, Errors: []string{"t3"}}, nil
				},
			},
			wantKind:   OutcomePartialFailure,
			wantErrors: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := newTestOrchestrator(&MockClient{}, &MockStore{GetByItemIDFunc: ownedBy(1)}, tt.ledger, nil, nil)

			out, err := o.ManualSync(context.Background(), 1, "item-1")
			if err != nil {
				t.Fatalf("ManualSync() error = %v", err)
			}
			if out.Kind != tt.wantKind {
				t.Errorf("Kind = %s, want %s", out.Kind, tt.wantKind)
			}
			if len(out.Errors) != tt.wantErrors {
				t.Errorf("Errors = %v, want %d entries", out.Errors, tt.wantErrors)
			}
		})
	}
}

func TestManualSync_TimeoutBoundsSlowAggregator(t *testing.T) {
	client := &MockClient{FetchItemFunc: func(ctx context.Context, itemID string) (*ofclient.Item, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	o := NewOrchestrator(Deps{Client: client, Store: &MockStore{GetByItemIDFunc: ownedBy(1)}, Ledger: &MockLedger{}},
		Config{PollAttempts: 4, PollInterval: time.Second, Timeout: 50 * time.Millisecond})

	start := time.Now()
	out, err := o.ManualSync(context.Background(), 1, "item-1")
	if err != nil {
		t.Fatalf("ManualSync() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("ManualSync() took %s with a 50ms timeout", elapsed)
	}
	if out.Kind != OutcomePartialFailure || len(out.Errors) != 1 {
		t.Errorf("Kind = %s, errors = %v, want one status check error", out.Kind, out.Errors)
	}
}

func TestManualSync_StatusCheckFailure(t *testing.T) {
	t.Run("login error stops before ledger", func(t *testing.T) {
		client := &MockClient{FetchItemFunc: func(ctx context.Context, itemID string) (*ofclient.Item, error) {
			return nil, &ofclient.ProviderError{Kind: ofclient.KindLoginRequired, Op: "fetch item"}
		}}
		ledger := &MockLedger{}
		o, _ := newTestOrchestrator(client, &MockStore{GetByItemIDFunc: ownedBy(1)}, ledger, nil, nil)

		out, _ := o.ManualSync(context.Background(), 1, "item-1")
		if out.Kind != OutcomeActionRequired || len(ledger.calls()) != 0 {
			t.Errorf("Kind = %s, ledger = %v", out.Kind, ledger.calls())
		}
	})

	t.Run("unknown error still syncs", func(t *testing.T) {
		client := &MockClient{FetchItemFunc: func(ctx context.Context, itemID string) (*ofclient.Item, error) {
			return nil, &ofclient.ProviderError{Kind: ofclient.KindUnknown, Op: "fetch item", StatusCode: 500}
		}}
		ledger := &MockLedger{}
		o, _ := newTestOrchestrator(client, &MockStore{GetByItemIDFunc: ownedBy(1)}, ledger, nil, nil)

		out, _ := o.ManualSync(context.Background(), 1, "item-1")
		if out.Kind != OutcomePartialFailure {
			t.Errorf("Kind = %s, want PARTIAL_FAILURE", out.Kind)
		}
		if client.refreshCalls() != 0 || len(ledger.calls()) != 2 {
			t.Errorf("refresh = %d ledger = %v", client.refreshCalls(), ledger.calls())
		}
	})
}

func TestManualSync_RefreshUpdatedOption(t *testing.T) {
	client := &MockClient{Statuses: []string{"UPDATED"}}
	o := NewOrchestrator(Deps{Client: client, Store: &MockStore{GetByItemIDFunc: ownedBy(1)}, Ledger: &MockLedger{}}, Config{RefreshUpdated: true})
	o.poller.sleep = func(ctx context.Context, d time.Duration) bool { return true }

	out, err := o.ManualSync(context.Background(), 1, "item-1")
	if err != nil {
		t.Fatalf("ManualSync() error = %v", err)
	}
	if client.refreshCalls() != 1 || !out.Refreshed || out.PollAttempts != 1 {
		t.Errorf("refresh = %d refreshed = %v polls = %d", client.refreshCalls(), out.Refreshed, out.PollAttempts)
	}
}

func TestManualSync_EmitsEvents(t *testing.T) {
	t.Run("synced", func(t *testing.T) {
		notifier := &recordingNotifier{}
		publisher := &recordingPublisher{}
		o, _ := newTestOrchestrator(&MockClient{}, &MockStore{GetByItemIDFunc: ownedBy(1)}, &MockLedger{}, notifier, publisher)

		if _, err := o.ManualSync(context.Background(), 1, "item-1"); err != nil {
			t.Fatalf("ManualSync() error = %v", err)
		}
		if got := publisher.published(); !reflect.DeepEqual(got, []string{RoutingKeySynced}) {
			t.Errorf("published = %v", got)
		}
		if len(notifier.actionRequired) != 0 {
			t.Errorf("unexpected action-required notification")
		}
	})

	t.Run("action required", func(t *testing.T) {
		notifier := &recordingNotifier{}
		publisher := &recordingPublisher{}
		client := &MockClient{Statuses: []string{"LOGIN_ERROR"}}
		o, _ := newTestOrchestrator(client, &MockStore{GetByItemIDFunc: ownedBy(1)}, &MockLedger{}, notifier, publisher)

		if _, err := o.ManualSync(context.Background(), 1, "item-1"); err != nil {
			t.Fatalf("ManualSync() error = %v", err)
		}
		if got := publisher.published(); !reflect.DeepEqual(got, []string{RoutingKeyActionRequired}) {
			t.Errorf("published = %v", got)
		}
		if !reflect.DeepEqual(notifier.actionRequired, []string{openfinance.CodeLoginRequired}) {
			t.Errorf("notifications = %v", notifier.actionRequired)
		}
	})
}

func TestReconcile(t *testing.T) {
	publisher := &recordingPublisher{}
	ledger := &MockLedger{}
	o, _ := newTestOrchestrator(&MockClient{}, &MockStore{}, ledger, nil, publisher)

	out, err := o.Reconcile(context.Background(), 1, "item-1", SourceScheduled)
	if err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}
	if out.Kind != OutcomeSuccess {
		t.Errorf("Kind = %s", out.Kind)
	}
	if !reflect.DeepEqual(ledger.calls(), []string{"balances", "transactions"}) {
		t.Errorf("ledger calls = %v", ledger.calls())
	}

	failing := &MockLedger{
		SyncAccountBalancesFunc: func(ctx context.Context, userID int64, itemID string) (*openfinance.AccountSyncResult, error) {
			return nil, errors.New("boom")
		},
		SyncTransactionsFunc: func(ctx context.Context, userID int64, itemID string) (*openfinance.TransactionSyncResult, error) {
			return nil, errors.New("boom")
		},
	}
	o, _ = newTestOrchestrator(&MockClient{}, &MockStore{}, failing, nil, nil)
	if _, err := o.Reconcile(context.Background(), 1, "item-1", SourceLink); err == nil {
		t.Error("Reconcile() expected error when nothing synced")
	}
}
