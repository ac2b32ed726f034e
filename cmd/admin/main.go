package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"bankconn/internal/domain/account"
	"bankconn/internal/domain/banksync"
	"bankconn/internal/domain/connection"
	"bankconn/internal/domain/openfinance"
	ofclient "bankconn/internal/infrastructure/openfinance"
	"bankconn/internal/infrastructure/postgres"
	"bankconn/internal/infrastructure/rabbitmq"
	"bankconn/internal/shared/auth"
	"bankconn/internal/shared/config"
)

const usage = `Bank connection admin CLI

Usage:
  admin <command> [options]

Commands:
  sync-item          Run a manual sync of one item on behalf of its owner
  list-connections   Print the bank connections of one or more users
  sweep-stale        Reconcile connections not synced recently, in the foreground
  hash-secret        Print the bcrypt hash of a webhook secret for WEBHOOK_SECRET_HASH
  issue-token        Issue an access token for a user (support and testing)

Examples:
  admin sync-item --user-id=1 --item-id=4a1c...
  admin list-connections --user-id=1,2,3
  admin sweep-stale --older-than=24h --limit=50
  admin hash-secret --secret=s3cret
  admin issue-token --user-id=1 --email=ops@example.com
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage + "\n")
		os.Exit(1)
	}

	command := os.Args[1]

	switch command {
	case "sync-item":
		runSyncItem(os.Args[2:])
	case "list-connections":
		runListConnections(os.Args[2:])
	case "sweep-stale":
		runSweepStale(os.Args[2:])
	case "hash-secret":
		runHashSecret(os.Args[2:])
	case "issue-token":
		runIssueToken(os.Args[2:])
	case "help", "-h", "--help":
		fmt.Print(usage + "\n")
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		fmt.Print(usage + "\n")
		os.Exit(1)
	}
}

// engine is the sync stack without HTTP, notifications or the scheduler.
type engine struct {
	db           *postgres.DB
	connRepo     *postgres.ConnectionRepository
	accounts     *account.Service
	orchestrator *banksync.Orchestrator
}

func newEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	db, err := postgres.New(cfg.Database.ConnectionString(), postgres.PoolConfig{MaxOpenConns: 5, MaxIdleConns: 2})
	if err != nil {
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	connRepo := postgres.NewConnectionRepository(db)
	client := ofclient.NewClient(ofclient.Config{
		BaseURL:      cfg.Pluggy.BaseURL,
		ClientID:     cfg.Pluggy.ClientID,
		ClientSecret: cfg.Pluggy.ClientSecret,
		Timeout:      cfg.Pluggy.Timeout,
	})
	accountService := account.NewService(postgres.NewAccountRepository(db))
	ledger := banksync.NewLedger(
		openfinance.NewAccountSyncService(client, accountService, connRepo),
		openfinance.NewTransactionSyncService(client, accountService, postgres.NewTransactionRepository(db), connRepo),
	)

	orchestrator := banksync.NewOrchestrator(banksync.Deps{
		Client:    client,
		Store:     connRepo,
		Ledger:    ledger,
		Publisher: rabbitmq.LogPublisher{},
	}, banksync.Config{
		PollAttempts:   cfg.Sync.PollAttempts,
		PollInterval:   cfg.Sync.PollInterval,
		RefreshUpdated: cfg.Sync.RefreshUpdatedItems,
	})

	return &engine{db: db, connRepo: connRepo, accounts: accountService, orchestrator: orchestrator}, nil
}

func loadEngine(ctx context.Context) *engine {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	e, err := newEngine(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	log.Println("Connected to database")
	return e
}

func runSyncItem(args []string) {
	fs := flag.NewFlagSet("sync-item", flag.ExitOnError)
	userID := fs.Int64("user-id", 0, "Owner of the item")
	itemID := fs.String("item-id", "", "Aggregator item ID")
	timeoutStr := fs.String("timeout", "2m", "Timeout for the operation (e.g., 30s, 5m)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *userID <= 0 || *itemID == "" {
		fmt.Println("Error: --user-id and --item-id are required")
		fs.PrintDefaults()
		os.Exit(1)
	}
	timeout := parseTimeout(*timeoutStr)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	e := loadEngine(ctx)
	defer e.db.Close()

	start := time.Now()
	out, err := e.orchestrator.ManualSync(ctx, *userID, *itemID)
	if err != nil {
		log.Fatalf("Sync failed: %v", err)
	}
	printJSON(out)
	log.Printf("Sync finished in %v: %s", time.Since(start), out.Kind)

	if out.Kind == banksync.OutcomeFailure {
		os.Exit(2)
	}
}

func runListConnections(args []string) {
	fs := flag.NewFlagSet("list-connections", flag.ExitOnError)
	userIDStr := fs.String("user-id", "", "User ID(s) to list (comma-separated for multiple)")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	userIDs, err := parseUserIDs(*userIDStr)
	if err != nil {
		log.Fatal(err)
	}
	if len(userIDs) == 0 {
		fmt.Println("Error: --user-id is required")
		fs.PrintDefaults()
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	e := loadEngine(ctx)
	defer e.db.Close()

	for _, uid := range userIDs {
		conns, err := e.connRepo.ListByUserID(ctx, uid)
		if err != nil {
			log.Fatalf("Failed to list connections for user %d: %v", uid, err)
		}

		fmt.Printf("\n=== User %d: %d connection(s) ===\n", uid, len(conns))
		for _, c := range conns {
			accounts, err := e.accounts.ListByItem(ctx, uid, c.ItemID)
			if err != nil {
				log.Printf("User %d: Failed to list ledger accounts of item %s: %v", uid, c.ItemID, err)
			}
			printConnection(os.Stdout, c, accounts)
		}
	}
}

// printConnection writes one connection followed by its ledger accounts.
func printConnection(w io.Writer, c *connection.Connection, accounts []*account.Account) {
	lastSync := "never"
	if c.LastSyncAt != nil {
		lastSync = c.LastSyncAt.Format(time.RFC3339)
	}
	fmt.Fprintf(w, "  %s  %-20s snapshot=%d  last sync %s\n", c.ItemID, c.Status, len(c.Accounts), lastSync)
	for _, a := range accounts {
		fmt.Fprintf(w, "    %-24s %-10s %s %s\n", a.Name, a.Type, a.Balance.StringFixed(2), a.Currency)
	}
}

func runSweepStale(args []string) {
	fs := flag.NewFlagSet("sweep-stale", flag.ExitOnError)
	olderThan := fs.Duration("older-than", 12*time.Hour, "Reconcile connections not synced for this long")
	limit := fs.Int("limit", 100, "Maximum connections to reconcile")
	timeoutStr := fs.String("timeout", "30m", "Timeout for the operation")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), parseTimeout(*timeoutStr))
	defer cancel()

	e := loadEngine(ctx)
	defer e.db.Close()

	stale, err := e.connRepo.ListStale(ctx, time.Now().Add(-*olderThan), *limit)
	if err != nil {
		log.Fatalf("Failed to list stale connections: %v", err)
	}
	log.Printf("Reconciling %d stale connection(s)", len(stale))

	failed := 0
	for _, c := range stale {
		out, err := e.orchestrator.Reconcile(ctx, c.UserID, c.ItemID, banksync.SourceScheduled)
		if err != nil {
			failed++
			log.Printf("User %d: item %s: %v", c.UserID, c.ItemID, err)
			continue
		}
		fmt.Printf("  %s  user=%d  %s\n", c.ItemID, c.UserID, out.Kind)
	}
	log.Printf("Sweep completed: %d reconciled, %d failed", len(stale)-failed, failed)
}

func runHashSecret(args []string) {
	fs := flag.NewFlagSet("hash-secret", flag.ExitOnError)
	secret := fs.String("secret", "", "Webhook shared secret")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *secret == "" {
		fmt.Println("Error: --secret is required")
		os.Exit(1)
	}

	hash, err := auth.HashSecret(*secret)
	if err != nil {
		log.Fatalf("Failed to hash secret: %v", err)
	}
	fmt.Println(hash)
}

func runIssueToken(args []string) {
	fs := flag.NewFlagSet("issue-token", flag.ExitOnError)
	userID := fs.Int64("user-id", 0, "User ID to embed in the token")
	email := fs.String("email", "", "Email claim")

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if *userID <= 0 {
		fmt.Println("Error: --user-id is required")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	token, err := auth.NewJWT(cfg.JWT.Secret).Generate(*userID, *email)
	if err != nil {
		log.Fatalf("Failed to issue token: %v", err)
	}
	fmt.Println(token)
}

func parseUserIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid user ID '%s'", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func parseTimeout(s string) time.Duration {
	timeout, err := time.ParseDuration(s)
	if err != nil {
		log.Fatalf("Invalid timeout format: %v", err)
	}
	return timeout
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Printf("Failed to encode output: %v", err)
	}
}
