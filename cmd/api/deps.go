package main

import (
	"context"
	"fmt"
	"log"

	"bankconn/internal/domain/account"
	"bankconn/internal/domain/banksync"
	"bankconn/internal/domain/connection"
	"bankconn/internal/domain/notification"
	"bankconn/internal/domain/openfinance"
	"bankconn/internal/infrastructure/firebase"
	ofclient "bankconn/internal/infrastructure/openfinance"
	"bankconn/internal/infrastructure/postgres"
	"bankconn/internal/infrastructure/rabbitmq"
	httphandlers "bankconn/internal/interfaces/http"
	"bankconn/internal/interfaces/scheduler"
	"bankconn/internal/shared/auth"
	"bankconn/internal/shared/config"
	"bankconn/internal/shared/messages"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB       *postgres.DB
	Producer *rabbitmq.EventProducer

	// Handlers
	BankConnectionHandler *httphandlers.BankConnectionHandler
	WebhookHandler        *httphandlers.WebhookHandler

	// Auth
	JWT *auth.JWT

	// Background work
	WorkerPool *scheduler.WorkerPool
	Scheduler  *scheduler.Scheduler
}

// NewDependencies initializes all application dependencies.
func NewDependencies(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	db, err := postgres.New(cfg.Database.ConnectionString(), postgres.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	log.Println("Connected to database")

	deps := &Dependencies{DB: db}

	if err := postgres.Migrate(ctx, db); err != nil {
		deps.Close()
		return nil, err
	}

	// Repositories
	connRepo := postgres.NewConnectionRepository(db)
	accountRepo := postgres.NewAccountRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)

	// Aggregator client and ledger sync services
	ofClient := ofclient.NewClient(ofclient.Config{
		BaseURL:      cfg.Pluggy.BaseURL,
		ClientID:     cfg.Pluggy.ClientID,
		ClientSecret: cfg.Pluggy.ClientSecret,
		Timeout:      cfg.Pluggy.Timeout,
	})
	accountService := account.NewService(accountRepo)
	accountSyncService := openfinance.NewAccountSyncService(ofClient, accountService, connRepo)
	transactionSyncService := openfinance.NewTransactionSyncService(ofClient, accountService, transactionRepo, connRepo)

	// Notifications and events
	notifier, err := newNotifier(ctx, cfg)
	if err != nil {
		deps.Close()
		return nil, err
	}
	var publisher banksync.EventPublisher = rabbitmq.LogPublisher{}
	if cfg.RabbitMQ.URL != "" {
		producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			deps.Close()
			return nil, err
		}
		deps.Producer = producer
		publisher = producer
		log.Println("Publishing bank connection events to RabbitMQ")
	}

	syncDeps := banksync.Deps{
		Client:    ofClient,
		Store:     connRepo,
		Ledger:    banksync.NewLedger(accountSyncService, transactionSyncService),
		Notifier:  notifier,
		Publisher: publisher,
	}
	orchestrator := banksync.NewOrchestrator(syncDeps, banksync.Config{
		PollAttempts:   cfg.Sync.PollAttempts,
		PollInterval:   cfg.Sync.PollInterval,
		RefreshUpdated: cfg.Sync.RefreshUpdatedItems,
		Timeout:        cfg.ManualSyncTimeout(),
	})
	ingestor := banksync.NewWebhookIngestor(syncDeps)

	// Background syncs share one worker pool
	deps.WorkerPool = scheduler.NewWorkerPool(cfg.Scheduler.WorkerCount, cfg.Scheduler.JobDelay, cfg.Scheduler.QueueSize)
	dispatcher := scheduler.NewDispatcher(deps.WorkerPool, orchestrator)

	if cfg.Scheduler.Enabled {
		deps.Scheduler, err = scheduler.NewScheduler(scheduler.Config{
			Schedule:     cfg.Scheduler.SweepSchedule,
			StaleAfter:   cfg.Scheduler.StaleAfter,
			BatchSize:    cfg.Scheduler.BatchSize,
			RunOnStartup: cfg.Scheduler.RunOnStartup,
		}, deps.WorkerPool, connRepo, orchestrator)
		if err != nil {
			deps.Close()
			return nil, err
		}
	} else {
		log.Println("Scheduler is disabled")
	}

	// HTTP handlers
	connectionService := connection.NewService(connRepo, accountSyncService)
	deps.BankConnectionHandler = httphandlers.NewBankConnectionHandler(connectionService, orchestrator, dispatcher)
	deps.WebhookHandler, err = httphandlers.NewWebhookHandler(ingestor, auth.NewSecretVerifier(cfg.Webhook.SecretHash))
	if err != nil {
		deps.Close()
		return nil, err
	}
	if cfg.Webhook.SecretHash == "" {
		log.Println("Warning: WEBHOOK_SECRET_HASH not set, webhook requests are not authenticated")
	}

	deps.JWT = auth.NewJWT(cfg.JWT.Secret)

	return deps, nil
}

func newNotifier(ctx context.Context, cfg *config.Config) (*notification.Service, error) {
	texts, err := messages.Load(cfg.Messages.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to load notification messages: %w", err)
	}

	if cfg.Firebase.CredentialsFile == "" {
		log.Println("FIREBASE_CREDENTIALS_FILE not set, push notifications are logged only")
		return notification.NewService(nil, texts), nil
	}

	fcm, err := firebase.NewClient(ctx, cfg.Firebase.CredentialsFile)
	if err != nil {
		return nil, err
	}
	log.Println("Firebase Cloud Messaging initialized")
	return notification.NewService(fcm, texts), nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.Producer != nil {
		d.Producer.Close()
	}
	if d.DB != nil {
		d.DB.Close()
	}
}
