package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"bankconn/internal/shared/config"
	"bankconn/internal/shared/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()

	endpoint := ""
	if cfg.Telemetry.Enabled {
		endpoint = cfg.Telemetry.OTLPEndpoint
	}
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Telemetry.Environment,
		Aggregator:     "pluggy",
		OTLPEndpoint:   endpoint,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			log.Printf("Error shutting down telemetry: %v", err)
		}
	}()

	deps, err := NewDependencies(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	deps.WorkerPool.Start()
	if deps.Scheduler != nil {
		deps.Scheduler.Start()
	}

	srv := NewServer(SetupRoutes(deps, cfg), cfg)
	StartServer(srv)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	GracefulShutdown(srv, deps, cfg.Server.ShutdownTimeout)
	return nil
}
