package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"bankconn/internal/shared/config"
)

// NewServer creates the HTTP server. WriteTimeout must exceed the manual sync
// poll budget, which config.Validate enforces.
func NewServer(handler http.Handler, cfg *config.Config) *http.Server {
	return &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer serves in the background. A listen failure is fatal.
func StartServer(srv *http.Server) {
	go func() {
		log.Printf("HTTP server starting on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()
}

// GracefulShutdown stops accepting requests, then drains background syncs.
func GracefulShutdown(srv *http.Server, deps *Dependencies, timeout time.Duration) {
	log.Println("Server shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}

	if deps.Scheduler != nil {
		deps.Scheduler.Shutdown(timeout)
	}
	if deps.WorkerPool != nil {
		deps.WorkerPool.ShutdownWithTimeout(timeout)
	}

	log.Println("Server stopped")
}
