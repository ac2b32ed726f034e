package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	httphandlers "bankconn/internal/interfaces/http"
	"bankconn/internal/shared/config"
	"bankconn/internal/shared/middleware"
	"bankconn/internal/shared/telemetry"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.Tracing)

	r.Get("/health", httphandlers.HandleHealth)
	r.Method(http.MethodGet, "/metrics", telemetry.MetricsHandler())

	// Aggregator push notifications, authenticated by shared secret
	r.Post("/api/webhooks/pluggy", deps.WebhookHandler.HandleWebhook)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(deps.JWT))

		r.Route("/api/bank-connections", func(r chi.Router) {
			r.Get("/", deps.BankConnectionHandler.HandleList)
			r.Post("/", deps.BankConnectionHandler.HandleCreate)
			r.Delete("/", deps.BankConnectionHandler.HandleDelete)
			r.Post("/sync", deps.BankConnectionHandler.HandleSync)
		})
	})

	return middleware.Telemetry("bankconn-api")(r)
}
