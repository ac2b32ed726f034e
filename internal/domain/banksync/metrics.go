package banksync

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	syncTracer       = otel.Tracer("bankconn/banksync")
	syncMeter        = otel.Meter("bankconn/banksync")
	manualSyncs, _   = syncMeter.Int64Counter("banksync.manual.total", metric.WithDescription("Manual syncs by outcome"))
	webhookEvents, _ = syncMeter.Int64Counter("banksync.webhook.total", metric.WithDescription("Webhook events by type and result"))
	pollAttempts, _  = syncMeter.Int64Histogram("banksync.poll.attempts", metric.WithDescription("Status polls per polling run"))
)
