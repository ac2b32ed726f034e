package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Telemetry wraps an http.Handler with otelhttp instrumentation under the
// given operation name.
func Telemetry(operation string) func(http.Handler) http.Handler {
	return otelhttp.NewMiddleware(operation)
}
