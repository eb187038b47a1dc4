package telemetry

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// WrapHTTPTransport wraps an existing transport with OTEL instrumentation
// This preserves any existing configuration (proxy, timeouts, etc.) whilst adding tracing
func WrapHTTPTransport(transport http.RoundTripper) http.RoundTripper {
	if !IsEnabled() {
		return transport
	}

	return otelhttp.NewTransport(transport)
}

// WrapHandler wraps a server handler so every inbound request gets a span
func WrapHandler(handler http.Handler, operation string) http.Handler {
	if !IsEnabled() {
		return handler
	}

	return otelhttp.NewHandler(handler, operation,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}
