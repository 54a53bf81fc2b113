package http

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// NewMiddleware wraps handler so every request produces a server span. The
// span is named after the method only; routers rename it to the matched route
// pattern, which keeps span names bounded whatever the request path.
func NewMiddleware(handler http.Handler, operation string, tp trace.TracerProvider) http.Handler {
	return otelhttp.NewHandler(handler, operation,
		otelhttp.WithTracerProvider(tp),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method
		}),
	)
}
