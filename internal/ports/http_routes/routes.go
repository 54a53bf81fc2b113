package http_routes

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/fllarpy/apm-greeter/domain"
	"github.com/fllarpy/apm-greeter/internal/adapters/visitors"
	"github.com/fllarpy/apm-greeter/internal/ports/http_middleware"
	"github.com/fllarpy/apm-greeter/internal/ports/http_reporter"
)

// Fetcher retrieves the collaborator's raw text.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// VisitorLedger stores the names greeted by the meet route.
type VisitorLedger interface {
	Record(ctx context.Context, name string) error
	Recent(ctx context.Context, limit int) ([]visitors.Visit, error)
}

// EventLog records and lists error events.
type EventLog interface {
	domain.EventRecorder
	domain.EventReader
}

// Route maps a method and path pattern to a handler.
type Route struct {
	Method       string
	Pattern      string
	Handler      http.Handler
	Instrumented bool
}

// Deps are the collaborators of the route layer.
type Deps struct {
	Registry domain.Registry
	Sampler  domain.Sampler
	Events   EventLog
	Fetcher  Fetcher
	// Ledger is optional; without it visits are not recorded and /visitors is absent.
	Ledger VisitorLedger
	Logger *slog.Logger

	Greeting           Greeting
	CollaboratorStrict bool
	DebugEndpoint      string
}

// Routes returns the route table.
func Routes(d Deps) []Route {
	h := &handlers{deps: d}

	routes := []Route{
		{http.MethodGet, "/home", http.HandlerFunc(h.home), true},
		{http.MethodGet, "/meet/{name}", http.HandlerFunc(h.meet), true},
		{http.MethodGet, "/cadvisor-metrics", http.HandlerFunc(h.cadvisorMetrics), true},
		{http.MethodGet, "/metrics", http_reporter.NewHandler(d.Registry, d.Logger), false},
	}
	if d.Ledger != nil {
		routes = append(routes, Route{http.MethodGet, "/visitors", http.HandlerFunc(h.visitors), true})
	}
	if d.DebugEndpoint != "" {
		routes = append(routes, Route{http.MethodGet, d.DebugEndpoint, http_reporter.NewDebugHandler(d.Registry, d.Events), false})
	}
	return routes
}

// NewRouter builds the handler serving every route, with request IDs assigned first.
func NewRouter(d Deps) http.Handler {
	instrument := http_middleware.Instrument(d.Registry, d.Sampler, d.Logger)

	mux := http.NewServeMux()
	for _, route := range Routes(d) {
		handler := route.Handler
		if route.Instrumented {
			handler = instrument(handler)
		}
		mux.Handle(route.Method+" "+route.Pattern, nameSpan(route.Pattern, handler))
	}
	return http_middleware.RequestID()(mux)
}

// nameSpan renames the request's server span, if any, after the route pattern.
func nameSpan(pattern string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		span := trace.SpanFromContext(r.Context())
		span.SetName(pattern)
		span.SetAttributes(semconv.HTTPRoute(pattern))
		next.ServeHTTP(w, r)
	})
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
