package exporter

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/fllarpy/apm-greeter/domain"
	"github.com/fllarpy/apm-greeter/domain/metrics"
	sqlinstrumentation "github.com/fllarpy/apm-greeter/instrumentation/sql"
)

// Profiler is a very small interface used by the exporter. It allows test
// suites to inject lightweight mocks without depending on the concrete
// implementation from the profiling package.
type Profiler interface {
	// ProfileEndpointIfSlow profiles an endpoint when its latency exceeds a
	// threshold. The real implementation is provided by profiling.Profiler.
	ProfileEndpointIfSlow(path string, duration time.Duration)
}

// SpanObserver receives every exported span, e.g. the repeated query detector.
type SpanObserver interface {
	ProcessSpan(span sdktrace.ReadOnlySpan)
}

// Keys of older semantic conventions still emitted by otelhttp and otelsql.
const (
	legacyStatusCodeKey = attribute.Key("http.status_code")
	legacyMethodKey     = attribute.Key("http.method")
	legacyStatementKey  = attribute.Key("db.statement")
	queryTextKey        = attribute.Key("db.query.text")
)

var _ sdktrace.SpanExporter = (*CustomExporter)(nil)

// CustomExporter turns finished spans into registry updates, error events and
// profiling triggers. It never forwards spans to a tracing backend.
type CustomExporter struct {
	registry domain.MetricWriter
	events   domain.EventRecorder
	profiler Profiler
	observer SpanObserver
	logger   *slog.Logger
}

func NewCustomExporter(registry domain.MetricWriter, events domain.EventRecorder, profiler Profiler, logger *slog.Logger) *CustomExporter {
	logger.Debug("initializing custom span exporter")
	return &CustomExporter{
		registry: registry,
		events:   events,
		profiler: profiler,
		logger:   logger,
	}
}

// WithObserver makes the exporter hand every span to o as well.
func (e *CustomExporter) WithObserver(o SpanObserver) *CustomExporter {
	e.observer = o
	return e
}

func (e *CustomExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, span := range spans {
		if e.observer != nil {
			e.observer.ProcessSpan(span)
		}
		switch span.SpanKind() {
		case trace.SpanKindServer:
			e.processServerSpan(span)
		case trace.SpanKindClient:
			e.processClientSpan(span)
		}
	}
	return nil
}

func (e *CustomExporter) Shutdown(ctx context.Context) error {
	e.logger.Debug("custom span exporter shut down")
	return nil
}

func (e *CustomExporter) processServerSpan(span sdktrace.ReadOnlySpan) {
	duration := span.EndTime().Sub(span.StartTime())
	path := span.Name()
	var route string

	var statusCode int
	var method string
	errorMsg := span.Status().Description
	hasError := span.Status().Code == codes.Error

	for _, attr := range span.Attributes() {
		switch attr.Key {
		case legacyStatusCodeKey, semconv.HTTPResponseStatusCodeKey:
			statusCode = int(attr.Value.AsInt64())
		case legacyMethodKey, semconv.HTTPRequestMethodKey:
			method = attr.Value.AsString()
		case semconv.ExceptionMessageKey:
			errorMsg = attr.Value.AsString()
		case semconv.HTTPRouteKey:
			route = attr.Value.AsString()
		}
	}
	if route != "" {
		path = route
	}

	if statusCode >= 500 {
		hasError = true
	}

	if hasError && e.events != nil {
		e.events.AddError(metrics.ErrorEvent{
			Timestamp: span.EndTime(),
			Method:    method,
			Path:      path,
			Error:     errorMsg,
		})
	}

	if e.profiler != nil {
		e.profiler.ProfileEndpointIfSlow(path, duration)
	}
}

func (e *CustomExporter) processClientSpan(span sdktrace.ReadOnlySpan) {
	var isDB, hasStatement bool
	for _, attr := range span.Attributes() {
		switch attr.Key {
		case semconv.DBSystemKey:
			isDB = true
		case legacyStatementKey, queryTextKey:
			hasStatement = attr.Value.AsString() != ""
		}
	}

	// Prepare spans carry the statement too; only executions count as queries.
	if isDB && hasStatement && !sqlinstrumentation.IsPrepareSpan(span.Name()) {
		if err := e.registry.Increment(metrics.DBQueriesTotal, 1); err != nil {
			e.logger.Debug("failed to count db query", "error", err)
		}
	}

	if span.Status().Code == codes.Error {
		e.logger.Warn("client span had an error", "span", span.Name(), "error", span.Status().Description)
	}
}
