// Package nplusone flags requests that run the same database statement over
// and over, the classic N+1 query pattern.
package nplusone

import (
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/fllarpy/apm-greeter/domain"
	"github.com/fllarpy/apm-greeter/domain/metrics"
	sqlinstrumentation "github.com/fllarpy/apm-greeter/instrumentation/sql"
)

const defaultMaxAge = 2 * time.Minute

var statementKeys = []attribute.Key{"db.statement", "db.query.text"}

type Config struct {
	Enabled   bool
	Threshold int
	// MaxAge drops traces whose server span never arrived. Zero means two minutes.
	MaxAge time.Duration
}

type traceData struct {
	queries  map[string]int
	lastSeen time.Time
}

// Detector counts statements per trace and reports, when the trace's server
// span ends, every statement executed at least Threshold times.
type Detector struct {
	config    Config
	registry  domain.MetricWriter
	logger    *slog.Logger
	now       func() time.Time
	mu        sync.Mutex
	traces    map[trace.TraceID]*traceData
	lastSweep time.Time
}

// NewDetector always returns a usable detector; a disabled one ignores spans.
func NewDetector(config Config, registry domain.MetricWriter, logger *slog.Logger) *Detector {
	if config.MaxAge <= 0 {
		config.MaxAge = defaultMaxAge
	}
	if config.Enabled {
		logger.Info("initializing repeated query detector", "threshold", config.Threshold)
	}
	return &Detector{
		config:    config,
		registry:  registry,
		logger:    logger,
		now:       time.Now,
		traces:    make(map[trace.TraceID]*traceData),
		lastSweep: time.Now(),
	}
}

func (d *Detector) ProcessSpan(span sdktrace.ReadOnlySpan) {
	if !d.config.Enabled || d.config.Threshold <= 0 {
		return
	}
	traceID := span.SpanContext().TraceID()

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	d.sweep(now)

	switch span.SpanKind() {
	case trace.SpanKindServer:
		d.finish(traceID, span.Name())
	case trace.SpanKindClient:
		statement, ok := dbStatement(span)
		if !ok {
			return
		}
		td, ok := d.traces[traceID]
		if !ok {
			td = &traceData{queries: make(map[string]int)}
			d.traces[traceID] = td
		}
		td.queries[statement]++
		td.lastSeen = now
	}
}

// Pending returns the number of traces still being tracked.
func (d *Detector) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.traces)
}

func (d *Detector) finish(traceID trace.TraceID, path string) {
	td, ok := d.traces[traceID]
	if !ok {
		return
	}
	delete(d.traces, traceID)

	for statement, count := range td.queries {
		if count < d.config.Threshold {
			continue
		}
		d.logger.Warn("repeated query detected", "path", path, "statement", statement, "count", count, "trace_id", traceID.String())
		if err := d.registry.Increment(metrics.DBRepeatedQueriesTotal, 1); err != nil {
			d.logger.Debug("failed to count repeated query", "error", err)
		}
	}
}

// sweep runs at most once per MaxAge. Caller holds d.mu.
func (d *Detector) sweep(now time.Time) {
	if now.Sub(d.lastSweep) < d.config.MaxAge {
		return
	}
	d.lastSweep = now
	for id, td := range d.traces {
		if now.Sub(td.lastSeen) > d.config.MaxAge {
			delete(d.traces, id)
		}
	}
}

func dbStatement(span sdktrace.ReadOnlySpan) (string, bool) {
	if sqlinstrumentation.IsPrepareSpan(span.Name()) {
		return "", false
	}
	var isDB bool
	var statement string
	for _, attr := range span.Attributes() {
		if attr.Key == semconv.DBSystemKey {
			isDB = true
			continue
		}
		for _, k := range statementKeys {
			if attr.Key == k {
				statement = attr.Value.AsString()
			}
		}
	}
	return statement, isDB && statement != ""
}
