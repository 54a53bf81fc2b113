// Package apmgreeter wires tracing for the service: every finished span is
// handed to an in-process exporter that feeds the metric registry, the error
// event log and the on-demand profiler.
package apmgreeter

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/fllarpy/apm-greeter/domain"
	"github.com/fllarpy/apm-greeter/exporter"
	"github.com/fllarpy/apm-greeter/nplusone"
	"github.com/fllarpy/apm-greeter/profiling"
)

// Version is reported as the service.version resource attribute.
const Version = "1.0.0"

type Probe struct {
	tp     *sdktrace.TracerProvider
	logger *slog.Logger
}

// Options configures NewProbe.
type Options struct {
	ServiceName string
	Profiling   profiling.Config
	// RepeatedQueries configures detection of statements repeated within one request.
	RepeatedQueries nplusone.Config
	// Synchronous exports spans as they end instead of batching them.
	Synchronous bool
}

func NewProbe(opts Options, registry domain.MetricWriter, events domain.EventRecorder, logger *slog.Logger) (*Probe, error) {
	profiler := profiling.NewProfiler(opts.Profiling, logger)
	detector := nplusone.NewDetector(opts.RepeatedQueries, registry, logger)
	customExporter := exporter.NewCustomExporter(registry, events, profiler, logger).WithObserver(detector)

	res, err := newResource(opts.ServiceName, Version)
	if err != nil {
		return nil, fmt.Errorf("failed to build tracing resource: %w", err)
	}

	export := sdktrace.WithBatcher(customExporter)
	if opts.Synchronous {
		export = sdktrace.WithSyncer(customExporter)
	}

	tp := sdktrace.NewTracerProvider(
		export,
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)

	logger.Info("APM probe initialized", "service", opts.ServiceName, "profiling", opts.Profiling.Enabled)
	return &Probe{tp: tp, logger: logger}, nil
}

// TracerProvider returns the provider instrumented components should use.
func (p *Probe) TracerProvider() trace.TracerProvider {
	return p.tp
}

// Shutdown flushes pending spans and stops the provider.
func (p *Probe) Shutdown(ctx context.Context) {
	if err := p.tp.Shutdown(ctx); err != nil {
		p.logger.Error("error shutting down tracer provider", "error", err)
	}
}

func newResource(serviceName, serviceVersion string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
	)
}
