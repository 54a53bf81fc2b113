package apmhttp

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/fllarpy/apm-greeter/domain"
	"github.com/fllarpy/apm-greeter/domain/metrics"
)

// Instruments names the registry instruments a Transport writes to.
type Instruments struct {
	Requests string // counter
	Failures string // counter
	Latency  string // summary, seconds
}

// CollaboratorInstruments are the instruments used for collaborator fetches.
var CollaboratorInstruments = Instruments{
	Requests: metrics.CollaboratorRequestsTotal,
	Failures: metrics.CollaboratorFailuresTotal,
	Latency:  metrics.CollaboratorLatencySeconds,
}

// Transport is an http.RoundTripper that measures requests and records them.
type Transport struct {
	// Base is the underlying RoundTripper to execute the request.
	// If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	registry    domain.MetricWriter
	instruments Instruments
}

// RoundTrip executes a single HTTP transaction, returning a Response for the request `req`.
// Transport errors and 4xx/5xx responses count as failures.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	// Use the base RoundTripper, or the default if not provided.
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	resp, err := base.RoundTrip(req)

	// Metric errors are ignored: a missing instrument must not break the client.
	_ = t.registry.Increment(t.instruments.Requests, 1)
	_ = t.registry.Observe(t.instruments.Latency, time.Since(start).Seconds())
	if err != nil || resp.StatusCode >= http.StatusBadRequest {
		_ = t.registry.Increment(t.instruments.Failures, 1)
	}

	return resp, err
}

// NewAPMTransport creates a new Transport writing to the given instruments.
func NewAPMTransport(base http.RoundTripper, registry domain.MetricWriter, instruments Instruments) *Transport {
	return &Transport{
		Base:        base,
		registry:    registry,
		instruments: instruments,
	}
}

// NewTracedTransport wraps base with client spans from tp and then with metric recording.
func NewTracedTransport(base http.RoundTripper, tp trace.TracerProvider, registry domain.MetricWriter, instruments Instruments) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	traced := otelhttp.NewTransport(base, otelhttp.WithTracerProvider(tp))
	return NewAPMTransport(traced, registry, instruments)
}
