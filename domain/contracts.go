package domain

import (
	"context"

	"github.com/fllarpy/apm-greeter/domain/metrics"
)

// Snapshot is a point-in-time, read-only copy of all instruments and recent errors.
// This is part of the domain contracts as it defines the data structure
// that application services and infrastructure reporters will work with.
type Snapshot struct {
	Instruments map[string]metrics.InstrumentSnapshot `json:"instruments"`
	Errors      []metrics.ErrorEvent                  `json:"errors"`
}

// MetricWriter defines the contract for updating registered instruments.
type MetricWriter interface {
	Increment(name string, delta float64) error
	Set(name string, value float64) error
	Observe(name string, value float64) error
	Apply(event metrics.SampleEvent) error
}

// MetricReader defines the contract for reading instrument state.
type MetricReader interface {
	Render() ([]byte, error)
	Snapshot() map[string]metrics.InstrumentSnapshot
}

// Registry is the combined interface for a metric registry.
type Registry interface {
	Register(name string, kind metrics.Kind, help string) error
	MetricWriter
	MetricReader
}

// EventRecorder stores error events.
type EventRecorder interface {
	AddError(event metrics.ErrorEvent)
}

// EventReader returns recorded error events, oldest first.
type EventReader interface {
	Errors() []metrics.ErrorEvent
}

// Sampler pushes a fresh reading of some resource into the registry.
type Sampler interface {
	Sample(ctx context.Context) error
}

// Collector runs samplers periodically in the background until stopped.
type Collector interface {
	Start()
	Stop()
}

// RegisterAll registers every definition, stopping at the first failure.
func RegisterAll(r Registry, defs []metrics.Definition) error {
	for _, d := range defs {
		if err := r.Register(d.Name, d.Kind, d.Help); err != nil {
			return err
		}
	}
	return nil
}
