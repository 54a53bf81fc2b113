package metrics

import (
	"errors"
	"net/http"
	"time"
)

// --- Error taxonomy ---

var (
	// ErrConfiguration reports a programming error in instrument registration,
	// such as one name registered with two kinds. It is fatal at startup.
	ErrConfiguration = errors.New("metrics: configuration error")

	// ErrInvariantViolation is returned when an operation would break the
	// contract of an instrument kind. The instrument is left untouched.
	ErrInvariantViolation = errors.New("metrics: invariant violation")

	// ErrUnknownInstrument is returned for operations on a name that was never registered.
	ErrUnknownInstrument = errors.New("metrics: unknown instrument")

	// ErrSamplerRead wraps a single failed OS counter read.
	ErrSamplerRead = errors.New("metrics: sampler read failure")

	// ErrCollaboratorUnavailable wraps any failure to fetch from the external resource probe.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)

// --- Instrument kinds ---

// Kind identifies the semantics of an instrument. It never changes after registration.
type Kind int

const (
	// Counter is a monotonic, non-negative accumulator.
	Counter Kind = iota + 1
	// Gauge holds the last written value.
	Gauge
	// Summary accumulates a count and sum of observations.
	Summary
)

func (k Kind) String() string {
	switch k {
	case Counter:
		return "counter"
	case Gauge:
		return "gauge"
	case Summary:
		return "summary"
	default:
		return "unknown"
	}
}

// MarshalText lets kinds appear by name in JSON snapshots.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Definition describes an instrument to register at startup.
type Definition struct {
	Name string
	Kind Kind
	Help string
}

// SampleEvent is a single value produced by a sampler or middleware, applied to
// exactly one instrument through the operation matching its kind.
type SampleEvent struct {
	Name      string
	Value     float64
	Timestamp time.Time
}

// NewSampleEvent stamps a value with the current time.
func NewSampleEvent(name string, value float64) SampleEvent {
	return SampleEvent{Name: name, Value: value, Timestamp: time.Now()}
}

// --- Snapshot structures (for reporting) ---

// InstrumentSnapshot is a read-only copy of one instrument's state.
// Value is set for counters and gauges, Count/Sum for summaries. SampledAt is
// the timestamp of the last sample event applied, if any; a stale gauge means
// its reads have been failing.
type InstrumentSnapshot struct {
	Name      string     `json:"name"`
	Kind      Kind       `json:"kind"`
	Help      string     `json:"help,omitempty"`
	Value     float64    `json:"value"`
	Count     uint64     `json:"count,omitempty"`
	Sum       float64    `json:"sum,omitempty"`
	SampledAt *time.Time `json:"sampled_at,omitempty"`
}

// ErrorEvent represents a captured failure, a 5xx response or a failed collaborator fetch.
type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Error     string    `json:"error,omitempty"`
}

// NewErrorEvent creates a new ErrorEvent from an HTTP request.
func NewErrorEvent(r *http.Request, err error) ErrorEvent {
	event := ErrorEvent{
		Timestamp: time.Now(),
		Method:    r.Method,
		Path:      r.URL.Path,
	}
	if err != nil {
		event.Error = err.Error()
	}
	return event
}
