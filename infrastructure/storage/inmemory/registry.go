package inmemory

import (
	"bytes"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/fllarpy/apm-greeter/domain"
	"github.com/fllarpy/apm-greeter/domain/metrics"
)

// --- Registry Implementation ---

// Registry is a process-wide, thread-safe store of named instruments.
// It implements the domain.Registry interface.
var _ domain.Registry = (*Registry)(nil)

type Registry struct {
	// regMu serialises registration only. Updates never take it.
	regMu       sync.Mutex
	instruments sync.Map // name -> *instrument
	prom        *prometheus.Registry
}

// instrument pairs a kind with its collector. Each collector carries its own
// synchronisation (atomics for counters, gauges and summaries).
type instrument struct {
	kind    metrics.Kind
	help    string
	counter prometheus.Counter
	gauge   prometheus.Gauge
	summary prometheus.Summary
	// sampledAt is the unix-nano timestamp of the last applied sample event.
	sampledAt atomic.Int64
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{prom: prometheus.NewRegistry()}
}

// Register creates the instrument if it does not exist. Registering the same
// name with the same kind again is a no-op; a different kind is a configuration error.
func (r *Registry) Register(name string, kind metrics.Kind, help string) error {
	r.regMu.Lock()
	defer r.regMu.Unlock()

	if v, ok := r.instruments.Load(name); ok {
		existing := v.(*instrument)
		if existing.kind != kind {
			return fmt.Errorf("%w: %q already registered as %s, not %s", metrics.ErrConfiguration, name, existing.kind, kind)
		}
		return nil
	}

	inst := &instrument{kind: kind, help: help}
	var collector prometheus.Collector
	switch kind {
	case metrics.Counter:
		inst.counter = prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: help})
		collector = inst.counter
	case metrics.Gauge:
		inst.gauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: name, Help: help})
		collector = inst.gauge
	case metrics.Summary:
		// No objectives: quantile streams age out with time and would make
		// two scrapes of an idle registry differ.
		inst.summary = prometheus.NewSummary(prometheus.SummaryOpts{Name: name, Help: help})
		collector = inst.summary
	default:
		return fmt.Errorf("%w: %q has unsupported kind %d", metrics.ErrConfiguration, name, kind)
	}

	if err := r.prom.Register(collector); err != nil {
		return fmt.Errorf("%w: register %q: %v", metrics.ErrConfiguration, name, err)
	}
	r.instruments.Store(name, inst)
	return nil
}

// lookup returns the instrument registered under name if it has the wanted kind.
func (r *Registry) lookup(name string, want metrics.Kind) (*instrument, error) {
	v, ok := r.instruments.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", metrics.ErrUnknownInstrument, name)
	}
	inst := v.(*instrument)
	if inst.kind != want {
		return nil, fmt.Errorf("%w: %q is a %s, not a %s", metrics.ErrInvariantViolation, name, inst.kind, want)
	}
	return inst, nil
}

// Increment adds delta to a counter. Negative or non-finite deltas are rejected.
func (r *Registry) Increment(name string, delta float64) error {
	if delta < 0 || math.IsNaN(delta) || math.IsInf(delta, 0) {
		return fmt.Errorf("%w: counter %q cannot be incremented by %v", metrics.ErrInvariantViolation, name, delta)
	}
	inst, err := r.lookup(name, metrics.Counter)
	if err != nil {
		return err
	}
	inst.counter.Add(delta)
	return nil
}

// Set overwrites the current value of a gauge.
func (r *Registry) Set(name string, value float64) error {
	inst, err := r.lookup(name, metrics.Gauge)
	if err != nil {
		return err
	}
	inst.gauge.Set(value)
	return nil
}

// Observe records one observation into a summary.
func (r *Registry) Observe(name string, value float64) error {
	if math.IsNaN(value) {
		return fmt.Errorf("%w: summary %q cannot observe NaN", metrics.ErrInvariantViolation, name)
	}
	inst, err := r.lookup(name, metrics.Summary)
	if err != nil {
		return err
	}
	inst.summary.Observe(value)
	return nil
}

// Apply routes a sample event to the operation matching the instrument's kind
// and, on success, remembers the event's timestamp.
func (r *Registry) Apply(event metrics.SampleEvent) error {
	v, ok := r.instruments.Load(event.Name)
	if !ok {
		return fmt.Errorf("%w: %q", metrics.ErrUnknownInstrument, event.Name)
	}
	inst := v.(*instrument)

	var err error
	switch inst.kind {
	case metrics.Counter:
		err = r.Increment(event.Name, event.Value)
	case metrics.Gauge:
		err = r.Set(event.Name, event.Value)
	default:
		err = r.Observe(event.Name, event.Value)
	}
	if err == nil && !event.Timestamp.IsZero() {
		inst.sampledAt.Store(event.Timestamp.UnixNano())
	}
	return err
}

// Gatherer exposes the underlying collectors, e.g. for promhttp.HandlerFor.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.prom
}

// Render serialises every instrument in the text exposition format, version 0.0.4.
// Families are sorted by name, so repeated calls without writes in between are byte-identical.
func (r *Registry) Render() ([]byte, error) {
	families, err := r.prom.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return nil, fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return buf.Bytes(), nil
}

// Snapshot returns a read-only copy of every instrument, keyed by name.
// A summary's count and sum come from the same collection.
func (r *Registry) Snapshot() map[string]metrics.InstrumentSnapshot {
	snapshot := make(map[string]metrics.InstrumentSnapshot)

	// Gather returns whatever it could collect alongside an error.
	families, _ := r.prom.Gather()
	for _, mf := range families {
		if len(mf.GetMetric()) == 0 {
			continue
		}
		s := toSnapshot(mf)
		if v, ok := r.instruments.Load(s.Name); ok {
			if ns := v.(*instrument).sampledAt.Load(); ns != 0 {
				at := time.Unix(0, ns)
				s.SampledAt = &at
			}
		}
		snapshot[s.Name] = s
	}
	return snapshot
}

func toSnapshot(mf *dto.MetricFamily) metrics.InstrumentSnapshot {
	m := mf.GetMetric()[0]
	s := metrics.InstrumentSnapshot{Name: mf.GetName(), Help: mf.GetHelp()}

	switch mf.GetType() {
	case dto.MetricType_COUNTER:
		s.Kind = metrics.Counter
		s.Value = m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		s.Kind = metrics.Gauge
		s.Value = m.GetGauge().GetValue()
	case dto.MetricType_SUMMARY:
		s.Kind = metrics.Summary
		s.Count = m.GetSummary().GetSampleCount()
		s.Sum = m.GetSummary().GetSampleSum()
	}
	return s
}
