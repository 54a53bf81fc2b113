package collector

import (
	"context"
	"errors"
	"runtime"

	"github.com/fllarpy/apm-greeter/domain"
	"github.com/fllarpy/apm-greeter/domain/metrics"
)

var _ domain.Sampler = (*RuntimeSampler)(nil)

// RuntimeSampler captures Go runtime statistics into registry gauges.
// ReadMemStats stops the world briefly, so it runs on the collector tick
// rather than on every request.
type RuntimeSampler struct {
	registry domain.MetricWriter
}

// NewRuntimeSampler returns a new RuntimeSampler instance.
func NewRuntimeSampler(registry domain.MetricWriter) *RuntimeSampler {
	return &RuntimeSampler{registry: registry}
}

// Sample captures current runtime metrics.
func (rs *RuntimeSampler) Sample(context.Context) error {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return errors.Join(
		rs.registry.Set(metrics.RuntimeGoroutines, float64(runtime.NumGoroutine())),
		rs.registry.Set(metrics.RuntimeMemAllocBytes, float64(memStats.Alloc)),
		rs.registry.Set(metrics.RuntimeHeapAllocBytes, float64(memStats.HeapAlloc)),
		rs.registry.Set(metrics.RuntimeHeapSysBytes, float64(memStats.HeapSys)),
	)
}
