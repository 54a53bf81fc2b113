package collector

import (
	"context"
	"errors"
	"fmt"

	"github.com/fllarpy/apm-greeter/domain"
	"github.com/fllarpy/apm-greeter/domain/metrics"
)

var _ domain.Sampler = (*SystemSampler)(nil)

// SystemSampler pushes host resource readings into registry gauges.
// It keeps no state between passes and is safe for concurrent use.
type SystemSampler struct {
	registry domain.MetricWriter
	source   HostSource
	diskPath string
}

// NewSystemSampler returns a sampler reading source and reporting usage of diskPath.
func NewSystemSampler(registry domain.MetricWriter, source HostSource, diskPath string) *SystemSampler {
	if diskPath == "" {
		diskPath = "/"
	}
	return &SystemSampler{registry: registry, source: source, diskPath: diskPath}
}

// Sample performs one best-effort pass. A failed read leaves its gauges at
// their previous values and does not stop the other reads; all failures are
// returned joined, each wrapping metrics.ErrSamplerRead.
func (s *SystemSampler) Sample(ctx context.Context) error {
	var errs []error
	apply := func(events ...metrics.SampleEvent) {
		for _, ev := range events {
			if err := s.registry.Apply(ev); err != nil {
				errs = append(errs, err)
			}
		}
	}
	failed := func(what string, err error) {
		errs = append(errs, fmt.Errorf("%w: %s: %v", metrics.ErrSamplerRead, what, err))
	}

	if v, err := s.source.CPUPercent(ctx); err != nil {
		failed("cpu", err)
	} else {
		apply(metrics.NewSampleEvent(metrics.CPUUsagePercent, v))
	}

	if v, err := s.source.MemoryPercent(ctx); err != nil {
		failed("memory", err)
	} else {
		apply(metrics.NewSampleEvent(metrics.MemoryUsagePercent, v))
	}

	if io, err := s.source.DiskIO(ctx); err != nil {
		failed("disk io", err)
	} else {
		apply(
			metrics.NewSampleEvent(metrics.DiskIOReadBytes, float64(io.ReadBytes)),
			metrics.NewSampleEvent(metrics.DiskIOWriteBytes, float64(io.WriteBytes)),
			metrics.NewSampleEvent(metrics.DiskIOReadTimeMs, float64(io.ReadTimeMs)),
			metrics.NewSampleEvent(metrics.DiskIOWriteTimeMs, float64(io.WriteTimeMs)),
		)
	}

	if io, err := s.source.NetIO(ctx); err != nil {
		failed("network io", err)
	} else {
		apply(
			metrics.NewSampleEvent(metrics.NetworkBytesSent, float64(io.BytesSent)),
			metrics.NewSampleEvent(metrics.NetworkBytesReceived, float64(io.BytesRecv)),
		)
	}

	if usage, err := s.source.DiskUsage(ctx, s.diskPath); err != nil {
		failed("disk usage "+s.diskPath, err)
	} else {
		apply(
			metrics.NewSampleEvent(metrics.FilesystemUsedBytes, float64(usage.UsedBytes)),
			metrics.NewSampleEvent(metrics.FilesystemUsage, usage.UsedPercent),
		)
	}

	return errors.Join(errs...)
}
