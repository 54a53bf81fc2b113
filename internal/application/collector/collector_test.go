package collector

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fllarpy/apm-greeter/domain"
	"github.com/fllarpy/apm-greeter/domain/metrics"
	"github.com/fllarpy/apm-greeter/infrastructure/storage/inmemory"
	"github.com/fllarpy/apm-greeter/pkg/logging"
)

// mockSource allows us to inject readings and failures per counter.
// It implements the HostSource interface.
type mockSource struct {
	cpu, memory float64
	disk        DiskIO
	net         NetIO
	usage       Usage
	failDisk    bool
	failUsage   bool
	usagePath   string
}

var errUnavailable = errors.New("not available on this platform")

func (m *mockSource) CPUPercent(context.Context) (float64, error)    { return m.cpu, nil }
func (m *mockSource) MemoryPercent(context.Context) (float64, error) { return m.memory, nil }
func (m *mockSource) NetIO(context.Context) (NetIO, error)           { return m.net, nil }

func (m *mockSource) DiskIO(context.Context) (DiskIO, error) {
	if m.failDisk {
		return DiskIO{}, errUnavailable
	}
	return m.disk, nil
}

func (m *mockSource) DiskUsage(_ context.Context, path string) (Usage, error) {
	m.usagePath = path
	if m.failUsage {
		return Usage{}, errUnavailable
	}
	return m.usage, nil
}

func newRegistry(t *testing.T) *inmemory.Registry {
	t.Helper()
	r := inmemory.NewRegistry()
	require.NoError(t, domain.RegisterAll(r, metrics.Defaults()))
	return r
}

func TestSystemSampler_Sample(t *testing.T) {
	registry := newRegistry(t)
	source := &mockSource{
		cpu:    12.5,
		memory: 40,
		disk:   DiskIO{ReadBytes: 100, WriteBytes: 200, ReadTimeMs: 3, WriteTimeMs: 4},
		net:    NetIO{BytesSent: 10, BytesRecv: 20},
		usage:  Usage{UsedBytes: 4096, UsedPercent: 55.5},
	}
	sampler := NewSystemSampler(registry, source, "")

	require.NoError(t, sampler.Sample(context.Background()))

	snapshot := registry.Snapshot()
	assert.Equal(t, 12.5, snapshot[metrics.CPUUsagePercent].Value)
	assert.Equal(t, 40.0, snapshot[metrics.MemoryUsagePercent].Value)
	assert.Equal(t, 100.0, snapshot[metrics.DiskIOReadBytes].Value)
	assert.Equal(t, 200.0, snapshot[metrics.DiskIOWriteBytes].Value)
	assert.Equal(t, 4.0, snapshot[metrics.DiskIOWriteTimeMs].Value)
	assert.Equal(t, 20.0, snapshot[metrics.NetworkBytesReceived].Value)
	assert.Equal(t, 4096.0, snapshot[metrics.FilesystemUsedBytes].Value)
	assert.Equal(t, "/", source.usagePath, "empty path should default to the root filesystem")
}

func TestSystemSampler_PartialFailure(t *testing.T) {
	registry := newRegistry(t)
	source := &mockSource{cpu: 10, disk: DiskIO{ReadBytes: 100}, usage: Usage{UsedBytes: 1}}
	sampler := NewSystemSampler(registry, source, "/data")

	require.NoError(t, sampler.Sample(context.Background()))

	// Disk counters disappear, everything else moves on.
	source.failDisk = true
	source.failUsage = true
	source.cpu = 90
	source.disk.ReadBytes = 999

	err := sampler.Sample(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, metrics.ErrSamplerRead)

	snapshot := registry.Snapshot()
	assert.Equal(t, 90.0, snapshot[metrics.CPUUsagePercent].Value, "healthy reads must still be applied")
	assert.Equal(t, 100.0, snapshot[metrics.DiskIOReadBytes].Value, "failed read must keep the previous value")
	assert.Equal(t, 1.0, snapshot[metrics.FilesystemUsedBytes].Value)
	assert.Equal(t, "/data", source.usagePath)
}

func TestRuntimeSampler_Sample(t *testing.T) {
	registry := newRegistry(t)

	require.NoError(t, NewRuntimeSampler(registry).Sample(context.Background()))

	snapshot := registry.Snapshot()
	assert.Greater(t, snapshot[metrics.RuntimeGoroutines].Value, 0.0)
	assert.Greater(t, snapshot[metrics.RuntimeMemAllocBytes].Value, 0.0)
}

type countingSampler struct{ calls atomic.Int32 }

func (c *countingSampler) Sample(context.Context) error {
	c.calls.Add(1)
	return errors.New("partial")
}

func TestLoop(t *testing.T) {
	sampler := &countingSampler{}
	loop := NewLoop(10*time.Millisecond, logging.Discard(), sampler)
	loop.Start()
	loop.Start()

	assert.Eventually(t, func() bool { return sampler.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	loop.Stop()
	loop.Stop()
	calls := sampler.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, calls, sampler.calls.Load(), "no passes after stop")

	loop.Start()
	defer loop.Stop()
	assert.Eventually(t, func() bool { return sampler.calls.Load() > calls }, time.Second, 5*time.Millisecond, "restarts after stop")
}

func TestLoop_Disabled(t *testing.T) {
	sampler := &countingSampler{}
	loop := NewLoop(0, logging.Discard(), sampler)
	loop.Start()
	defer loop.Stop()

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, sampler.calls.Load())
}
