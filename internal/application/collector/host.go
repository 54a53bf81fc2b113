package collector

import (
	"context"
	"errors"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
)

// DiskIO holds cumulative disk counters summed over all devices.
type DiskIO struct {
	ReadBytes   uint64
	WriteBytes  uint64
	ReadTimeMs  uint64
	WriteTimeMs uint64
}

// NetIO holds cumulative network counters summed over all interfaces.
type NetIO struct {
	BytesSent uint64
	BytesRecv uint64
}

// Usage describes filesystem occupancy of one mount point.
type Usage struct {
	UsedBytes   uint64
	UsedPercent float64
}

// HostSource abstracts the OS reads so tests can mock them.
// Each method performs a single synchronous read.
type HostSource interface {
	CPUPercent(ctx context.Context) (float64, error)
	MemoryPercent(ctx context.Context) (float64, error)
	DiskIO(ctx context.Context) (DiskIO, error)
	NetIO(ctx context.Context) (NetIO, error)
	DiskUsage(ctx context.Context, path string) (Usage, error)
}

var errNoCounters = errors.New("no counters reported")

// hostSource is the production implementation backed by gopsutil.
type hostSource struct{}

// NewHostSource returns a HostSource reading the current machine.
func NewHostSource() HostSource { return hostSource{} }

// CPUPercent compares against the previous call instead of sleeping for an interval.
func (hostSource) CPUPercent(ctx context.Context) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, errNoCounters
	}
	return percents[0], nil
}

func (hostSource) MemoryPercent(ctx context.Context) (float64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.UsedPercent, nil
}

func (hostSource) DiskIO(ctx context.Context) (DiskIO, error) {
	counters, err := disk.IOCountersWithContext(ctx)
	if err != nil {
		return DiskIO{}, err
	}
	if len(counters) == 0 {
		return DiskIO{}, errNoCounters
	}
	var total DiskIO
	for _, c := range counters {
		total.ReadBytes += c.ReadBytes
		total.WriteBytes += c.WriteBytes
		total.ReadTimeMs += c.ReadTime
		total.WriteTimeMs += c.WriteTime
	}
	return total, nil
}

func (hostSource) NetIO(ctx context.Context) (NetIO, error) {
	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return NetIO{}, err
	}
	if len(counters) == 0 {
		return NetIO{}, errNoCounters
	}
	return NetIO{BytesSent: counters[0].BytesSent, BytesRecv: counters[0].BytesRecv}, nil
}

func (hostSource) DiskUsage(ctx context.Context, path string) (Usage, error) {
	usage, err := disk.UsageWithContext(ctx, path)
	if err != nil {
		return Usage{}, err
	}
	return Usage{UsedBytes: usage.Used, UsedPercent: usage.UsedPercent}, nil
}
