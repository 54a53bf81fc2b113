package profiling

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/pprof"
	"strings"
	"sync"
	"time"
)

// maxCooldowns bounds the per-path cooldown table.
const maxCooldowns = 256

type Config struct {
	Enabled          bool
	LatencyThreshold time.Duration
	Duration         time.Duration
	Cooldown         time.Duration
	// Dir receives the profiles. Empty means os.TempDir().
	Dir string
}

// cpuProfiler abstracts runtime/pprof so tests do not start real profiles.
type cpuProfiler interface {
	Start(f *os.File) error
	Stop()
}

type pprofCPU struct{}

func (pprofCPU) Start(f *os.File) error { return pprof.StartCPUProfile(f) }
func (pprofCPU) Stop()                  { pprof.StopCPUProfile() }

// Profiler captures a CPU profile when a route exceeds the latency threshold,
// at most once per cooldown period per route.
type Profiler struct {
	config        Config
	logger        *slog.Logger
	cpu           cpuProfiler
	cooldowns     map[string]time.Time
	cooldownsLock sync.Mutex
	// running is held for the whole lifetime of a profile.
	running sync.Mutex
}

func NewProfiler(config Config, logger *slog.Logger) *Profiler {
	if config.Dir == "" {
		config.Dir = os.TempDir()
	}
	if config.Enabled {
		logger.Info("initializing on-demand profiler", "threshold", config.LatencyThreshold, "dir", config.Dir)
	}
	return &Profiler{
		config:    config,
		logger:    logger,
		cpu:       pprofCPU{},
		cooldowns: make(map[string]time.Time),
	}
}

func (p *Profiler) ProfileEndpointIfSlow(path string, duration time.Duration) {
	if !p.config.Enabled || duration < p.config.LatencyThreshold {
		return
	}

	// The runtime allows one CPU profile at a time; the lock is released by startProfiling.
	if !p.running.TryLock() {
		p.logger.Debug("another CPU profile is running", "path", path)
		return
	}
	if !p.claim(path) {
		p.running.Unlock()
		p.logger.Debug("slow endpoint in profiling cooldown", "path", path)
		return
	}

	p.logger.Info("endpoint exceeded latency threshold, starting CPU profile",
		"path", path, "latency_ms", float64(duration.Microseconds())/1000)
	go p.startProfiling(path)
}

// startProfiling must be called with p.running held.
func (p *Profiler) startProfiling(path string) {
	defer p.running.Unlock()

	sanitizedPath := strings.ReplaceAll(path, "/", "_")
	filename := filepath.Join(p.config.Dir, fmt.Sprintf("profile_%s_%d.pprof", sanitizedPath, time.Now().Unix()))

	f, err := os.Create(filename)
	if err != nil {
		p.logger.Error("failed to create profile file", "path", path, "error", err)
		return
	}
	defer f.Close()

	if err := p.cpu.Start(f); err != nil {
		p.logger.Error("failed to start CPU profile", "path", path, "error", err)
		return
	}

	time.Sleep(p.config.Duration)
	p.cpu.Stop()

	p.logger.Info("CPU profile completed", "path", path, "file", filename)
}

// claim starts a cooldown for path unless one is active. Expired entries are
// swept first, and at most maxCooldowns paths are tracked at once.
func (p *Profiler) claim(path string) bool {
	p.cooldownsLock.Lock()
	defer p.cooldownsLock.Unlock()

	now := time.Now()
	if end, exists := p.cooldowns[path]; exists && now.Before(end) {
		return false
	}
	for k, end := range p.cooldowns {
		if !now.Before(end) {
			delete(p.cooldowns, k)
		}
	}
	if len(p.cooldowns) >= maxCooldowns {
		return false
	}

	p.cooldowns[path] = now.Add(p.config.Cooldown)
	return true
}
