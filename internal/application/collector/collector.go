package collector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fllarpy/apm-greeter/domain"
)

var _ domain.Collector = (*Loop)(nil)

// Loop runs a set of samplers once per interval in a background goroutine.
// A non-positive interval makes Start and Stop no-ops.
type Loop struct {
	interval time.Duration
	logger   *slog.Logger
	samplers []domain.Sampler

	mu       sync.Mutex
	done     chan struct{}
	finished chan struct{}
}

func NewLoop(interval time.Duration, logger *slog.Logger, samplers ...domain.Sampler) *Loop {
	return &Loop{interval: interval, logger: logger, samplers: samplers}
}

// Start launches the goroutine. Starting a running loop does nothing.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.interval <= 0 || l.done != nil {
		return
	}

	l.done = make(chan struct{})
	l.finished = make(chan struct{})
	go l.run(l.done, l.finished)
	l.logger.Debug("collector started", "interval", l.interval, "samplers", len(l.samplers))
}

// Stop ends the goroutine and waits for it to exit. It is safe to call
// repeatedly, and the loop may be started again afterwards.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done == nil {
		return
	}

	close(l.done)
	<-l.finished
	l.done, l.finished = nil, nil
}

func (l *Loop) run(done <-chan struct{}, finished chan<- struct{}) {
	defer close(finished)
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.runAll(context.Background())
		case <-done:
			return
		}
	}
}

func (l *Loop) runAll(ctx context.Context) {
	for _, s := range l.samplers {
		if err := s.Sample(ctx); err != nil {
			l.logger.Debug("sampler pass incomplete", "error", err)
		}
	}
}
