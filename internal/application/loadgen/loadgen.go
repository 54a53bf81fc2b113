// Package loadgen drives synthetic traffic against the greeting routes and
// measures it with its own metric registry.
package loadgen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fllarpy/apm-greeter/domain"
	"github.com/fllarpy/apm-greeter/domain/metrics"
	"github.com/fllarpy/apm-greeter/infrastructure/storage/inmemory"
	"github.com/fllarpy/apm-greeter/internal/adapters/apmhttp"
	"github.com/fllarpy/apm-greeter/pkg/logging"
)

const (
	RequestsTotal  = "loadgen_requests_total"
	FailuresTotal  = "loadgen_failures_total"
	LatencySeconds = "loadgen_request_latency_seconds"
)

// DefaultNames are the visitors picked for the meet route.
var DefaultNames = []string{"Alice", "Bob", "Charlie", "Diana", "Eve"}

var instruments = apmhttp.Instruments{
	Requests: RequestsTotal,
	Failures: FailuresTotal,
	Latency:  LatencySeconds,
}

// Definitions are the instruments of the load generator's own registry.
func Definitions() []metrics.Definition {
	return []metrics.Definition{
		{Name: RequestsTotal, Kind: metrics.Counter, Help: "Requests issued by the load generator."},
		{Name: FailuresTotal, Kind: metrics.Counter, Help: "Requests that failed or returned a 4xx/5xx status."},
		{Name: LatencySeconds, Kind: metrics.Summary, Help: "Round-trip latency observed by the load generator."},
	}
}

// Config controls a load run.
type Config struct {
	BaseURL string
	Users   int
	MinWait time.Duration
	MaxWait time.Duration
	// Names defaults to DefaultNames.
	Names []string
	// RequestTimeout bounds each request. Zero means 10s.
	RequestTimeout time.Duration
	Logger         *slog.Logger
}

func (c *Config) validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base URL is required", metrics.ErrConfiguration)
	case c.Users <= 0:
		return fmt.Errorf("%w: users must be positive, got %d", metrics.ErrConfiguration, c.Users)
	case c.MinWait < 0 || c.MaxWait < c.MinWait:
		return fmt.Errorf("%w: invalid wait range [%s, %s]", metrics.ErrConfiguration, c.MinWait, c.MaxWait)
	}
	if _, err := url.Parse(c.BaseURL); err != nil {
		return fmt.Errorf("%w: base URL: %v", metrics.ErrConfiguration, err)
	}
	return nil
}

// Report summarises a finished run.
type Report struct {
	Requests uint64
	Failures uint64
	Elapsed  time.Duration
	// Rendered is the load generator's registry in the text exposition format.
	Rendered []byte
}

// Run simulates cfg.Users visitors until ctx is done. Requests in flight when
// ctx ends are allowed to finish.
func Run(ctx context.Context, cfg Config) (Report, error) {
	if err := cfg.validate(); err != nil {
		return Report{}, err
	}
	if len(cfg.Names) == 0 {
		cfg.Names = DefaultNames
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}

	registry := inmemory.NewRegistry()
	if err := domain.RegisterAll(registry, Definitions()); err != nil {
		return Report{}, err
	}
	client := &http.Client{
		Transport: apmhttp.NewAPMTransport(http.DefaultTransport, registry, instruments),
		Timeout:   cfg.RequestTimeout,
	}

	start := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < cfg.Users; i++ {
		wg.Add(1)
		go func(user int) {
			defer wg.Done()
			u := &virtualUser{id: user, cfg: &cfg, client: client}
			u.loop(ctx)
		}(i)
	}
	wg.Wait()

	rendered, err := registry.Render()
	if err != nil {
		return Report{}, err
	}
	snapshot := registry.Snapshot()
	return Report{
		Requests: uint64(snapshot[RequestsTotal].Value),
		Failures: uint64(snapshot[FailuresTotal].Value),
		Elapsed:  time.Since(start),
		Rendered: rendered,
	}, nil
}

type virtualUser struct {
	id     int
	cfg    *Config
	client *http.Client
}

func (u *virtualUser) loop(ctx context.Context) {
	for ctx.Err() == nil {
		path := u.nextPath()
		if err := u.visit(ctx, path); err != nil {
			u.cfg.Logger.Debug("request failed", "user", u.id, "path", path, "error", err)
		}
		if !wait(ctx, u.think()) {
			return
		}
	}
}

func (u *virtualUser) nextPath() string {
	if rand.IntN(2) == 0 {
		return "/home"
	}
	return "/meet/" + url.PathEscape(u.cfg.Names[rand.IntN(len(u.cfg.Names))])
}

func (u *virtualUser) think() time.Duration {
	span := u.cfg.MaxWait - u.cfg.MinWait
	if span <= 0 {
		return u.cfg.MinWait
	}
	return u.cfg.MinWait + rand.N(span)
}

func (u *virtualUser) visit(ctx context.Context, path string) error {
	// In-flight requests outlive the run context and are bounded by the client timeout.
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodGet, strings.TrimRight(u.cfg.BaseURL, "/")+path, nil)
	if err != nil {
		return err
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return errors.New(resp.Status)
	}
	return nil
}

// wait sleeps for d and reports whether the run should continue.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
