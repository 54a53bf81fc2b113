package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/mattn/go-sqlite3"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	apm "github.com/fllarpy/apm-greeter"
	"github.com/fllarpy/apm-greeter/domain"
	"github.com/fllarpy/apm-greeter/domain/metrics"
	"github.com/fllarpy/apm-greeter/infrastructure/storage/inmemory"
	httpinstrumentation "github.com/fllarpy/apm-greeter/instrumentation/http"
	sqlinstrumentation "github.com/fllarpy/apm-greeter/instrumentation/sql"
	"github.com/fllarpy/apm-greeter/internal/adapters/apmhttp"
	"github.com/fllarpy/apm-greeter/internal/adapters/cadvisor"
	"github.com/fllarpy/apm-greeter/internal/adapters/visitors"
	"github.com/fllarpy/apm-greeter/internal/application/collector"
	"github.com/fllarpy/apm-greeter/internal/ports/http_routes"
	"github.com/fllarpy/apm-greeter/internal/ports/http_server"
	"github.com/fllarpy/apm-greeter/nplusone"
	"github.com/fllarpy/apm-greeter/pkg/config"
	"github.com/fllarpy/apm-greeter/pkg/logging"
	"github.com/fllarpy/apm-greeter/profiling"
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(logging.Options{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		File:   cfg.LogFile,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("service stopped with error", "error", err)
		stop()
		os.Exit(1)
	}
	logger.Info("service stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	registry := inmemory.NewRegistry()
	if err := domain.RegisterAll(registry, metrics.Defaults()); err != nil {
		return err
	}
	events := inmemory.NewEventLog(0)

	probe, err := apm.NewProbe(apm.Options{
		ServiceName: cfg.ServiceName,
		Profiling: profiling.Config{
			Enabled:          cfg.ProfilingEnabled,
			LatencyThreshold: cfg.ProfilingLatencyThreshold(),
			Duration:         cfg.ProfilingDuration(),
			Cooldown:         cfg.ProfilingCooldown(),
		},
		RepeatedQueries: nplusone.Config{
			Enabled:   cfg.RepeatedQueryEnabled,
			Threshold: cfg.RepeatedQueryThreshold,
		},
	}, registry, events, logger)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
		defer cancel()
		probe.Shutdown(ctx)
	}()
	tp := probe.TracerProvider()

	db, err := sqlinstrumentation.Open("sqlite3", cfg.VisitorDBDSN, semconv.DBSystemSqlite, tp)
	if err != nil {
		return fmt.Errorf("failed to open visitor database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	ledger, err := visitors.NewLedger(ctx, db)
	if err != nil {
		return err
	}

	systemSampler := collector.NewSystemSampler(registry, collector.NewHostSource(), cfg.DiskUsagePath)
	var background domain.Collector = collector.NewLoop(cfg.CollectionPeriod(), logger,
		systemSampler,
		collector.NewRuntimeSampler(registry),
	)
	background.Start()
	defer background.Stop()

	client := &http.Client{
		Transport: apmhttp.NewTracedTransport(http.DefaultTransport, tp, registry, apmhttp.CollaboratorInstruments),
	}

	minDelay, maxDelay := cfg.MeetDelay()
	router := http_routes.NewRouter(http_routes.Deps{
		Registry: registry,
		Sampler:  systemSampler,
		Events:   events,
		Fetcher:  cadvisor.NewFetcher(client, cfg.CadvisorURL, cfg.CollaboratorTimeout()),
		Ledger:   ledger,
		Logger:   logger,
		Greeting: http_routes.Greeting{
			Creator:  cfg.CreatorName,
			DelayMin: minDelay,
			DelayMax: maxDelay,
		},
		CollaboratorStrict: cfg.CollaboratorStrict,
		DebugEndpoint:      cfg.DebugEndpoint,
	})

	metricsServer, err := http_server.Start("metrics", listenAddr(cfg.MetricsPort),
		http_server.MetricsHandler(registry.Gatherer(), logger), logger)
	if err != nil {
		return err
	}
	defer shutdown(metricsServer, cfg, logger)

	appServer, err := http_server.Start("app", listenAddr(cfg.AppPort),
		httpinstrumentation.NewMiddleware(router, "http-server", tp), logger)
	if err != nil {
		return err
	}
	defer shutdown(appServer, cfg, logger)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		return nil
	case err := <-appServer.Done():
		if err == nil {
			err = errors.New("app server stopped unexpectedly")
		}
		return err
	case err := <-metricsServer.Done():
		if err == nil {
			err = errors.New("metrics server stopped unexpectedly")
		}
		return err
	}
}

func shutdown(s *http_server.Server, cfg *config.Config, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace())
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		logger.Warn("server did not shut down cleanly", "error", err)
	}
}

func listenAddr(port int) string {
	return net.JoinHostPort("", strconv.Itoa(port))
}
