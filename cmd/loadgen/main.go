package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fllarpy/apm-greeter/internal/application/loadgen"
	"github.com/fllarpy/apm-greeter/pkg/logging"
)

func main() {
	target := flag.String("target", "http://localhost:8000", "base URL of the service under load")
	users := flag.Int("users", 10, "number of simulated users")
	minWait := flag.Duration("min-wait", time.Second, "minimum think time between requests")
	maxWait := flag.Duration("max-wait", 5*time.Second, "maximum think time between requests")
	duration := flag.Duration("duration", 0, "how long to run; 0 runs until interrupted")
	logLevel := flag.String("log-level", "info", "log level: debug | info | warn | error")
	flag.Parse()

	logger := logging.New(logging.Options{Level: *logLevel})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	logger.Info("starting load", "target", *target, "users", *users, "min_wait", *minWait, "max_wait", *maxWait)
	report, err := loadgen.Run(ctx, loadgen.Config{
		BaseURL: *target,
		Users:   *users,
		MinWait: *minWait,
		MaxWait: *maxWait,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("load run failed", "error", err)
		stop()
		os.Exit(1)
	}

	logger.Info("load finished", "requests", report.Requests, "failures", report.Failures, "elapsed", report.Elapsed)
	fmt.Print(string(report.Rendered))
}
