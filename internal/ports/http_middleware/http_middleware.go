package http_middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fllarpy/apm-greeter/domain"
	"github.com/fllarpy/apm-greeter/domain/metrics"
)

// responseWriter is a wrapper around http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Instrument creates a middleware that records latency and throughput for
// every request, runs the sampler and logs the outcome. It returns a function
// that takes an http.Handler and returns an http.Handler.
//
// Recording happens in a deferred call, so a panicking handler is still
// observed exactly once (as a 500) before the panic continues up the stack.
// Failures to record are logged and never affect the response.
func Instrument(registry domain.MetricWriter, sampler domain.Sampler, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			completed := false

			defer func() {
				duration := time.Since(start)
				status := rw.statusCode
				if !completed {
					status = http.StatusInternalServerError
				}

				record(r.Context(), registry, sampler, logger, duration)

				attrs := []any{
					"method", r.Method,
					"target", r.URL.RequestURI(),
					"status", status,
					"latency_ms", float64(duration.Microseconds()) / 1000,
				}
				if id := RequestIDFromContext(r.Context()); id != "" {
					attrs = append(attrs, "request_id", id)
				}
				if r.Context().Err() != nil {
					attrs = append(attrs, "canceled", true)
				}
				logger.Info("request completed", attrs...)
			}()

			next.ServeHTTP(rw, r)
			completed = true
		})
	}
}

// record applies one latency observation and one throughput increment, then
// refreshes the host gauges.
func record(ctx context.Context, registry domain.MetricWriter, sampler domain.Sampler, logger *slog.Logger, duration time.Duration) {
	if err := registry.Observe(metrics.RequestLatencySeconds, duration.Seconds()); err != nil {
		logger.Debug("failed to record latency", "error", err)
	}
	if err := registry.Increment(metrics.HTTPRequestsTotal, 1); err != nil {
		logger.Debug("failed to record throughput", "error", err)
	}
	if sampler == nil {
		return
	}
	// The sample must not inherit the request's cancellation.
	if err := sampler.Sample(context.WithoutCancel(ctx)); err != nil {
		logger.Debug("system sample incomplete", "error", err)
	}
}
