package http_reporter

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fllarpy/apm-greeter/domain"
)

// ContentType is the declared type of the text exposition format, version 0.0.4.
const ContentType = "text/plain; version=0.0.4; charset=utf-8"

// NewHandler creates an HTTP handler that renders every instrument of the
// registry in the pull format. Rendering never mutates instrument state.
func NewHandler(registry domain.MetricReader, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := registry.Render()
		if err != nil {
			logger.Error("failed to render metrics", "error", err)
			http.Error(w, "Failed to render metrics", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", ContentType)
		if _, err := w.Write(body); err != nil {
			logger.Debug("failed to write metrics response", "error", err)
		}
	})
}

// NewDebugHandler creates an HTTP handler that serves a JSON snapshot of all
// instruments together with the most recent error events.
func NewDebugHandler(registry domain.MetricReader, events domain.EventReader) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snapshot := domain.Snapshot{
			Instruments: registry.Snapshot(),
			Errors:      events.Errors(),
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		if err := json.NewEncoder(w).Encode(snapshot); err != nil {
			// If encoding fails, it's a server-side problem.
			http.Error(w, "Failed to encode metrics to JSON", http.StatusInternalServerError)
		}
	})
}
