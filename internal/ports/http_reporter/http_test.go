package http_reporter

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fllarpy/apm-greeter/domain"
	"github.com/fllarpy/apm-greeter/domain/metrics"
	"github.com/fllarpy/apm-greeter/infrastructure/storage/inmemory"
	"github.com/fllarpy/apm-greeter/pkg/logging"
)

func newRegistry(t *testing.T) *inmemory.Registry {
	t.Helper()
	r := inmemory.NewRegistry()
	require.NoError(t, domain.RegisterAll(r, metrics.Defaults()))
	return r
}

func TestMetricsHandler(t *testing.T) {
	registry := newRegistry(t)
	require.NoError(t, registry.Increment(metrics.HTTPRequestsTotal, 3))
	require.NoError(t, registry.Set(metrics.CPUUsagePercent, 42.5))
	require.NoError(t, registry.Observe(metrics.RequestLatencySeconds, 0.25))

	handler := NewHandler(registry, logging.Discard())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, "handler should return status OK")
	assert.Equal(t, ContentType, rr.Header().Get("Content-Type"))

	body := rr.Body.String()
	assert.Contains(t, body, "# TYPE http_requests_total counter\nhttp_requests_total 3\n")
	assert.Contains(t, body, "cpu_usage_percent 42.5\n")
	assert.Contains(t, body, "request_latency_seconds_count 1\n")

	// A second scrape must see identical state.
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req)
	assert.Equal(t, body, rr2.Body.String())
}

type failingReader struct{}

func (failingReader) Render() ([]byte, error) { return nil, errors.New("gather failed") }
func (failingReader) Snapshot() map[string]metrics.InstrumentSnapshot {
	return nil
}

func TestMetricsHandler_RenderFailure(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHandler(failingReader{}, logging.Discard()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

// debugBody mirrors the JSON served by the debug handler.
type debugBody struct {
	Instruments map[string]struct {
		Kind  string  `json:"kind"`
		Value float64 `json:"value"`
		Count uint64  `json:"count"`
		Sum   float64 `json:"sum"`
	} `json:"instruments"`
	Errors []metrics.ErrorEvent `json:"errors"`
}

func TestDebugHandler_NoErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	NewDebugHandler(newRegistry(t), inmemory.NewEventLog(10)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/apm", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"errors":[]`)
}

func TestDebugHandler(t *testing.T) {
	registry := newRegistry(t)
	require.NoError(t, registry.Increment(metrics.HTTPRequestsTotal, 2))
	require.NoError(t, registry.Observe(metrics.RequestLatencySeconds, 0.5))
	events := inmemory.NewEventLog(10)
	events.AddError(metrics.ErrorEvent{Method: "GET", Path: "/cadvisor-metrics", Error: "connection refused"})

	rr := httptest.NewRecorder()
	NewDebugHandler(registry, events).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/apm", nil))

	require.Equal(t, http.StatusOK, rr.Code)

	var snapshot debugBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snapshot), "Failed to unmarshal response body")

	require.Contains(t, snapshot.Instruments, metrics.HTTPRequestsTotal)
	assert.Equal(t, 2.0, snapshot.Instruments[metrics.HTTPRequestsTotal].Value)
	assert.Equal(t, "counter", snapshot.Instruments[metrics.HTTPRequestsTotal].Kind)

	latency := snapshot.Instruments[metrics.RequestLatencySeconds]
	assert.Equal(t, uint64(1), latency.Count)
	assert.Equal(t, 0.5, latency.Sum)

	require.Len(t, snapshot.Errors, 1)
	assert.Equal(t, "/cadvisor-metrics", snapshot.Errors[0].Path)
}
