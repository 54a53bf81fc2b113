package apmhttp

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/fllarpy/apm-greeter/domain"
	"github.com/fllarpy/apm-greeter/domain/metrics"
	"github.com/fllarpy/apm-greeter/infrastructure/storage/inmemory"
)

func newRegistry(t *testing.T) *inmemory.Registry {
	t.Helper()
	r := inmemory.NewRegistry()
	require.NoError(t, domain.RegisterAll(r, metrics.Defaults()))
	return r
}

func TestTransport_RoundTrip(t *testing.T) {
	testCases := []struct {
		name             string
		statusCode       int
		expectedFailures float64
	}{
		{"OK", http.StatusOK, 0},
		{"Not Found", http.StatusNotFound, 1},
		{"Internal Server Error", http.StatusInternalServerError, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// 1. Setup
			registry := newRegistry(t)

			// Create a mock server that returns the configured status code.
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
			}))
			defer server.Close()

			// Create a client with our custom transport.
			client := &http.Client{Transport: NewAPMTransport(nil, registry, CollaboratorInstruments)}

			// 2. Execution
			resp, err := client.Get(server.URL)
			require.NoError(t, err, "client.Get should not return an error")
			resp.Body.Close()
			require.Equal(t, tc.statusCode, resp.StatusCode, "response status code should match expected")

			// 3. Verification
			snapshot := registry.Snapshot()
			assert.Equal(t, 1.0, snapshot[metrics.CollaboratorRequestsTotal].Value)
			assert.Equal(t, tc.expectedFailures, snapshot[metrics.CollaboratorFailuresTotal].Value)
			assert.Equal(t, uint64(1), snapshot[metrics.CollaboratorLatencySeconds].Count)

			// The transport must not touch server-side instruments.
			assert.Zero(t, snapshot[metrics.HTTPRequestsTotal].Value)
		})
	}
}

func TestTransport_ConnectionRefused(t *testing.T) {
	registry := newRegistry(t)
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := &http.Client{Transport: NewAPMTransport(nil, registry, CollaboratorInstruments)}
	_, err := client.Get(url)
	require.Error(t, err)

	snapshot := registry.Snapshot()
	assert.Equal(t, 1.0, snapshot[metrics.CollaboratorRequestsTotal].Value)
	assert.Equal(t, 1.0, snapshot[metrics.CollaboratorFailuresTotal].Value)
}

func TestNewTracedTransport(t *testing.T) {
	registry := newRegistry(t)
	recorder := tracetest.NewSpanRecorder()
	tp := trace.NewTracerProvider(trace.WithSpanProcessor(recorder))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	client := &http.Client{Transport: NewTracedTransport(nil, tp, registry, CollaboratorInstruments)}
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Len(t, recorder.Ended(), 1, "one client span per request")
	assert.Equal(t, 1.0, registry.Snapshot()[metrics.CollaboratorRequestsTotal].Value)
}
