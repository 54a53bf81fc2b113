package http_middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fllarpy/apm-greeter/domain"
	"github.com/fllarpy/apm-greeter/domain/metrics"
	"github.com/fllarpy/apm-greeter/infrastructure/storage/inmemory"
	"github.com/fllarpy/apm-greeter/pkg/logging"
)

type countingSampler struct{ calls atomic.Int32 }

func (s *countingSampler) Sample(context.Context) error {
	s.calls.Add(1)
	return nil
}

func newRegistry(t *testing.T) *inmemory.Registry {
	t.Helper()
	r := inmemory.NewRegistry()
	require.NoError(t, domain.RegisterAll(r, metrics.Defaults()))
	return r
}

func TestInstrument(t *testing.T) {
	testCases := []struct {
		name       string
		statusCode int
	}{
		{"OK", http.StatusOK},
		{"Not Found", http.StatusNotFound},
		{"Internal Server Error", http.StatusInternalServerError},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Setup
			registry := newRegistry(t)
			sampler := &countingSampler{}
			var logs bytes.Buffer
			logger := logging.NewWithWriter(&logs, logging.Options{Format: "json"})

			testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
			})
			wrapped := RequestID()(Instrument(registry, sampler, logger)(testHandler))

			// Execution
			req := httptest.NewRequest(http.MethodGet, "/test/path?x=1", nil)
			rr := httptest.NewRecorder()
			wrapped.ServeHTTP(rr, req)

			// Verification
			require.Equal(t, tc.statusCode, rr.Code)
			snapshot := registry.Snapshot()
			assert.Equal(t, uint64(1), snapshot[metrics.RequestLatencySeconds].Count, "exactly one latency observation")
			assert.Equal(t, 1.0, snapshot[metrics.HTTPRequestsTotal].Value, "exactly one throughput increment")
			assert.Equal(t, int32(1), sampler.calls.Load(), "sampler runs once per request")

			var record map[string]any
			require.NoError(t, json.Unmarshal(logs.Bytes(), &record))
			assert.Equal(t, "GET", record["method"])
			assert.Equal(t, "/test/path?x=1", record["target"])
			assert.Equal(t, float64(tc.statusCode), record["status"])
			assert.Contains(t, record, "latency_ms")
			assert.Equal(t, rr.Header().Get(RequestIDHeader), record["request_id"])
		})
	}
}

func TestInstrument_PanicIsRecordedOnceAndPropagated(t *testing.T) {
	registry := newRegistry(t)
	errBoom := errors.New("boom")
	handler := Instrument(registry, nil, logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(errBoom)
	}))

	assert.PanicsWithValue(t, errBoom, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/panic", nil))
	})

	snapshot := registry.Snapshot()
	assert.Equal(t, uint64(1), snapshot[metrics.RequestLatencySeconds].Count)
	assert.Equal(t, 1.0, snapshot[metrics.HTTPRequestsTotal].Value)
}

func TestInstrument_CanceledRequest(t *testing.T) {
	registry := newRegistry(t)
	var logs bytes.Buffer
	logger := logging.NewWithWriter(&logs, logging.Options{Format: "json"})

	ctx, cancel := context.WithCancel(context.Background())
	handler := Instrument(registry, nil, logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cancel()
		<-r.Context().Done()
	}))

	req := httptest.NewRequest(http.MethodGet, "/slow", nil).WithContext(ctx)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	snapshot := registry.Snapshot()
	assert.Equal(t, uint64(1), snapshot[metrics.RequestLatencySeconds].Count)
	assert.Equal(t, 1.0, snapshot[metrics.HTTPRequestsTotal].Value)
	assert.Contains(t, logs.String(), `"canceled":true`)
}

func TestInstrument_MetricFailuresDoNotFailRequest(t *testing.T) {
	// Nothing registered: every registry write fails.
	registry := inmemory.NewRegistry()
	handler := Instrument(registry, nil, logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
}

func TestInstrument_Concurrent(t *testing.T) {
	registry := newRegistry(t)
	handler := Instrument(registry, nil, logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	const requests = 100
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/home", nil))
		}()
	}
	wg.Wait()

	snapshot := registry.Snapshot()
	assert.Equal(t, uint64(requests), snapshot[metrics.RequestLatencySeconds].Count)
	assert.Equal(t, float64(requests), snapshot[metrics.HTTPRequestsTotal].Value)
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	t.Run("generates an id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, rr.Header().Get(RequestIDHeader))
	})

	t.Run("keeps the caller's id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "abc-123")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		assert.Equal(t, "abc-123", seen)
		assert.Equal(t, "abc-123", rr.Header().Get(RequestIDHeader))
	})
}
