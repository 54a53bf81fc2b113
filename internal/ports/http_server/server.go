// Package http_server owns the lifecycle of the service's listeners: the
// application server and the side-channel metrics server.
package http_server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const readHeaderTimeout = 5 * time.Second

// Server is a running HTTP server bound to a listener.
type Server struct {
	name   string
	srv    *http.Server
	ln     net.Listener
	logger *slog.Logger
	done   chan error
}

// Start binds addr and serves handler in the background. Binding happens
// before Start returns, so a port conflict is reported here rather than
// lost in a goroutine.
func Start(name, addr string, handler http.Handler, logger *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%s server: listen on %s: %w", name, addr, err)
	}

	s := &Server{
		name: name,
		srv: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
			ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
		},
		ln:     ln,
		logger: logger,
		done:   make(chan error, 1),
	}

	go func() {
		err := s.srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		s.done <- err
		close(s.done)
	}()

	logger.Info("server listening", "server", name, "addr", s.Addr())
	return s, nil
}

// Addr returns the bound address, useful when addr asked for port 0.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Done yields the serve error (nil after a clean shutdown) once the server stops.
func (s *Server) Done() <-chan error {
	return s.done
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server", "server", s.name)
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("%s server: shutdown: %w", s.name, err)
	}
	return nil
}

// MetricsHandler serves the registry's gatherer on /metrics for the
// side-channel metrics port.
func MetricsHandler(gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorLog:      slog.NewLogLogger(logger.Handler(), slog.LevelError),
		ErrorHandling: promhttp.ContinueOnError,
	}))
	return mux
}
