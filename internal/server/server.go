// Package server runs an HTTP listener whose readiness follows its own
// lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"infinite-experiment/vitals/internal/config"
	"infinite-experiment/vitals/internal/health"
	"infinite-experiment/vitals/internal/logging"
)

const defaultShutdownTimeout = 10 * time.Second

// Server couples an http.Server to the Reporter that speaks for it.
type Server struct {
	http            *http.Server
	reporter        *health.Reporter
	shutdownTimeout time.Duration
}

// New creates a server for handler. Zero timeouts in cfg leave the
// net/http defaults in place.
func New(cfg config.ServerConfig, handler http.Handler, reporter *health.Reporter) *Server {
	shutdown := cfg.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = defaultShutdownTimeout
	}
	return &Server{
		http: &http.Server{
			Addr:              cfg.Address,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
		},
		reporter:        reporter,
		shutdownTimeout: shutdown,
	}
}

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve marks the reporter ready once ln accepts connections. When ctx is
// done, readiness turns DOWN first and in-flight requests are then drained
// within the shutdown timeout.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.http.Serve(ln)
	}()

	s.reporter.MarkReady()
	logging.Info("Server started", "addr", ln.Addr().String(), "service", s.reporter.Service())

	select {
	case err := <-errCh:
		s.reporter.MarkStopping()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.reporter.MarkStopping()
	logging.Info("Server shutting down", "timeout", s.shutdownTimeout.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
