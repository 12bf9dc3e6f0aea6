// Package api exposes a small read-only HTTP status surface over the
// running Algo Containers: a liveness probe and a snapshot of every
// algo's state and counters. It is not named by the spec and not
// forbidden by it; every other example repo in this corpus ships some
// form of operator-facing status endpoint, so one is carried here too,
// trimmed to what a read-only poller actually needs.
//
// Grounded on the teacher's internal/api/server.go Start/Stop lifecycle
// and http.ServeMux route registration; the teacher's WebSocket hub and
// static dashboard assets are dropped since nothing here needs a push
// channel to a browser.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server runs the read-only status API.
type Server struct {
	addr     string
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer builds a Server listening on addr (":8090" etc), reporting
// algo state from provider.
func NewServer(addr string, provider AlgoSnapshotProvider, logger *slog.Logger) *Server {
	handlers := NewHandlers(provider, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/algos", handlers.HandleAlgos)

	return &Server{
		addr: addr,
		handlers: handlers,
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With("component", "api-server"),
	}
}

// Start blocks serving HTTP until the server is stopped.
func (s *Server) Start() error {
	s.logger.Info("status server starting", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	s.logger.Info("stopping status server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
