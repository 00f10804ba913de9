package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server runs the status/metrics HTTP API. Kept the teacher's
// net/http.ServeMux + /health + ListenAndServe/Shutdown shape
// (internal/api/server.go); dropped the WebSocket Hub and static
// dashboard file server — this module exposes polled JSON and Prometheus
// text, not a pushed-event browser dashboard.
type Server struct {
	provider SnapshotProvider
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates a new API server listening on port, serving
// /health, /api/snapshot, and /metrics (metricsHandler, typically
// promhttp.HandlerFor wrapping the process's prometheus.Registry).
func NewServer(port int, provider SnapshotProvider, metricsHandler http.Handler, logger *slog.Logger) *Server {
	handlers := NewHandlers(provider, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/snapshot", handlers.HandleSnapshot)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		provider: provider,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start runs the HTTP server until Stop is called or it errors.
func (s *Server) Start() error {
	s.logger.Info("api server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop() error {
	s.logger.Info("stopping api server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
