// Package server implements the HTTP server for the application.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/evidentgo/suggestengine/internal/codeindex"
	"github.com/evidentgo/suggestengine/internal/config"
	"github.com/evidentgo/suggestengine/internal/core"
	"github.com/evidentgo/suggestengine/internal/storage"
	"github.com/evidentgo/suggestengine/internal/suggest/audit"
	"github.com/evidentgo/suggestengine/internal/suggest/llmgateway"
)

// Server wraps an HTTP server with graceful shutdown capabilities.
type Server struct {
	ctx    context.Context
	server *http.Server
	logger *slog.Logger
}

// NewServer creates a new HTTP server with the given configuration, job
// dispatcher, and the evidence-grounded suggestion engine's collaborators
// (gateway, audit sink, code index) that the /repos/{id}/suggest route needs.
func NewServer(ctx context.Context, cfg *config.Config, dispatcher core.JobDispatcher, store storage.Store, gateway *llmgateway.Gateway, auditSink audit.Sink, codeIndex *codeindex.Store, logger *slog.Logger) *Server {
	router := NewRouter(cfg, dispatcher, store, gateway, auditSink, codeIndex, logger)

	return &Server{
		ctx: ctx,
		server: &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

// Start starts the HTTP server and blocks until shutdown or error.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server with a 30-second timeout.
func (s *Server) Stop() error {
	s.logger.Info("shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}
