// Package server provides the HTTP API over a document index.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/acgodson/blueband-algo/internal/config"
	"github.com/acgodson/blueband-algo/internal/document"
)

// Server exposes the document index over HTTP. Index operations are
// serialized with a mutex since the index allows one transaction at a time.
type Server struct {
	index  *document.Index
	config *config.ServerConfig
	logger *zap.Logger
	server *http.Server
	mu     sync.Mutex
}

// NewServer creates a server over idx.
func NewServer(idx *document.Index, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	return &Server{index: idx, config: cfg, logger: logger}
}

// UpsertFile indexes text under uri, holding the same lock as the HTTP
// handlers. File watch callbacks must go through this instead of the index
// directly, since the index allows only one caller at a time.
func (s *Server) UpsertFile(ctx context.Context, uri, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.index.UpsertDocument(ctx, uri, text, document.UpsertOptions{})
	return err
}

// RemoveFile deletes the document under uri, holding the same lock as the
// HTTP handlers.
func (s *Server) RemoveFile(ctx context.Context, uri string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.DeleteDocument(ctx, uri)
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/documents", s.handleUpsertDocument)
	r.Delete("/api/v1/documents", s.handleDeleteDocument)
	r.Get("/api/v1/documents", s.handleListDocuments)
	r.Post("/api/v1/query", s.handleQuery)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{Addr: addr, Handler: s.Router()}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
