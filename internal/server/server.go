// Package server provides the HTTP API for clipseek.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/clipseek/clipseek/internal/config"
	"github.com/clipseek/clipseek/internal/indexer"
	"github.com/clipseek/clipseek/internal/retrieval"
	"github.com/clipseek/clipseek/internal/storage"
	"github.com/clipseek/clipseek/internal/vector"
)

// Server is the HTTP server for the clipseek API.
type Server struct {
	retriever   *retrieval.Service
	indexer     *indexer.Indexer
	storage     storage.Storage
	vectorIndex *vector.Index
	config      *config.Config
	logger      *zap.Logger
	server      *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	retriever *retrieval.Service,
	idx *indexer.Indexer,
	store storage.Storage,
	vectorIndex *vector.Index,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		retriever:   retriever,
		indexer:     idx,
		storage:     store,
		vectorIndex: vectorIndex,
		config:      cfg,
		logger:      logger,
	}
}

// Router builds the chi router with all API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/transcripts", s.handleIndexTranscript)
	r.Get("/api/v1/videos", s.handleListVideos)
	r.Get("/api/v1/videos/{id}", s.handleGetVideo)
	r.Delete("/api/v1/videos/{id}", s.handleDeleteVideo)
	r.Get("/api/v1/index/info", s.handleIndexInfo)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)

	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
