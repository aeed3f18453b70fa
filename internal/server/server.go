// Package server provides the HTTP API for matome.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/matome/internal/cluster"
	"github.com/hyperjump/matome/internal/config"
	"github.com/hyperjump/matome/internal/ingest"
	"github.com/hyperjump/matome/internal/storage"
	"go.uber.org/zap"
)

// Server is the HTTP server for the matome API.
type Server struct {
	engine   *cluster.Engine
	ingester *ingest.Ingester // nil disables live feed endpoints
	storage  storage.Storage  // nil disables item listing
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies. ingester and storage may be nil.
func NewServer(
	engine *cluster.Engine,
	ingester *ingest.Ingester,
	storage storage.Storage,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = &config.Config{}
		config.ApplyDefaults(cfg)
	}
	return &Server{
		engine:   engine,
		ingester: ingester,
		storage:  storage,
		config:   cfg,
		logger:   logger,
	}
}

// Handler returns the API router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/cluster", s.handleCluster)
		r.Get("/clusters", s.handleLiveClusters)
		r.Post("/title", s.handleTitle)
		r.Get("/items", s.handleListItems)
		r.Get("/items/{id}", s.handleGetItem)
		r.Get("/feeds", s.handleFeeds)
		r.Post("/feeds/refresh", s.handleRefresh)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
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
