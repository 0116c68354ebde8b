// Package server provides the HTTP API for kioku.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hyperjump/kioku/internal/cache"
	"github.com/hyperjump/kioku/internal/config"
	"github.com/hyperjump/kioku/internal/search"
	"github.com/hyperjump/kioku/internal/storage"
	"github.com/hyperjump/kioku/pkg/utils"
)

// Server is the HTTP server for the kioku API.
type Server struct {
	engine   *search.Engine
	cache    *cache.Cache
	store    storage.RecordStore
	config   *config.ServerConfig
	logger   *zap.Logger
	gatherer prometheus.Gatherer
	server   *http.Server
}

// NewServer creates a server with the given dependencies. A nil gatherer serves the default
// Prometheus registry on /metrics.
func NewServer(
	engine *search.Engine,
	c *cache.Cache,
	store storage.RecordStore,
	cfg *config.ServerConfig,
	logger *zap.Logger,
	gatherer prometheus.Gatherer,
) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		engine:   engine,
		cache:    c,
		store:    store,
		config:   cfg,
		logger:   utils.LoggerOrNop(logger),
		gatherer: gatherer,
	}
}

// Router builds the HTTP handler with all routes mounted.
func (s *Server) Router() http.Handler {
	timeout := s.config.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Get("/status", s.handleStatus)
		r.Route("/modalities/{modality}", func(r chi.Router) {
			r.Post("/records", s.handleStore)
			r.Post("/search", s.handleSearch)
			r.Post("/reconcile", s.handleReconcile)
			r.Delete("/", s.handleFlush)
		})
	})
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
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
