// Package server exposes the carbonshift REST API: step submission,
// inspection, and cancellation, plus health and metrics endpoints. The
// engine loop does the actual evaluating; handlers only move rows.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/electricitymaps/carbonshift/internal/config"
	"github.com/electricitymaps/carbonshift/internal/store"
)

// Server is the carbonshift REST API server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	config    config.ServerConfig
	startTime time.Time
	store     store.Store
	metrics   http.Handler // /metrics exposition over the engine's registry
}

// New creates a new Server with all routes registered. The metrics
// handler must expose the same registry the engine's counters live in;
// a nil handler leaves /metrics unmounted.
func New(cfg config.ServerConfig, st store.Store, metrics http.Handler, logger *slog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		config:    cfg,
		startTime: time.Now(),
		store:     st,
		metrics:   metrics,
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	// Global middleware
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", s.handleDiscovery)
		r.Get("/health", s.handleHealth)

		r.Route("/steps", func(r chi.Router) {
			r.Get("/", s.handleListSteps)
			r.Post("/", s.handleCreateStep)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetStep)
				r.Put("/cancel", s.handleCancelStep)
			})
		})
	})
}
