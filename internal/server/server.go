// Package server provides the HTTP API over a search session.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/altiplano/parasearch/internal/config"
	"github.com/altiplano/parasearch/internal/session"
)

// Server is the HTTP server for the session API.
type Server struct {
	ctrl    *session.Controller
	config  *config.ServerConfig
	logger  *zap.Logger
	handler http.Handler
	server  *http.Server
}

// NewServer creates a server exposing ctrl. ctrl must be started.
func NewServer(ctrl *session.Controller, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		ctrl:   ctrl,
		config: cfg,
		logger: logger,
	}
	s.handler = s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/session", s.handleSession)
	r.Put("/api/v1/session/query", s.handleSetQuery)
	r.Post("/api/v1/session/search", s.handleSearch)
	r.Post("/api/v1/session/results/{index}/toggle", s.handleToggle)
	r.Get("/api/v1/examples", s.handleExamples)
	r.Post("/api/v1/examples/{index}/use", s.handleUseExample)
	r.Get("/health", s.handleHealth)

	origins := s.config.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("Starting server", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
