package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/eshaffer321/reconcile/internal/api/handlers"
	"github.com/eshaffer321/reconcile/internal/api/middleware"
	"github.com/eshaffer321/reconcile/internal/application/service"
)

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
	// WriteTimeout must outlast a synchronous reconcile pass
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: middleware.DefaultCORSConfig().AllowedOrigins,
		WriteTimeout:   2 * time.Minute,
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	svc        *service.ReconcileService
}

// NewServer creates a new API server around the reconcile service.
func NewServer(cfg Config, svc *service.ReconcileService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = DefaultConfig().WriteTimeout
	}

	s := &Server{
		config: cfg,
		router: chi.NewRouter(),
		logger: logger,
		svc:    svc,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(chimw.Recoverer)

	// CORS
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = s.config.AllowedOrigins
	s.router.Use(middleware.CORS(corsConfig))

	// Request logging
	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	healthHandler := handlers.NewHealthHandler()
	s.router.Get("/health", healthHandler.ServeHTTP)

	s.router.Route("/api", func(r chi.Router) {
		// Entries
		entriesHandler := handlers.NewEntriesHandler(s.svc, s.logger)
		r.Post("/entries", entriesHandler.Load)
		r.Get("/entries/unreconciled", entriesHandler.Unreconciled)
		r.Get("/entries/{id}/match", entriesHandler.ActiveMatch)

		// Matches
		matchesHandler := handlers.NewMatchesHandler(s.svc, s.logger)
		r.Get("/matches", matchesHandler.List)
		r.Post("/matches", matchesHandler.Create)
		r.Get("/matches/{id}", matchesHandler.Get)
		r.Post("/matches/{id}/reverse", matchesHandler.Reverse)

		// Auto-reconcile passes, inline or as jobs
		reconcileHandler := handlers.NewReconcileHandler(s.svc, s.logger)
		r.Post("/reconcile", reconcileHandler.Run)
		r.Get("/reconcile/jobs", reconcileHandler.ListJobs)
		r.Get("/reconcile/jobs/{id}", reconcileHandler.GetJob)
		r.Delete("/reconcile/jobs/{id}", reconcileHandler.CancelJob)

		// Spreadsheet export
		reportHandler := handlers.NewReportHandler(s.svc, s.logger)
		r.Get("/report.xlsx", reportHandler.Export)

		// Run history
		runsHandler := handlers.NewRunsHandler(s.svc, s.logger)
		r.Get("/runs", runsHandler.List)
		r.Get("/runs/{id}", runsHandler.Get)
	})
}

// Start starts the HTTP server.
// Calling Shutdown first makes Start return immediately.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
