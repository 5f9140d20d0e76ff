package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/openshelf/kestrel/internal/domain"
	"github.com/openshelf/kestrel/internal/fees"
	"github.com/openshelf/kestrel/internal/loans"
	"github.com/openshelf/kestrel/internal/report"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, engine *fees.Engine, loanSvc *loans.Service, reports *report.Builder, version string) *Server {
	handler := NewHandler(repo, cache, bus, engine, loanSvc, reports, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Catalog
		r.Post("/items", handler.CreateItem)
		r.Get("/items/{id}", handler.GetItem)

		// Roster
		r.Post("/patrons", handler.CreatePatron)
		r.Get("/patrons/{id}", handler.GetPatron)
		r.Get("/patrons/{id}/total", handler.PatronTotal)

		// Loan lifecycle
		r.Post("/loans", handler.Checkout)
		r.Get("/loans/{id}", handler.GetLoan)
		r.Post("/loans/{id}/return", handler.ReturnLoan)

		// Fee assessment
		r.Post("/assess", handler.Assess)
		r.Get("/assessments/{id}", handler.GetAssessment)

		// Reporting
		r.Get("/reports/overdue", handler.OverdueReport)
		r.Get("/reports/overdue.csv", handler.OverdueReportCSV)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
