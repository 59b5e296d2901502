// Package web provides the HTTP dashboard for exploring one country at a
// time, plus JSON and CSV endpoints over the same analysis.
package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/excessdeaths/internal/chart"
	"github.com/JonMunkholm/excessdeaths/internal/config"
	"github.com/JonMunkholm/excessdeaths/internal/dataset"
	"github.com/JonMunkholm/excessdeaths/internal/pipeline"
	"github.com/JonMunkholm/excessdeaths/internal/store"
	"github.com/JonMunkholm/excessdeaths/internal/table"
	"github.com/JonMunkholm/excessdeaths/internal/web/middleware"
)

// Options configures a Server.
type Options struct {
	// ExportCountries are analyzed by /api/export; empty uses every country.
	ExportCountries []string

	// MinSampleSize gates the regression; below 2 means 2.
	MinSampleSize int

	// Store, when set, backs /api/runs/latest.
	Store *store.Store

	Server config.ServerConfig
}

// Server is the HTTP server for the dashboard. The joined table is loaded
// once and only read afterwards, so handlers share it without locking.
type Server struct {
	joined    *table.Table
	countries []string
	opts      Options
	charts    *chart.Generator
	router    *chi.Mux
	server    *http.Server
}

// NewServer creates a Server over an already joined table.
func NewServer(joined *table.Table, opts Options) (*Server, error) {
	countries, err := dataset.Countries(joined)
	if err != nil {
		return nil, err
	}
	gen, err := chart.NewGenerator(chart.DefaultStyle())
	if err != nil {
		return nil, err
	}
	if opts.MinSampleSize < pipeline.InteractiveMinSamples {
		opts.MinSampleSize = pipeline.InteractiveMinSamples
	}
	if len(opts.ExportCountries) == 0 {
		opts.ExportCountries = countries
	}

	s := &Server{
		joined:    joined,
		countries: countries,
		opts:      opts,
		charts:    gen,
		router:    chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()

	cfg := opts.Server
	s.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s, nil
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.opts.Server.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	if s.opts.Server.RequestTimeout > 0 {
		s.router.Use(chimw.Timeout(s.opts.Server.RequestTimeout))
	}

	// Security hardening
	s.router.Use(securityHeaders)
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/", s.handleDashboard)
	s.router.Get("/healthz", s.handleHealth)

	s.router.Route("/chart/{country}", func(r chi.Router) {
		r.Get("/timeseries.png", s.handleTimeSeriesChart)
		r.Get("/regression.png", s.handleRegressionChart)
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/countries", s.handleListCountries)
		r.Get("/analysis/{country}", s.handleAnalysis)
		r.Get("/export", s.handleExport)
		r.Get("/runs/latest", s.handleLatestRun)
	})
}

// Start begins listening for HTTP requests. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Start() error {
	slog.Info("server starting", "addr", s.server.Addr, "countries", len(s.countries))
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server. It is safe to call before Start.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		// Inline styles and the picker's onchange handler are the only inline content
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; img-src 'self' data:")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// writeJSON encodes v as JSON and writes it to w.
// Logs encoding errors since headers are already sent.
func writeJSON(w http.ResponseWriter, r *http.Request, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode error", "error", err, "path", r.URL.Path)
	}
}
