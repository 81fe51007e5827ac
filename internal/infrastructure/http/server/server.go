// Package server assembles the JSON API HTTP server.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/nutrilens/v1/internal/infrastructure/config"
	"github.com/nutrilens/v1/internal/infrastructure/http/handlers"
	"github.com/nutrilens/v1/internal/infrastructure/http/middleware"
	"github.com/nutrilens/v1/internal/infrastructure/monitoring"
)

// Server is the API HTTP server.
type Server struct {
	config *config.Config
	logger *zap.Logger
	server *http.Server
	router *chi.Mux
}

// New builds the server with its full middleware stack and routes.
func New(
	cfg *config.Config,
	logger *zap.Logger,
	api *handlers.APIHandlers,
	metrics *monitoring.MetricsCollector,
) *Server {
	s := &Server{
		config: cfg,
		logger: logger,
	}
	s.router = s.setupRoutes(api, metrics)
	s.server = &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        s.router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    cfg.Server.IdleTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}
	return s
}

func (s *Server) setupRoutes(api *handlers.APIHandlers, metrics *monitoring.MetricsCollector) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.Security())
	r.Use(middleware.CORS())
	r.Use(chimiddleware.Compress(5))
	if s.config.RateLimit.Enable {
		r.Use(middleware.RateLimit(s.config.RateLimit.RequestsPerMin, s.config.RateLimit.BurstSize))
	}
	if metrics != nil {
		r.Use(metrics.HTTPMiddleware)
	}

	r.Get("/health", s.handleHealth)
	if metrics != nil && s.config.Monitoring.EnableMetrics {
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.JSONOnly())

		r.Route("/analysis", func(r chi.Router) {
			r.Post("/image", api.AnalyzeImage)
			r.Post("/text", api.AnalyzeText)
		})
		r.Post("/mealplan", api.GenerateMealPlan)
		r.Post("/chat", api.Chat)
		r.Route("/prices", func(r chi.Router) {
			r.Post("/estimate", api.EstimatePrice)
			r.Post("/batch", api.EstimatePriceBatch)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":%q,"version":%q,"timestamp":%q}`,
		s.config.App.Name, s.config.App.Version, time.Now().UTC().Format(time.RFC3339))
}

// Router exposes the mux for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving and blocks until the listener stops.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	return s.server.Shutdown(ctx)
}
