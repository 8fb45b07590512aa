// Package core is the HTTP chassis shared by every WillItRain API handler. It
// owns the chi router, the global middleware chain, the JSON envelope and
// error mapping, request validation, health probes, and the adapter that
// serves the same router behind API Gateway when running on Lambda.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"willitrain/internal/config"
)

// MetricsCollector records per-request telemetry. endpoint is the chi route
// pattern, not the raw path, so label cardinality stays bounded.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// Server bundles the router and its cross-cutting dependencies.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	// MetricsHandler, when set, is mounted at GET /metrics.
	MetricsHandler http.Handler

	// HealthProbes are run concurrently by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars mount domain handlers under /v1. main wires these so
	// that core never imports handler packages.
	V1RouteRegistrars []func(chi.Router)

	shutdownHooks []func(context.Context) error
	router        *chi.Mux
}

// NewServer validates the required dependencies and prepares an empty router.
// Call MountRoutes after registering handlers.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi mux for tests and extra mounts.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// OnShutdown registers a hook run by Shutdown, in registration order. Used for
// the database pool and scheduler.
func (s *Server) OnShutdown(hook func(context.Context) error) {
	s.shutdownHooks = append(s.shutdownHooks, hook)
}

// Shutdown runs every shutdown hook and joins their errors.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var errs []error
	for _, hook := range s.shutdownHooks {
		if err := hook(ctx); err != nil {
			s.Logger.Error("shutdown hook failed", "error", err)
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
