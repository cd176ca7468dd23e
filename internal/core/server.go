// Package core provides the API chassis for FormGuard.
// It builds a chi router that serves both standard HTTP (local and container
// deployments) and Lambda function URL events, and enforces cross-cutting
// concerns before requests reach domain handlers.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"formguard/internal/config"
)

// Server holds every dependency of the HTTP API so tests can inject fakes.
type Server struct {
	Config         *config.Config
	Logger         *slog.Logger
	Validator      *Validator
	Metrics        MetricsCollector
	MetricsHandler http.Handler // serves GET /metrics when non-nil
	Authenticator  Authenticator
	RateLimitStore RateLimitStore
	HealthProbes   []HealthProbe

	// Registered by cmd/api before MountRoutes. V1 routes are authenticated;
	// public routes are mounted at the root without authentication.
	V1RouteRegistrars     []func(chi.Router)
	PublicRouteRegistrars []func(chi.Router)

	shutdownHooks []func(context.Context) error
	router        *chi.Mux
}

// NewServer validates the critical dependencies and prepares an empty router.
// Routes are mounted separately via MountRoutes.
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

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// OnShutdown registers a cleanup hook. Hooks run in reverse registration order.
func (s *Server) OnShutdown(hook func(context.Context) error) {
	s.shutdownHooks = append(s.shutdownHooks, hook)
}

// Shutdown releases server resources such as the database pool and the
// Redis client. Every hook runs even when an earlier one fails.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	var errs []error
	for i := len(s.shutdownHooks) - 1; i >= 0; i-- {
		if err := s.shutdownHooks[i](ctx); err != nil {
			s.Logger.Error("shutdown hook failed", "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutting down: %w", errors.Join(errs...))
	}

	s.Logger.Info("server shutdown complete")
	return nil
}
