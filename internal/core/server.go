// Package core provides the HTTP chassis for the snipper API. It builds a chi
// router and applies the cross-cutting concerns (request IDs, logging, panic
// recovery, caller identity) before requests reach the handlers package.
package core

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"snipper/internal/config"
)

// Server holds the router and the dependencies shared by every request.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// HealthProbes are run concurrently by GET /health.
	HealthProbes []HealthProbe

	// V1RouteRegistrars mount domain handlers under /v1. They are appended by
	// the entry point so core never imports the handlers package.
	V1RouteRegistrars []func(r chi.Router)

	router *chi.Mux
}

// NewServer validates its inputs and returns a Server with an empty router.
// Call MountRoutes after the registrars are in place.
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

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi.Mux for tests that register ad-hoc routes.
func (s *Server) Router() *chi.Mux {
	return s.router
}
