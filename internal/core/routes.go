package core

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// defaultRequestTimeout bounds every request context.
const defaultRequestTimeout = 29 * time.Second

var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"X-Admin-Key",
}

// MountRoutes registers the global middleware chain, the /v1 group and
// GET /health.
//
// Middleware order:
//  1. Recoverer       - outermost so every panic is caught.
//  2. ContextTimeout  - soft deadline for downstream calls.
//  3. RequestID       - correlation ID for logs and error bodies.
//  4. RequestLogger   - one line per request, credentials redacted.
//  5. Identity        - resolves the Actor from X-User-ID and X-Admin-Key.
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(defaultRequestTimeout))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(s.IdentityMiddleware)

	s.router.Route("/v1", s.mountV1)
	s.router.Get("/health", s.HandleHealth)
}

func (s *Server) mountV1(r chi.Router) {
	for _, registrar := range s.V1RouteRegistrars {
		registrar(r)
	}
}

// ContextTimeoutMiddleware sets a deadline on the request context.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
