// Package main is the entry point for the snipper API server.
//
// It loads configuration, assembles the pipeline, mounts the record,
// preference and trigger handlers on the core chassis and serves HTTP until
// SIGINT or SIGTERM, then shuts down gracefully.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"snipper/internal/api/handlers"
	"snipper/internal/app"
	"snipper/internal/config"
	"snipper/internal/core"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig(config.NewSecretProvider(os.Getenv("APP_ENV"), os.Getenv("AWS_REGION")))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := app.NewLogger(cfg.LogLevel)
	logger.Info("snipper API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	deps, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing dependencies: %w", err)
	}
	defer deps.Close()

	srv, err := buildServer(cfg, deps, logger)
	if err != nil {
		return err
	}

	return runHTTPServer(srv, cfg, logger)
}

// buildServer mounts every handler on a new core.Server.
func buildServer(cfg *config.Config, deps *app.Deps, logger *slog.Logger) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	srv.HealthProbes = append(srv.HealthProbes,
		core.ProbeFunc{ProbeName: "postgres", Fn: deps.Pool.Ping},
		core.ProbeFunc{ProbeName: "redis", Fn: deps.KV.Ping},
	)

	recordH := handlers.NewRecordHandler(deps.Records, deps.Adapter, cfg.Digest.RecordLimit, logger)
	prefsH := handlers.NewPreferencesHandler(deps.Records, deps.Preferences, logger)
	triggerH := handlers.NewTriggerHandler(deps.Fanout, srv.Validator, logger)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars, func(r chi.Router) {
		r.With(core.RequireUser).Route("/records", recordH.RegisterRoutes)
		r.With(core.RequireUser).Route("/preferences", prefsH.RegisterRoutes)
		r.Route("/digests", triggerH.RegisterRoutes)
	})

	srv.MountRoutes()
	return srv, nil
}

// runHTTPServer serves until a shutdown signal or a listener error.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}
