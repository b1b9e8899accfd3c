// Package main is the entrypoint for the Trigger Lambda function.
//
// EventBridge invokes it with a scheduler.MaintenancePayload:
//   - hourly with no task (or "trigger_digests") to start the batch chain for
//     users whose UTC reset pair matches the current hour;
//   - daily with "resync_utc" to recompute UTC reset pairs ahead of DST
//     transitions.
//
// This file only wires dependencies; the work is in internal/scheduler.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"snipper/internal/app"
	"snipper/internal/config"
	"snipper/internal/scheduler"
	"snipper/internal/types"
)

// MaintenanceJob is implemented by *scheduler.MaintenanceRunner.
type MaintenanceJob interface {
	Run(ctx context.Context, p scheduler.MaintenancePayload) (string, error)
}

func main() {
	logger := app.NewLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Trigger Lambda initializing (cold start)")

	if err := config.ResolveSecrets(config.NewSSMProvider(os.Getenv("AWS_REGION"))); err != nil {
		logger.Error("Failed to resolve SSM secrets", "error", err)
		os.Exit(1)
	}
	cfg, err := config.LoadConfig(nil)
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger = app.NewLogger(cfg.LogLevel)

	deps, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	runner := scheduler.NewMaintenanceRunner(deps.Fanout, deps.Resync, types.RealClock{}, logger)

	logger.Info("Trigger Lambda initialized",
		"queue_backend", cfg.AWS.QueueBackend,
		"version", cfg.Build.String(),
	)

	lambda.Start(newHandler(runner, logger))
}

// newHandler wraps the maintenance job with logging. Errors are returned so
// EventBridge's retry policy applies to a run that never started.
func newHandler(job MaintenanceJob, logger *slog.Logger) func(ctx context.Context, input scheduler.MaintenancePayload) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, input scheduler.MaintenancePayload) (string, error) {
		logger.InfoContext(ctx, "Trigger handler invoked",
			"task", string(input.Task),
			"reference_time", input.ReferenceTime,
		)

		result, err := job.Run(ctx, input)
		if err != nil {
			logger.ErrorContext(ctx, "maintenance task failed", "task", string(input.Task), "error", err)
			return "", fmt.Errorf("trigger failed: %w", err)
		}

		logger.InfoContext(ctx, result, "task", string(input.Task))
		return result, nil
	}
}
