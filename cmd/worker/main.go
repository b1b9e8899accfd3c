// Package main runs the digest pipeline on asynq instead of Lambda. One
// process serves fetch steps, mail tasks and the periodic trigger, and runs
// the asynq scheduler that emits the hourly trigger and the daily UTC resync.
//
// Requires QUEUE_BACKEND=asynq so the fan-out publishes back onto the same
// Redis.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"snipper/internal/app"
	"snipper/internal/config"
	"snipper/internal/queue"
	"snipper/internal/scheduler"
	"snipper/internal/types"
)

const (
	workerConcurrency = 5
	hourlyTriggerSpec = "0 * * * *"
	dailyResyncSpec   = "30 1 * * *"
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
	if cfg.AWS.QueueBackend != "asynq" {
		return fmt.Errorf("cmd/worker requires QUEUE_BACKEND=asynq, got %q", cfg.AWS.QueueBackend)
	}
	logger := app.NewLogger(cfg.LogLevel)

	deps, err := app.Build(context.Background(), cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing dependencies: %w", err)
	}
	defer deps.Close()

	dispatcher, err := deps.NewDispatcher()
	if err != nil {
		return err
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.Redis.URL.Unmask())
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	stopScheduler, err := startScheduler(redisOpt, logger)
	if err != nil {
		return err
	}
	defer stopScheduler()

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency:     workerConcurrency,
		ShutdownTimeout: 30 * time.Second,
		ErrorHandler:    asynq.ErrorHandlerFunc(makeErrorHandler(logger)),
		Logger:          &asynqLoggerAdapter{logger: logger},
	})

	codec := queue.NewCodec(cfg.Digest.CompressThreshold)
	maintenance := scheduler.NewMaintenanceRunner(deps.Fanout, deps.Resync, types.RealClock{}, logger)

	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TaskFetchStep, handleFetchStep(logger, codec, deps.Fanout))
	mux.HandleFunc(queue.TaskMail, handleMail(logger, codec, dispatcher))
	mux.HandleFunc(queue.TaskTrigger, handleTrigger(logger, maintenance))

	logger.Info("Worker starting",
		"concurrency", workerConcurrency,
		"version", cfg.Build.String(),
	)
	// Run blocks until SIGTERM/SIGINT.
	return srv.Run(mux)
}

// startScheduler registers the periodic trigger tasks and returns a stop
// function for shutdown.
func startScheduler(redisOpt asynq.RedisConnOpt, logger *slog.Logger) (stop func(), err error) {
	s := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Location: time.UTC,
		LogLevel: asynq.InfoLevel,
		Logger:   &asynqLoggerAdapter{logger: logger},
	})

	for spec, payload := range periodicTasks() {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		task := asynq.NewTask(queue.TaskTrigger, body,
			asynq.MaxRetry(2),
			asynq.Timeout(5*time.Minute),
			asynq.Retention(24*time.Hour),
			// A second scheduler replica must not start a duplicate chain.
			asynq.Unique(50*time.Minute),
		)
		entryID, err := s.Register(spec, task)
		if err != nil {
			return nil, fmt.Errorf("failed to register %s schedule: %w", payload.Task, err)
		}
		logger.Info("periodic task registered", "spec", spec, "task", string(payload.Task), "entry_id", entryID)
	}

	if err := s.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}
	return s.Shutdown, nil
}

func periodicTasks() map[string]scheduler.MaintenancePayload {
	return map[string]scheduler.MaintenancePayload{
		hourlyTriggerSpec: {Task: scheduler.TaskTriggerDigests},
		dailyResyncSpec:   {Task: scheduler.TaskResyncUTC},
	}
}
