package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"snipper/internal/delivery"
	"snipper/internal/queue"
	"snipper/internal/scheduler"
	"snipper/internal/types"
)

// asynqLoggerAdapter wraps slog.Logger to implement asynq.Logger.
type asynqLoggerAdapter struct {
	logger *slog.Logger
}

func (a *asynqLoggerAdapter) Debug(args ...interface{}) { a.logger.Debug(fmt.Sprint(args...)) }
func (a *asynqLoggerAdapter) Info(args ...interface{})  { a.logger.Info(fmt.Sprint(args...)) }
func (a *asynqLoggerAdapter) Warn(args ...interface{})  { a.logger.Warn(fmt.Sprint(args...)) }
func (a *asynqLoggerAdapter) Error(args ...interface{}) { a.logger.Error(fmt.Sprint(args...)) }

func (a *asynqLoggerAdapter) Fatal(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
	panic(fmt.Sprint(args...))
}

type stepRunner interface {
	Handle(ctx context.Context, step types.FetchStep) (*scheduler.StepResult, error)
}

type mailDeliverer interface {
	Deliver(ctx context.Context, task types.MailTask) (delivery.Outcome, error)
}

type maintenanceJob interface {
	Run(ctx context.Context, p scheduler.MaintenancePayload) (string, error)
}

// handleFetchStep runs one fan-out step. Undecodable payloads are dropped
// with SkipRetry.
func handleFetchStep(logger *slog.Logger, codec *queue.Codec, runner stepRunner) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		var step types.FetchStep
		if err := codec.Decode(t.Payload(), queue.KindFetchStep, &step); err != nil {
			return fmt.Errorf("decode fetch step: %v: %w", err, asynq.SkipRetry)
		}

		result, err := runner.Handle(ctx, step)
		if err != nil {
			return fmt.Errorf("fetch step %s/%d: %w", step.TraceID, step.Sequence, err)
		}

		logger.InfoContext(ctx, "fetch step processed",
			"trace_id", step.TraceID,
			"sequence", step.Sequence,
			"user_id", result.UserID,
			"queued", result.Queued,
			"chain_continues", result.Next != nil,
		)
		return nil
	}
}

// handleMail delivers one digest. Delivery failures are logged, not
// returned: the dispatcher has already made its one retry.
func handleMail(logger *slog.Logger, codec *queue.Codec, d mailDeliverer) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		var task types.MailTask
		if err := codec.Decode(t.Payload(), queue.KindMailTask, &task); err != nil {
			return fmt.Errorf("decode mail task: %v: %w", err, asynq.SkipRetry)
		}

		outcome, err := d.Deliver(ctx, task)
		if err != nil {
			logger.WarnContext(ctx, "mail task not delivered",
				"trace_id", task.TraceID,
				"user_id", task.UserID,
				"result", string(outcome.Result),
				"error", err,
			)
		}
		return nil
	}
}

// handleTrigger runs the maintenance job named in the payload. An empty
// payload is the hourly digest trigger.
func handleTrigger(logger *slog.Logger, job maintenanceJob) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		var p scheduler.MaintenancePayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &p); err != nil {
				return fmt.Errorf("decode trigger payload: %v: %w", err, asynq.SkipRetry)
			}
		}

		result, err := job.Run(ctx, p)
		if err != nil {
			return err
		}
		logger.InfoContext(ctx, result, "task", string(p.Task))
		return nil
	}
}

func makeErrorHandler(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		logger.Error("Task execution failed",
			"task_type", task.Type(),
			"error", err.Error(),
			"retry_count", retried,
			"max_retry", maxRetry,
		)
		if retried >= maxRetry {
			logger.Error("Task archived (retries exhausted)", "task_type", task.Type())
		}
	}
}
