// Package main is the entrypoint for the Digest Worker Lambda function.
//
// The Digest Worker consumes fetch steps from the fetch SQS queue. Each step
// processes at most one user and, in batch mode, re-enqueues the next step
// with the advanced cursor, so the chain walks every due user one invocation
// at a time.
//
// Cold Start (main):
//  1. Resolve SSM secrets and load configuration.
//  2. Connect Postgres and Redis, assemble the fan-out.
//  3. Register handler and call lambda.Start.
//
// A step that fails before making progress is reported in
// batchItemFailures so SQS redelivers it. Malformed messages are ACKed.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"snipper/internal/app"
	"snipper/internal/config"
	"snipper/internal/queue"
	"snipper/internal/scheduler"
	"snipper/internal/types"
)

// slogAdapter lets *slog.Logger satisfy types.Logger, whose With returns the
// interface rather than *slog.Logger.
type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// StepRunner executes one fetch step. Implemented by *scheduler.Fanout.
type StepRunner interface {
	Handle(ctx context.Context, step types.FetchStep) (*scheduler.StepResult, error)
}

// Handler holds the dependencies for the digest worker Lambda handler.
type Handler struct {
	runner StepRunner
	codec  *queue.Codec
	logger types.Logger
}

// Handle processes an SQS event. Messages are independent: one failing step
// does not stop the rest of the batch.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	response := events.SQSEventResponse{}

	for _, record := range sqsEvent.Records {
		if err := h.processMessage(ctx, record); err != nil {
			h.logger.Error("fetch step failed, leaving for redelivery",
				"message_id", record.MessageId,
				"error", err.Error(),
			)
			response.BatchItemFailures = append(response.BatchItemFailures,
				events.SQSBatchItemFailure{ItemIdentifier: record.MessageId},
			)
		}
	}

	return response, nil
}

func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) error {
	var step types.FetchStep
	if err := h.codec.Decode([]byte(record.Body), queue.KindFetchStep, &step); err != nil {
		h.logger.Error("failed to decode fetch step",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		// Permanent parse failure: ACK so it does not loop.
		return nil
	}

	logger := h.logger.With(
		"trace_id", step.TraceID,
		"sequence", step.Sequence,
		"batch", step.IsBatch(),
	)

	result, err := h.runner.Handle(ctx, step)
	if err != nil {
		return err
	}

	logger.Info("fetch step processed",
		"user_id", result.UserID,
		"queued", result.Queued,
		"chain_continues", result.Next != nil,
	)
	return nil
}

func main() {
	logger := app.NewLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Digest Worker Lambda initializing (cold start)")

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

	ctx := context.Background()
	deps, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	handler := &Handler{
		runner: deps.Fanout,
		codec:  queue.NewCodec(cfg.Digest.CompressThreshold),
		logger: &slogAdapter{logger: logger},
	}

	logger.Info("Digest Worker Lambda initialized",
		"queue_backend", cfg.AWS.QueueBackend,
		"fetch_queue", cfg.AWS.FetchQueueURL,
		"version", cfg.Build.String(),
	)

	// Local mode: read one SQS event from stdin.
	// Usage: echo '{"Records":[{"messageId":"1","body":"{...}"}]}' | go run ./cmd/digest-worker
	if cfg.Environment == "local" {
		if err := runLocal(ctx, handler, os.Stdin, logger); err != nil {
			logger.Error("Local invocation failed", "error", err)
			os.Exit(1)
		}
		return
	}

	lambda.Start(handler.Handle)
}

func runLocal(ctx context.Context, handler *Handler, in io.Reader, logger *slog.Logger) error {
	payload, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	if len(payload) == 0 {
		return fmt.Errorf("no input received on stdin")
	}
	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err != nil {
		return fmt.Errorf("parsing stdin as SQS event: %w", err)
	}
	response, err := handler.Handle(ctx, sqsEvent)
	if err != nil {
		return err
	}
	logger.Info("Handler execution completed",
		"records_processed", len(sqsEvent.Records),
		"failures", len(response.BatchItemFailures),
	)
	return nil
}

var _ types.Logger = (*slogAdapter)(nil)
