// Package main is the entrypoint for the Mail Worker Lambda function.
//
// The Mail Worker consumes rendered digests from the mail SQS queue and hands
// each to the Delivery Dispatcher. The dispatcher owns the only retry (one
// resubmission after a timeout), so every message is ACKed whatever the
// outcome; redelivery by SQS would send a second copy.
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
	"snipper/internal/delivery"
	"snipper/internal/queue"
	"snipper/internal/types"
)

type slogAdapter struct {
	logger *slog.Logger
}

func (a *slogAdapter) Info(msg string, args ...any)  { a.logger.Info(msg, args...) }
func (a *slogAdapter) Error(msg string, args ...any) { a.logger.Error(msg, args...) }
func (a *slogAdapter) Warn(msg string, args ...any)  { a.logger.Warn(msg, args...) }
func (a *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{logger: a.logger.With(args...)}
}

// Deliverer sends one mail task. Implemented by *delivery.Dispatcher.
type Deliverer interface {
	Deliver(ctx context.Context, task types.MailTask) (delivery.Outcome, error)
}

// Handler holds the dependencies for the mail worker Lambda handler.
type Handler struct {
	dispatcher Deliverer
	codec      *queue.Codec
	logger     types.Logger
}

// Handle delivers every message in the batch. It never reports batch item
// failures.
func (h *Handler) Handle(ctx context.Context, sqsEvent events.SQSEvent) (events.SQSEventResponse, error) {
	for _, record := range sqsEvent.Records {
		h.processMessage(ctx, record)
	}
	return events.SQSEventResponse{}, nil
}

func (h *Handler) processMessage(ctx context.Context, record events.SQSMessage) {
	var task types.MailTask
	if err := h.codec.Decode([]byte(record.Body), queue.KindMailTask, &task); err != nil {
		h.logger.Error("failed to decode mail task",
			"message_id", record.MessageId,
			"error", err.Error(),
		)
		return
	}

	logger := h.logger.With("message_id", record.MessageId, "trace_id", task.TraceID, "user_id", task.UserID)

	outcome, err := h.dispatcher.Deliver(ctx, task)
	if err != nil {
		logger.Warn("mail task not delivered",
			"result", string(outcome.Result),
			"attempts", outcome.Attempts,
			"error", err.Error(),
		)
		return
	}
	logger.Info("mail task handled", "result", string(outcome.Result), "attempts", outcome.Attempts)
}

func main() {
	logger := app.NewLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Mail Worker Lambda initializing (cold start)")

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

	dispatcher, err := deps.NewDispatcher()
	if err != nil {
		logger.Error("Failed to initialize dispatcher", "error", err)
		os.Exit(1)
	}

	handler := &Handler{
		dispatcher: dispatcher,
		codec:      queue.NewCodec(cfg.Digest.CompressThreshold),
		logger:     &slogAdapter{logger: logger},
	}

	logger.Info("Mail Worker Lambda initialized",
		"mail_queue", cfg.AWS.MailQueueURL,
		"email_provider", cfg.Email.Provider,
		"from_address", cfg.Email.FromAddress,
	)

	if cfg.Environment == "local" {
		if err := runLocal(ctx, handler, os.Stdin); err != nil {
			logger.Error("Local invocation failed", "error", err)
			os.Exit(1)
		}
		return
	}

	lambda.Start(handler.Handle)
}

func runLocal(ctx context.Context, handler *Handler, in io.Reader) error {
	payload, err := io.ReadAll(in)
	if err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}
	var sqsEvent events.SQSEvent
	if err := json.Unmarshal(payload, &sqsEvent); err != nil {
		return fmt.Errorf("parsing stdin as SQS event: %w", err)
	}
	_, err = handler.Handle(ctx, sqsEvent)
	return err
}

var _ types.Logger = (*slogAdapter)(nil)
