// Package delivery hands rendered digests to the email provider. A send that
// times out is resubmitted exactly once; anything else is final.
package delivery

import (
	"context"
	"log/slog"
	"time"

	"snipper/internal/external"
	"snipper/internal/types"
)

// maxAttempts is the initial send plus the single timeout retry.
const maxAttempts = 2

// Result classifies a delivery outcome for logs and metrics.
type Result string

const (
	ResultSuccess        Result = "success"
	ResultRetriedSuccess Result = "retried_success"
	// ResultDropped means both attempts timed out.
	ResultDropped Result = "dropped"
	// ResultFailed is a non-timeout provider error.
	ResultFailed  Result = "failed"
	ResultSkipped Result = "skipped"
)

// Metrics observes delivery outcomes.
type Metrics interface {
	RecordDelivery(ctx context.Context, result Result)
	RecordLatency(ctx context.Context, d time.Duration)
}

// Outcome reports what Deliver did.
type Outcome struct {
	Result    Result
	Attempts  int
	MessageID string
}

// DispatcherConfig configures the sender identity and the per-attempt
// deadline. A zero SendTimeout leaves the deadline to the caller's context.
type DispatcherConfig struct {
	From        types.SenderIdentity
	SendTimeout time.Duration
}

type Dispatcher struct {
	provider external.EmailProvider
	cfg      DispatcherConfig
	metrics  Metrics
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. metrics may be nil.
func NewDispatcher(provider external.EmailProvider, cfg DispatcherConfig, metrics Metrics, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Dispatcher{provider: provider, cfg: cfg, metrics: metrics, logger: logger}
}

// Deliver sends task. It returns a nil error for success and for a skipped
// task with no recipient; otherwise the last provider error. Callers must
// not retry: the timeout retry has already happened here.
func (d *Dispatcher) Deliver(ctx context.Context, task types.MailTask) (Outcome, error) {
	logger := d.logger.With("user_id", task.UserID, "trace_id", task.TraceID)

	if task.Recipient == "" {
		logger.ErrorContext(ctx, "mail task has no recipient, skipping",
			"user_name", task.UserName,
			"date_label", task.DateLabel,
		)
		d.metrics.RecordDelivery(ctx, ResultSkipped)
		return Outcome{Result: ResultSkipped}, nil
	}

	input := types.SendInput{
		To:          task.Recipient,
		From:        d.cfg.From,
		Subject:     task.Subject,
		BodyText:    task.Body,
		ReferenceID: task.TraceID,
	}

	start := time.Now()
	defer func() { d.metrics.RecordLatency(ctx, time.Since(start)) }()

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var msgID string
		msgID, err = d.send(ctx, input)
		if err == nil {
			result := ResultSuccess
			if attempt > 1 {
				result = ResultRetriedSuccess
			}
			logger.InfoContext(ctx, "digest delivered", "attempt", attempt, "message_id", msgID)
			d.metrics.RecordDelivery(ctx, result)
			return Outcome{Result: result, Attempts: attempt, MessageID: msgID}, nil
		}

		if !external.IsTimeout(err) {
			logger.ErrorContext(ctx, "digest delivery failed", "attempt", attempt, "error", err)
			d.metrics.RecordDelivery(ctx, ResultFailed)
			return Outcome{Result: ResultFailed, Attempts: attempt}, err
		}
		if attempt < maxAttempts {
			logger.WarnContext(ctx, "digest delivery timed out, resubmitting", "attempt", attempt, "error", err)
		}
	}

	logger.ErrorContext(ctx, "digest delivery timed out twice, dropping", "attempts", maxAttempts, "error", err)
	d.metrics.RecordDelivery(ctx, ResultDropped)
	return Outcome{Result: ResultDropped, Attempts: maxAttempts}, err
}

func (d *Dispatcher) send(ctx context.Context, input types.SendInput) (string, error) {
	if d.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()
	}
	return d.provider.Send(ctx, input)
}
