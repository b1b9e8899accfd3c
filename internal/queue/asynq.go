package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"snipper/internal/types"
)

// asynq task type names.
const (
	TaskFetchStep = "digest:fetch_step"
	TaskMail      = "digest:mail"
	TaskTrigger   = "digest:trigger"
)

// asynqEnqueuer is the subset of *asynq.Client used here.
type asynqEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqPublisher sends fetch steps and mail tasks through asynq. Neither task
// kind is retried by asynq: a step's failures are absorbed by the step
// itself, and mail has its own single retry.
type AsynqPublisher struct {
	client asynqEnqueuer
	codec  *Codec
	logger *slog.Logger
}

func NewAsynqPublisher(client asynqEnqueuer, codec *Codec, logger *slog.Logger) *AsynqPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if codec == nil {
		codec = NewCodec(0)
	}
	return &AsynqPublisher{client: client, codec: codec, logger: logger}
}

// NewAsynqClient builds a client from a redis:// URL.
func NewAsynqClient(redisURL string) (*asynq.Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	return asynq.NewClient(opt), nil
}

func (p *AsynqPublisher) PublishStep(ctx context.Context, step types.FetchStep, delay time.Duration) error {
	payload, err := p.codec.Encode(KindFetchStep, step)
	if err != nil {
		return err
	}
	opts := []asynq.Option{asynq.MaxRetry(0), asynq.Timeout(time.Minute), asynq.Retention(time.Hour)}
	if delay > 0 {
		opts = append(opts, asynq.ProcessIn(delay))
	}
	if _, err := p.client.EnqueueContext(ctx, asynq.NewTask(TaskFetchStep, payload), opts...); err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue, "failed to enqueue fetch step", err)
	}
	p.logger.InfoContext(ctx, "fetch step enqueued",
		"trace_id", step.TraceID,
		"sequence", step.Sequence,
		"batch", step.IsBatch(),
	)
	return nil
}

func (p *AsynqPublisher) PublishMail(ctx context.Context, task types.MailTask) error {
	payload, err := p.codec.Encode(KindMailTask, task)
	if err != nil {
		return err
	}
	_, err = p.client.EnqueueContext(ctx, asynq.NewTask(TaskMail, payload),
		asynq.MaxRetry(0),
		asynq.Timeout(2*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue, "failed to enqueue mail task", err)
	}
	p.logger.InfoContext(ctx, "mail task enqueued", "trace_id", task.TraceID, "user_id", task.UserID)
	return nil
}
