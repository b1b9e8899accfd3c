// Package queue carries fan-out steps and mail tasks between workers, over
// SQS in AWS and over asynq when running on Redis.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"snipper/internal/config"
	"snipper/internal/types"
)

// maxSQSDelay is the largest DelaySeconds SQS accepts.
const maxSQSDelay = 15 * time.Minute

// SQSSender abstracts the SQS SendMessage operation for testability.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends fetch steps and mail tasks to their SQS queues.
type SQSPublisher struct {
	client   SQSSender
	fetchURL string
	mailURL  string
	codec    *Codec
	logger   *slog.Logger
}

func NewSQSPublisher(client SQSSender, awsCfg config.AWSConfig, codec *Codec, logger *slog.Logger) *SQSPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if codec == nil {
		codec = NewCodec(0)
	}
	return &SQSPublisher{
		client:   client,
		fetchURL: awsCfg.FetchQueueURL,
		mailURL:  awsCfg.MailQueueURL,
		codec:    codec,
		logger:   logger,
	}
}

// PublishStep enqueues the next fan-out step, visible after delay.
func (p *SQSPublisher) PublishStep(ctx context.Context, step types.FetchStep, delay time.Duration) error {
	body, err := p.codec.Encode(KindFetchStep, step)
	if err != nil {
		return err
	}
	if err := p.send(ctx, p.fetchURL, KindFetchStep, body, delay); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "fetch step enqueued",
		"trace_id", step.TraceID,
		"sequence", step.Sequence,
		"batch", step.IsBatch(),
		"has_cursor", step.Cursor != "",
	)
	return nil
}

// PublishMail enqueues a rendered digest for delivery.
func (p *SQSPublisher) PublishMail(ctx context.Context, task types.MailTask) error {
	body, err := p.codec.Encode(KindMailTask, task)
	if err != nil {
		return err
	}
	if err := p.send(ctx, p.mailURL, KindMailTask, body, 0); err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "mail task enqueued",
		"trace_id", task.TraceID,
		"user_id", task.UserID,
	)
	return nil
}

func (p *SQSPublisher) send(ctx context.Context, queueURL, kind string, body []byte, delay time.Duration) error {
	if queueURL == "" {
		return types.NewAppError(types.ErrCodeInternalQueue, fmt.Sprintf("no queue configured for %s", kind), nil)
	}
	_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:     aws.String(queueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delaySeconds(delay),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"kind": {
				DataType:    aws.String("String"),
				StringValue: aws.String(kind),
			},
		},
	})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue, fmt.Sprintf("failed to send %s to %s", kind, queueURL), err)
	}
	return nil
}

func delaySeconds(d time.Duration) int32 {
	if d <= 0 {
		return 0
	}
	if d > maxSQSDelay {
		d = maxSQSDelay
	}
	return int32(d / time.Second)
}
