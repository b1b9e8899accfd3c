// Package app wires the digest pipeline from a loaded Config. The binaries
// under cmd/ differ only in how work reaches them (HTTP, EventBridge, SQS,
// asynq, Telegram), so they share one assembly of stores, caches and
// services.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"snipper/internal/cache"
	"snipper/internal/config"
	"snipper/internal/db"
	"snipper/internal/delivery"
	"snipper/internal/digest"
	"snipper/internal/external"
	"snipper/internal/queue"
	"snipper/internal/records"
	"snipper/internal/scheduler"
	"snipper/internal/types"
)

// NewLogger returns a JSON slog.Logger at the given level. Unknown levels
// fall back to info.
func NewLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// Deps is the assembled pipeline. Fields are safe for concurrent use.
type Deps struct {
	Config *config.Config
	Logger *slog.Logger
	AWS    aws.Config

	Pool  *pgxpool.Pool
	Redis *redis.Client
	KV    *cache.RedisStore

	Schedules   *cache.CachedSchedules
	Records     *records.Service
	Adapter     *digest.Adapter
	Preferences *digest.Preferences
	Fanout      *scheduler.Fanout
	Resync      *scheduler.ResyncService
	Metrics     *delivery.CloudWatchMetrics

	closers []func()
}

// Build connects to Postgres and Redis and assembles every service. The
// step publisher follows cfg.AWS.QueueBackend. Close releases what Build
// opened, also when Build fails halfway.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (d *Deps, err error) {
	d = &Deps{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			d.Close()
			d = nil
		}
	}()

	d.AWS, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return d, fmt.Errorf("loading AWS config: %w", err)
	}

	d.Pool, err = db.NewPool(ctx, cfg.Database)
	if err != nil {
		return d, err
	}
	d.closers = append(d.closers, d.Pool.Close)

	d.Redis, err = cache.NewClient(cfg.Redis.URL.Unmask())
	if err != nil {
		return d, err
	}
	d.closers = append(d.closers, func() { _ = d.Redis.Close() })
	d.KV = cache.NewRedisStore(d.Redis)

	clock := types.RealClock{}
	scheduleRepo := db.NewScheduleRepository(d.Pool)
	recordRepo := db.NewRecordRepository(d.Pool)

	d.Schedules = cache.NewCachedSchedules(scheduleRepo, d.KV, cfg.Digest.ScheduleCacheTTL)
	d.Records = records.NewService(recordRepo, d.Schedules, clock, logger.With("component", "records"))
	d.Adapter = digest.NewAdapter(recordRepo, d.KV, cfg.Digest.WindowCacheTTL, clock, logger.With("component", "adapter"))
	d.Preferences = digest.NewPreferences(d.Schedules, nil, d.Adapter, clock, logger.With("component", "preferences"))
	d.Resync = scheduler.NewResyncService(d.Schedules, logger.With("component", "resync"))

	if cfg.Observability.EnableMetrics && cfg.Environment != "local" {
		d.Metrics = delivery.NewCloudWatchMetrics(cloudwatch.NewFromConfig(d.AWS), cfg.Observability.MetricNamespace, logger)
	}

	publisher, err := d.newPublisher()
	if err != nil {
		return d, err
	}

	var recorder scheduler.StepRecorder
	if d.Metrics != nil {
		recorder = d.Metrics
	}
	d.Fanout = scheduler.NewFanout(d.Schedules, d.Adapter, publisher, recorder, scheduler.FanoutConfig{
		RecordLimit: cfg.Digest.RecordLimit,
		Lookback:    cfg.Digest.BatchLookback,
		StepDelay:   cfg.Digest.StepDelay,
	}, clock, logger.With("component", "fanout"))

	return d, nil
}

func (d *Deps) newPublisher() (scheduler.StepPublisher, error) {
	codec := queue.NewCodec(d.Config.Digest.CompressThreshold)
	logger := d.Logger.With("component", "queue", "backend", d.Config.AWS.QueueBackend)

	switch d.Config.AWS.QueueBackend {
	case "asynq":
		client, err := queue.NewAsynqClient(d.Config.Redis.URL.Unmask())
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() { _ = client.Close() })
		return queue.NewAsynqPublisher(client, codec, logger), nil
	case "sqs", "":
		if d.Config.AWS.FetchQueueURL == "" || d.Config.AWS.MailQueueURL == "" {
			return nil, errors.New("SQS_DIGEST_FETCH and SQS_DIGEST_MAIL are required for the sqs queue backend")
		}
		return queue.NewSQSPublisher(sqs.NewFromConfig(d.AWS), d.Config.AWS, codec, logger), nil
	default:
		return nil, fmt.Errorf("unknown queue backend %q", d.Config.AWS.QueueBackend)
	}
}

// NewDispatcher builds the mail dispatcher on the configured provider.
func (d *Deps) NewDispatcher() (*delivery.Dispatcher, error) {
	provider, err := external.NewEmailProvider(d.Config.Environment, d.Config.Email, d.AWS, d.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating email provider: %w", err)
	}
	var metrics delivery.Metrics = delivery.NoopMetrics{}
	if d.Metrics != nil {
		metrics = d.Metrics
	}
	return delivery.NewDispatcher(provider, delivery.DispatcherConfig{
		From: types.SenderIdentity{
			Name:    d.Config.Email.FromName,
			Address: d.Config.Email.FromAddress,
		},
		SendTimeout: d.Config.Email.SendTimeout,
	}, metrics, d.Logger.With("component", "dispatcher")), nil
}

// Close releases connections in reverse order of acquisition.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
	d.closers = nil
}
