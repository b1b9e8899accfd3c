package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric and dimension names.
const (
	MetricDigestDelivery        = "DigestDelivery"
	MetricDigestDeliveryLatency = "DigestDeliveryLatency"
	MetricDigestUsersProcessed  = "DigestUsersProcessed"

	DimResult  = "Result"
	DimOutcome = "Outcome"
)

// CloudWatchClient abstracts PutMetricData for testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics emits pipeline metrics:
//   - DigestDelivery: Dims {Result}, one per Deliver call
//   - DigestDeliveryLatency: no dims, milliseconds across all attempts
//   - DigestUsersProcessed: Dims {Outcome}, one per fan-out user
//
// Publishing failures are logged and never returned.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{client: client, namespace: namespace, logger: logger}
}

func (m *CloudWatchMetrics) RecordDelivery(ctx context.Context, result Result) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricDigestDelivery),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{{Name: aws.String(DimResult), Value: aws.String(string(result))}},
	})
}

func (m *CloudWatchMetrics) RecordLatency(ctx context.Context, d time.Duration) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricDigestDeliveryLatency),
		Value:      aws.Float64(float64(d.Milliseconds())),
		Unit:       cwtypes.StandardUnitMilliseconds,
	})
}

// RecordUserProcessed satisfies scheduler.StepRecorder.
func (m *CloudWatchMetrics) RecordUserProcessed(ctx context.Context, outcome string) {
	m.put(ctx, cwtypes.MetricDatum{
		MetricName: aws.String(MetricDigestUsersProcessed),
		Value:      aws.Float64(1),
		Unit:       cwtypes.StandardUnitCount,
		Dimensions: []cwtypes.Dimension{{Name: aws.String(DimOutcome), Value: aws.String(outcome)}},
	})
}

func (m *CloudWatchMetrics) put(ctx context.Context, datum cwtypes.MetricDatum) {
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "failed to put metric",
			"metric", aws.ToString(datum.MetricName),
			"error", err,
		)
	}
}

// NoopMetrics discards everything. Used when ENABLE_METRICS=false.
type NoopMetrics struct{}

func (NoopMetrics) RecordDelivery(context.Context, Result)       {}
func (NoopMetrics) RecordLatency(context.Context, time.Duration) {}
func (NoopMetrics) RecordUserProcessed(context.Context, string)  {}
