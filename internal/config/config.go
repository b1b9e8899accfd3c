// Package config defines the process configuration for snipper binaries.
// Configuration is loaded once at startup (Lambda cold start or CLI boot) and
// is immutable thereafter.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// A missing required value or invalid format fails startup.
package config

import (
	"time"

	"snipper/internal/types"
)

// SecretString is an alias for types.SecretString.
type SecretString = types.SecretString

// Config is the top-level configuration struct. Sub-components receive only
// the subset they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"snipper"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	AWS           AWSConfig
	Email         EmailConfig
	Digest        DigestConfig
	Security      SecurityConfig
	Chat          ChatConfig
	Observability ObservabilityConfig

	Build BuildInfo
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Port      string `envconfig:"PORT" default:"8080"`
	PublicURL string `envconfig:"PUBLIC_URL" default:"http://localhost:8080" validate:"url"`
}

// DatabaseConfig holds the Postgres connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	MaxConns          int32         `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
	MinConns          int32         `envconfig:"DB_MIN_CONNS" default:"1" validate:"min=0"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
	QueryTimeout      time.Duration `envconfig:"DB_QUERY_TIMEOUT" default:"5s"`
}

// RedisConfig holds the cache and asynq broker connection.
type RedisConfig struct {
	URL SecretString `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
}

// AWSConfig holds AWS resource identifiers.
type AWSConfig struct {
	Region        string `envconfig:"AWS_REGION" default:"us-east-1"`
	FetchQueueURL string `envconfig:"SQS_DIGEST_FETCH" validate:"omitempty,url"`
	MailQueueURL  string `envconfig:"SQS_DIGEST_MAIL" validate:"omitempty,url"`

	// QueueBackend selects where fetch steps and mail tasks travel: SQS for
	// the Lambda deployment, asynq (on REDIS_URL) for cmd/worker.
	QueueBackend string `envconfig:"QUEUE_BACKEND" default:"sqs" validate:"oneof=sqs asynq"`

	// LocalStack support; empty in prod.
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// EmailConfig selects and configures the mail delivery channel.
type EmailConfig struct {
	Provider       string        `envconfig:"EMAIL_PROVIDER" default:"ses" validate:"oneof=ses sendgrid stub"`
	SendGridAPIKey SecretString  `envconfig:"SENDGRID_API_KEY" validate:"required_if=Provider sendgrid"`
	FromAddress    string        `envconfig:"EMAIL_FROM_ADDRESS" default:"snipper@example.com" validate:"email"`
	FromName       string        `envconfig:"EMAIL_FROM_NAME" default:"Snipper"`
	ConfigSetName  string        `envconfig:"SES_CONFIGURATION_SET"`
	SendTimeout    time.Duration `envconfig:"EMAIL_SEND_TIMEOUT" default:"10s"`
}

// DigestConfig tunes the window cache and the fan-out pipeline.
type DigestConfig struct {
	RecordLimit      int           `envconfig:"DIGEST_RECORD_LIMIT" default:"1000" validate:"min=1,max=1000"`
	WindowCacheTTL   time.Duration `envconfig:"DIGEST_WINDOW_CACHE_TTL" default:"60s"`
	ScheduleCacheTTL time.Duration `envconfig:"DIGEST_SCHEDULE_CACHE_TTL" default:"10m"`
	BatchLookback    time.Duration `envconfig:"DIGEST_BATCH_LOOKBACK" default:"168h"`
	// Mail bodies at or above this size are zstd-compressed in queue payloads.
	CompressThreshold int `envconfig:"DIGEST_COMPRESS_THRESHOLD" default:"65536" validate:"min=0"`
	// StepDelay spaces chained fetch steps; zero enqueues immediately.
	StepDelay time.Duration `envconfig:"DIGEST_STEP_DELAY" default:"0s"`
}

// SecurityConfig holds the bcrypt hash of the administrative API key that
// unlocks forced digest runs.
type SecurityConfig struct {
	AdminAPIKeyHash SecretString `envconfig:"ADMIN_API_KEY_HASH"`
}

// ChatConfig configures the Telegram chat front end.
type ChatConfig struct {
	TelegramToken SecretString  `envconfig:"TELEGRAM_BOT_TOKEN"`
	PollTimeout   time.Duration `envconfig:"TELEGRAM_POLL_TIMEOUT" default:"30s"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Snipper"`
	EnableMetrics   bool   `envconfig:"ENABLE_METRICS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	ErrMissingEnv    ConfigErrorType = "MISSING_ENV"
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	ErrValidation    ConfigErrorType = "VALIDATION_FAILED"
	ErrParsing       ConfigErrorType = "PARSING_FAILED"
)
