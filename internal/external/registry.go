package external

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"

	"snipper/internal/config"
)

// NewEmailProvider picks the delivery channel from configuration. Local
// environments always get the stub so the stack boots without credentials.
func NewEmailProvider(env string, cfg config.EmailConfig, awsCfg aws.Config, logger *slog.Logger) (EmailProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}

	provider := cfg.Provider
	if env == "local" {
		provider = "stub"
	}
	logger.Info("initializing email provider", "provider", provider, "environment", env)

	switch provider {
	case "stub":
		return NewStubEmailProvider(logger.With("mode", "stub")), nil
	case "ses":
		return NewSESClient(awsCfg, SESClientConfig{
			ConfigSetName: cfg.ConfigSetName,
			Logger:        logger.With("client", "ses"),
		}), nil
	case "sendgrid":
		if !cfg.SendGridAPIKey.IsSet() {
			return nil, fmt.Errorf("SENDGRID_API_KEY is required for the sendgrid provider")
		}
		return NewSendGridClient(&http.Client{Timeout: cfg.SendTimeout}, SendGridClientConfig{
			APIKey: cfg.SendGridAPIKey.Unmask(),
			Logger: logger.With("client", "sendgrid"),
		}), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", provider)
	}
}
