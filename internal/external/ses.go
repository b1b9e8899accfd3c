package external

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"snipper/internal/types"
)

// SESAPI is the subset of the SES v2 client used by SESClient.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESClientConfig struct {
	// ConfigSetName is optional.
	ConfigSetName string
	Logger        *slog.Logger
}

// SESClient implements EmailProvider using AWS SES v2. The SDK retries
// throttling on its own; IAM supplies credentials.
type SESClient struct {
	api           SESAPI
	configSetName string
	logger        *slog.Logger
}

func NewSESClient(awsCfg aws.Config, cfg SESClientConfig) *SESClient {
	return NewSESClientWithAPI(sesv2.NewFromConfig(awsCfg), cfg)
}

func NewSESClientWithAPI(api SESAPI, cfg SESClientConfig) *SESClient {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SESClient{
		api:           api,
		configSetName: cfg.ConfigSetName,
		logger:        logger,
	}
}

// Send transmits a plain-text message.
//
// Error mapping:
//   - deadline / transport timeout → ErrCodeDeliveryTimeout
//   - MessageRejected → ErrCodeEmailBlocked
//   - TooManyRequestsException → ErrCodeUpstreamRateLimited
//   - SendingPausedException → ErrCodeUpstreamUnavailable
//   - other → ErrCodeUpstreamEmailProvider
func (s *SESClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	emailInput := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(formatAddress(input.From)),
		Destination: &sestypes.Destination{
			ToAddresses: []string{input.To},
		},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{
					Data:    aws.String(input.Subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &sestypes.Body{
					Text: &sestypes.Content{
						Data:    aws.String(input.BodyText),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}
	if s.configSetName != "" {
		emailInput.ConfigurationSetName = aws.String(s.configSetName)
	}
	if input.ReferenceID != "" {
		emailInput.EmailTags = []sestypes.MessageTag{{
			Name:  aws.String("ReferenceID"),
			Value: aws.String(input.ReferenceID),
		}}
	}

	result, err := s.api.SendEmail(ctx, emailInput)
	if err != nil {
		return "", mapSESError(err)
	}
	return aws.ToString(result.MessageId), nil
}

func formatAddress(id types.SenderIdentity) string {
	if id.Name == "" {
		return id.Address
	}
	return fmt.Sprintf("%s <%s>", id.Name, id.Address)
}

func mapSESError(err error) error {
	if IsTimeout(err) {
		return timeoutError("SES", err)
	}

	var msgRejected *sestypes.MessageRejected
	if errors.As(err, &msgRejected) {
		return types.NewAppError(types.ErrCodeEmailBlocked, fmt.Sprintf("SES rejected message: %v", err), err)
	}
	var tooManyReqs *sestypes.TooManyRequestsException
	if errors.As(err, &tooManyReqs) {
		return types.NewAppError(types.ErrCodeUpstreamRateLimited, fmt.Sprintf("SES rate limit exceeded: %v", err), err)
	}
	var sendingPaused *sestypes.SendingPausedException
	if errors.As(err, &sendingPaused) {
		return types.NewAppError(types.ErrCodeUpstreamUnavailable, fmt.Sprintf("SES account sending paused: %v", err), err)
	}

	return types.NewAppError(types.ErrCodeUpstreamEmailProvider, fmt.Sprintf("SES error: %v", err), err)
}

var _ EmailProvider = (*SESClient)(nil)
