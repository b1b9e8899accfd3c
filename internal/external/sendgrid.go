package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"snipper/internal/types"
)

const sendGridAPIBase = "https://api.sendgrid.com"

type SendGridClientConfig struct {
	APIKey string
	// BaseURL overrides sendGridAPIBase; tests point it at httptest.
	BaseURL string
	Logger  *slog.Logger
}

// SendGridClient implements EmailProvider against the SendGrid v3 Mail Send
// API through BaseClient.
type SendGridClient struct {
	base    *BaseClient
	apiKey  string
	baseURL string
	logger  *slog.Logger
}

// NewSendGridClient creates a client. httpClient.Timeout bounds one attempt.
func NewSendGridClient(httpClient *http.Client, cfg SendGridClientConfig) *SendGridClient {
	base := NewBaseClient(httpClient, "sendgrid", DefaultRetryPolicy(), "Snipper/1.0")
	return NewSendGridClientWithBase(base, cfg)
}

func NewSendGridClientWithBase(base *BaseClient, cfg SendGridClientConfig) *SendGridClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = sendGridAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SendGridClient{
		base:    base,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Send posts a plain-text message and returns the X-Message-Id header.
//
// Error mapping:
//   - timeout → ErrCodeDeliveryTimeout (from BaseClient)
//   - 403 → ErrCodeEmailBlocked (suppression list)
//   - 429 / 5xx → handled by BaseClient
//   - other 4xx → ErrCodeUpstreamEmailProvider
func (s *SendGridClient) Send(ctx context.Context, input types.SendInput) (string, error) {
	body, err := json.Marshal(buildMailPayload(input))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to marshal SendGrid payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create SendGrid request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	start := time.Now()
	resp, err := s.base.Do(req)
	if err != nil {
		return "", wrapSendGridError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusAccepted {
		s.logger.DebugContext(ctx, "sendgrid accepted message",
			"reference_id", input.ReferenceID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp.Header.Get("X-Message-Id"), nil
	}
	return "", handleErrorResponse(resp)
}

type sendGridMailPayload struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	CustomArgs       map[string]string         `json:"custom_args,omitempty"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func buildMailPayload(input types.SendInput) sendGridMailPayload {
	payload := sendGridMailPayload{
		Personalizations: []sendGridPersonalization{{
			To: []sendGridAddress{{Email: input.To}},
		}},
		From:    sendGridAddress{Email: input.From.Address, Name: input.From.Name},
		Subject: input.Subject,
		Content: []sendGridContent{{Type: "text/plain", Value: input.BodyText}},
	}
	if input.ReferenceID != "" {
		payload.CustomArgs = map[string]string{"reference_id": input.ReferenceID}
	}
	return payload
}

type sendGridErrorResponse struct {
	Errors []struct {
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"errors"`
}

func handleErrorResponse(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			fmt.Sprintf("SendGrid returned status %d with unreadable body", resp.StatusCode),
			readErr,
		)
	}

	msg := string(body)
	var sgErr sendGridErrorResponse
	if json.Unmarshal(body, &sgErr) == nil && len(sgErr.Errors) > 0 {
		msg = sgErr.Errors[0].Message
	}

	if resp.StatusCode == http.StatusForbidden {
		return types.NewAppError(types.ErrCodeEmailBlocked, "SendGrid blocked delivery: "+msg, nil)
	}
	return types.NewAppError(
		types.ErrCodeUpstreamEmailProvider,
		fmt.Sprintf("SendGrid error (%d): %s", resp.StatusCode, msg),
		nil,
	)
}

func wrapSendGridError(err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	if IsTimeout(err) {
		return timeoutError("SendGrid", err)
	}
	return types.NewAppError(types.ErrCodeUpstreamEmailProvider, "SendGrid request failed", err)
}

var _ EmailProvider = (*SendGridClient)(nil)
