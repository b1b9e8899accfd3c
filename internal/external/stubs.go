package external

import (
	"context"
	"log/slog"

	"snipper/internal/types"
)

// StubEmailProvider logs messages instead of sending them. Used when
// EMAIL_PROVIDER=stub or APP_ENV=local.
type StubEmailProvider struct {
	logger *slog.Logger
}

func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &StubEmailProvider{logger: logger}
}

func (s *StubEmailProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	s.logger.InfoContext(ctx, "stub: send email",
		"to", types.RedactEmail(input.To),
		"subject", input.Subject,
		"body_len", len(input.BodyText),
	)
	return "msg_stub_" + input.ReferenceID, nil
}

var _ EmailProvider = (*StubEmailProvider)(nil)
