package external

import (
	"context"

	"snipper/internal/types"
)

// EmailProvider abstracts the mail delivery channel (SES, SendGrid).
// Implementations transmit pre-rendered plain-text content and map vendor
// failures to types.AppError codes; a deadline or transport timeout is always
// reported as types.ErrCodeDeliveryTimeout.
type EmailProvider interface {
	// Send transmits one message and returns the provider's message ID.
	Send(ctx context.Context, input types.SendInput) (providerMsgID string, err error)
}
