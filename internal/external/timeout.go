package external

import (
	"context"
	"errors"
	"net"

	"snipper/internal/types"
)

// IsTimeout reports whether err is a deadline or transport timeout, directly
// or anywhere in its chain.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if types.HasCode(err, types.ErrCodeDeliveryTimeout) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func timeoutError(provider string, err error) *types.AppError {
	return types.NewAppError(
		types.ErrCodeDeliveryTimeout,
		provider+" send timed out",
		err,
	)
}
