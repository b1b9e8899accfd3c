package types

import "time"

// Logger is the minimal structured logging contract used by queue workers.
// *slog.Logger satisfies everything except With, so workers wrap it in a
// small adapter.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system time (always UTC).
type RealClock struct{}

// Now returns the current time in UTC.
func (RealClock) Now() time.Time { return time.Now().UTC() }

// FixedClock is a Clock frozen at a single instant.
type FixedClock struct {
	T time.Time
}

// Now returns the frozen instant.
func (c FixedClock) Now() time.Time { return c.T }
