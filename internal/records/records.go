// Package records ingests user records from the HTTP API and chat.
package records

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"snipper/internal/digest"
	"snipper/internal/types"
)

// Store persists records.
type Store interface {
	Insert(ctx context.Context, rec *types.Record) error
	Last(ctx context.Context, userID string) (*types.Record, error)
}

// ScheduleEnsurer creates a user's schedule on first contact.
type ScheduleEnsurer interface {
	Ensure(ctx context.Context, defaults *types.UserSchedule) (*types.UserSchedule, error)
}

// Service validates and saves records.
type Service struct {
	store     Store
	schedules ScheduleEnsurer
	clock     types.Clock
	logger    *slog.Logger
	newID     func() string
}

func NewService(store Store, schedules ScheduleEnsurer, clock types.Clock, logger *slog.Logger) *Service {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		schedules: schedules,
		clock:     clock,
		logger:    logger,
		newID:     func() string { return "rec_" + uuid.NewString() },
	}
}

// EnsureUser returns the user's schedule, creating it with defaults on first
// contact.
func (s *Service) EnsureUser(ctx context.Context, userID, email string) (*types.UserSchedule, error) {
	return s.schedules.Ensure(ctx, digest.NewDefaultSchedule(userID, email, s.clock.Now()))
}

// Save stores one record for userID. Empty bodies and bodies longer than
// types.MaxRecordLength characters are rejected without touching the store.
func (s *Service) Save(ctx context.Context, userID, source, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return types.NewAppError(types.ErrCodeRecordRejected, "empty record", nil)
	}
	if utf8.RuneCountInString(body) > types.MaxRecordLength {
		return types.NewAppError(types.ErrCodeRecordRejected, "Bad value given. 500 chars max.", nil)
	}
	if !utf8.ValidString(body) {
		return types.NewAppError(types.ErrCodeRecordRejected, "record is not valid UTF-8", nil)
	}

	rec := &types.Record{
		ID:        s.newID(),
		UserID:    userID,
		Body:      body,
		Source:    source,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.Insert(ctx, rec); err != nil {
		s.logger.WarnContext(ctx, "record save failed", "user_id", userID, "source", source, "error", err)
		return err
	}
	return nil
}

// SaveLines saves each non-empty line of text as its own record. Every line
// is attempted; the first error is returned.
func (s *Service) SaveLines(ctx context.Context, userID, source, text string) (int, error) {
	var (
		saved    int
		firstErr error
	)
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err := s.Save(ctx, userID, source, line); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		saved++
	}
	return saved, firstErr
}

// Last returns the body of the user's most recent record.
func (s *Service) Last(ctx context.Context, userID string) (string, error) {
	rec, err := s.store.Last(ctx, userID)
	if err != nil {
		return "", err
	}
	return rec.Body, nil
}
