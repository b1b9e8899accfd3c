package digest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"snipper/internal/types"
	"snipper/internal/window"
)

// NewDefaultSchedule builds the schedule created on a user's first contact,
// with the derived UTC pair computed at now.
func NewDefaultSchedule(userID, email string, now time.Time) *types.UserSchedule {
	s := &types.UserSchedule{
		UserID:          userID,
		Email:           email,
		ResetDay:        types.DefaultResetDay,
		ResetHour:       types.DefaultResetHour,
		Timezone:        types.DefaultTimezone,
		DeliveryEnabled: true,
		ConfirmDelivery: true,
		RecordFormat:    types.DefaultRecordFormat,
		DateFormat:      types.DefaultDateFormat,
	}
	if loc, err := time.LoadLocation(s.Timezone); err == nil {
		s.UTCResetDay, s.UTCResetHour = window.ConvertResetToUtc(s.ResetDay, s.ResetHour, loc, now)
	}
	return s
}

// PreferencesUpdate carries the fields a caller wants to change. Nil fields
// are left as stored.
type PreferencesUpdate struct {
	Email           *string `json:"email,omitempty"`
	Timezone        *string `json:"timezone,omitempty"`
	ResetDay        *int    `json:"reset_day,omitempty"`
	ResetHour       *int    `json:"reset_hour,omitempty"`
	DateFormat      *string `json:"date_format,omitempty"`
	RecordFormat    *string `json:"record_format,omitempty"`
	DeliveryEnabled *bool   `json:"delivery_enabled,omitempty"`
	ConfirmDelivery *bool   `json:"confirm_delivery,omitempty"`
	CheekyConfirm   *bool   `json:"cheeky_confirm,omitempty"`
}

// ScheduleStore is the persistence the preferences service writes through.
type ScheduleStore interface {
	Get(ctx context.Context, userID string) (*types.UserSchedule, error)
	Update(ctx context.Context, s *types.UserSchedule) error
}

// ScheduleWriteThrough receives every committed schedule.
type ScheduleWriteThrough interface {
	Put(ctx context.Context, s *types.UserSchedule)
}

// WindowInvalidator drops cached window results for a user.
type WindowInvalidator interface {
	Invalidate(ctx context.Context, userID string, offsets ...int)
}

// Preferences validates and applies preference edits.
type Preferences struct {
	store   ScheduleStore
	cache   ScheduleWriteThrough
	windows WindowInvalidator
	clock   types.Clock
	logger  *slog.Logger
}

func NewPreferences(store ScheduleStore, cache ScheduleWriteThrough, windows WindowInvalidator, clock types.Clock, logger *slog.Logger) *Preferences {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Preferences{store: store, cache: cache, windows: windows, clock: clock, logger: logger}
}

// Save applies every valid field in upd and persists the result in one
// write. Invalid fields are left as stored and reported together as a
// validation AppError, returned alongside the saved schedule. The derived UTC
// pair is recomputed from the resulting local fields whenever any of them
// changed.
func (p *Preferences) Save(ctx context.Context, userID string, upd PreferencesUpdate) (*types.UserSchedule, error) {
	current, err := p.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	next, verrs := Apply(current, upd)

	resetMoved := localScheduleChanged(current, next)
	if resetMoved {
		loc, err := time.LoadLocation(next.Timezone)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "validated timezone failed to load", err)
		}
		next.UTCResetDay, next.UTCResetHour = window.ConvertResetToUtc(next.ResetDay, next.ResetHour, loc, p.clock.Now())
	}

	if *next != *current {
		if err := p.store.Update(ctx, next); err != nil {
			return nil, err
		}
		if p.cache != nil {
			p.cache.Put(ctx, next)
		}
		// Cached windows were resolved against the old reset.
		if resetMoved && p.windows != nil {
			p.windows.Invalidate(ctx, userID, 0, 1)
		}
		p.logger.InfoContext(ctx, "preferences saved",
			"user_id", userID,
			"utc_reset_day", int(next.UTCResetDay),
			"utc_reset_hour", next.UTCResetHour,
		)
	}

	if len(verrs) > 0 {
		p.logger.InfoContext(ctx, "preferences rejected fields", "user_id", userID, "fields", verrs.Fields())
		return next, verrs.AppError()
	}
	return next, nil
}

// Apply returns a copy of s with every valid field of upd applied, plus the
// fields that were rejected. It does not touch the derived UTC pair.
func Apply(s *types.UserSchedule, upd PreferencesUpdate) (*types.UserSchedule, types.ValidationErrors) {
	next := *s
	var verrs types.ValidationErrors

	if upd.Timezone != nil {
		name := strings.TrimSpace(*upd.Timezone)
		if _, err := ValidateTimezone(name); err != nil {
			verrs.Add("timezone", "invalid timezone: "+*upd.Timezone)
		} else {
			next.Timezone = name
		}
	}
	if upd.ResetDay != nil {
		if err := window.ValidateDayHour(time.Weekday(*upd.ResetDay), 0); err != nil {
			verrs.Add("reset_day", fmt.Sprintf("invalid reset day %d", *upd.ResetDay))
		} else {
			next.ResetDay = time.Weekday(*upd.ResetDay)
		}
	}
	if upd.ResetHour != nil {
		if err := window.ValidateDayHour(time.Sunday, *upd.ResetHour); err != nil {
			verrs.Add("reset_hour", fmt.Sprintf("invalid reset hour %d", *upd.ResetHour))
		} else {
			next.ResetHour = *upd.ResetHour
		}
	}
	if upd.DateFormat != nil {
		if err := ValidateDateFormat(*upd.DateFormat); err != nil {
			verrs.Add("date_format", fmt.Sprintf("invalid date format %q", *upd.DateFormat))
		} else {
			next.DateFormat = *upd.DateFormat
		}
	}
	if upd.RecordFormat != nil {
		if err := ValidateRecordFormat(*upd.RecordFormat); err != nil {
			verrs.Add("record_format", fmt.Sprintf("invalid record format %q", *upd.RecordFormat))
		} else {
			next.RecordFormat = *upd.RecordFormat
		}
	}
	if upd.Email != nil {
		next.Email = strings.TrimSpace(*upd.Email)
	}
	if upd.DeliveryEnabled != nil {
		next.DeliveryEnabled = *upd.DeliveryEnabled
	}
	if upd.ConfirmDelivery != nil {
		next.ConfirmDelivery = *upd.ConfirmDelivery
	}
	if upd.CheekyConfirm != nil {
		next.CheekyConfirm = *upd.CheekyConfirm
	}
	return &next, verrs
}

func localScheduleChanged(a, b *types.UserSchedule) bool {
	return a.Timezone != b.Timezone || a.ResetDay != b.ResetDay || a.ResetHour != b.ResetHour
}
