package types

import (
	"strings"
	"time"
)

// Defaults applied to a UserSchedule on first contact.
const (
	DefaultRecordFormat = "- %s"
	DefaultDateFormat   = "%Y-%m-%d"
	DefaultTimezone     = "America/Los_Angeles"
	DefaultResetDay     = time.Monday
	DefaultResetHour    = 15

	// MaxRecordLength is the longest record body accepted at ingestion.
	MaxRecordLength = 500

	// MaxRecordsPerWindow caps a single window query.
	MaxRecordsPerWindow = 1000
)

// UserSchedule holds one user's weekly reset schedule and digest preferences.
//
// Day-of-week values use time.Weekday numbering (0=Sunday … 6=Saturday) for
// both the local and the derived UTC pair.
//
// UTCResetDay/UTCResetHour are derived from (ResetDay, ResetHour, Timezone)
// and must be recomputed in the same write whenever any of those change.
type UserSchedule struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`

	ResetDay  time.Weekday `json:"reset_day"`
	ResetHour int          `json:"reset_hour"`
	Timezone  string       `json:"timezone"`

	UTCResetDay  time.Weekday `json:"utc_reset_day"`
	UTCResetHour int          `json:"utc_reset_hour"`

	DeliveryEnabled bool `json:"delivery_enabled"`
	ConfirmDelivery bool `json:"confirm_delivery"`
	CheekyConfirm   bool `json:"cheeky_confirm"`

	RecordFormat string `json:"record_format"`
	DateFormat   string `json:"date_format"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DisplayName returns the name used in digest subjects: the local part of
// the email address, or the user ID when no email is known.
func (s *UserSchedule) DisplayName() string {
	if s.Email == "" {
		return s.UserID
	}
	if at := strings.IndexByte(s.Email, '@'); at > 0 {
		return s.Email[:at]
	}
	return s.Email
}

// Location loads the schedule's IANA timezone.
func (s *UserSchedule) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

// Record is one ingested snippet. Records are immutable once written.
type Record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Body      string    `json:"body"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Window is a transient reporting interval. It is produced fresh on every
// resolution and never persisted.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the closed interval [Start, End]
// used by record queries.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}
