package types

import "time"

// FetchStep is the continuation carried between fan-out invocations. No other
// state survives from one step to the next; everything a step needs to resume
// the chain travels in this payload.
type FetchStep struct {
	// Offset is the number of whole weeks to shift the reporting window back.
	Offset int `json:"offset"`

	// Cron marks steps that originated from the recurring trigger.
	Cron bool `json:"cron,omitempty"`

	// Force selects every schedule row regardless of delivery/day/hour
	// filters. Only set after the trigger verified an administrative caller.
	Force bool `json:"force,omitempty"`

	// Cursor is the opaque resume position; empty on the first batch step.
	Cursor string `json:"cursor,omitempty"`

	UTCResetDay  time.Weekday `json:"utc_reset_day"`
	UTCResetHour int          `json:"utc_reset_hour"`

	// RecipientID/RecipientEmail select single-user mode.
	RecipientID    string `json:"recipient_id,omitempty"`
	RecipientEmail string `json:"recipient_email,omitempty"`

	// Sequence counts steps within one chain, for logs only.
	Sequence int    `json:"sequence,omitempty"`
	TraceID  string `json:"trace_id,omitempty"`
}

// IsBatch reports whether the step iterates due users. A resumable cursor
// always keeps the chain in batch mode.
func (s FetchStep) IsBatch() bool {
	return s.Cron || s.Force || s.Cursor != ""
}

// MailTask is the delivery payload handed to the mail worker.
type MailTask struct {
	UserID    string `json:"user_id"`
	UserName  string `json:"user_name"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	DateLabel string `json:"date_label"`
	TraceID   string `json:"trace_id,omitempty"`
}

// SenderIdentity is the From identity on outgoing mail.
type SenderIdentity struct {
	Name    string
	Address string
}

// SendInput is one plain-text message handed to an email provider.
type SendInput struct {
	To       string
	From     SenderIdentity
	Subject  string
	BodyText string
	// ReferenceID correlates provider events with the mail task.
	ReferenceID string
}
