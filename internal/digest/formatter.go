package digest

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"snipper/internal/types"
)

// ErrNothingToReport is returned by FormatDigest for an empty record list so
// callers can skip delivery.
var ErrNothingToReport = errors.New("nothing to report")

// Digest is one user's rendered report.
type Digest struct {
	Body      string
	DateLabel string
	Count     int
	// FellBack is set when the user's record format was unusable and the
	// default was applied to every record.
	FellBack bool
}

// FormatDigest renders records oldest-first, one per line, and labels the
// digest with label in dateFormat. label must already be in the user's zone.
//
// An invalid recordFormat is replaced by types.DefaultRecordFormat for the
// whole batch. An invalid dateFormat is an error for this digest only.
func FormatDigest(records []types.Record, recordFormat, dateFormat string, label time.Time) (*Digest, error) {
	if len(records) == 0 {
		return nil, ErrNothingToReport
	}

	dateLabel, err := RenderDate(dateFormat, label)
	if err != nil {
		return nil, err
	}

	d := &Digest{DateLabel: dateLabel, Count: len(records)}
	tmpl := recordFormat
	if ValidateRecordFormat(tmpl) != nil {
		tmpl = types.DefaultRecordFormat
		d.FellBack = true
	}

	lines := make([]string, 0, len(records))
	for _, r := range records {
		lines = append(lines, fmt.Sprintf(tmpl, r.Body))
	}
	d.Body = strings.Join(lines, "\n")
	return d, nil
}

// Subject is the mail subject line for a digest.
func Subject(userName, dateLabel string) string {
	return fmt.Sprintf("%s's digest since %s", userName, dateLabel)
}

// MailBody wraps a digest body for delivery.
func MailBody(dateLabel, body string) string {
	return fmt.Sprintf("Last week (%s)\n%s\n\n", dateLabel, body)
}
