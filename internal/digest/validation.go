package digest

import (
	"fmt"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"

	"snipper/internal/types"
)

// sampleInstant is rendered to prove a date format works before it is saved.
var sampleInstant = time.Date(2012, time.March, 5, 15, 4, 5, 0, time.UTC)

const sampleRecord = "test record"

// recordVerbs are the fmt verbs a record format may use for its one slot.
const recordVerbs = "svq"

// dateSpecifiers lists the strftime conversions accepted in a date format.
const dateSpecifiers = "aAbBcCdDeFgGhHIjmMnprRSTtuUVwWxXyYzZ%"

// ValidateRecordFormat checks that format is a template with exactly one
// string substitution slot. "%%" is a literal percent sign.
func ValidateRecordFormat(format string) error {
	slots := 0
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		i++
		// flags, width and precision
		for i < len(format) && strings.IndexByte("+-# 0123456789.", format[i]) >= 0 {
			i++
		}
		if i >= len(format) {
			return invalidRecordFormat(format, "dangling %")
		}
		switch verb := format[i]; {
		case verb == '%':
		case strings.IndexByte(recordVerbs, verb) >= 0:
			slots++
		default:
			return invalidRecordFormat(format, fmt.Sprintf("unsupported verb %%%c", verb))
		}
	}
	if slots != 1 {
		return invalidRecordFormat(format, fmt.Sprintf("want exactly one %%s slot, found %d", slots))
	}
	if strings.Contains(fmt.Sprintf(format, sampleRecord), "%!") {
		return invalidRecordFormat(format, "does not substitute cleanly")
	}
	return nil
}

func invalidRecordFormat(format, why string) error {
	return types.NewAppError(
		types.ErrCodeValidationInvalidRecordFormat,
		fmt.Sprintf("invalid record format %q: %s", format, why),
		nil,
	)
}

// ValidateDateFormat checks that format only uses supported strftime
// conversions and renders a sample instant to a non-empty string.
func ValidateDateFormat(format string) error {
	if strings.TrimSpace(format) == "" {
		return invalidDateFormat(format)
	}
	for i := 0; i < len(format); i++ {
		if format[i] != '%' {
			continue
		}
		i++
		if i >= len(format) || strings.IndexByte(dateSpecifiers, format[i]) < 0 {
			return invalidDateFormat(format)
		}
	}
	if strftime.Format(format, sampleInstant) == "" {
		return invalidDateFormat(format)
	}
	return nil
}

func invalidDateFormat(format string) error {
	return types.NewAppError(
		types.ErrCodeValidationInvalidDateFormat,
		fmt.Sprintf("invalid date format %q", format),
		nil,
	)
}

// ValidateTimezone resolves an IANA zone name. The empty string and "Local"
// are rejected because they do not name a fixed zone.
func ValidateTimezone(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return nil, invalidTimezone(name, nil)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, invalidTimezone(name, err)
	}
	return loc, nil
}

func invalidTimezone(name string, err error) error {
	return types.NewAppError(
		types.ErrCodeValidationInvalidTimezone,
		fmt.Sprintf("invalid timezone: %s", name),
		err,
	)
}

// RenderDate formats t with a strftime pattern after validating it.
func RenderDate(format string, t time.Time) (string, error) {
	if err := ValidateDateFormat(format); err != nil {
		return "", err
	}
	return strftime.Format(format, t), nil
}
