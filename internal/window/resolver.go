// Package window converts a weekly reset schedule (weekday, hour, timezone)
// into concrete reset instants.
//
// Weekdays use time.Weekday numbering (0=Sunday … 6=Saturday) and a week runs
// Sunday through Saturday. All arithmetic is done on the wall clock of the
// schedule's location, so a "week" is seven calendar days and a reset at
// 15:00 stays at 15:00 local time across DST transitions. A reset hour that
// does not exist on a spring-forward day is normalized by time.Date for that
// week only.
package window

import (
	"fmt"
	"time"

	"snipper/internal/types"
)

const daysPerWeek = 7

// ResolveCurrentReset returns the reset instant for the calendar week that
// contains ref: ref's date at hour:00:00 in loc, shifted to weekday within the
// same Sunday..Saturday week. The result may be after ref.
func ResolveCurrentReset(weekday time.Weekday, hour int, loc *time.Location, ref time.Time) time.Time {
	return resetAt(weekday, hour, loc, ref, 0)
}

// ResolvePreviousReset returns the most recent reset at or before ref, moved
// back weeksBack further weeks. Negative weeksBack is treated as 0.
func ResolvePreviousReset(weekday time.Weekday, hour int, loc *time.Location, weeksBack int, ref time.Time) time.Time {
	if weeksBack < 0 {
		weeksBack = 0
	}
	weeks := -weeksBack
	if ResolveCurrentReset(weekday, hour, loc, ref).After(ref) {
		weeks--
	}
	return resetAt(weekday, hour, loc, ref, weeks)
}

// ResolveNextReset returns the first reset strictly after ref, moved back
// weeksBack weeks. With weeksBack=0 it pairs with ResolvePreviousReset so
// that previous <= ref < next.
func ResolveNextReset(weekday time.Weekday, hour int, loc *time.Location, weeksBack int, ref time.Time) time.Time {
	if weeksBack < 0 {
		weeksBack = 0
	}
	weeks := -weeksBack
	if !ResolveCurrentReset(weekday, hour, loc, ref).After(ref) {
		weeks++
	}
	return resetAt(weekday, hour, loc, ref, weeks)
}

// resetAt builds the reset weeks away from ref's calendar week with a single
// time.Date call, so an hour normalized by a DST gap in one week never leaks
// into another.
func resetAt(weekday time.Weekday, hour int, loc *time.Location, ref time.Time, weeks int) time.Time {
	local := ref.In(loc)
	delta := int(weekday) - int(local.Weekday()) + daysPerWeek*weeks
	return time.Date(local.Year(), local.Month(), local.Day()+delta, hour, 0, 0, 0, loc)
}

// Resolve returns the reporting window weeksBack weeks behind the one that
// contains ref.
func Resolve(weekday time.Weekday, hour int, loc *time.Location, weeksBack int, ref time.Time) types.Window {
	return types.Window{
		Start: ResolvePreviousReset(weekday, hour, loc, weeksBack, ref),
		End:   ResolveNextReset(weekday, hour, loc, weeksBack, ref),
	}
}

// ConvertResetToUtc returns the UTC weekday and hour of the most recent local
// reset at or before ref. It is used to maintain the derived UTC pair on a
// UserSchedule.
func ConvertResetToUtc(weekday time.Weekday, hour int, loc *time.Location, ref time.Time) (time.Weekday, int) {
	utc := ResolvePreviousReset(weekday, hour, loc, 0, ref).UTC()
	return utc.Weekday(), utc.Hour()
}

// Schedule resolves windows for one user's schedule.
type Schedule struct {
	Weekday time.Weekday
	Hour    int
	Loc     *time.Location
}

// ForUser builds a Schedule from a stored UserSchedule.
func ForUser(s *types.UserSchedule) (Schedule, error) {
	if err := ValidateDayHour(s.ResetDay, s.ResetHour); err != nil {
		return Schedule{}, err
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return Schedule{}, types.NewAppError(
			types.ErrCodeValidationInvalidTimezone,
			fmt.Sprintf("unknown timezone %q", s.Timezone),
			err,
		)
	}
	return Schedule{Weekday: s.ResetDay, Hour: s.ResetHour, Loc: loc}, nil
}

// Window returns the window weeksBack weeks behind the one containing ref.
func (s Schedule) Window(weeksBack int, ref time.Time) types.Window {
	return Resolve(s.Weekday, s.Hour, s.Loc, weeksBack, ref)
}

// Previous returns ResolvePreviousReset for this schedule.
func (s Schedule) Previous(weeksBack int, ref time.Time) time.Time {
	return ResolvePreviousReset(s.Weekday, s.Hour, s.Loc, weeksBack, ref)
}

// UTC returns the derived UTC weekday/hour pair at ref.
func (s Schedule) UTC(ref time.Time) (time.Weekday, int) {
	return ConvertResetToUtc(s.Weekday, s.Hour, s.Loc, ref)
}

// ValidateDayHour checks that weekday is in [0,6] and hour in [0,23].
func ValidateDayHour(weekday time.Weekday, hour int) error {
	if weekday < time.Sunday || weekday > time.Saturday {
		return types.NewAppError(
			types.ErrCodeValidationInvalidResetDay,
			fmt.Sprintf("reset day %d out of range 0-6", weekday),
			nil,
		)
	}
	if hour < 0 || hour > 23 {
		return types.NewAppError(
			types.ErrCodeValidationInvalidResetHour,
			fmt.Sprintf("reset hour %d out of range 0-23", hour),
			nil,
		)
	}
	return nil
}
