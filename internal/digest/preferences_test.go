package digest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snipper/internal/types"
)

type fakeScheduleStore struct {
	rows    map[string]types.UserSchedule
	updates int
	err     error
}

func (f *fakeScheduleStore) Get(_ context.Context, userID string) (*types.UserSchedule, error) {
	s, ok := f.rows[userID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user schedule not found", nil)
	}
	return &s, nil
}

func (f *fakeScheduleStore) Update(_ context.Context, s *types.UserSchedule) error {
	if f.err != nil {
		return f.err
	}
	f.updates++
	f.rows[s.UserID] = *s
	return nil
}

type recordingPut struct{ put []*types.UserSchedule }

func (r *recordingPut) Put(_ context.Context, s *types.UserSchedule) { r.put = append(r.put, s) }

type recordingInvalidator struct {
	users   []string
	offsets [][]int
}

func (r *recordingInvalidator) Invalidate(_ context.Context, userID string, offsets ...int) {
	r.users = append(r.users, userID)
	r.offsets = append(r.offsets, offsets)
}

// Wednesday 2026-07-15, PDT in effect.
var prefsNow = time.Date(2026, 7, 15, 12, 0, 0, 0, time.UTC)

func newTestPreferences(t *testing.T) (*Preferences, *fakeScheduleStore, *recordingPut) {
	t.Helper()
	store := &fakeScheduleStore{rows: map[string]types.UserSchedule{
		"u1": *NewDefaultSchedule("u1", "u1@example.com", prefsNow),
	}}
	put := &recordingPut{}
	return NewPreferences(store, put, nil, types.FixedClock{T: prefsNow}, nil), store, put
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func boolPtr(b bool) *bool    { return &b }

func TestNewDefaultSchedule(t *testing.T) {
	s := NewDefaultSchedule("u1", "ada@example.com", prefsNow)

	assert.Equal(t, time.Monday, s.ResetDay)
	assert.Equal(t, 15, s.ResetHour)
	assert.Equal(t, "America/Los_Angeles", s.Timezone)
	assert.Equal(t, time.Monday, s.UTCResetDay)
	assert.Equal(t, 22, s.UTCResetHour)
	assert.True(t, s.DeliveryEnabled)
	assert.Equal(t, "- %s", s.RecordFormat)

	winter := NewDefaultSchedule("u1", "", time.Date(2026, 1, 14, 12, 0, 0, 0, time.UTC))
	assert.Equal(t, 23, winter.UTCResetHour)
}

func TestPreferences_InvalidDateFormatKeepsUTCPair(t *testing.T) {
	p, store, _ := newTestPreferences(t)
	before := store.rows["u1"]

	saved, err := p.Save(context.Background(), "u1", PreferencesUpdate{
		DateFormat: strPtr("%Q"),
		Timezone:   strPtr("America/Los_Angeles"),
	})

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationPreferences, appErr.Code)
	fields := appErr.Details["fields"].([]types.FieldError)
	require.Len(t, fields, 1)
	assert.Equal(t, "date_format", fields[0].Field)

	after := store.rows["u1"]
	assert.Equal(t, before.UTCResetDay, after.UTCResetDay)
	assert.Equal(t, before.UTCResetHour, after.UTCResetHour)
	assert.Equal(t, "%Y-%m-%d", saved.DateFormat)
	assert.Equal(t, 0, store.updates)
}

func TestPreferences_ValidFieldsAppliedAlongsideInvalid(t *testing.T) {
	p, store, put := newTestPreferences(t)

	saved, err := p.Save(context.Background(), "u1", PreferencesUpdate{
		Timezone:     strPtr("Asia/Tokyo"),
		DateFormat:   strPtr("%Q"),
		RecordFormat: strPtr("* %s"),
	})
	require.Error(t, err)

	assert.Equal(t, "Asia/Tokyo", saved.Timezone)
	assert.Equal(t, "* %s", saved.RecordFormat)
	assert.Equal(t, "%Y-%m-%d", saved.DateFormat)
	// Monday 15:00 JST is Monday 06:00 UTC.
	assert.Equal(t, time.Monday, saved.UTCResetDay)
	assert.Equal(t, 6, saved.UTCResetHour)
	assert.Equal(t, 1, store.updates)
	require.Len(t, put.put, 1)
	assert.Equal(t, "Asia/Tokyo", put.put[0].Timezone)
}

func TestPreferences_ChangeDayHourRecomputesUTC(t *testing.T) {
	p, _, _ := newTestPreferences(t)

	saved, err := p.Save(context.Background(), "u1", PreferencesUpdate{
		ResetDay:  intPtr(int(time.Sunday)),
		ResetHour: intPtr(20),
	})
	require.NoError(t, err)

	// Sunday 20:00 PDT is Monday 03:00 UTC.
	assert.Equal(t, time.Monday, saved.UTCResetDay)
	assert.Equal(t, 3, saved.UTCResetHour)
}

func TestPreferences_ResetChangeDropsCachedWindows(t *testing.T) {
	store := &fakeScheduleStore{rows: map[string]types.UserSchedule{
		"u1": *NewDefaultSchedule("u1", "u1@example.com", prefsNow),
	}}
	windows := &recordingInvalidator{}
	p := NewPreferences(store, nil, windows, types.FixedClock{T: prefsNow}, nil)

	_, err := p.Save(context.Background(), "u1", PreferencesUpdate{CheekyConfirm: boolPtr(true)})
	require.NoError(t, err)
	assert.Empty(t, windows.users, "toggles leave the window untouched")

	_, err = p.Save(context.Background(), "u1", PreferencesUpdate{Timezone: strPtr("Europe/Berlin")})
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, windows.users)
	assert.Equal(t, []int{0, 1}, windows.offsets[0])

	store.err = errors.New("db down")
	_, err = p.Save(context.Background(), "u1", PreferencesUpdate{ResetHour: intPtr(9)})
	require.Error(t, err)
	assert.Len(t, windows.users, 1, "nothing is dropped when the write fails")
}

func TestPreferences_RejectsEveryInvalidField(t *testing.T) {
	p, store, _ := newTestPreferences(t)

	_, err := p.Save(context.Background(), "u1", PreferencesUpdate{
		Timezone:     strPtr("Mars/Olympus"),
		ResetDay:     intPtr(7),
		ResetHour:    intPtr(24),
		RecordFormat: strPtr("%d"),
		DateFormat:   strPtr("%Q"),
	})

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	var names []string
	for _, fe := range appErr.Details["fields"].([]types.FieldError) {
		names = append(names, fe.Field)
	}
	assert.ElementsMatch(t, []string{"timezone", "reset_day", "reset_hour", "record_format", "date_format"}, names)
	assert.Equal(t, 0, store.updates)
}

func TestPreferences_TogglesOnly(t *testing.T) {
	p, store, _ := newTestPreferences(t)

	saved, err := p.Save(context.Background(), "u1", PreferencesUpdate{
		DeliveryEnabled: boolPtr(false),
		CheekyConfirm:   boolPtr(true),
	})
	require.NoError(t, err)
	assert.False(t, saved.DeliveryEnabled)
	assert.True(t, saved.CheekyConfirm)
	assert.Equal(t, 22, saved.UTCResetHour)
	assert.Equal(t, 1, store.updates)
}

func TestPreferences_UnknownUser(t *testing.T) {
	p, _, _ := newTestPreferences(t)

	_, err := p.Save(context.Background(), "ghost", PreferencesUpdate{})
	assert.True(t, types.HasCode(err, types.ErrCodeNotFoundUser))
}

func TestPreferences_StoreError(t *testing.T) {
	p, store, put := newTestPreferences(t)
	store.err = errors.New("db down")

	_, err := p.Save(context.Background(), "u1", PreferencesUpdate{ResetHour: intPtr(9)})
	assert.Error(t, err)
	assert.Empty(t, put.put)
}
