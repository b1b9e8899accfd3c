package handlers

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snipper/internal/core"
	"snipper/internal/digest"
	"snipper/internal/types"
)

// memoryScheduleStore backs a real digest.Preferences in tests.
type memoryScheduleStore struct {
	rows map[string]*types.UserSchedule
}

func (m *memoryScheduleStore) Get(_ context.Context, userID string) (*types.UserSchedule, error) {
	s, ok := m.rows[userID]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeNotFoundUser, "no schedule", nil)
	}
	cp := *s
	return &cp, nil
}

func (m *memoryScheduleStore) Update(_ context.Context, s *types.UserSchedule) error {
	cp := *s
	m.rows[s.UserID] = &cp
	return nil
}

func (m *memoryScheduleStore) EnsureUser(_ context.Context, userID, email string) (*types.UserSchedule, error) {
	if s, ok := m.rows[userID]; ok {
		cp := *s
		return &cp, nil
	}
	s := digest.NewDefaultSchedule(userID, email, prefsNow)
	m.rows[userID] = s
	cp := *s
	return &cp, nil
}

var prefsNow = time.Date(2026, 3, 9, 22, 0, 0, 0, time.UTC)

func preferencesRouter(t *testing.T) (http.Handler, *memoryScheduleStore) {
	store := &memoryScheduleStore{rows: map[string]*types.UserSchedule{}}
	prefs := digest.NewPreferences(store, nil, nil, types.FixedClock{T: prefsNow}, testLogger())
	h := NewPreferencesHandler(store, prefs, testLogger())
	return newTestRouter(t, func(*core.Server) func(chi.Router) {
		return func(r chi.Router) {
			r.With(core.RequireUser).Route("/preferences", h.RegisterRoutes)
		}
	}), store
}

func TestPreferencesHandler_GetCreatesDefaults(t *testing.T) {
	h, store := preferencesRouter(t)

	rec := do(h, http.MethodGet, "/v1/preferences", "", asUser("u1"))

	require.Equal(t, http.StatusOK, rec.Code)
	var got types.UserSchedule
	decodeBody(t, rec, &got)
	assert.Equal(t, types.DefaultTimezone, got.Timezone)
	assert.Equal(t, types.DefaultResetDay, got.ResetDay)
	assert.Contains(t, store.rows, "u1")
}

func TestPreferencesHandler_UpdateValid(t *testing.T) {
	h, store := preferencesRouter(t)

	rec := do(h, http.MethodPut, "/v1/preferences",
		`{"timezone":"Asia/Tokyo","reset_day":2,"reset_hour":7,"date_format":"%b %d"}`, asUser("u3"))

	require.Equal(t, http.StatusOK, rec.Code)
	s := store.rows["u3"]
	assert.Equal(t, "Asia/Tokyo", s.Timezone)
	assert.Equal(t, time.Tuesday, s.ResetDay)
	// Tuesday 07:00 JST is Monday 22:00 UTC.
	assert.Equal(t, time.Monday, s.UTCResetDay)
	assert.Equal(t, 22, s.UTCResetHour)
	assert.Equal(t, "%b %d", s.DateFormat)
}

func TestPreferencesHandler_PartialApplyReportsFields(t *testing.T) {
	h, store := preferencesRouter(t)

	rec := do(h, http.MethodPut, "/v1/preferences",
		`{"timezone":"Mars/Olympus","date_format":"%Q","record_format":"* %s"}`, asUser("u1"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body core.APIErrorResponse
	decodeBody(t, rec, &body)
	assert.Equal(t, string(types.ErrCodeValidationPreferences), body.Error.Code)

	fields, ok := body.Error.Details["fields"].([]any)
	require.True(t, ok, "details.fields should be a list")
	var names []string
	for _, f := range fields {
		names = append(names, f.(map[string]any)["field"].(string))
	}
	assert.ElementsMatch(t, []string{"timezone", "date_format"}, names)
	assert.Contains(t, body.Error.Details, "preferences")

	s := store.rows["u1"]
	assert.Equal(t, "* %s", s.RecordFormat, "valid field must still be applied")
	assert.Equal(t, types.DefaultTimezone, s.Timezone)
	assert.Equal(t, types.DefaultDateFormat, s.DateFormat)
}

func TestPreferencesHandler_UnknownField(t *testing.T) {
	h, _ := preferencesRouter(t)
	rec := do(h, http.MethodPut, "/v1/preferences", `{"colour":"blue"}`, asUser("u1"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
