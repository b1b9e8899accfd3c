package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snipper/internal/types"
)

type recordingStarter struct {
	reqs []TriggerRequest
	err  error
}

func (s *recordingStarter) Start(_ context.Context, req TriggerRequest) (types.FetchStep, error) {
	s.reqs = append(s.reqs, req)
	if s.err != nil {
		return types.FetchStep{}, s.err
	}
	at := req.At.UTC()
	return types.FetchStep{Cron: true, UTCResetDay: at.Weekday(), UTCResetHour: at.Hour(), TraceID: "trace-1"}, nil
}

type recordingResyncer struct {
	calls []time.Time
	n     int
	err   error
}

func (r *recordingResyncer) ResyncUTC(_ context.Context, now time.Time) (int, error) {
	r.calls = append(r.calls, now)
	return r.n, r.err
}

func TestMaintenanceRunner_DefaultTaskTriggersCronChain(t *testing.T) {
	starter := &recordingStarter{}
	m := NewMaintenanceRunner(starter, &recordingResyncer{}, types.FixedClock{T: fanoutNow}, nil)

	out, err := m.Run(context.Background(), MaintenancePayload{})
	require.NoError(t, err)

	require.Len(t, starter.reqs, 1)
	assert.True(t, starter.reqs[0].Cron)
	assert.False(t, starter.reqs[0].Force)
	assert.Equal(t, fanoutNow, starter.reqs[0].At)
	assert.Contains(t, out, "trace-1")
}

func TestMaintenanceRunner_ReferenceTimeOverridesClock(t *testing.T) {
	starter := &recordingStarter{}
	m := NewMaintenanceRunner(starter, &recordingResyncer{}, types.FixedClock{T: fanoutNow}, nil)

	ref := time.Date(2026, 3, 16, 22, 0, 0, 0, time.UTC)
	out, err := m.Run(context.Background(), MaintenancePayload{Task: TaskTriggerDigests, ReferenceTime: &ref})
	require.NoError(t, err)

	assert.Equal(t, ref, starter.reqs[0].At)
	assert.Contains(t, out, "utc 1/22:00")
}

func TestMaintenanceRunner_Resync(t *testing.T) {
	resync := &recordingResyncer{n: 3}
	m := NewMaintenanceRunner(&recordingStarter{}, resync, types.FixedClock{T: fanoutNow}, nil)

	out, err := m.Run(context.Background(), MaintenancePayload{Task: TaskResyncUTC})
	require.NoError(t, err)
	assert.Equal(t, []time.Time{fanoutNow}, resync.calls)
	assert.Contains(t, out, "3 schedules updated")
}

func TestMaintenanceRunner_Errors(t *testing.T) {
	m := NewMaintenanceRunner(
		&recordingStarter{err: errors.New("queue down")},
		&recordingResyncer{err: errors.New("db down")},
		nil, nil,
	)

	_, err := m.Run(context.Background(), MaintenancePayload{})
	assert.ErrorContains(t, err, "queue down")

	_, err = m.Run(context.Background(), MaintenancePayload{Task: TaskResyncUTC})
	assert.ErrorContains(t, err, "db down")

	_, err = m.Run(context.Background(), MaintenancePayload{Task: "vacuum"})
	assert.ErrorContains(t, err, "vacuum")
}
