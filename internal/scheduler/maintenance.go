package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"snipper/internal/types"
)

// RunStarter starts a digest run. Implemented by *Fanout.
type RunStarter interface {
	Start(ctx context.Context, req TriggerRequest) (types.FetchStep, error)
}

// UTCResyncer is implemented by *ResyncService.
type UTCResyncer interface {
	ResyncUTC(ctx context.Context, now time.Time) (int, error)
}

// MaintenanceRunner routes scheduled events to the job they name. The same
// runner serves the EventBridge Lambda and the asynq periodic task.
type MaintenanceRunner struct {
	starter RunStarter
	resync  UTCResyncer
	clock   types.Clock
	logger  *slog.Logger
}

func NewMaintenanceRunner(starter RunStarter, resync UTCResyncer, clock types.Clock, logger *slog.Logger) *MaintenanceRunner {
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MaintenanceRunner{starter: starter, resync: resync, clock: clock, logger: logger}
}

// Run executes the job for p and returns a one-line summary.
func (m *MaintenanceRunner) Run(ctx context.Context, p MaintenancePayload) (string, error) {
	now := m.clock.Now()
	if p.ReferenceTime != nil {
		now = p.ReferenceTime.UTC()
	}

	switch p.Task {
	case "", TaskTriggerDigests:
		step, err := m.starter.Start(ctx, TriggerRequest{Cron: true, At: now})
		if err != nil {
			return "", fmt.Errorf("trigger digests: %w", err)
		}
		return fmt.Sprintf("digest chain started: trace %s, utc %d/%02d:00",
			step.TraceID, int(step.UTCResetDay), step.UTCResetHour), nil

	case TaskResyncUTC:
		updated, err := m.resync.ResyncUTC(ctx, now)
		if err != nil {
			return "", fmt.Errorf("resync utc: %w", err)
		}
		return fmt.Sprintf("utc resync complete: %d schedules updated", updated), nil

	default:
		m.logger.WarnContext(ctx, "unknown maintenance task", "task", string(p.Task))
		return "", fmt.Errorf("unknown maintenance task %q", p.Task)
	}
}
