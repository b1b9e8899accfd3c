package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"snipper/internal/db"
	"snipper/internal/types"
)

// ResyncStore is the subset of the schedule store the sweep needs.
type ResyncStore interface {
	NextDue(ctx context.Context, cursor string, f db.DueFilter) (*types.UserSchedule, string, error)
	UpdateUTC(ctx context.Context, userID string, day time.Weekday, hour int) error
}

// ResyncService walks every schedule and rewrites UTC pairs that drifted,
// typically after a DST transition in the user's zone.
type ResyncService struct {
	store  ResyncStore
	logger *slog.Logger
}

func NewResyncService(store ResyncStore, logger *slog.Logger) *ResyncService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResyncService{store: store, logger: logger}
}

// ResyncUTC returns the number of schedules updated. A single user's failure
// is logged and the sweep continues; a failure to advance the cursor stops it.
func (r *ResyncService) ResyncUTC(ctx context.Context, now time.Time) (int, error) {
	var (
		cursor  string
		scanned int
		updated int
	)
	for {
		if err := ctx.Err(); err != nil {
			return updated, fmt.Errorf("utc resync interrupted after %d users: %w", scanned, err)
		}

		s, next, err := r.store.NextDue(ctx, cursor, db.DueFilter{Force: true})
		if err != nil {
			return updated, fmt.Errorf("listing schedules: %w", err)
		}
		if s == nil {
			break
		}
		cursor = next
		scanned++

		day, hour, changed, err := upcomingUTC(s, now)
		if err != nil {
			r.logger.WarnContext(ctx, "skipping schedule with invalid reset", "user_id", s.UserID, "error", err)
			continue
		}
		if !changed {
			continue
		}
		if err := r.store.UpdateUTC(ctx, s.UserID, day, hour); err != nil {
			r.logger.ErrorContext(ctx, "failed to update utc reset", "user_id", s.UserID, "error", err)
			continue
		}
		updated++
	}

	r.logger.InfoContext(ctx, "utc resync complete", "scanned", scanned, "updated", updated)
	return updated, nil
}
