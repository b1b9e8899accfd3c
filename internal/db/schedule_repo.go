package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"snipper/internal/types"
)

// ScheduleRepository provides data access for the user_schedules table.
type ScheduleRepository struct {
	db DBTX
}

func NewScheduleRepository(db DBTX) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const scheduleColumns = `user_id, email, reset_day, reset_hour, timezone,
	utc_reset_day, utc_reset_hour, delivery_enabled, confirm_delivery, cheeky_confirm,
	record_format, date_format, created_at, updated_at`

// scanSchedule reads one row in scheduleColumns order. Weekdays are stored
// as smallint using time.Weekday numbering.
func scanSchedule(row pgx.Row) (*types.UserSchedule, error) {
	var (
		s                types.UserSchedule
		resetDay, utcDay int
	)
	err := row.Scan(
		&s.UserID,
		&s.Email,
		&resetDay,
		&s.ResetHour,
		&s.Timezone,
		&utcDay,
		&s.UTCResetHour,
		&s.DeliveryEnabled,
		&s.ConfirmDelivery,
		&s.CheekyConfirm,
		&s.RecordFormat,
		&s.DateFormat,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.ResetDay = time.Weekday(resetDay)
	s.UTCResetDay = time.Weekday(utcDay)
	return &s, nil
}

// Get returns the schedule for userID or ErrCodeNotFoundUser.
func (r *ScheduleRepository) Get(ctx context.Context, userID string) (*types.UserSchedule, error) {
	s, err := scanSchedule(r.db.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM user_schedules WHERE user_id = $1`,
		userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user schedule not found", nil)
		}
		return nil, storeError("failed to load user schedule", err)
	}
	return s, nil
}

// GetByEmail looks a schedule up by recipient address for manual triggers.
func (r *ScheduleRepository) GetByEmail(ctx context.Context, email string) (*types.UserSchedule, error) {
	s, err := scanSchedule(r.db.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM user_schedules WHERE lower(email) = lower($1)
		 ORDER BY user_id LIMIT 1`,
		email,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundUser, "no schedule for email", nil)
		}
		return nil, storeError("failed to load user schedule by email", err)
	}
	return s, nil
}

// Ensure inserts defaults if no row exists for defaults.UserID and returns
// the stored row. An existing row is returned unchanged except that an empty
// stored email is filled in.
func (r *ScheduleRepository) Ensure(ctx context.Context, defaults *types.UserSchedule) (*types.UserSchedule, error) {
	s, err := scanSchedule(r.db.QueryRow(ctx,
		`INSERT INTO user_schedules (
			user_id, email, reset_day, reset_hour, timezone, utc_reset_day, utc_reset_hour,
			delivery_enabled, confirm_delivery, cheeky_confirm, record_format, date_format,
			created_at, updated_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		 ON CONFLICT (user_id) DO UPDATE
		   SET email = CASE WHEN user_schedules.email = '' THEN EXCLUDED.email ELSE user_schedules.email END
		 RETURNING `+scheduleColumns,
		defaults.UserID,
		defaults.Email,
		int(defaults.ResetDay),
		defaults.ResetHour,
		defaults.Timezone,
		int(defaults.UTCResetDay),
		defaults.UTCResetHour,
		defaults.DeliveryEnabled,
		defaults.ConfirmDelivery,
		defaults.CheekyConfirm,
		defaults.RecordFormat,
		defaults.DateFormat,
	))
	if err != nil {
		return nil, storeError("failed to ensure user schedule", err)
	}
	return s, nil
}

// Update writes every mutable field of s in one statement, so the local
// reset fields and the derived UTC pair always land together.
func (r *ScheduleRepository) Update(ctx context.Context, s *types.UserSchedule) error {
	err := r.db.QueryRow(ctx,
		`UPDATE user_schedules
		 SET email = $2, reset_day = $3, reset_hour = $4, timezone = $5,
		     utc_reset_day = $6, utc_reset_hour = $7,
		     delivery_enabled = $8, confirm_delivery = $9, cheeky_confirm = $10,
		     record_format = $11, date_format = $12, updated_at = NOW()
		 WHERE user_id = $1
		 RETURNING updated_at`,
		s.UserID,
		s.Email,
		int(s.ResetDay),
		s.ResetHour,
		s.Timezone,
		int(s.UTCResetDay),
		s.UTCResetHour,
		s.DeliveryEnabled,
		s.ConfirmDelivery,
		s.CheekyConfirm,
		s.RecordFormat,
		s.DateFormat,
	).Scan(&s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NewAppError(types.ErrCodeNotFoundUser, "user schedule not found", nil)
		}
		return storeError("failed to update user schedule", err)
	}
	return nil
}

// UpdateUTC rewrites only the derived UTC pair. Used when a DST change moved
// the pair without any local field changing.
func (r *ScheduleRepository) UpdateUTC(ctx context.Context, userID string, day time.Weekday, hour int) error {
	_, err := r.db.Exec(ctx,
		`UPDATE user_schedules SET utc_reset_day = $2, utc_reset_hour = $3, updated_at = NOW()
		 WHERE user_id = $1`,
		userID, int(day), hour,
	)
	if err != nil {
		return storeError("failed to update utc reset", err)
	}
	return nil
}

// DueFilter selects the rows a batch run iterates.
type DueFilter struct {
	UTCResetDay  time.Weekday
	UTCResetHour int
	// Force drops the delivery and day/hour predicates.
	Force bool
}

// NextDue returns the first schedule after cursor that matches f, ordered by
// user_id, together with the cursor positioned on it. It returns (nil, "", nil)
// when the set is exhausted.
func (r *ScheduleRepository) NextDue(ctx context.Context, cursor string, f DueFilter) (*types.UserSchedule, string, error) {
	after, err := DecodeCursor(cursor)
	if err != nil {
		return nil, "", err
	}

	var row pgx.Row
	if f.Force {
		row = r.db.QueryRow(ctx,
			`SELECT `+scheduleColumns+` FROM user_schedules
			 WHERE user_id > $1
			 ORDER BY user_id LIMIT 1`,
			after,
		)
	} else {
		row = r.db.QueryRow(ctx,
			`SELECT `+scheduleColumns+` FROM user_schedules
			 WHERE user_id > $1 AND delivery_enabled AND utc_reset_day = $2 AND utc_reset_hour = $3
			 ORDER BY user_id LIMIT 1`,
			after, int(f.UTCResetDay), f.UTCResetHour,
		)
	}

	s, err := scanSchedule(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, "", nil
		}
		return nil, "", storeError("failed to fetch next due schedule", err)
	}
	return s, EncodeCursor(s.UserID), nil
}
