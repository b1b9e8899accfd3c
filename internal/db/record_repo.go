package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"snipper/internal/types"
)

// RecordRepository provides data access for the records table.
type RecordRepository struct {
	db DBTX
}

func NewRecordRepository(db DBTX) *RecordRepository {
	return &RecordRepository{db: db}
}

// Insert writes one record. Content Postgres refuses is reported as
// ErrCodeRecordRejected; a timed-out write as ErrCodeStoreTimeout.
func (r *RecordRepository) Insert(ctx context.Context, rec *types.Record) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO records (id, user_id, body, source, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.ID,
		rec.UserID,
		rec.Body,
		rec.Source,
		rec.CreatedAt,
	)
	if err != nil {
		if isRejected(err) {
			return types.NewAppError(types.ErrCodeRecordRejected, "record rejected by store", err)
		}
		return storeError("failed to insert record", err)
	}
	return nil
}

// ListInWindow returns userID's records created in the closed interval
// [start, end], oldest first, at most limit rows.
func (r *RecordRepository) ListInWindow(ctx context.Context, userID string, start, end time.Time, limit int) ([]types.Record, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, user_id, body, source, created_at
		 FROM records
		 WHERE user_id = $1 AND created_at >= $2 AND created_at <= $3
		 ORDER BY created_at ASC, id ASC
		 LIMIT $4`,
		userID, start, end, limit,
	)
	if err != nil {
		return nil, storeError("failed to query records", err)
	}
	defer rows.Close()

	out := make([]types.Record, 0)
	for rows.Next() {
		var rec types.Record
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.Body, &rec.Source, &rec.CreatedAt); err != nil {
			return nil, storeError("failed to scan record", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("failed to iterate records", err)
	}
	return out, nil
}

// Last returns userID's most recent record or ErrCodeNotFoundRecord.
func (r *RecordRepository) Last(ctx context.Context, userID string) (*types.Record, error) {
	var rec types.Record
	err := r.db.QueryRow(ctx,
		`SELECT id, user_id, body, source, created_at
		 FROM records WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC LIMIT 1`,
		userID,
	).Scan(&rec.ID, &rec.UserID, &rec.Body, &rec.Source, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundRecord, "no records yet", nil)
		}
		return nil, storeError("failed to load last record", err)
	}
	return &rec, nil
}
