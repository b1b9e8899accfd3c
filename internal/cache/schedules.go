package cache

import (
	"context"
	"time"

	"snipper/internal/db"
	"snipper/internal/types"
)

// ScheduleRepository is the Postgres schedule store.
type ScheduleRepository interface {
	Get(ctx context.Context, userID string) (*types.UserSchedule, error)
	GetByEmail(ctx context.Context, email string) (*types.UserSchedule, error)
	Ensure(ctx context.Context, defaults *types.UserSchedule) (*types.UserSchedule, error)
	Update(ctx context.Context, s *types.UserSchedule) error
	UpdateUTC(ctx context.Context, userID string, day time.Weekday, hour int) error
	NextDue(ctx context.Context, cursor string, f db.DueFilter) (*types.UserSchedule, string, error)
}

// CachedSchedules puts a ScheduleCache in front of a ScheduleRepository.
// Point reads go through the cache; every write refreshes or drops the
// cached row. Email lookups and batch iteration always hit the database.
type CachedSchedules struct {
	repo  ScheduleRepository
	cache *ScheduleCache
}

func NewCachedSchedules(repo ScheduleRepository, kv KV, ttl time.Duration) *CachedSchedules {
	return &CachedSchedules{
		repo:  repo,
		cache: NewScheduleCache(kv, ttl, repo.Get, nil),
	}
}

func (c *CachedSchedules) Get(ctx context.Context, userID string) (*types.UserSchedule, error) {
	return c.cache.Get(ctx, userID)
}

func (c *CachedSchedules) GetByEmail(ctx context.Context, email string) (*types.UserSchedule, error) {
	return c.repo.GetByEmail(ctx, email)
}

// Ensure answers from the cache when the user is known and no email needs
// filling in; otherwise it upserts and caches the stored row.
func (c *CachedSchedules) Ensure(ctx context.Context, defaults *types.UserSchedule) (*types.UserSchedule, error) {
	if raw, ok, err := c.cache.kv.Get(ctx, ScheduleKey(defaults.UserID)); err == nil && ok {
		if s, ok := decodeSchedule(raw); ok && (defaults.Email == "" || s.Email != "") {
			return s, nil
		}
	}
	s, err := c.repo.Ensure(ctx, defaults)
	if err != nil {
		return nil, err
	}
	c.cache.Put(ctx, s)
	return s, nil
}

func (c *CachedSchedules) Update(ctx context.Context, s *types.UserSchedule) error {
	if err := c.repo.Update(ctx, s); err != nil {
		return err
	}
	c.cache.Put(ctx, s)
	return nil
}

func (c *CachedSchedules) UpdateUTC(ctx context.Context, userID string, day time.Weekday, hour int) error {
	if err := c.repo.UpdateUTC(ctx, userID, day, hour); err != nil {
		return err
	}
	c.cache.Invalidate(ctx, userID)
	return nil
}

func (c *CachedSchedules) NextDue(ctx context.Context, cursor string, f db.DueFilter) (*types.UserSchedule, string, error) {
	return c.repo.NextDue(ctx, cursor, f)
}
