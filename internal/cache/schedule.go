package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"snipper/internal/types"
)

// KV is the subset of RedisStore the schedule cache needs.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	DeleteMany(ctx context.Context, keys ...string) error
}

// ScheduleLoader reads a schedule from the source of truth.
type ScheduleLoader func(ctx context.Context, userID string) (*types.UserSchedule, error)

// ScheduleCache is a read-through cache of UserSchedule rows keyed by user id.
// Writers call Put with the committed row so readers never see a schedule
// older than the last write from this process.
type ScheduleCache struct {
	kv     KV
	ttl    time.Duration
	load   ScheduleLoader
	logger *slog.Logger
}

func NewScheduleCache(kv KV, ttl time.Duration, load ScheduleLoader, logger *slog.Logger) *ScheduleCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScheduleCache{kv: kv, ttl: ttl, load: load, logger: logger}
}

// Get returns the cached schedule for userID, loading and caching it on a
// miss. Cache failures fall through to the loader.
func (c *ScheduleCache) Get(ctx context.Context, userID string) (*types.UserSchedule, error) {
	key := ScheduleKey(userID)
	if raw, ok, err := c.kv.Get(ctx, key); err != nil {
		c.logger.WarnContext(ctx, "schedule cache read failed", "user_id", userID, "error", err)
	} else if ok {
		if s, ok := decodeSchedule(raw); ok {
			return s, nil
		}
		c.logger.WarnContext(ctx, "discarding undecodable schedule cache entry", "user_id", userID)
	}

	s, err := c.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	c.Put(ctx, s)
	return s, nil
}

// Put stores s after a committed write.
func (c *ScheduleCache) Put(ctx context.Context, s *types.UserSchedule) {
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.kv.Set(ctx, ScheduleKey(s.UserID), raw, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "schedule cache write failed", "user_id", s.UserID, "error", err)
	}
}

// Invalidate drops the entry for userID.
func (c *ScheduleCache) Invalidate(ctx context.Context, userID string) {
	if err := c.kv.DeleteMany(ctx, ScheduleKey(userID)); err != nil {
		c.logger.WarnContext(ctx, "schedule cache invalidate failed", "user_id", userID, "error", err)
	}
}

func decodeSchedule(raw []byte) (*types.UserSchedule, bool) {
	var s types.UserSchedule
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	return &s, true
}
