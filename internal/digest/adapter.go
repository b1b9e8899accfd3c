// Package digest turns a user's schedule and records into a rendered digest:
// window queries with a short result cache, preference validation and
// formatting.
package digest

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"snipper/internal/cache"
	"snipper/internal/types"
	"snipper/internal/window"
)

// RecordQuerier is the record store's window query.
type RecordQuerier interface {
	ListInWindow(ctx context.Context, userID string, start, end time.Time, limit int) ([]types.Record, error)
}

// DefaultWindowCacheTTL is how long a window result is reused.
const DefaultWindowCacheTTL = time.Minute

// Adapter resolves a user's window and fetches the records inside it.
type Adapter struct {
	records RecordQuerier
	cache   cache.KV
	ttl     time.Duration
	clock   types.Clock
	logger  *slog.Logger
	group   singleflight.Group
}

// NewAdapter builds an Adapter. kv may be nil to disable caching.
func NewAdapter(records RecordQuerier, kv cache.KV, ttl time.Duration, clock types.Clock, logger *slog.Logger) *Adapter {
	if ttl <= 0 {
		ttl = DefaultWindowCacheTTL
	}
	if clock == nil {
		clock = types.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Adapter{records: records, cache: kv, ttl: ttl, clock: clock, logger: logger}
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > types.MaxRecordsPerWindow {
		return types.MaxRecordsPerWindow
	}
	return limit
}

// FetchRecordsInWindow returns the user's records in the window offset weeks
// back, oldest first and at most limit long. Results are cached per
// (user, offset) for the adapter TTL together with the limit they were
// fetched with; a request for more records than the entry covers goes to the
// store. Cache failures are logged and ignored.
func (a *Adapter) FetchRecordsInWindow(ctx context.Context, s *types.UserSchedule, offset, limit int) ([]types.Record, types.Window, error) {
	sched, err := window.ForUser(s)
	if err != nil {
		return nil, types.Window{}, err
	}
	if offset < 0 {
		offset = 0
	}
	limit = clampLimit(limit)
	w := sched.Window(offset, a.clock.Now())
	key := cache.WindowKey(s.UserID, offset)

	if recs, ok := a.cached(ctx, key, limit); ok {
		return truncate(recs, limit), w, nil
	}

	v, err, _ := a.group.Do(key+":"+strconv.Itoa(limit), func() (any, error) {
		recs, err := a.records.ListInWindow(ctx, s.UserID, w.Start, w.End, limit)
		if err != nil {
			return nil, err
		}
		a.store(ctx, key, windowEntry{Limit: limit, Records: recs})
		return recs, nil
	})
	if err != nil {
		return nil, w, err
	}
	return truncate(v.([]types.Record), limit), w, nil
}

// FetchSince returns records created from since up to now, uncached. The
// batch path uses it with a fixed lookback so a mid-week schedule change
// cannot shift the reported range.
func (a *Adapter) FetchSince(ctx context.Context, userID string, since time.Time, limit int) ([]types.Record, error) {
	limit = clampLimit(limit)
	recs, err := a.records.ListInWindow(ctx, userID, since, a.clock.Now(), limit)
	if err != nil {
		return nil, err
	}
	return truncate(recs, limit), nil
}

// Invalidate drops cached window results for userID at the given offsets.
func (a *Adapter) Invalidate(ctx context.Context, userID string, offsets ...int) {
	if a.cache == nil || len(offsets) == 0 {
		return
	}
	keys := make([]string, 0, len(offsets))
	for _, o := range offsets {
		keys = append(keys, cache.WindowKey(userID, o))
	}
	if err := a.cache.DeleteMany(ctx, keys...); err != nil {
		a.logger.WarnContext(ctx, "window cache invalidate failed", "user_id", userID, "error", err)
	}
}

// windowEntry is the cached form of one window query.
type windowEntry struct {
	Limit   int            `json:"limit"`
	Records []types.Record `json:"records"`
}

// covers reports whether the entry holds the first limit records of the
// window: either it was fetched with at least that limit, or it came back
// short and therefore holds the whole window.
func (e windowEntry) covers(limit int) bool {
	return e.Limit >= limit || len(e.Records) < e.Limit
}

func (a *Adapter) cached(ctx context.Context, key string, limit int) ([]types.Record, bool) {
	if a.cache == nil {
		return nil, false
	}
	raw, ok, err := a.cache.Get(ctx, key)
	if err != nil {
		a.logger.WarnContext(ctx, "window cache read failed", "key", key, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var entry windowEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		a.logger.WarnContext(ctx, "discarding undecodable window cache entry", "key", key, "error", err)
		return nil, false
	}
	if !entry.covers(limit) {
		return nil, false
	}
	return entry.Records, true
}

func (a *Adapter) store(ctx context.Context, key string, entry windowEntry) {
	if a.cache == nil {
		return
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := a.cache.Set(ctx, key, raw, a.ttl); err != nil {
		a.logger.WarnContext(ctx, "window cache write failed", "key", key, "error", err)
	}
}

// truncate returns a sorted copy capped at limit. Singleflight callers share
// the underlying slice.
func truncate(recs []types.Record, limit int) []types.Record {
	recs = slices.Clone(recs)
	slices.SortStableFunc(recs, func(x, y types.Record) int {
		return x.CreatedAt.Compare(y.CreatedAt)
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	if recs == nil {
		recs = []types.Record{}
	}
	return recs
}
