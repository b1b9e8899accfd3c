package digest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snipper/internal/cache"
	"snipper/internal/types"
)

// fakeRecords records each query and serves from an in-memory list.
type fakeRecords struct {
	mu      sync.Mutex
	recs    []types.Record
	err     error
	queries []windowQuery
}

type windowQuery struct {
	userID     string
	start, end time.Time
	limit      int
}

func (f *fakeRecords) ListInWindow(_ context.Context, userID string, start, end time.Time, limit int) ([]types.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, windowQuery{userID, start, end, limit})
	if f.err != nil {
		return nil, f.err
	}
	var out []types.Record
	for _, r := range f.recs {
		if r.UserID == userID && !r.CreatedAt.Before(start) && !r.CreatedAt.After(end) {
			out = append(out, r)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRecords) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func newTestAdapter(t *testing.T, recs *fakeRecords, now time.Time) (*Adapter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewAdapter(recs, cache.NewRedisStore(rdb), time.Minute, types.FixedClock{T: now}, nil), mr
}

func laSchedule() *types.UserSchedule {
	return &types.UserSchedule{
		UserID:    "u1",
		ResetDay:  time.Monday,
		ResetHour: 15,
		Timezone:  "America/Los_Angeles",
	}
}

// Wednesday 2026-03-11 12:00 PDT.
var adapterNow = time.Date(2026, 3, 11, 19, 0, 0, 0, time.UTC)

func TestAdapter_FetchRecordsInWindow_ResolvesWindow(t *testing.T) {
	recs := &fakeRecords{}
	a, _ := newTestAdapter(t, recs, adapterNow)

	_, w, err := a.FetchRecordsInWindow(context.Background(), laSchedule(), 1, 1000)
	require.NoError(t, err)

	// Offset 1: Mon Mar 2 15:00 PST to Mon Mar 9 15:00 PDT.
	assert.Equal(t, time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC), w.Start.UTC())
	assert.Equal(t, time.Date(2026, 3, 9, 22, 0, 0, 0, time.UTC), w.End.UTC())
	require.Len(t, recs.queries, 1)
	assert.Equal(t, w.Start, recs.queries[0].start)
	assert.Equal(t, 1000, recs.queries[0].limit)
}

func TestAdapter_CachesPerUserAndOffset(t *testing.T) {
	recs := &fakeRecords{recs: []types.Record{
		{ID: "r1", UserID: "u1", Body: "a", CreatedAt: adapterNow.Add(-time.Hour)},
	}}
	a, mr := newTestAdapter(t, recs, adapterNow)
	ctx := context.Background()

	first, _, err := a.FetchRecordsInWindow(ctx, laSchedule(), 0, 10)
	require.NoError(t, err)
	second, _, err := a.FetchRecordsInWindow(ctx, laSchedule(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, recs.calls())
	assert.Equal(t, first[0].Body, second[0].Body)

	_, _, err = a.FetchRecordsInWindow(ctx, laSchedule(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, recs.calls())

	mr.FastForward(61 * time.Second)
	_, _, err = a.FetchRecordsInWindow(ctx, laSchedule(), 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 3, recs.calls())
}

func TestAdapter_CachedEntryHonoursLargerLimit(t *testing.T) {
	recs := &fakeRecords{recs: []types.Record{
		{ID: "r1", UserID: "u1", CreatedAt: adapterNow.Add(-3 * time.Hour)},
		{ID: "r2", UserID: "u1", CreatedAt: adapterNow.Add(-2 * time.Hour)},
		{ID: "r3", UserID: "u1", CreatedAt: adapterNow.Add(-time.Hour)},
	}}
	a, _ := newTestAdapter(t, recs, adapterNow)
	ctx := context.Background()

	got, _, err := a.FetchRecordsInWindow(ctx, laSchedule(), 0, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// The truncated entry cannot answer a larger request.
	got, _, err = a.FetchRecordsInWindow(ctx, laSchedule(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.Equal(t, 2, recs.calls())

	// A short result holds the whole window, so any limit is served from it.
	got, _, err = a.FetchRecordsInWindow(ctx, laSchedule(), 0, 50)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	got, _, err = a.FetchRecordsInWindow(ctx, laSchedule(), 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, []string{got[0].ID})
	assert.Equal(t, 2, recs.calls())
}

func TestAdapter_Invalidate(t *testing.T) {
	recs := &fakeRecords{}
	a, _ := newTestAdapter(t, recs, adapterNow)
	ctx := context.Background()

	_, _, _ = a.FetchRecordsInWindow(ctx, laSchedule(), 0, 10)
	_, _, _ = a.FetchRecordsInWindow(ctx, laSchedule(), 1, 10)
	a.Invalidate(ctx, "u1", 0, 1)
	_, _, _ = a.FetchRecordsInWindow(ctx, laSchedule(), 0, 10)

	assert.Equal(t, 3, recs.calls())
}

func TestAdapter_LimitAndOrdering(t *testing.T) {
	start := time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC)
	var rs []types.Record
	// Stored newest first to prove the adapter orders results itself.
	for i := 20; i > 0; i-- {
		rs = append(rs, types.Record{ID: string(rune('a' + i)), UserID: "u1", CreatedAt: start.Add(time.Duration(i) * time.Minute)})
	}
	recs := &fakeRecords{recs: rs}
	a, _ := newTestAdapter(t, recs, adapterNow)

	got, _, err := a.FetchRecordsInWindow(context.Background(), laSchedule(), 0, 5)
	require.NoError(t, err)
	require.Len(t, got, 5)
	for i := 1; i < len(got); i++ {
		assert.False(t, got[i].CreatedAt.Before(got[i-1].CreatedAt))
	}
}

func TestAdapter_LimitClamped(t *testing.T) {
	recs := &fakeRecords{}
	a, _ := newTestAdapter(t, recs, adapterNow)

	_, _, err := a.FetchRecordsInWindow(context.Background(), laSchedule(), 0, 5000)
	require.NoError(t, err)
	assert.Equal(t, types.MaxRecordsPerWindow, recs.queries[0].limit)
}

func TestAdapter_CacheUnavailableIsNotFatal(t *testing.T) {
	recs := &fakeRecords{recs: []types.Record{{ID: "r1", UserID: "u1", CreatedAt: adapterNow.Add(-time.Hour)}}}
	a, mr := newTestAdapter(t, recs, adapterNow)
	mr.Close()

	got, _, err := a.FetchRecordsInWindow(context.Background(), laSchedule(), 0, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestAdapter_StoreErrorPropagates(t *testing.T) {
	boom := types.NewAppError(types.ErrCodeStoreTimeout, "timed out", errors.New("deadline"))
	a, _ := newTestAdapter(t, &fakeRecords{err: boom}, adapterNow)

	_, _, err := a.FetchRecordsInWindow(context.Background(), laSchedule(), 0, 10)
	assert.True(t, types.HasCode(err, types.ErrCodeStoreTimeout))
}

func TestAdapter_InvalidSchedule(t *testing.T) {
	a, _ := newTestAdapter(t, &fakeRecords{}, adapterNow)
	s := laSchedule()
	s.Timezone = "Nowhere/Special"

	_, _, err := a.FetchRecordsInWindow(context.Background(), s, 0, 10)
	assert.True(t, types.HasCode(err, types.ErrCodeValidationInvalidTimezone))
}

func TestAdapter_FetchSinceBypassesCache(t *testing.T) {
	recs := &fakeRecords{}
	a, _ := newTestAdapter(t, recs, adapterNow)
	since := adapterNow.AddDate(0, 0, -7)

	_, err := a.FetchSince(context.Background(), "u1", since, 1000)
	require.NoError(t, err)
	_, err = a.FetchSince(context.Background(), "u1", since, 1000)
	require.NoError(t, err)

	require.Equal(t, 2, recs.calls())
	assert.Equal(t, since, recs.queries[0].start)
	assert.Equal(t, adapterNow, recs.queries[0].end)
}
