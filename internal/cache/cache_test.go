package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snipper/internal/types"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb), mr
}

// --- RedisStore ---

func TestRedisStore_GetSet(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	got, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)
	assert.True(t, mr.Exists("snipper:k"))

	mr.FastForward(61 * time.Second)
	_, ok, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_DeleteMany(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, WindowKey("u1", 0), []byte("a"), time.Minute))
	require.NoError(t, store.Set(ctx, WindowKey("u1", 1), []byte("b"), time.Minute))
	require.NoError(t, store.Set(ctx, WindowKey("u2", 0), []byte("c"), time.Minute))

	require.NoError(t, store.DeleteMany(ctx, WindowKey("u1", 0), WindowKey("u1", 1), WindowKey("u9", 0)))

	_, ok, _ := store.Get(ctx, WindowKey("u1", 0))
	assert.False(t, ok)
	_, ok, _ = store.Get(ctx, WindowKey("u2", 0))
	assert.True(t, ok)

	assert.NoError(t, store.DeleteMany(ctx))
}

func TestRedisStore_Unavailable(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	_, _, err := store.Get(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, store.Set(context.Background(), "k", []byte("v"), time.Minute))
}

func TestRedisStore_Incr(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	n, err := store.Incr(ctx, ConfirmKey("u1"), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = store.Incr(ctx, ConfirmKey("u1"), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, time.Hour, mr.TTL("snipper:confirm:u1"))
}

// --- ScheduleCache ---

type countingLoader struct {
	calls int
	s     *types.UserSchedule
	err   error
}

func (l *countingLoader) load(_ context.Context, userID string) (*types.UserSchedule, error) {
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	cp := *l.s
	cp.UserID = userID
	return &cp, nil
}

func TestScheduleCache_ReadThrough(t *testing.T) {
	store, _ := newTestStore(t)
	loader := &countingLoader{s: &types.UserSchedule{Timezone: "Asia/Tokyo", ResetDay: time.Friday, ResetHour: 9}}
	c := NewScheduleCache(store, 10*time.Minute, loader.load, nil)
	ctx := context.Background()

	first, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	second, err := c.Get(ctx, "u1")
	require.NoError(t, err)

	assert.Equal(t, 1, loader.calls)
	assert.Equal(t, first.Timezone, second.Timezone)
	assert.Equal(t, time.Friday, second.ResetDay)
}

func TestScheduleCache_PutReplacesEntry(t *testing.T) {
	store, _ := newTestStore(t)
	loader := &countingLoader{s: &types.UserSchedule{Timezone: "UTC"}}
	c := NewScheduleCache(store, 10*time.Minute, loader.load, nil)
	ctx := context.Background()

	_, err := c.Get(ctx, "u1")
	require.NoError(t, err)

	c.Put(ctx, &types.UserSchedule{UserID: "u1", Timezone: "Europe/Berlin"})
	got, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", got.Timezone)
	assert.Equal(t, 1, loader.calls)

	c.Invalidate(ctx, "u1")
	_, err = c.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, loader.calls)
}

func TestScheduleCache_FallsThroughWhenRedisDown(t *testing.T) {
	store, mr := newTestStore(t)
	loader := &countingLoader{s: &types.UserSchedule{Timezone: "UTC"}}
	c := NewScheduleCache(store, time.Minute, loader.load, nil)
	mr.Close()

	got, err := c.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
}

func TestScheduleCache_LoaderError(t *testing.T) {
	store, _ := newTestStore(t)
	boom := errors.New("db down")
	c := NewScheduleCache(store, time.Minute, (&countingLoader{err: boom}).load, nil)

	_, err := c.Get(context.Background(), "u1")
	assert.ErrorIs(t, err, boom)
}
