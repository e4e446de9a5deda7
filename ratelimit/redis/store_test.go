package redislimiter

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PaulFidika/accesskit/ratelimit"
)

var testKey = ratelimit.Key{Identifier: "u1", IdentifierType: ratelimit.IdentifierUser, FunctionName: "f1"}

func newStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return New(rdb, ""), mr
}

func TestInsertGetSetCount(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 5, 0, time.UTC)
	start := ratelimit.Minute.Start(now)

	w, err := s.Get(ctx, testKey, ratelimit.Minute, start)
	require.NoError(t, err)
	assert.Nil(t, w)

	require.NoError(t, s.Insert(ctx, ratelimit.Window{Key: testKey, Granularity: ratelimit.Minute, WindowStart: start, RequestCount: 1, UpdatedAt: now}))
	err = s.Insert(ctx, ratelimit.Window{Key: testKey, Granularity: ratelimit.Minute, WindowStart: start, RequestCount: 1, UpdatedAt: now})
	assert.ErrorIs(t, err, ratelimit.ErrWindowExists)

	require.NoError(t, s.SetCount(ctx, testKey, ratelimit.Minute, start, 5, now.Add(time.Second)))
	w, err = s.Get(ctx, testKey, ratelimit.Minute, start)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, 5, w.RequestCount)
	assert.Equal(t, start, w.WindowStart)
	assert.Equal(t, now.Add(time.Second), w.UpdatedAt)

	assert.Equal(t, time.Minute+ratelimit.Retention, mr.TTL("rl:f1:user:u1:minute:"+strconv.FormatInt(start.Unix(), 10)))
}

func TestLatestFindsCurrentWindowOnly(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 3, 20, 0, time.UTC)
	prev := ratelimit.Minute.Start(now).Add(-time.Minute)

	require.NoError(t, s.Increment(ctx, testKey, ratelimit.Minute, prev, prev))
	w, err := s.Latest(ctx, testKey, ratelimit.Minute, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Nil(t, w, "previous minute is outside the lookback")

	require.NoError(t, s.Increment(ctx, testKey, ratelimit.Minute, ratelimit.Minute.Start(now), now))
	require.NoError(t, s.Increment(ctx, testKey, ratelimit.Minute, ratelimit.Minute.Start(now), now))
	w, err = s.Latest(ctx, testKey, ratelimit.Minute, now.Add(-time.Minute))
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, 2, w.RequestCount)
}

func TestWindowsExpire(t *testing.T) {
	s, mr := newStore(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.Increment(ctx, testKey, ratelimit.Hour, now, now))
	mr.FastForward(2*time.Hour + time.Second)
	w, err := s.Get(ctx, testKey, ratelimit.Hour, now)
	require.NoError(t, err)
	assert.Nil(t, w)
}

func TestLimiterOverRedis(t *testing.T) {
	s, _ := newStore(t)
	now := time.Date(2026, 1, 1, 12, 0, 10, 0, time.UTC)
	l := ratelimit.New(s, ratelimit.Options{Now: func() time.Time { return now }})
	limits := ratelimit.Limits{PerMinute: 2, PerHour: 100}
	for i := 0; i < 2; i++ {
		d, err := l.Check(context.Background(), "u1", ratelimit.IdentifierUser, "f1", limits)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := l.Check(context.Background(), "u1", ratelimit.IdentifierUser, "f1", limits)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 50, d.RetryAfterSeconds)
}

