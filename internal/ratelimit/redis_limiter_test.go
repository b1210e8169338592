package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLimiter(t *testing.T) (*RedisLimiter, *stepClock, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clk := &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := NewRedisLimiter(client, testLogger())
	l.now = clk.now
	return l, clk, mr
}

func TestRedisLimiter_BlocksWhenExceeded(t *testing.T) {
	l, _, mr := newRedisLimiter(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := l.Check(ctx, "ip:1", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 1-i, res.Remaining)
	}

	res, err := l.Check(ctx, "ip:1", 2, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.False(t, res.Allowed)

	members, err := mr.ZMembers(keyPrefix + "ip:1")
	require.NoError(t, err)
	assert.Len(t, members, 2, "rejected events are not stored")
	assert.Greater(t, mr.TTL(keyPrefix+"ip:1"), time.Duration(0))
}

func TestRedisLimiter_SlidingWindow(t *testing.T) {
	l, clk, _ := newRedisLimiter(t)
	ctx := context.Background()
	start := clk.t

	_, err := l.Check(ctx, "form:7", 2, time.Minute)
	require.NoError(t, err)
	clk.t = clk.t.Add(30 * time.Second)
	_, err = l.Check(ctx, "form:7", 2, time.Minute)
	require.NoError(t, err)

	res, err := l.Check(ctx, "form:7", 2, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.Equal(t, start.Add(time.Minute).UnixMilli(), res.ResetAt.UnixMilli())

	clk.t = start.Add(time.Minute)
	_, err = l.Check(ctx, "form:7", 2, time.Minute)
	assert.NoError(t, err, "the first event left the window")
}

func TestRedisLimiter_SharedAcrossInstances(t *testing.T) {
	first, clk, mr := newRedisLimiter(t)
	second := NewRedisLimiter(redis.NewClient(&redis.Options{Addr: mr.Addr()}), testLogger())
	second.now = clk.now
	ctx := context.Background()

	_, err := first.Check(ctx, "form:7", 1, time.Minute)
	assert.NoError(t, err)
	_, err = second.Check(ctx, "form:7", 1, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.Equal(t, ScopeShared, second.Scope())
}

func TestRedisLimiter_StoreDown(t *testing.T) {
	l, _, mr := newRedisLimiter(t)
	mr.Close()

	_, err := l.Check(context.Background(), "ip:1", 2, time.Minute)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLimitExceeded)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
