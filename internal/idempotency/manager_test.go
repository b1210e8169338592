package idempotency

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*miniredis.Miniredis, *redis.Client, Manager) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return mr, client, NewManager(NewRedisStore(client, log), log)
}

func TestExecute_RunsOncePerKey(t *testing.T) {
	_, _, m := setup(t)
	ctx := context.Background()

	calls := 0
	op := func(context.Context) (any, error) {
		calls++
		return map[string]int{"update": 42}, nil
	}

	first, err := m.Execute(ctx, UpdateKey(42), time.Hour, op)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := m.Execute(ctx, UpdateKey(42), time.Hour, op)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.JSONEq(t, `{"update":42}`, string(second.Response))

	_, err = m.Execute(ctx, UpdateKey(43), time.Hour, op)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestExecute_RedeliveryAfterLockReleased(t *testing.T) {
	mr, _, m := setup(t)
	ctx := context.Background()

	calls := 0
	op := func(context.Context) (any, error) { calls++; return "done", nil }

	_, err := m.Execute(ctx, UpdateKey(7), time.Hour, op)
	require.NoError(t, err)
	require.False(t, mr.Exists("idempotency:"+UpdateKey(7)+":lock"), "lock is released after completion")

	for i := 0; i < 3; i++ {
		res, err := m.Execute(ctx, UpdateKey(7), time.Hour, op)
		require.NoError(t, err)
		assert.True(t, res.FromCache)
		assert.False(t, mr.Exists("idempotency:"+UpdateKey(7)+":lock"))
	}
	assert.Equal(t, 1, calls)
}

func TestExecute_FailureAllowsRetry(t *testing.T) {
	_, _, m := setup(t)
	ctx := context.Background()

	_, err := m.Execute(ctx, "k", time.Hour, func(context.Context) (any, error) {
		return nil, errors.New("db down")
	})
	require.Error(t, err)

	res, err := m.Execute(ctx, "k", time.Hour, func(context.Context) (any, error) { return "ok", nil })
	require.NoError(t, err)
	assert.False(t, res.FromCache)
}

func TestExecute_InProgress(t *testing.T) {
	_, client, m := setup(t)
	ctx := context.Background()

	store := NewRedisStore(client, nil)
	locked, err := store.Lock(ctx, "busy", time.Minute)
	require.NoError(t, err)
	require.True(t, locked)
	require.NoError(t, store.Set(ctx, "busy", &Record{Status: StatusProcessing}, time.Minute))

	_, err = m.Execute(ctx, "busy", time.Hour, func(context.Context) (any, error) { return nil, nil })
	assert.ErrorIs(t, err, ErrRequestInProgress)
}

func TestExecute_RecordExpires(t *testing.T) {
	mr, _, m := setup(t)
	ctx := context.Background()

	calls := 0
	op := func(context.Context) (any, error) { calls++; return nil, nil }

	_, err := m.Execute(ctx, "ttl", time.Minute, op)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = m.Execute(ctx, "ttl", time.Minute, op)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCleaner_RemovesKeysWithoutExpiry(t *testing.T) {
	mr, client, _ := setup(t)
	ctx := context.Background()

	require.NoError(t, mr.Set("idempotency:orphan", "x"))
	require.NoError(t, mr.Set("idempotency:fresh", "x"))
	mr.SetTTL("idempotency:fresh", time.Hour)
	require.NoError(t, mr.Set("unrelated", "x"))

	c := NewCleaner(client, nil, time.Minute, 25*time.Hour)
	assert.Equal(t, 1, c.cleanup(ctx))
	assert.False(t, mr.Exists("idempotency:orphan"))
	assert.True(t, mr.Exists("idempotency:fresh"))
	assert.True(t, mr.Exists("unrelated"))
}
