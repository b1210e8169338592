package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces limiter sorted sets; the cleaner scans by it.
const keyPrefix = "ratelimit:"

// slidingWindow trims the set to the window, then adds the event only when the count is
// below the limit, so a rejected event does not extend the block.
// KEYS[1] set; ARGV now_ms, window_ms, limit, member.
// Returns {allowed, count, oldest_ms}.
var slidingWindow = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)
local count = redis.call('ZCARD', KEYS[1])
local allowed = 0
if count < limit then
  redis.call('ZADD', KEYS[1], now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', KEYS[1], window)
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local first = now
if oldest[2] then first = tonumber(oldest[2]) end
return {allowed, count, first}
`)

// RedisLimiter keeps the sliding window in a Redis sorted set per key, so every
// instance using the same Redis shares the counts.
type RedisLimiter struct {
	client *redis.Client
	log    *slog.Logger
	now    func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(client *redis.Client, log *slog.Logger) *RedisLimiter {
	if log == nil {
		log = slog.Default()
	}
	return &RedisLimiter{client: client, log: log, now: time.Now}
}

// Scope is always ScopeShared.
func (l *RedisLimiter) Scope() Scope { return ScopeShared }

// Check runs the sliding-window script for key.
func (l *RedisLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	if l.client == nil {
		return nil, errors.New("redis limiter: no client")
	}
	now := l.now()
	if limit <= 0 {
		return &Result{ResetAt: now.Add(window)}, ErrLimitExceeded
	}

	vals, err := slidingWindow.Run(ctx, l.client, []string{keyPrefix + key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		l.log.Error("redis limiter script failed", slog.String("key", key), slog.Any("error", err))
		return nil, fmt.Errorf("redis limiter: %w", err)
	}
	if len(vals) != 3 {
		return nil, fmt.Errorf("redis limiter: unexpected reply %v", vals)
	}

	res := &Result{
		Allowed:   vals[0] == 1,
		Remaining: max(limit-int(vals[1]), 0),
		ResetAt:   time.UnixMilli(vals[2]).Add(window),
	}
	if !res.Allowed {
		return res, ErrLimitExceeded
	}
	return res, nil
}
