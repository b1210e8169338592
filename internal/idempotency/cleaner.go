package idempotency

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 100

// Cleaner removes idempotency keys that have no expiry or one longer than maxTTL,
// which would otherwise pin update ids in Redis forever.
type Cleaner struct {
	client   *redis.Client
	log      *slog.Logger
	interval time.Duration
	maxTTL   time.Duration
}

// NewCleaner constructs a Cleaner. A nil client makes Run a no-op.
func NewCleaner(client *redis.Client, log *slog.Logger, interval, maxTTL time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}
	return &Cleaner{client: client, log: log, interval: interval, maxTTL: maxTTL}
}

// Run sweeps every interval until ctx is done.
func (c *Cleaner) Run(ctx context.Context) {
	if c == nil || c.client == nil || c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.cleanup(ctx); n > 0 {
				c.log.Info("stale idempotency keys removed", slog.Int("keys", n))
			}
		}
	}
}

// cleanup checks TTLs one SCAN batch at a time in a pipeline.
func (c *Cleaner) cleanup(ctx context.Context) int {
	removed := 0
	iter := c.client.Scan(ctx, 0, keyPrefix+"*", scanBatch).Iterator()

	batch := make([]string, 0, scanBatch)
	flush := func() {
		removed += c.sweep(ctx, batch)
		batch = batch[:0]
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatch {
			flush()
		}
	}
	if err := iter.Err(); err != nil {
		c.log.Error("idempotency cleaner scan failed", slog.Any("error", err))
	}
	flush()
	return removed
}

func (c *Cleaner) sweep(ctx context.Context, keys []string) int {
	if len(keys) == 0 {
		return 0
	}

	pipe := c.client.Pipeline()
	ttls := make([]*redis.DurationCmd, len(keys))
	for i, k := range keys {
		ttls[i] = pipe.TTL(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn("idempotency cleaner ttl lookup failed", slog.Any("error", err))
		return 0
	}

	var stale []string
	for i, cmd := range ttls {
		ttl := cmd.Val()
		// go-redis reports a missing key as -2 and no expiry as -1, both unscaled.
		if ttl == -2 {
			continue
		}
		if ttl < 0 || ttl > c.maxTTL {
			stale = append(stale, keys[i])
		}
	}
	if len(stale) == 0 {
		return 0
	}

	n, err := c.client.Del(ctx, stale...).Result()
	if err != nil {
		c.log.Warn("idempotency cleaner delete failed", slog.Any("error", err))
		return 0
	}
	return int(n)
}
