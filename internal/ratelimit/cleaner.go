package ratelimit

import (
	"context"
	"log/slog"
	"time"
)

// Cleaner periodically drops idle keys from the in-memory limiter. Redis keys expire
// on their own through the PEXPIRE set by every check.
type Cleaner struct {
	memory   *MemoryLimiter
	log      *slog.Logger
	interval time.Duration
	maxAge   time.Duration
}

// NewCleaner constructs a Cleaner for memory.
func NewCleaner(memory *MemoryLimiter, log *slog.Logger, interval, maxAge time.Duration) *Cleaner {
	if log == nil {
		log = slog.Default()
	}
	return &Cleaner{memory: memory, log: log, interval: interval, maxAge: maxAge}
}

// Run sweeps every interval until ctx is done.
func (c *Cleaner) Run(ctx context.Context) {
	if c.memory == nil || c.interval <= 0 {
		return
	}

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Debug("rate limit cleaner stopped")
			return
		case <-ticker.C:
			if n := c.memory.Cleanup(c.maxAge); n > 0 {
				c.log.Debug("rate limit keys dropped", slog.Int("keys", n))
			}
		}
	}
}
