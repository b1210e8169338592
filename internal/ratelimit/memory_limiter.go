package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// hits is the per-key list of accepted event times, oldest first.
type hits []time.Time

// since keeps the entries strictly after start, reusing the backing array.
func (h hits) since(start time.Time) hits {
	i := 0
	for i < len(h) && !h[i].After(start) {
		i++
	}
	return append(h[:0], h[i:]...)
}

// MemoryLimiter is the in-process sliding-window limiter: each key keeps the times of
// its accepted events. Counts are local to this process.
type MemoryLimiter struct {
	mu      sync.Mutex
	buckets map[string]hits
	log     *slog.Logger
	now     func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter returns an empty in-memory limiter.
func NewMemoryLimiter(log *slog.Logger) *MemoryLimiter {
	if log == nil {
		log = slog.Default()
	}
	return &MemoryLimiter{
		buckets: make(map[string]hits),
		log:     log,
		now:     time.Now,
	}
}

// Scope is always ScopeProcess.
func (m *MemoryLimiter) Scope() Scope { return ScopeProcess }

// Check records an event for key when fewer than limit events fall inside the window
// ending now. Rejected events are not recorded.
func (m *MemoryLimiter) Check(_ context.Context, key string, limit int, window time.Duration) (*Result, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.buckets[key].since(now.Add(-window))
	allowed := len(h) < limit
	if allowed {
		h = append(h, now)
	}
	m.buckets[key] = h

	res := &Result{Allowed: allowed, Remaining: max(limit-len(h), 0), ResetAt: now}
	if len(h) > 0 {
		res.ResetAt = h[0].Add(window)
	}
	if !allowed {
		return res, ErrLimitExceeded
	}
	return res, nil
}

// Cleanup forgets keys whose newest event is older than maxAge.
func (m *MemoryLimiter) Cleanup(maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	cutoff := m.now().Add(-maxAge)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, h := range m.buckets {
		if len(h) == 0 || h[len(h)-1].Before(cutoff) {
			delete(m.buckets, key)
			removed++
		}
	}
	return removed
}
