package ratelimit

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Proton-105/craft-bot/pkg/metrics"
)

// AdaptiveLimiter checks the shared limiter and, while it is unreachable, the
// in-process one at half the limit. Halving keeps several instances that each fall
// back locally close to the intended total.
type AdaptiveLimiter struct {
	primary  Limiter
	fallback Limiter
	log      *slog.Logger
}

// NewAdaptiveLimiter combines a shared primary with a process-local fallback.
func NewAdaptiveLimiter(primary, fallback Limiter, log *slog.Logger) *AdaptiveLimiter {
	if log == nil {
		log = slog.Default()
	}
	return &AdaptiveLimiter{primary: primary, fallback: fallback, log: log}
}

// Scope reports the primary's scope.
func (a *AdaptiveLimiter) Scope() Scope { return a.primary.Scope() }

// Check evaluates key on the primary and falls back on backend errors.
func (a *AdaptiveLimiter) Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error) {
	backend := a.primary.Scope().String()
	res, err := a.primary.Check(ctx, key, limit, window)
	if err == nil || errors.Is(err, ErrLimitExceeded) {
		metrics.RecordRateLimit(backend, err == nil)
		return res, err
	}

	metrics.RecordRateLimitBackendError(backend)
	a.log.Warn("shared limiter unavailable, using in-memory fallback", slog.String("key", key), slog.Any("error", err))

	res, err = a.fallback.Check(ctx, key, max(limit/2, 1), window)
	if err == nil || errors.Is(err, ErrLimitExceeded) {
		metrics.RecordRateLimit("fallback", err == nil)
	}
	return res, err
}
