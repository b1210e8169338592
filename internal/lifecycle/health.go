// Package lifecycle provides the liveness/readiness probes and the shutdown sequence.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/Proton-105/craft-bot/internal/health"
)

// ErrShuttingDown is reported by the readiness probe once shutdown has begun.
var ErrShuttingDown = errors.New("shutting down")

// HealthChecker exposes liveness and readiness probes.
type HealthChecker interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) error
}

// Probes answers /livez and /readyz. The process is live while it serves requests; it
// is ready while the critical dependencies answer and shutdown has not started.
type Probes struct {
	checker  *health.Checker
	draining atomic.Bool
	log      *slog.Logger
}

// NewProbes creates probes over checker. A nil checker makes readiness depend only on shutdown.
func NewProbes(checker *health.Checker, log *slog.Logger) *Probes {
	if log == nil {
		log = slog.Default()
	}
	return &Probes{checker: checker, log: log}
}

// Liveness always reports success.
func (p *Probes) Liveness(ctx context.Context) error {
	return nil
}

// Readiness fails during shutdown or when a critical dependency is down.
func (p *Probes) Readiness(ctx context.Context) error {
	if p.draining.Load() {
		return ErrShuttingDown
	}
	if p.checker == nil {
		return nil
	}

	report := p.checker.Check(ctx)
	if !report.Healthy {
		p.log.Warn("readiness probe failed", slog.Any("components", report.Components))
		return errors.New("dependencies unavailable")
	}
	return nil
}

// Drain marks the instance as not ready so load balancers stop routing to it.
func (p *Probes) Drain() {
	p.draining.Store(true)
}
