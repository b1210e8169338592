// Package ratelimit provides sliding-window limiters behind one injected interface.
package ratelimit

import (
	"context"
	"errors"
	"time"
)

// Scope tells how far a limiter's counts reach.
type Scope int

const (
	// ScopeProcess counts only the requests this process sees. With several instances
	// behind a balancer each one enforces the limit separately, so the effective limit
	// is multiplied by the instance count.
	ScopeProcess Scope = iota
	// ScopeShared counts across every instance using the same store.
	ScopeShared
)

func (s Scope) String() string {
	if s == ScopeShared {
		return "shared"
	}
	return "process"
}

// Result captures the outcome of a rate-limit evaluation.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

// Limiter decides whether one more event for key fits into limit per window.
// A rejection returns the result together with ErrLimitExceeded.
type Limiter interface {
	Check(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
	Scope() Scope
}

// ErrLimitExceeded indicates the rate limit has been reached for the key.
var ErrLimitExceeded = errors.New("rate limit exceeded")

// Policy binds a limiter to one rule and a key namespace, e.g. "form:" with 5 per minute.
type Policy struct {
	limiter Limiter
	prefix  string
	rule    Rule
}

// NewPolicy returns a policy enforcing rule on prefix+key.
func NewPolicy(l Limiter, prefix string, rule Rule) *Policy {
	return &Policy{limiter: l, prefix: prefix, rule: rule}
}

// Allow reports whether the event for key is within the rule. A backend failure is
// returned with allowed=true so callers can fail open and log.
func (p *Policy) Allow(ctx context.Context, key string) (bool, error) {
	if p == nil || p.limiter == nil || p.rule.Limit <= 0 {
		return true, nil
	}

	_, err := p.limiter.Check(ctx, p.prefix+key, p.rule.Limit, p.rule.Window)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrLimitExceeded):
		return false, nil
	default:
		return true, err
	}
}

// RetryAfter is the rule window in whole seconds, used for the Retry-After hint.
func (p *Policy) RetryAfter() int {
	if p == nil {
		return 0
	}
	return int(p.rule.Window / time.Second)
}
