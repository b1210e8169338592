package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/craft-bot/pkg/config"
)

type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time { return c.t }

func newMemory(t *testing.T) (*MemoryLimiter, *stepClock) {
	t.Helper()
	clk := &stepClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	m := NewMemoryLimiter(testLogger())
	m.now = clk.now
	return m, clk
}

func TestMemoryLimiter_SlidingWindow(t *testing.T) {
	m, clk := newMemory(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		res, err := m.Check(ctx, "form:1", 5, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 4-i, res.Remaining)
		clk.t = clk.t.Add(time.Second)
	}

	res, err := m.Check(ctx, "form:1", 5, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.False(t, res.Allowed)

	_, err = m.Check(ctx, "form:2", 5, time.Minute)
	assert.NoError(t, err, "keys are independent")

	// the first request leaves the window after 60s
	clk.t = clk.t.Add(55 * time.Second)
	_, err = m.Check(ctx, "form:1", 5, time.Minute)
	assert.NoError(t, err)
}

func TestMemoryLimiter_Cleanup(t *testing.T) {
	m, clk := newMemory(t)
	ctx := context.Background()

	_, _ = m.Check(ctx, "ip:1", 1, time.Minute)
	clk.t = clk.t.Add(10 * time.Minute)
	_, _ = m.Check(ctx, "ip:2", 1, time.Minute)

	m.Cleanup(5 * time.Minute)

	assert.NotContains(t, m.buckets, "ip:1")
	assert.Contains(t, m.buckets, "ip:2")
	assert.Equal(t, ScopeProcess, m.Scope())
}

type failingLimiter struct{}

func (failingLimiter) Check(context.Context, string, int, time.Duration) (*Result, error) {
	return nil, errors.New("connection refused")
}

func (failingLimiter) Scope() Scope { return ScopeShared }

func TestAdaptiveLimiter_FallsBackAtHalfLimit(t *testing.T) {
	mem, _ := newMemory(t)
	a := NewAdaptiveLimiter(failingLimiter{}, mem, testLogger())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := a.Check(ctx, "k", 4, time.Minute)
		require.NoError(t, err)
	}
	_, err := a.Check(ctx, "k", 4, time.Minute)
	assert.ErrorIs(t, err, ErrLimitExceeded)
}

func TestPolicy_Allow(t *testing.T) {
	mem, _ := newMemory(t)
	p := NewPolicy(mem, "form:", Rule{Limit: 1, Window: time.Minute})
	ctx := context.Background()

	ok, err := p.Allow(ctx, "42")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = p.Allow(ctx, "42")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 60, p.RetryAfter())

	ok, err = NewPolicy(failingLimiter{}, "form:", Rule{Limit: 1, Window: time.Minute}).Allow(ctx, "42")
	assert.Error(t, err)
	assert.True(t, ok, "backend failures fail open")

	var disabled *Policy
	ok, err = disabled.Allow(ctx, "42")
	assert.NoError(t, err)
	assert.True(t, ok)
}

func TestNewRules(t *testing.T) {
	rules, err := NewRules(config.RateLimitConfig{
		Global:    config.RateLimitRule{Limit: 60, Window: "1m"},
		Forms:     config.RateLimitRule{Limit: 5, Window: "60s"},
		AI:        config.RateLimitRule{Limit: 10, Window: "1m"},
		Whitelist: []string{"10.0.0.1"},
	})
	require.NoError(t, err)
	assert.Equal(t, Rule{Limit: 60, Window: time.Minute}, rules.Global)
	assert.Equal(t, Rule{Limit: 5, Window: time.Minute}, rules.Forms)
	assert.Equal(t, Rule{Limit: 10, Window: time.Minute}, rules.AI)
	assert.True(t, rules.IsWhitelisted("10.0.0.1"))
	assert.False(t, rules.IsWhitelisted("10.0.0.2"))

	_, err = NewRules(config.RateLimitConfig{Forms: config.RateLimitRule{Limit: 5, Window: "soon"}})
	assert.Error(t, err)
	_, err = NewRules(config.RateLimitConfig{AI: config.RateLimitRule{Limit: 10}})
	assert.Error(t, err)
}
