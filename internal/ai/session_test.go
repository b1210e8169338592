package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Proton-105/craft-bot/internal/domain"
)

var policy = SpamPolicy{RapidThreshold: 2 * time.Second, MaxRapidMessages: 3, BlockDuration: 30 * time.Minute}

func TestSpamPolicy_Observe(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		v := now.Add(-d)
		return &v
	}

	tests := []struct {
		name      string
		count     int
		last      *time.Time
		wantCount int
		wantBlock bool
	}{
		{name: "first message", count: 0, last: nil, wantCount: 0},
		{name: "rapid increments", count: 1, last: at(time.Second), wantCount: 2},
		{name: "slow resets", count: 2, last: at(5 * time.Second), wantCount: 0},
		{name: "threshold is exclusive", count: 1, last: at(2 * time.Second), wantCount: 0},
		{name: "reaching max blocks", count: 2, last: at(500 * time.Millisecond), wantCount: 0, wantBlock: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &domain.AISession{MessageCount: tt.count}

			blocked := policy.Observe(s, tt.last, now)

			assert.Equal(t, tt.wantBlock, blocked)
			assert.Equal(t, tt.wantCount, s.MessageCount)
			assert.Equal(t, tt.wantBlock, s.IsBlocked)
			if tt.wantBlock {
				assert.Equal(t, now.Add(30*time.Minute), *s.BlockExpiresAt)
			}
		})
	}
}

func TestBlockExpiryIsLazy(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expires := now.Add(10*time.Minute + time.Second)
	s := &domain.AISession{IsBlocked: true, BlockExpiresAt: &expires, MessageCount: 4}

	assert.True(t, IsBlocked(s, now))
	assert.Equal(t, 11, RemainingMinutes(s, now))
	assert.False(t, Release(s, now), "an active block is not released")

	later := expires.Add(time.Second)
	assert.False(t, IsBlocked(s, later))
	assert.True(t, s.IsBlocked, "nothing changes until the session is touched")
	assert.Zero(t, RemainingMinutes(s, later))

	assert.True(t, Release(s, later))
	assert.False(t, s.IsBlocked)
	assert.Nil(t, s.BlockExpiresAt)
	assert.Zero(t, s.MessageCount)
	assert.False(t, Release(s, later))
}
