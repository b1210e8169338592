package ai

import (
	"math"
	"time"

	"github.com/Proton-105/craft-bot/internal/domain"
	"github.com/Proton-105/craft-bot/pkg/config"
)

// SpamPolicy is the rapid-fire rule: a message arriving less than RapidThreshold after the
// previous response increments the session counter, any slower message resets it, and
// reaching MaxRapidMessages blocks the session for BlockDuration.
type SpamPolicy struct {
	RapidThreshold   time.Duration
	MaxRapidMessages int
	BlockDuration    time.Duration
}

// PolicyFromConfig builds the policy from the spam config section.
func PolicyFromConfig(cfg config.SpamConfig) SpamPolicy {
	return SpamPolicy{
		RapidThreshold:   cfg.RapidThreshold,
		MaxRapidMessages: cfg.MaxRapidMessages,
		BlockDuration:    cfg.BlockDuration,
	}
}

// IsBlocked reports whether s is blocked at now. Expiry is lazy: nothing clears the
// flag in the background, an expired block simply stops counting here.
func IsBlocked(s *domain.AISession, now time.Time) bool {
	return s != nil && s.IsBlocked && s.BlockExpiresAt != nil && now.Before(*s.BlockExpiresAt)
}

// RemainingMinutes is the wait shown to a blocked user, rounded up.
func RemainingMinutes(s *domain.AISession, now time.Time) int {
	if !IsBlocked(s, now) {
		return 0
	}
	return int(math.Ceil(s.BlockExpiresAt.Sub(now).Minutes()))
}

// Release clears an expired block together with the rapid counter and reports whether
// the session changed.
func Release(s *domain.AISession, now time.Time) bool {
	if s == nil || !s.IsBlocked || IsBlocked(s, now) {
		return false
	}
	s.IsBlocked = false
	s.BlockExpiresAt = nil
	s.MessageCount = 0
	return true
}

// Observe applies an inbound message to the counter. lastResponse is the time of the
// previous answer in this session, nil for the first message. It returns true when the
// message blocks the session.
func (p SpamPolicy) Observe(s *domain.AISession, lastResponse *time.Time, now time.Time) bool {
	if lastResponse != nil {
		if now.Sub(*lastResponse) < p.RapidThreshold {
			s.MessageCount++
		} else {
			s.MessageCount = 0
		}
	}

	if p.MaxRapidMessages <= 0 || s.MessageCount < p.MaxRapidMessages {
		return false
	}

	expires := now.Add(p.BlockDuration)
	s.IsBlocked = true
	s.BlockExpiresAt = &expires
	s.MessageCount = 0
	return true
}

// BlockMinutes is the block duration in whole minutes.
func (p SpamPolicy) BlockMinutes() int {
	return int(math.Ceil(p.BlockDuration.Minutes()))
}
