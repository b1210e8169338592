package ratelimit

import (
	"fmt"
	"time"

	"github.com/Proton-105/craft-bot/pkg/config"
)

// Rule is a limit within a window.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Rules encapsulates configured rate limits.
type Rules struct {
	Global    Rule
	Forms     Rule
	AI        Rule
	whitelist map[string]struct{}
}

// NewRules parses the rate-limit section of the config.
func NewRules(cfg config.RateLimitConfig) (*Rules, error) {
	global, err := parseRule(cfg.Global)
	if err != nil {
		return nil, fmt.Errorf("parse global rate limit: %w", err)
	}
	forms, err := parseRule(cfg.Forms)
	if err != nil {
		return nil, fmt.Errorf("parse forms rate limit: %w", err)
	}
	ai, err := parseRule(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("parse ai rate limit: %w", err)
	}

	wl := make(map[string]struct{}, len(cfg.Whitelist))
	for _, ip := range cfg.Whitelist {
		wl[ip] = struct{}{}
	}
	return &Rules{Global: global, Forms: forms, AI: ai, whitelist: wl}, nil
}

// IsWhitelisted returns true if the client address bypasses the global limit.
func (r *Rules) IsWhitelisted(ip string) bool {
	_, ok := r.whitelist[ip]
	return ok
}

func parseRule(rule config.RateLimitRule) (Rule, error) {
	if rule.Limit <= 0 {
		return Rule{}, nil
	}
	if rule.Window == "" {
		return Rule{}, fmt.Errorf("window duration is not set")
	}
	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return Rule{}, err
	}
	return Rule{Limit: rule.Limit, Window: window}, nil
}
