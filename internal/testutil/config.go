package testutil

import (
	"time"

	"github.com/Proton-105/craft-bot/pkg/config"
)

// ReferralConfig mirrors the production referral defaults.
func ReferralConfig() config.ReferralConfig {
	return config.ReferralConfig{
		BaseBalance:       100,
		BoostedBalance:    150,
		Level1Bonus:       30,
		Level2Bonus:       15,
		Level1Percent:     "0.05",
		Level2Percent:     "0.02",
		StartingSystemUID: 666,
		MaxSystemUID:      99999,
	}
}

// AIConfig mirrors the production assistant defaults with a fake key.
func AIConfig() config.AIConfig {
	return config.AIConfig{
		APIKey:           "test-key",
		Model:            "gpt-4o-mini",
		CostPer1KTokens:  "0.00015",
		CapsPerRequest:   5,
		MaxTokens:        500,
		Temperature:      0.7,
		Timeout:          time.Second,
		HistoryTurns:     10,
		KnowledgeEntries: 30,
		LearnedFacts:     20,
		TurnChars:        300,
		MessageChars:     500,
		LeadPromptEvery:  5,
	}
}

// SpamConfig mirrors the production rapid-fire policy.
func SpamConfig() config.SpamConfig {
	return config.SpamConfig{
		RapidThreshold:   2 * time.Second,
		MaxRapidMessages: 6,
		BlockDuration:    30 * time.Minute,
	}
}
