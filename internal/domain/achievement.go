package domain

import "time"

// Achievement is a catalog entry.
type Achievement struct {
	ID          int64
	Code        string
	Name        string
	Description string
	Icon        string
	RewardCaps  int64
	IsActive    bool
}

// EarnedAchievement is an achievement together with the user's award state.
type EarnedAchievement struct {
	Achievement
	Earned   bool
	EarnedAt *time.Time
}

// AchievementStats are the aggregates the evaluator's predicates read.
type AchievementStats struct {
	Level1Referrals  int64
	AIRequests       int64
	LessonsCompleted int64
	ActiveLessons    int64
	Balance          int64
	SOSRequests      int64
	Applications     int64
	Purchases        int64
	Level            Level
	CreatedAt        time.Time
}
