package achievement

import (
	"time"

	"github.com/Proton-105/craft-bot/internal/domain"
)

// Rule reports whether the user qualifies for an achievement.
type Rule func(s domain.AchievementStats, now time.Time) bool

const veteranAge = 30 * 24 * time.Hour

// Rules maps catalog codes to predicates. Catalog entries without a rule are never awarded.
var Rules = map[string]Rule{
	"first_login":     func(domain.AchievementStats, time.Time) bool { return true },
	"first_referral":  func(s domain.AchievementStats, _ time.Time) bool { return s.Level1Referrals >= 1 },
	"referral_master": func(s domain.AchievementStats, _ time.Time) bool { return s.Level1Referrals >= 5 },
	"ai_chat_10":      func(s domain.AchievementStats, _ time.Time) bool { return s.AIRequests >= 10 },
	"chatty":          func(s domain.AchievementStats, _ time.Time) bool { return s.AIRequests >= 30 },
	"ai_addict":       func(s domain.AchievementStats, _ time.Time) bool { return s.AIRequests >= 100 },
	"first_lesson":    func(s domain.AchievementStats, _ time.Time) bool { return s.LessonsCompleted >= 1 },
	"university_graduate": func(s domain.AchievementStats, _ time.Time) bool {
		return s.ActiveLessons > 0 && s.LessonsCompleted >= s.ActiveLessons
	},
	"balance_1000":     func(s domain.AchievementStats, _ time.Time) bool { return s.Balance >= 1000 },
	"sos_helper":       func(s domain.AchievementStats, _ time.Time) bool { return s.SOSRequests >= 1 },
	"application_sent": func(s domain.AchievementStats, _ time.Time) bool { return s.Applications >= 1 },
	"shopper":          func(s domain.AchievementStats, _ time.Time) bool { return s.Purchases >= 1 },
	"vip_person":       func(s domain.AchievementStats, _ time.Time) bool { return s.Level == domain.LevelVIP },
	"craft_veteran": func(s domain.AchievementStats, now time.Time) bool {
		return !s.CreatedAt.IsZero() && now.Sub(s.CreatedAt) >= veteranAge
	},
}
