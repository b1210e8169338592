package domain

import "time"

// Operation kinds recorded in balance history.
const (
	OpRegistrationBonus = "registration_bonus"
	OpReferralBonus     = "referral_bonus"
	OpReferralPurchase  = "referral_purchase"
	OpAICost            = "ai_cost"
	OpAchievementReward = "achievement_reward"
	OpShopPurchase      = "shop_purchase"
	OpLessonReward      = "lesson_reward"
	OpNewsDailyCharge   = "news_daily_charge"
)

// BalanceEntry is one immutable row of the balance history.
type BalanceEntry struct {
	ID           int64
	UserID       int64
	Amount       int64
	Operation    string
	Description  string
	BalanceAfter int64
	CreatedAt    time.Time
}

// HistoryFilter narrows the balance history by sign of the amount.
type HistoryFilter string

const (
	HistoryAll     HistoryFilter = "all"
	HistoryIncome  HistoryFilter = "income"
	HistoryExpense HistoryFilter = "expense"
)

// ParseHistoryFilter falls back to HistoryAll for unknown values.
func ParseHistoryFilter(s string) HistoryFilter {
	switch HistoryFilter(s) {
	case HistoryIncome, HistoryExpense:
		return HistoryFilter(s)
	default:
		return HistoryAll
	}
}
