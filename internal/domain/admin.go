package domain

import "time"

// Admin message directions.
const (
	DirectionUserToAdmin = "user_to_admin"
	DirectionAdminToUser = "admin_to_user"
)

// AdminMessage is one message of the user <-> admin chat relayed through the bot.
type AdminMessage struct {
	ID             int64
	UserTelegramID int64
	Direction      string
	Message        string
	AdminUsername  string
	CreatedAt      time.Time
}

// ChatThread summarizes a user's conversation with the admins.
type ChatThread struct {
	UserTelegramID int64
	FirstName      string
	Username       string
	Messages       int64
	LastMessageAt  time.Time
}

// Setting keys writable through the admin API.
const (
	SettingAIMessageCost = "ai_message_cost"
	SettingNewsDailyCost = "news_daily_cost"
)
