package domain

import "time"

// Level is the user's tier. VIP users chat with the assistant for free.
type Level string

const (
	LevelBasic Level = "basic"
	LevelVIP   Level = "vip"
)

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	return l == LevelBasic || l == LevelVIP
}

// User represents an application user stored in the database.
type User struct {
	ID              int64
	TelegramID      int64
	SystemUID       string
	ReferrerID      *int64
	FirstName       string
	LastName        string
	Username        string
	Balance         int64
	TotalEarned     int64
	TotalSpent      int64
	AIRequestsCount int64
	Level           Level
	CreatedAt       time.Time
	LastActivity    time.Time
}

// IsVIP reports whether the user bypasses the AI chat cost.
func (u *User) IsVIP() bool {
	return u != nil && u.Level == LevelVIP
}

// DisplayName returns the best human-readable name for notifications.
func (u *User) DisplayName() string {
	switch {
	case u == nil:
		return ""
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return "@" + u.Username
	default:
		return u.SystemUID
	}
}

// NewUser carries the registration payload of /api/init and bot /start.
type NewUser struct {
	TelegramID  int64
	FirstName   string
	LastName    string
	Username    string
	ReferrerUID string
}
