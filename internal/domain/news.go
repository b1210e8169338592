package domain

import "time"

// NewsSubscription is a paid daily news subscription.
type NewsSubscription struct {
	ID           int64
	UserID       int64
	TelegramID   int64
	IsActive     bool
	SubscribedAt time.Time
}

// Subscriber is an active subscription joined with the user's balance.
type Subscriber struct {
	UserID     int64
	TelegramID int64
	FirstName  string
	Balance    int64
}
