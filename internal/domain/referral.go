package domain

import "time"

// Referral is an attribution edge; Level is 1 for the direct inviter and 2 for the inviter's inviter.
type Referral struct {
	ID                int64
	ReferrerID        int64
	ReferredID        int64
	Level             int
	CommissionPercent float64
	CapsEarned        int64
	CreatedAt         time.Time
}

// PendingReferral records a deep-link click made before the clicker registered.
type PendingReferral struct {
	ID                 int64
	ReferredTelegramID int64
	ReferrerTelegramID int64
	Processed          bool
	CreatedAt          time.Time
}

// ReferralStats summarizes a user's downline.
type ReferralStats struct {
	Level1Count int64
	Level2Count int64
	TotalEarned int64
	Recent      []ReferredUser
}

// ReferredUser is a row of the referral listing.
type ReferredUser struct {
	FirstName  string
	Username   string
	SystemUID  string
	Level      int
	CapsEarned int64
	CreatedAt  time.Time
}
