package domain

import "time"

// Application is a connection request submitted from the Mini App.
type Application struct {
	ID        int64
	UserID    int64
	FormData  map[string]string
	Status    string
	CreatedAt time.Time
}

// SOSRequest is an urgent help request.
type SOSRequest struct {
	ID          int64
	UserID      int64
	City        string
	Contact     string
	Description string
	CreatedAt   time.Time
}

// SupportTicket is a free-form support message.
type SupportTicket struct {
	ID        int64
	UserID    int64
	Message   string
	CreatedAt time.Time
}

// Offer is a rate card shown in the Mini App.
type Offer struct {
	ID          int64
	Category    string
	Description string
	RateFrom    float64
	RateTo      float64
}
