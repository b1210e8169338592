package domain

import "time"

// AISession is the per-user chat session with its rapid-fire counter.
type AISession struct {
	ID              int64
	UserID          int64
	SessionID       string
	MessageCount    int
	IsBlocked       bool
	BlockExpiresAt  *time.Time
	TotalTokensUsed int64
	TotalCostUSD    float64
	LastActivity    time.Time
	CreatedAt       time.Time
}

// Conversation is an immutable chat log row.
type Conversation struct {
	ID         int64
	UserID     int64
	SessionID  string
	Message    string
	Response   string
	CapsSpent  int64
	TokensUsed int
	CostUSD    float64
	CreatedAt  time.Time
}

// KnowledgeEntry is an admin-curated snippet injected into the system prompt.
type KnowledgeEntry struct {
	ID       int64
	Title    string
	Content  string
	Priority int
}

// LearnedFact is a statement mined from user messages.
type LearnedFact struct {
	Fact       string
	Confidence float64
	Source     string
}

// LeadField is one qualifying value captured from chat, upserted per field.
type LeadField struct {
	Name  string
	Value string
}

// Usage is the provider's token report for one completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// AIChatUser is a row of the admin AI history listing.
type AIChatUser struct {
	UserID       int64
	TelegramID   int64
	FirstName    string
	Username     string
	Messages     int64
	LastActivity time.Time
}
