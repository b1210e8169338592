package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Proton-105/craft-bot/internal/database"
	"github.com/Proton-105/craft-bot/internal/domain"
)

// AIRepository persists chat sessions, conversations and the assistant's context sources.
type AIRepository interface {
	GetSession(ctx context.Context, userID int64) (*domain.AISession, error)
	CreateSession(ctx context.Context, s *domain.AISession) error
	SaveSessionState(ctx context.Context, s *domain.AISession) error
	AddSessionUsage(ctx context.Context, userID int64, tokens int, costUSD float64, at time.Time) error
	ResetSession(ctx context.Context, userID int64) (bool, error)

	InsertConversation(ctx context.Context, c *domain.Conversation) error
	LastResponseAt(ctx context.Context, userID int64, sessionID string) (*time.Time, error)
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]domain.Conversation, error)
	CountConversations(ctx context.Context, userID int64) (int64, error)
	UserConversations(ctx context.Context, userID int64, limit int) ([]domain.Conversation, error)
	ChatUsers(ctx context.Context, limit int) ([]domain.AIChatUser, error)

	KnowledgeBase(ctx context.Context, limit int) ([]domain.KnowledgeEntry, error)
	LearnedFacts(ctx context.Context, minConfidence float64, limit int) ([]string, error)
	InsertLearnedFact(ctx context.Context, f domain.LearnedFact, at time.Time) error
	UpsertLeadField(ctx context.Context, userID, telegramID int64, f domain.LeadField, at time.Time) error
	LogUsage(ctx context.Context, userID int64, usage domain.Usage, costUSD float64, at time.Time) error
}

type aiRepository struct {
	q database.Querier
}

func NewAIRepository(q database.Querier) AIRepository {
	return &aiRepository{q: q}
}

func (r *aiRepository) GetSession(ctx context.Context, userID int64) (*domain.AISession, error) {
	var (
		s       domain.AISession
		expires sql.NullTime
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, user_id, session_id, message_count, is_blocked, block_expires_at,
			total_tokens_used, total_cost_usd, last_activity, created_at
		FROM user_ai_sessions WHERE user_id = $1`, userID,
	).Scan(&s.ID, &s.UserID, &s.SessionID, &s.MessageCount, &s.IsBlocked, &expires,
		&s.TotalTokensUsed, &s.TotalCostUSD, &s.LastActivity, &s.CreatedAt)
	if err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("select ai session: %w", err)
	}
	s.BlockExpiresAt = nullTime(expires)
	return &s, nil
}

func (r *aiRepository) CreateSession(ctx context.Context, s *domain.AISession) error {
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO user_ai_sessions (user_id, session_id, message_count, is_blocked, last_activity, created_at)
		VALUES ($1, $2, 0, FALSE, $3, $4)
		RETURNING id`, s.UserID, s.SessionID, s.CreatedAt, s.CreatedAt,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("insert ai session: %w", err)
	}
	return nil
}

// SaveSessionState persists the spam-policy fields of s.
func (r *aiRepository) SaveSessionState(ctx context.Context, s *domain.AISession) error {
	var expires any
	if s.BlockExpiresAt != nil {
		expires = *s.BlockExpiresAt
	}
	_, err := r.q.ExecContext(ctx, `
		UPDATE user_ai_sessions SET message_count = $1, is_blocked = $2, block_expires_at = $3
		WHERE user_id = $4`, s.MessageCount, s.IsBlocked, expires, s.UserID)
	if err != nil {
		return fmt.Errorf("update ai session state: %w", err)
	}
	return nil
}

func (r *aiRepository) AddSessionUsage(ctx context.Context, userID int64, tokens int, costUSD float64, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE user_ai_sessions
		SET message_count = message_count + 1,
			total_tokens_used = total_tokens_used + $1,
			total_cost_usd = total_cost_usd + $2,
			last_activity = $3
		WHERE user_id = $4`, tokens, costUSD, at, userID)
	if err != nil {
		return fmt.Errorf("update ai session usage: %w", err)
	}
	return nil
}

// ResetSession lifts a spam block; it reports whether the user had a session.
func (r *aiRepository) ResetSession(ctx context.Context, userID int64) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		UPDATE user_ai_sessions SET is_blocked = FALSE, block_expires_at = NULL, message_count = 0
		WHERE user_id = $1`, userID)
	if err != nil {
		return false, fmt.Errorf("reset ai session: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *aiRepository) InsertConversation(ctx context.Context, c *domain.Conversation) error {
	err := r.q.QueryRowContext(ctx, `
		INSERT INTO ai_conversations (user_id, session_id, message, response, caps_spent, tokens_used, cost_usd, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		c.UserID, c.SessionID, c.Message, c.Response, c.CapsSpent, c.TokensUsed, c.CostUSD, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("insert ai conversation: %w", err)
	}
	return nil
}

func (r *aiRepository) LastResponseAt(ctx context.Context, userID int64, sessionID string) (*time.Time, error) {
	var at time.Time
	err := r.q.QueryRowContext(ctx, `
		SELECT created_at FROM ai_conversations
		WHERE user_id = $1 AND session_id = $2
		ORDER BY id DESC LIMIT 1`, userID, sessionID).Scan(&at)
	if err != nil {
		if notFound(err) == ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("select last ai response: %w", err)
	}
	return &at, nil
}

// RecentTurns returns up to limit turns of the session in chronological order.
func (r *aiRepository) RecentTurns(ctx context.Context, sessionID string, limit int) ([]domain.Conversation, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, session_id, message, response, caps_spent, tokens_used, cost_usd, created_at
		FROM ai_conversations WHERE session_id = $1
		ORDER BY id DESC LIMIT $2`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent turns: %w", err)
	}
	defer rows.Close()

	out, err := scanConversations(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (r *aiRepository) CountConversations(ctx context.Context, userID int64) (int64, error) {
	var n int64
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ai_conversations WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count conversations: %w", err)
	}
	return n, nil
}

// UserConversations returns the user's latest conversations, newest first.
func (r *aiRepository) UserConversations(ctx context.Context, userID int64, limit int) ([]domain.Conversation, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, session_id, message, response, caps_spent, tokens_used, cost_usd, created_at
		FROM ai_conversations WHERE user_id = $1
		ORDER BY id DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select user conversations: %w", err)
	}
	defer rows.Close()
	return scanConversations(rows)
}

func scanConversations(rows *sql.Rows) ([]domain.Conversation, error) {
	var out []domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.SessionID, &c.Message, &c.Response,
			&c.CapsSpent, &c.TokensUsed, &c.CostUSD, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ChatUsers lists users who talked to the assistant, most messages first.
func (r *aiRepository) ChatUsers(ctx context.Context, limit int) ([]domain.AIChatUser, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT u.id, u.telegram_id, u.first_name, u.username, COUNT(c.id), MAX(c.id)
		FROM ai_conversations c JOIN users u ON c.user_id = u.id
		GROUP BY u.id, u.telegram_id, u.first_name, u.username
		ORDER BY MAX(c.id) DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select ai chat users: %w", err)
	}
	defer rows.Close()

	var out []domain.AIChatUser
	for rows.Next() {
		var (
			u      domain.AIChatUser
			lastID int64
		)
		if err := rows.Scan(&u.UserID, &u.TelegramID, &u.FirstName, &u.Username, &u.Messages, &lastID); err != nil {
			return nil, fmt.Errorf("scan ai chat user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		var at time.Time
		if err := r.q.QueryRowContext(ctx, `
			SELECT created_at FROM ai_conversations WHERE user_id = $1 ORDER BY id DESC LIMIT 1`,
			out[i].UserID).Scan(&at); err == nil {
			out[i].LastActivity = at
		}
	}
	return out, nil
}

func (r *aiRepository) KnowledgeBase(ctx context.Context, limit int) ([]domain.KnowledgeEntry, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, title, content, priority FROM ai_knowledge_base
		WHERE is_active = TRUE ORDER BY priority DESC, id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select knowledge base: %w", err)
	}
	defer rows.Close()

	var out []domain.KnowledgeEntry
	for rows.Next() {
		var e domain.KnowledgeEntry
		if err := rows.Scan(&e.ID, &e.Title, &e.Content, &e.Priority); err != nil {
			return nil, fmt.Errorf("scan knowledge entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *aiRepository) LearnedFacts(ctx context.Context, minConfidence float64, limit int) ([]string, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT fact FROM ai_learned_facts
		WHERE confidence >= $1 ORDER BY id DESC LIMIT $2`, minConfidence, limit)
	if err != nil {
		return nil, fmt.Errorf("select learned facts: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("scan learned fact: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (r *aiRepository) InsertLearnedFact(ctx context.Context, f domain.LearnedFact, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO ai_learned_facts (fact, confidence, source, learned_at) VALUES ($1, $2, $3, $4)`,
		f.Fact, f.Confidence, f.Source, at)
	if err != nil {
		return fmt.Errorf("insert learned fact: %w", err)
	}
	return nil
}

func (r *aiRepository) UpsertLeadField(ctx context.Context, userID, telegramID int64, f domain.LeadField, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO lead_cards (user_id, telegram_id, field_name, field_value, collected_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, field_name)
		DO UPDATE SET field_value = excluded.field_value, collected_at = excluded.collected_at`,
		userID, telegramID, f.Name, f.Value, at)
	if err != nil {
		return fmt.Errorf("upsert lead field %s: %w", f.Name, err)
	}
	return nil
}

func (r *aiRepository) LogUsage(ctx context.Context, userID int64, usage domain.Usage, costUSD float64, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO ai_usage_log (user_id, tokens_in, tokens_out, cost, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		userID, usage.PromptTokens, usage.CompletionTokens, costUSD, at)
	if err != nil {
		return fmt.Errorf("insert ai usage log: %w", err)
	}
	return nil
}
