package repository

import (
	"context"
	"fmt"

	"github.com/Proton-105/craft-bot/internal/database"
	"github.com/Proton-105/craft-bot/internal/domain"
)

// AdminMessageRepository stores the user <-> admin chat relayed through the bot.
type AdminMessageRepository interface {
	Insert(ctx context.Context, m *domain.AdminMessage) error
	Threads(ctx context.Context, limit int) ([]domain.ChatThread, error)
	Messages(ctx context.Context, userTelegramID int64, limit int) ([]domain.AdminMessage, error)
}

type adminMessageRepository struct {
	q database.Querier
}

func NewAdminMessageRepository(q database.Querier) AdminMessageRepository {
	return &adminMessageRepository{q: q}
}

func (r *adminMessageRepository) Insert(ctx context.Context, m *domain.AdminMessage) error {
	if err := r.q.QueryRowContext(ctx, `
		INSERT INTO admin_messages (user_telegram_id, direction, message, admin_username, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`, m.UserTelegramID, m.Direction, m.Message, m.AdminUsername, m.CreatedAt).Scan(&m.ID); err != nil {
		return fmt.Errorf("insert admin message: %w", err)
	}
	return nil
}

// Threads lists users with messages, most recently active first.
func (r *adminMessageRepository) Threads(ctx context.Context, limit int) ([]domain.ChatThread, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT m.user_telegram_id, COALESCE(MAX(u.first_name), ''), COALESCE(MAX(u.username), ''),
			COUNT(m.id), MAX(m.id)
		FROM admin_messages m LEFT JOIN users u ON u.telegram_id = m.user_telegram_id
		GROUP BY m.user_telegram_id
		ORDER BY MAX(m.id) DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select chat threads: %w", err)
	}
	defer rows.Close()

	var (
		out     []domain.ChatThread
		lastIDs []int64
	)
	for rows.Next() {
		var (
			t      domain.ChatThread
			lastID int64
		)
		if err := rows.Scan(&t.UserTelegramID, &t.FirstName, &t.Username, &t.Messages, &lastID); err != nil {
			return nil, fmt.Errorf("scan chat thread: %w", err)
		}
		out = append(out, t)
		lastIDs = append(lastIDs, lastID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, id := range lastIDs {
		if err := r.q.QueryRowContext(ctx,
			`SELECT created_at FROM admin_messages WHERE id = $1`, id).Scan(&out[i].LastMessageAt); err != nil {
			return nil, fmt.Errorf("select last admin message: %w", err)
		}
	}
	return out, nil
}

// Messages returns the thread in chronological order.
func (r *adminMessageRepository) Messages(ctx context.Context, userTelegramID int64, limit int) ([]domain.AdminMessage, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_telegram_id, direction, message, admin_username, created_at
		FROM admin_messages WHERE user_telegram_id = $1
		ORDER BY id DESC LIMIT $2`, userTelegramID, limit)
	if err != nil {
		return nil, fmt.Errorf("select admin messages: %w", err)
	}
	defer rows.Close()

	var out []domain.AdminMessage
	for rows.Next() {
		var m domain.AdminMessage
		if err := rows.Scan(&m.ID, &m.UserTelegramID, &m.Direction, &m.Message, &m.AdminUsername, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan admin message: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
