package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Proton-105/craft-bot/internal/database"
	"github.com/Proton-105/craft-bot/internal/domain"
)

// NewsRepository persists paid news subscriptions.
type NewsRepository interface {
	Subscribe(ctx context.Context, userID, telegramID int64, at time.Time) error
	Unsubscribe(ctx context.Context, userID int64) error
	IsActive(ctx context.Context, userID int64) (bool, error)
	ActiveSubscribers(ctx context.Context) ([]domain.Subscriber, error)
}

type newsRepository struct {
	q database.Querier
}

func NewNewsRepository(q database.Querier) NewsRepository {
	return &newsRepository{q: q}
}

func (r *newsRepository) Subscribe(ctx context.Context, userID, telegramID int64, at time.Time) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO news_subscriptions (user_id, telegram_id, is_active, subscribed_at)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT (user_id) DO UPDATE SET is_active = TRUE, subscribed_at = excluded.subscribed_at`,
		userID, telegramID, at)
	if err != nil {
		return fmt.Errorf("upsert news subscription: %w", err)
	}
	return nil
}

func (r *newsRepository) Unsubscribe(ctx context.Context, userID int64) error {
	if _, err := r.q.ExecContext(ctx,
		`UPDATE news_subscriptions SET is_active = FALSE WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("deactivate news subscription: %w", err)
	}
	return nil
}

func (r *newsRepository) IsActive(ctx context.Context, userID int64) (bool, error) {
	var n int64
	if err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM news_subscriptions WHERE user_id = $1 AND is_active = TRUE`, userID).Scan(&n); err != nil {
		return false, fmt.Errorf("check news subscription: %w", err)
	}
	return n > 0, nil
}

func (r *newsRepository) ActiveSubscribers(ctx context.Context) ([]domain.Subscriber, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT u.id, u.telegram_id, u.first_name, u.caps_balance
		FROM news_subscriptions n JOIN users u ON n.user_id = u.id
		WHERE n.is_active = TRUE ORDER BY u.id`)
	if err != nil {
		return nil, fmt.Errorf("select news subscribers: %w", err)
	}
	defer rows.Close()

	var out []domain.Subscriber
	for rows.Next() {
		var s domain.Subscriber
		if err := rows.Scan(&s.UserID, &s.TelegramID, &s.FirstName, &s.Balance); err != nil {
			return nil, fmt.Errorf("scan news subscriber: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
