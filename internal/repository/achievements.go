package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Proton-105/craft-bot/internal/database"
	"github.com/Proton-105/craft-bot/internal/domain"
)

// AchievementRepository reads the catalog, the evaluator's aggregates and records awards.
type AchievementRepository interface {
	ActiveCatalog(ctx context.Context) ([]domain.Achievement, error)
	EarnedCodes(ctx context.Context, userID int64) (map[string]bool, error)
	// Award inserts the (user, achievement) pair; false means it was already awarded.
	Award(ctx context.Context, userID, achievementID int64, at time.Time) (bool, error)
	Stats(ctx context.Context, userID int64) (*domain.AchievementStats, error)
	ListForUser(ctx context.Context, userID int64) ([]domain.EarnedAchievement, error)
	Earned(ctx context.Context, userID int64) ([]domain.EarnedAchievement, error)
}

type achievementRepository struct {
	q database.Querier
}

func NewAchievementRepository(q database.Querier) AchievementRepository {
	return &achievementRepository{q: q}
}

func (r *achievementRepository) ActiveCatalog(ctx context.Context) ([]domain.Achievement, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, code, name, description, icon, reward_caps, is_active
		FROM achievements WHERE is_active = TRUE ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select achievements: %w", err)
	}
	defer rows.Close()

	var out []domain.Achievement
	for rows.Next() {
		var a domain.Achievement
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Description, &a.Icon, &a.RewardCaps, &a.IsActive); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *achievementRepository) EarnedCodes(ctx context.Context, userID int64) (map[string]bool, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT a.code FROM user_achievements ua JOIN achievements a ON ua.achievement_id = a.id
		WHERE ua.user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("select earned codes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return nil, fmt.Errorf("scan earned code: %w", err)
		}
		out[code] = true
	}
	return out, rows.Err()
}

func (r *achievementRepository) Award(ctx context.Context, userID, achievementID int64, at time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO user_achievements (user_id, achievement_id, earned_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, achievement_id) DO NOTHING`, userID, achievementID, at)
	if err != nil {
		return false, fmt.Errorf("insert user achievement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("user achievement rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *achievementRepository) Stats(ctx context.Context, userID int64) (*domain.AchievementStats, error) {
	var (
		s     domain.AchievementStats
		level string
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT caps_balance, ai_requests_count, user_level, created_at FROM users WHERE id = $1`, userID,
	).Scan(&s.Balance, &s.AIRequests, &level, &s.CreatedAt)
	if err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("select achievement user: %w", err)
	}
	s.Level = domain.Level(level)

	counts := []struct {
		dst   *int64
		query string
	}{
		{&s.Level1Referrals, `SELECT COUNT(*) FROM referrals WHERE referrer_id = $1 AND level = 1`},
		{&s.LessonsCompleted, `SELECT COUNT(*) FROM university_progress WHERE user_id = $1 AND completed = TRUE`},
		{&s.SOSRequests, `SELECT COUNT(*) FROM sos_requests WHERE user_id = $1`},
		{&s.Applications, `SELECT COUNT(*) FROM applications WHERE user_id = $1`},
		{&s.Purchases, `SELECT COUNT(*) FROM shop_purchases WHERE user_id = $1`},
	}
	for _, c := range counts {
		if err := r.q.QueryRowContext(ctx, c.query, userID).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("count achievement stat: %w", err)
		}
	}

	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM university_lessons WHERE is_active = TRUE`).Scan(&s.ActiveLessons); err != nil {
		return nil, fmt.Errorf("count active lessons: %w", err)
	}
	return &s, nil
}

// ListForUser returns the active catalog with the user's earned flags.
func (r *achievementRepository) ListForUser(ctx context.Context, userID int64) ([]domain.EarnedAchievement, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT a.id, a.code, a.name, a.description, a.icon, a.reward_caps, a.is_active, ua.earned_at
		FROM achievements a
		LEFT JOIN user_achievements ua ON a.id = ua.achievement_id AND ua.user_id = $1
		WHERE a.is_active = TRUE ORDER BY a.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("select achievements for user: %w", err)
	}
	defer rows.Close()
	return scanEarned(rows)
}

// Earned returns only awarded achievements, newest first.
func (r *achievementRepository) Earned(ctx context.Context, userID int64) ([]domain.EarnedAchievement, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT a.id, a.code, a.name, a.description, a.icon, a.reward_caps, a.is_active, ua.earned_at
		FROM user_achievements ua JOIN achievements a ON ua.achievement_id = a.id
		WHERE ua.user_id = $1 ORDER BY ua.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("select earned achievements: %w", err)
	}
	defer rows.Close()
	return scanEarned(rows)
}

func scanEarned(rows *sql.Rows) ([]domain.EarnedAchievement, error) {
	var out []domain.EarnedAchievement
	for rows.Next() {
		var (
			e        domain.EarnedAchievement
			earnedAt sql.NullTime
		)
		if err := rows.Scan(&e.ID, &e.Code, &e.Name, &e.Description, &e.Icon, &e.RewardCaps, &e.IsActive, &earnedAt); err != nil {
			return nil, fmt.Errorf("scan achievement: %w", err)
		}
		e.EarnedAt = nullTime(earnedAt)
		e.Earned = e.EarnedAt != nil
		out = append(out, e)
	}
	return out, rows.Err()
}
