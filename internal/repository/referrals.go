package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Proton-105/craft-bot/internal/database"
	"github.com/Proton-105/craft-bot/internal/domain"
)

// LevelSummary aggregates a user's referral edges of one level.
type LevelSummary struct {
	Level      int
	Count      int64
	CapsEarned int64
}

// ReferralRepository persists referral edges and pending deep-link referrals.
type ReferralRepository interface {
	// Create inserts the edge unless (referrer, referred) already exists; it reports whether a row was written.
	Create(ctx context.Context, ref *domain.Referral) (bool, error)
	CountByLevel(ctx context.Context, referrerID int64, level int) (int64, error)
	TotalEarned(ctx context.Context, referrerID int64) (int64, error)
	Summary(ctx context.Context, referrerID int64) ([]LevelSummary, error)
	Recent(ctx context.Context, referrerID int64, limit int) ([]domain.ReferredUser, error)
	IsReferred(ctx context.Context, referredID int64) (bool, error)

	FindPending(ctx context.Context, referredTelegramID int64) (*domain.PendingReferral, error)
	PendingExists(ctx context.Context, referredTelegramID, referrerTelegramID int64) (bool, error)
	CreatePending(ctx context.Context, referredTelegramID, referrerTelegramID int64, at time.Time) (bool, error)
	MarkPendingProcessed(ctx context.Context, referredTelegramID int64) error
}

type referralRepository struct {
	q database.Querier
}

func NewReferralRepository(q database.Querier) ReferralRepository {
	return &referralRepository{q: q}
}

func (r *referralRepository) Create(ctx context.Context, ref *domain.Referral) (bool, error) {
	const query = `
		INSERT INTO referrals (referrer_id, referred_id, level, commission_percent, caps_earned, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (referrer_id, referred_id) DO NOTHING
	`

	res, err := r.q.ExecContext(ctx, query,
		ref.ReferrerID, ref.ReferredID, ref.Level, ref.CommissionPercent, ref.CapsEarned, ref.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert referral: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("referral rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *referralRepository) CountByLevel(ctx context.Context, referrerID int64, level int) (int64, error) {
	var n int64
	err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM referrals WHERE referrer_id = $1 AND level = $2`, referrerID, level).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count referrals: %w", err)
	}
	return n, nil
}

func (r *referralRepository) TotalEarned(ctx context.Context, referrerID int64) (int64, error) {
	var n int64
	err := r.q.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(caps_earned), 0) FROM referrals WHERE referrer_id = $1`, referrerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sum referral earnings: %w", err)
	}
	return n, nil
}

func (r *referralRepository) Summary(ctx context.Context, referrerID int64) ([]LevelSummary, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT level, COUNT(*), COALESCE(SUM(caps_earned), 0)
		FROM referrals WHERE referrer_id = $1
		GROUP BY level ORDER BY level`, referrerID)
	if err != nil {
		return nil, fmt.Errorf("select referral summary: %w", err)
	}
	defer rows.Close()

	var out []LevelSummary
	for rows.Next() {
		var s LevelSummary
		if err := rows.Scan(&s.Level, &s.Count, &s.CapsEarned); err != nil {
			return nil, fmt.Errorf("scan referral summary: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *referralRepository) Recent(ctx context.Context, referrerID int64, limit int) ([]domain.ReferredUser, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT u.first_name, u.username, u.system_uid, r.level, r.caps_earned, r.created_at
		FROM referrals r JOIN users u ON r.referred_id = u.id
		WHERE r.referrer_id = $1
		ORDER BY r.id DESC LIMIT $2`, referrerID, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent referrals: %w", err)
	}
	defer rows.Close()

	var out []domain.ReferredUser
	for rows.Next() {
		var u domain.ReferredUser
		if err := rows.Scan(&u.FirstName, &u.Username, &u.SystemUID, &u.Level, &u.CapsEarned, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan recent referral: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *referralRepository) IsReferred(ctx context.Context, referredID int64) (bool, error) {
	var n int64
	if err := r.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM referrals WHERE referred_id = $1`, referredID).Scan(&n); err != nil {
		return false, fmt.Errorf("check referred: %w", err)
	}
	return n > 0, nil
}

// FindPending returns the oldest unprocessed pending referral for the clicker.
func (r *referralRepository) FindPending(ctx context.Context, referredTelegramID int64) (*domain.PendingReferral, error) {
	var p domain.PendingReferral
	err := r.q.QueryRowContext(ctx, `
		SELECT id, referred_telegram_id, referrer_telegram_id, processed, created_at
		FROM pending_referrals
		WHERE referred_telegram_id = $1 AND processed = FALSE
		ORDER BY id LIMIT 1`, referredTelegramID,
	).Scan(&p.ID, &p.ReferredTelegramID, &p.ReferrerTelegramID, &p.Processed, &p.CreatedAt)
	if err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("select pending referral: %w", err)
	}
	return &p, nil
}

func (r *referralRepository) PendingExists(ctx context.Context, referredTelegramID, referrerTelegramID int64) (bool, error) {
	var n int64
	err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pending_referrals
		WHERE referred_telegram_id = $1 AND referrer_telegram_id = $2`,
		referredTelegramID, referrerTelegramID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check pending referral: %w", err)
	}
	return n > 0, nil
}

func (r *referralRepository) CreatePending(ctx context.Context, referredTelegramID, referrerTelegramID int64, at time.Time) (bool, error) {
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO pending_referrals (referred_telegram_id, referrer_telegram_id, processed, created_at)
		VALUES ($1, $2, FALSE, $3)
		ON CONFLICT (referred_telegram_id, referrer_telegram_id) DO NOTHING`,
		referredTelegramID, referrerTelegramID, at)
	if err != nil {
		return false, fmt.Errorf("insert pending referral: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pending referral rows affected: %w", err)
	}
	return n == 1, nil
}

func (r *referralRepository) MarkPendingProcessed(ctx context.Context, referredTelegramID int64) error {
	if _, err := r.q.ExecContext(ctx,
		`UPDATE pending_referrals SET processed = TRUE WHERE referred_telegram_id = $1`, referredTelegramID); err != nil {
		return fmt.Errorf("mark pending referral processed: %w", err)
	}
	return nil
}
