package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Proton-105/craft-bot/internal/database"
	"github.com/Proton-105/craft-bot/internal/domain"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	GetBySystemUID(ctx context.Context, uid string) (*domain.User, error)
	LastNumericSystemUID(ctx context.Context) (int64, bool, error)
	Create(ctx context.Context, user *domain.User) error
	TouchActivity(ctx context.Context, id int64, at time.Time) error
	IncrementAIRequests(ctx context.Context, id int64) error
	SetLevel(ctx context.Context, id int64, level domain.Level) error
	Count(ctx context.Context) (int64, error)
}

type userRepository struct {
	q   database.Querier
	log *slog.Logger
}

// NewUserRepository creates a new SQL-backed user repository.
func NewUserRepository(q database.Querier, log *slog.Logger) UserRepository {
	if log == nil {
		log = slog.Default()
	}
	return &userRepository{q: q, log: log}
}

const userColumns = `id, telegram_id, system_uid, referrer_id, first_name, last_name, username,
	caps_balance, total_earned_caps, total_spent_caps, ai_requests_count, user_level, created_at, last_activity`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var (
		u          domain.User
		referrerID sql.NullInt64
		level      string
	)
	if err := row.Scan(
		&u.ID,
		&u.TelegramID,
		&u.SystemUID,
		&referrerID,
		&u.FirstName,
		&u.LastName,
		&u.Username,
		&u.Balance,
		&u.TotalEarned,
		&u.TotalSpent,
		&u.AIRequestsCount,
		&level,
		&u.CreatedAt,
		&u.LastActivity,
	); err != nil {
		return nil, err
	}
	if referrerID.Valid {
		id := referrerID.Int64
		u.ReferrerID = &id
	}
	u.Level = domain.Level(level)
	return &u, nil
}

func (r *userRepository) getBy(ctx context.Context, column string, arg any) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`

	user, err := scanUser(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		if err = notFound(err); err == ErrNotFound {
			return nil, err
		}
		r.log.Error("failed to fetch user", slog.String("by", column), slog.Any("error", err))
		return nil, fmt.Errorf("select user by %s: %w", column, err)
	}
	return user, nil
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return r.getBy(ctx, "id", id)
}

// GetByTelegramID retrieves a user by their Telegram identifier.
func (r *userRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	return r.getBy(ctx, "telegram_id", telegramID)
}

func (r *userRepository) GetBySystemUID(ctx context.Context, uid string) (*domain.User, error) {
	return r.getBy(ctx, "system_uid", uid)
}

// LastNumericSystemUID returns the largest purely numeric system uid. Zero-padded
// uids sort correctly by (length, value), so the first numeric row wins.
func (r *userRepository) LastNumericSystemUID(ctx context.Context) (int64, bool, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT system_uid FROM users ORDER BY LENGTH(system_uid) DESC, system_uid DESC`)
	if err != nil {
		return 0, false, fmt.Errorf("select system uids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return 0, false, fmt.Errorf("scan system uid: %w", err)
		}
		if n, convErr := strconv.ParseInt(uid, 10, 64); convErr == nil && n >= 0 {
			return n, true, nil
		}
	}
	return 0, false, rows.Err()
}

// Create persists a new user with a zero balance; the starting balance is credited through the ledger.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	const query = `
		INSERT INTO users (telegram_id, system_uid, referrer_id, first_name, last_name, username,
			caps_balance, user_level, created_at, last_activity)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9)
		RETURNING id
	`

	if user.Level == "" {
		user.Level = domain.LevelBasic
	}

	if err := r.q.QueryRowContext(
		ctx,
		query,
		user.TelegramID,
		user.SystemUID,
		user.ReferrerID,
		user.FirstName,
		user.LastName,
		user.Username,
		string(user.Level),
		user.CreatedAt,
		user.CreatedAt,
	).Scan(&user.ID); err != nil {
		r.log.Error("failed to create user", slog.Int64("telegram_id", user.TelegramID), slog.Any("error", err))
		return fmt.Errorf("insert user: %w", err)
	}

	user.Balance = 0
	user.LastActivity = user.CreatedAt
	return nil
}

func (r *userRepository) TouchActivity(ctx context.Context, id int64, at time.Time) error {
	if _, err := r.q.ExecContext(ctx, `UPDATE users SET last_activity = $1 WHERE id = $2`, at, id); err != nil {
		return fmt.Errorf("update last activity: %w", err)
	}
	return nil
}

func (r *userRepository) IncrementAIRequests(ctx context.Context, id int64) error {
	if _, err := r.q.ExecContext(ctx, `UPDATE users SET ai_requests_count = ai_requests_count + 1 WHERE id = $1`, id); err != nil {
		return fmt.Errorf("increment ai requests: %w", err)
	}
	return nil
}

func (r *userRepository) SetLevel(ctx context.Context, id int64, level domain.Level) error {
	res, err := r.q.ExecContext(ctx, `UPDATE users SET user_level = $1 WHERE id = $2`, string(level), id)
	if err != nil {
		return fmt.Errorf("update user level: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
