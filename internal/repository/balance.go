package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/Proton-105/craft-bot/internal/database"
	"github.com/Proton-105/craft-bot/internal/domain"
)

// BalanceRepository mutates caps balances and appends balance history rows.
type BalanceRepository interface {
	// AddToBalance applies delta in one statement and returns the resulting balance.
	// earned and spent are added to the lifetime totals in the same statement.
	AddToBalance(ctx context.Context, userID, delta, earned, spent int64) (int64, error)
	AppendHistory(ctx context.Context, entry *domain.BalanceEntry) error
	History(ctx context.Context, userID int64, filter domain.HistoryFilter, limit int) ([]domain.BalanceEntry, error)
}

type balanceRepository struct {
	q database.Querier
}

func NewBalanceRepository(q database.Querier) BalanceRepository {
	return &balanceRepository{q: q}
}

func (r *balanceRepository) AddToBalance(ctx context.Context, userID, delta, earned, spent int64) (int64, error) {
	const query = `
		UPDATE users
		SET caps_balance = caps_balance + $1,
			total_earned_caps = total_earned_caps + $2,
			total_spent_caps = total_spent_caps + $3
		WHERE id = $4
		RETURNING caps_balance
	`

	var balance int64
	if err := r.q.QueryRowContext(ctx, query, delta, earned, spent, userID).Scan(&balance); err != nil {
		if notFound(err) == ErrNotFound {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("update balance: %w", err)
	}
	return balance, nil
}

func (r *balanceRepository) AppendHistory(ctx context.Context, e *domain.BalanceEntry) error {
	const query = `
		INSERT INTO balance_history (user_id, amount, operation, description, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if err := r.q.QueryRowContext(ctx, query,
		e.UserID, e.Amount, e.Operation, e.Description, e.BalanceAfter, e.CreatedAt,
	).Scan(&e.ID); err != nil {
		return fmt.Errorf("insert balance history: %w", err)
	}
	return nil
}

// History returns the newest entries first.
func (r *balanceRepository) History(ctx context.Context, userID int64, filter domain.HistoryFilter, limit int) ([]domain.BalanceEntry, error) {
	query := `SELECT id, user_id, amount, operation, description, balance_after, created_at
		FROM balance_history WHERE user_id = $1`
	switch filter {
	case domain.HistoryIncome:
		query += ` AND amount > 0`
	case domain.HistoryExpense:
		query += ` AND amount < 0`
	}
	query += ` ORDER BY id DESC LIMIT $2`

	rows, err := r.q.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select balance history: %w", err)
	}
	defer rows.Close()

	var out []domain.BalanceEntry
	for rows.Next() {
		var e domain.BalanceEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Operation, &e.Description, &e.BalanceAfter, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan balance history: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
