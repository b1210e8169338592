// Package ledger applies caps balance changes paired with balance history rows.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Proton-105/craft-bot/internal/database"
	"github.com/Proton-105/craft-bot/internal/domain"
	"github.com/Proton-105/craft-bot/internal/repository"
	"github.com/Proton-105/craft-bot/pkg/metrics"
)

// ErrUserNotFound is returned when the user row to mutate does not exist.
var ErrUserNotFound = errors.New("ledger: user not found")

// Totals selects which lifetime counter an operation contributes to.
type Totals int

const (
	// TotalsNone leaves total_earned_caps and total_spent_caps untouched.
	TotalsNone Totals = iota
	// TotalsEarned adds the amount to total_earned_caps.
	TotalsEarned
	// TotalsSpent adds the absolute amount to total_spent_caps.
	TotalsSpent
)

// Operation is one signed balance change.
type Operation struct {
	UserID      int64
	Amount      int64
	Kind        string
	Description string
	Totals      Totals
}

// Ledger applies operations inside the caller's transaction.
type Ledger struct {
	log *slog.Logger
	now func() time.Time
}

// New creates a Ledger.
func New(log *slog.Logger) *Ledger {
	if log == nil {
		log = slog.Default()
	}
	return &Ledger{log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Apply updates the balance in one statement and appends the history row carrying the
// resulting balance. q should be the transaction of the business operation so a rollback
// discards both writes. The ledger does not clamp: callers check funds before debiting.
func (l *Ledger) Apply(ctx context.Context, q database.Querier, op Operation) (*domain.BalanceEntry, error) {
	if op.Kind == "" {
		return nil, fmt.Errorf("apply balance delta: empty operation kind")
	}

	var earned, spent int64
	switch op.Totals {
	case TotalsEarned:
		earned = op.Amount
	case TotalsSpent:
		spent = -op.Amount
	}

	balances := repository.NewBalanceRepository(q)

	balance, err := balances.AddToBalance(ctx, op.UserID, op.Amount, earned, spent)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("apply balance delta: %w", err)
	}

	entry := &domain.BalanceEntry{
		UserID:       op.UserID,
		Amount:       op.Amount,
		Operation:    op.Kind,
		Description:  op.Description,
		BalanceAfter: balance,
		CreatedAt:    l.now(),
	}
	if err := balances.AppendHistory(ctx, entry); err != nil {
		return nil, fmt.Errorf("apply balance delta: %w", err)
	}

	metrics.RecordLedgerOperation(op.Kind, op.Amount)
	l.log.Debug("balance changed",
		slog.Int64("user_id", op.UserID),
		slog.String("operation", op.Kind),
		slog.Int64("amount", op.Amount),
		slog.Int64("balance_after", balance),
	)

	return entry, nil
}

// History returns the user's balance history, newest first.
func (l *Ledger) History(ctx context.Context, q database.Querier, userID int64, filter domain.HistoryFilter, limit int) ([]domain.BalanceEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	entries, err := repository.NewBalanceRepository(q).History(ctx, userID, filter, limit)
	if err != nil {
		return nil, fmt.Errorf("load balance history: %w", err)
	}
	return entries, nil
}
