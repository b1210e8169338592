package ledger

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/craft-bot/internal/database"
	"github.com/Proton-105/craft-bot/internal/domain"
	"github.com/Proton-105/craft-bot/internal/testutil"
)

func TestApply_HistoryMatchesBalance(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	l := New(testutil.Logger())

	userID := testutil.InsertUser(t, db, testutil.User{TelegramID: 1})

	ops := []Operation{
		{UserID: userID, Amount: 100, Kind: domain.OpRegistrationBonus},
		{UserID: userID, Amount: 30, Kind: domain.OpReferralBonus, Totals: TotalsEarned},
		{UserID: userID, Amount: -5, Kind: domain.OpAICost, Totals: TotalsSpent},
		{UserID: userID, Amount: -50, Kind: domain.OpShopPurchase, Totals: TotalsSpent},
		{UserID: userID, Amount: 3, Kind: domain.OpReferralPurchase, Totals: TotalsEarned},
	}

	var sum int64
	for _, op := range ops {
		entry, err := l.Apply(ctx, db, op)
		require.NoError(t, err)

		sum += op.Amount
		assert.Equal(t, testutil.Balance(t, db, userID), entry.BalanceAfter, op.Kind)
	}

	assert.Equal(t, int64(78), testutil.Balance(t, db, userID))
	assert.Equal(t, sum, testutil.Balance(t, db, userID))

	var earned, spent int64
	require.NoError(t, db.QueryRowContext(ctx,
		`SELECT total_earned_caps, total_spent_caps FROM users WHERE id = $1`, userID).Scan(&earned, &spent))
	assert.Equal(t, int64(33), earned)
	assert.Equal(t, int64(55), spent)

	history, err := l.History(ctx, db, userID, domain.HistoryAll, 0)
	require.NoError(t, err)
	require.Len(t, history, len(ops))
	assert.Equal(t, domain.OpReferralPurchase, history[0].Operation)
	assert.Equal(t, int64(78), history[0].BalanceAfter)

	income, err := l.History(ctx, db, userID, domain.HistoryIncome, 10)
	require.NoError(t, err)
	assert.Len(t, income, 3)

	expense, err := l.History(ctx, db, userID, domain.HistoryExpense, 10)
	require.NoError(t, err)
	assert.Len(t, expense, 2)
}

func TestApply_RollbackDiscardsBothWrites(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	l := New(testutil.Logger())

	userID := testutil.InsertUser(t, db, testutil.User{TelegramID: 1, Balance: 40})

	err := database.WithTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := l.Apply(ctx, tx, Operation{UserID: userID, Amount: -40, Kind: domain.OpShopPurchase}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	assert.Equal(t, int64(40), testutil.Balance(t, db, userID))
	assert.Zero(t, testutil.Count(t, db, `SELECT COUNT(*) FROM balance_history WHERE user_id = $1`, userID))
}

func TestApply_Errors(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	l := New(testutil.Logger())

	_, err := l.Apply(ctx, db, Operation{UserID: 999, Amount: 1, Kind: domain.OpLessonReward})
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, err = l.Apply(ctx, db, Operation{UserID: 1, Amount: 1})
	assert.Error(t, err)
}
