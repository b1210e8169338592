package user

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/craft-bot/internal/achievement"
	"github.com/Proton-105/craft-bot/internal/domain"
	"github.com/Proton-105/craft-bot/internal/i18n"
	"github.com/Proton-105/craft-bot/internal/ledger"
	"github.com/Proton-105/craft-bot/internal/referral"
	"github.com/Proton-105/craft-bot/internal/testutil"
)

func newTestService(t *testing.T, db *sql.DB) (*Service, *testutil.Notifier) {
	t.Helper()

	log := testutil.Logger()
	n := &testutil.Notifier{}
	l := ledger.New(log)
	refs, err := referral.NewService(testutil.ReferralConfig(), l, n, i18n.Default(), log)
	require.NoError(t, err)

	return NewService(db, testutil.ReferralConfig(), l, refs, achievement.NewEvaluator(db, l, log), n, i18n.Default(), log), n
}

func TestRegister_ReferralChain(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	svc, notifier := newTestService(t, db)

	a, err := svc.Register(ctx, domain.NewUser{TelegramID: 100, FirstName: "A"})
	require.NoError(t, err)
	assert.Equal(t, "0666", a.User.SystemUID)
	assert.Equal(t, int64(100), a.User.Balance)
	assert.Nil(t, a.Referrer)

	b, err := svc.Register(ctx, domain.NewUser{TelegramID: 200, FirstName: "B", ReferrerUID: a.User.SystemUID})
	require.NoError(t, err)
	assert.Equal(t, "0667", b.User.SystemUID)
	assert.Equal(t, int64(150), b.User.Balance)
	require.NotNil(t, b.Referrer)
	assert.Equal(t, a.User.ID, b.Referrer.ID)
	assert.Equal(t, int64(130), testutil.Balance(t, db, a.User.ID))

	c, err := svc.Register(ctx, domain.NewUser{TelegramID: 300, FirstName: "C", ReferrerUID: b.User.SystemUID})
	require.NoError(t, err)
	assert.Equal(t, int64(150), c.User.Balance)
	assert.Equal(t, int64(180), testutil.Balance(t, db, b.User.ID))
	assert.Equal(t, int64(145), testutil.Balance(t, db, a.User.ID))

	assert.Equal(t, int64(1), testutil.Count(t, db,
		`SELECT COUNT(*) FROM referrals WHERE referrer_id = $1 AND referred_id = $2 AND level = 2`, a.User.ID, c.User.ID))
	assert.Equal(t, int64(3), testutil.Count(t, db, `SELECT COUNT(*) FROM user_ai_sessions`))

	assert.NotEmpty(t, notifier.To(100), "level-1 and level-2 notifications")
	assert.NotEmpty(t, notifier.To(300), "welcome message")
}

func TestRegister_DuplicateIsNoop(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	svc, _ := newTestService(t, db)

	a, err := svc.Register(ctx, domain.NewUser{TelegramID: 100})
	require.NoError(t, err)
	_, err = svc.Register(ctx, domain.NewUser{TelegramID: 200, ReferrerUID: a.User.SystemUID})
	require.NoError(t, err)

	_, err = svc.Register(ctx, domain.NewUser{TelegramID: 200, ReferrerUID: a.User.SystemUID})
	assert.ErrorIs(t, err, ErrAlreadyRegistered)

	assert.Equal(t, int64(1), testutil.Count(t, db, `SELECT COUNT(*) FROM referrals`))
	assert.Equal(t, int64(130), testutil.Balance(t, db, a.User.ID))
	assert.Equal(t, int64(1), testutil.Count(t, db,
		`SELECT COUNT(*) FROM balance_history WHERE operation = $1 AND user_id = (SELECT id FROM users WHERE telegram_id = 200)`,
		domain.OpRegistrationBonus))

	res, err := svc.Init(ctx, domain.NewUser{TelegramID: 200})
	require.NoError(t, err)
	assert.True(t, res.Exists)
	assert.Equal(t, int64(150), res.User.Balance)
}

func TestRegister_SelfReferralIgnored(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	svc, _ := newTestService(t, db)

	res, err := svc.Register(ctx, domain.NewUser{TelegramID: 100, ReferrerUID: "0666"})
	require.NoError(t, err)
	assert.Equal(t, "0666", res.User.SystemUID)
	assert.Nil(t, res.Referrer)
	assert.Equal(t, int64(100), res.User.Balance)
	assert.Zero(t, testutil.Count(t, db, `SELECT COUNT(*) FROM referrals`))
}

func TestRegister_PendingReferralWins(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	svc, notifier := newTestService(t, db)

	a, err := svc.Register(ctx, domain.NewUser{TelegramID: 100})
	require.NoError(t, err)
	p, err := svc.Register(ctx, domain.NewUser{TelegramID: 500})
	require.NoError(t, err)

	referrer, err := svc.CreatePendingReferral(ctx, 900, 500, "Клик")
	require.NoError(t, err)
	require.NotNil(t, referrer)
	assert.Equal(t, p.User.ID, referrer.ID)
	assert.NotEmpty(t, notifier.To(500))

	// a second click on the same link records nothing new
	_, err = svc.CreatePendingReferral(ctx, 900, 500, "Клик")
	require.NoError(t, err)
	assert.Equal(t, int64(1), testutil.Count(t, db, `SELECT COUNT(*) FROM pending_referrals`))

	res, err := svc.Register(ctx, domain.NewUser{TelegramID: 900, ReferrerUID: a.User.SystemUID})
	require.NoError(t, err)
	require.NotNil(t, res.Referrer)
	assert.Equal(t, p.User.ID, res.Referrer.ID)
	assert.Equal(t, int64(1), testutil.Count(t, db,
		`SELECT COUNT(*) FROM pending_referrals WHERE referred_telegram_id = 900 AND processed = TRUE`))
	assert.Equal(t, int64(100), testutil.Balance(t, db, a.User.ID))
}

func TestRegister_UserLimit(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	svc, _ := newTestService(t, db)
	svc.cfg.MaxSystemUID = 666

	_, err := svc.Register(ctx, domain.NewUser{TelegramID: 1})
	require.NoError(t, err)

	_, err = svc.Register(ctx, domain.NewUser{TelegramID: 2})
	assert.ErrorIs(t, err, ErrUserLimit)
}

func TestLedgerSumEqualsBalance(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	svc, _ := newTestService(t, db)

	a, err := svc.Register(ctx, domain.NewUser{TelegramID: 100})
	require.NoError(t, err)
	for tid := int64(200); tid < 205; tid++ {
		_, err := svc.Register(ctx, domain.NewUser{TelegramID: tid, ReferrerUID: a.User.SystemUID})
		require.NoError(t, err)
	}

	history, err := svc.BalanceHistory(ctx, 100, domain.HistoryAll)
	require.NoError(t, err)

	var sum int64
	for _, e := range history {
		sum += e.Amount
	}
	assert.Equal(t, testutil.Balance(t, db, a.User.ID), sum)
	assert.Equal(t, sum, history[0].BalanceAfter)
}
