package achievement

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/craft-bot/internal/domain"
	"github.com/Proton-105/craft-bot/internal/ledger"
	"github.com/Proton-105/craft-bot/internal/testutil"
)

func TestCheck_AwardsOnce(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	e := NewEvaluator(db, ledger.New(testutil.Logger()), testutil.Logger())

	testutil.InsertAchievement(t, db, "first_login", 10)
	testutil.InsertAchievement(t, db, "balance_1000", 100)
	userID := testutil.InsertUser(t, db, testutil.User{TelegramID: 7})

	awarded, err := e.Check(ctx, userID)
	require.NoError(t, err)
	require.Len(t, awarded, 1)
	assert.Equal(t, "first_login", awarded[0].Code)
	assert.Equal(t, int64(10), testutil.Balance(t, db, userID))

	awarded, err = e.Check(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, awarded)
	assert.Equal(t, int64(10), testutil.Balance(t, db, userID))

	assert.Equal(t, int64(1), testutil.Count(t, db,
		`SELECT COUNT(*) FROM balance_history WHERE user_id = $1 AND operation = $2`, userID, domain.OpAchievementReward))
}

func TestCheck_ConcurrentCallsPayOnce(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	e := NewEvaluator(db, ledger.New(testutil.Logger()), testutil.Logger())

	testutil.InsertAchievement(t, db, "first_login", 10)
	userID := testutil.InsertUser(t, db, testutil.User{TelegramID: 7})

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Check(ctx, userID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	assert.Equal(t, int64(1), testutil.Count(t, db, `SELECT COUNT(*) FROM user_achievements WHERE user_id = $1`, userID))
	assert.Equal(t, int64(10), testutil.Balance(t, db, userID))
}

func TestCheck_UnknownUser(t *testing.T) {
	db := testutil.NewDB(t)
	e := NewEvaluator(db, ledger.New(testutil.Logger()), testutil.Logger())

	awarded, err := e.Check(context.Background(), 404)
	require.NoError(t, err)
	assert.Empty(t, awarded)
}

func TestRules(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		code  string
		stats domain.AchievementStats
		want  bool
	}{
		{"first_referral", domain.AchievementStats{Level1Referrals: 1}, true},
		{"referral_master", domain.AchievementStats{Level1Referrals: 4}, false},
		{"ai_chat_10", domain.AchievementStats{AIRequests: 10}, true},
		{"chatty", domain.AchievementStats{AIRequests: 29}, false},
		{"university_graduate", domain.AchievementStats{ActiveLessons: 0, LessonsCompleted: 0}, false},
		{"university_graduate", domain.AchievementStats{ActiveLessons: 3, LessonsCompleted: 3}, true},
		{"vip_person", domain.AchievementStats{Level: domain.LevelVIP}, true},
		{"craft_veteran", domain.AchievementStats{CreatedAt: now.Add(-29 * 24 * time.Hour)}, false},
		{"craft_veteran", domain.AchievementStats{CreatedAt: now.Add(-31 * 24 * time.Hour)}, true},
		{"balance_1000", domain.AchievementStats{Balance: 1000}, true},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rule, ok := Rules[tt.code]
			require.True(t, ok)
			assert.Equal(t, tt.want, rule(tt.stats, now))
		})
	}
}
