package university

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/craft-bot/internal/achievement"
	apperrors "github.com/Proton-105/craft-bot/internal/errors"
	"github.com/Proton-105/craft-bot/internal/i18n"
	"github.com/Proton-105/craft-bot/internal/ledger"
	"github.com/Proton-105/craft-bot/internal/testutil"
)

func TestComplete(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	log := testutil.Logger()
	l := ledger.New(log)
	svc := NewService(db, l, achievement.NewEvaluator(db, l, log), i18n.Default(), log)

	testutil.InsertAchievement(t, db, "first_lesson", 20)
	userID := testutil.InsertUser(t, db, testutil.User{TelegramID: 5})
	first := testutil.InsertLesson(t, db, "Intro", 50, 1)
	testutil.InsertLesson(t, db, "Safety", 30, 2)

	_, err := svc.Complete(ctx, 5, first, 2, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "(2/3)")
	assert.Equal(t, int64(0), testutil.Balance(t, db, userID))

	res, err := svc.Complete(ctx, 5, first, 3, 3)
	require.NoError(t, err)
	assert.False(t, res.AlreadyCompleted)
	assert.Equal(t, int64(50), res.Reward)
	assert.Equal(t, int64(70), testutil.Balance(t, db, userID), "reward plus first_lesson achievement")

	res, err = svc.Complete(ctx, 5, first, 3, 3)
	require.NoError(t, err)
	assert.True(t, res.AlreadyCompleted)
	assert.Equal(t, int64(70), testutil.Balance(t, db, userID))

	lessons, err := svc.Lessons(ctx, 5)
	require.NoError(t, err)
	require.Len(t, lessons, 2)
	assert.True(t, lessons[0].Completed)
	assert.False(t, lessons[1].Completed)

	anonymous, err := svc.Lessons(ctx, 999)
	require.NoError(t, err)
	assert.Len(t, anonymous, 2)

	_, err = svc.Complete(ctx, 5, 999, 0, 0)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}
