package health

import (
	"context"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"

	"github.com/Proton-105/craft-bot/internal/testutil"
)

func TestChecker(t *testing.T) {
	db := testutil.NewDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := NewChecker(testutil.Logger())
	c.AddCheck("database", NewDBChecker(db), true)
	c.AddCheck("redis", NewRedisChecker(client), true)
	c.AddCheck("telegram", CheckFunc(func(context.Context) error { return errors.New("getMe: timeout") }), false)

	report := c.Check(context.Background())
	assert.True(t, report.Healthy, "a failing non-critical component is tolerated")
	assert.Equal(t, StatusOK, report.Components["database"])
	assert.Equal(t, StatusOK, report.Components["redis"])
	assert.Equal(t, "getMe: timeout", report.Components["telegram"])
	assert.Equal(t, []string{"database", "redis", "telegram"}, c.Names())

	mr.Close()
	report = c.Check(context.Background())
	assert.False(t, report.Healthy)
	assert.NotEqual(t, StatusOK, report.Components["redis"])
}

func TestTelegramChecker_NotConfigured(t *testing.T) {
	assert.Error(t, NewTelegramChecker(nil).HealthCheck(context.Background()))
}
