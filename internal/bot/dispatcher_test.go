package bot

import (
	"context"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/craft-bot/internal/idempotency"
	"github.com/Proton-105/craft-bot/internal/testutil"
)

type countingProcessor struct {
	mu  sync.Mutex
	ids []int
}

func (p *countingProcessor) ProcessUpdate(u telebot.Update) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, u.ID)
}

func TestDispatcher_DeduplicatesUpdates(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	log := testutil.Logger()
	manager := idempotency.NewManager(idempotency.NewRedisStore(client, log), log)
	proc := &countingProcessor{}
	d := NewDispatcher(proc, manager, log)
	ctx := context.Background()

	for _, id := range []int{10, 10, 11, 10} {
		require.NoError(t, d.Dispatch(ctx, telebot.Update{ID: id}))
	}
	assert.Equal(t, []int{10, 11}, proc.ids)
}

func TestDispatcher_ProcessesWhenStoreIsDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	log := testutil.Logger()
	proc := &countingProcessor{}
	d := NewDispatcher(proc, idempotency.NewManager(idempotency.NewRedisStore(client, log), log), log)

	require.NoError(t, d.Dispatch(context.Background(), telebot.Update{ID: 5}))
	assert.Equal(t, []int{5}, proc.ids)

	withoutStore := NewDispatcher(proc, nil, log)
	require.NoError(t, withoutStore.Dispatch(context.Background(), telebot.Update{ID: 5}))
	assert.Equal(t, []int{5, 5}, proc.ids)
}
