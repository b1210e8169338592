package shop

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/craft-bot/internal/achievement"
	"github.com/Proton-105/craft-bot/internal/ai"
	"github.com/Proton-105/craft-bot/internal/domain"
	apperrors "github.com/Proton-105/craft-bot/internal/errors"
	"github.com/Proton-105/craft-bot/internal/i18n"
	"github.com/Proton-105/craft-bot/internal/ledger"
	"github.com/Proton-105/craft-bot/internal/referral"
	"github.com/Proton-105/craft-bot/internal/testutil"
	"github.com/Proton-105/craft-bot/internal/user"
)

type env struct {
	db       *sql.DB
	ledger   *ledger.Ledger
	refs     *referral.Service
	notifier *testutil.Notifier
	shop     *Service
}

func newEnv(t *testing.T) *env {
	t.Helper()

	log := testutil.Logger()
	e := &env{db: testutil.NewDB(t), ledger: ledger.New(log), notifier: &testutil.Notifier{}}

	refs, err := referral.NewService(testutil.ReferralConfig(), e.ledger, e.notifier, i18n.Default(), log)
	require.NoError(t, err)
	e.refs = refs
	e.shop = NewService(e.db, e.ledger, refs, achievement.NewEvaluator(e.db, e.ledger, log), e.notifier, i18n.Default(), log)
	return e
}

func TestCheckout_InsufficientLeavesEverythingUnchanged(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	userID := testutil.InsertUser(t, e.db, testutil.User{TelegramID: 1, Balance: 40})
	itemID := testutil.InsertShopItem(t, e.db, "Manual", 50)

	require.NoError(t, e.shop.AddToCart(ctx, 1, itemID))

	_, err := e.shop.Checkout(ctx, 1)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeState))
	assert.Contains(t, err.Error(), "Нужно: 50, у вас: 40")

	assert.Equal(t, int64(40), testutil.Balance(t, e.db, userID))
	assert.Equal(t, int64(1), testutil.Count(t, e.db, `SELECT COUNT(*) FROM user_cart WHERE user_id = $1`, userID))
	assert.Equal(t, int64(0), testutil.Count(t, e.db, `SELECT COUNT(*) FROM shop_purchases`))
	assert.Equal(t, int64(0), testutil.Count(t, e.db, `SELECT COUNT(*) FROM balance_history`))
}

func TestCheckout_EmptyCart(t *testing.T) {
	e := newEnv(t)
	testutil.InsertUser(t, e.db, testutil.User{TelegramID: 1, Balance: 40})

	_, err := e.shop.Checkout(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Корзина пуста")
}

func TestCheckout_BuysWholeCartAndPaysCommissions(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	top := testutil.InsertUser(t, e.db, testutil.User{TelegramID: 1})
	mid := testutil.InsertUser(t, e.db, testutil.User{TelegramID: 2, ReferrerID: &top})
	buyer := testutil.InsertUser(t, e.db, testutil.User{TelegramID: 3, Balance: 500, ReferrerID: &mid})

	a := testutil.InsertShopItem(t, e.db, "A", 100)
	b := testutil.InsertShopItem(t, e.db, "B", 75)
	require.NoError(t, e.shop.AddToCart(ctx, 3, a))
	require.NoError(t, e.shop.AddToCart(ctx, 3, b))
	require.NoError(t, e.shop.AddToCart(ctx, 3, b))

	cart, err := e.shop.Cart(ctx, 3)
	require.NoError(t, err)
	require.Len(t, cart.Lines, 2)
	assert.Equal(t, int64(175), cart.Total)

	res, err := e.shop.Checkout(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(175), res.TotalSpent)
	assert.Equal(t, int64(325), res.NewBalance)
	assert.Len(t, res.Items, 2)

	assert.Equal(t, int64(325), testutil.Balance(t, e.db, buyer))
	assert.Equal(t, int64(175), testutil.Count(t, e.db, `SELECT total_spent_caps FROM users WHERE id = $1`, buyer))
	assert.Equal(t, int64(0), testutil.Count(t, e.db, `SELECT COUNT(*) FROM user_cart WHERE user_id = $1`, buyer))
	assert.Equal(t, int64(2), testutil.Count(t, e.db, `SELECT COUNT(*) FROM shop_purchases WHERE user_id = $1`, buyer))

	assert.Equal(t, int64(9), testutil.Balance(t, e.db, mid), "round(8.75)")
	assert.Equal(t, int64(4), testutil.Balance(t, e.db, top), "round(3.5)")
	assert.Equal(t, int64(2), testutil.Count(t, e.db,
		`SELECT COUNT(*) FROM balance_history WHERE operation = $1`, domain.OpReferralPurchase))

	delivered := e.notifier.To(3)
	require.Len(t, delivered, 2)
	assert.Contains(t, delivered[0].Text, "content of A")
	assert.NotEmpty(t, e.notifier.To(2), "commission notification")

	purchases, err := e.shop.Purchases(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, purchases, 2)
}

func TestAddToCart_RejectsUnknownAndHiddenItems(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	testutil.InsertUser(t, e.db, testutil.User{TelegramID: 1})
	itemID := testutil.InsertShopItem(t, e.db, "Hidden", 10)
	require.NoError(t, e.shop.DeleteItem(ctx, itemID))

	err := e.shop.AddToCart(ctx, 1, itemID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	err = e.shop.AddToCart(ctx, 1, 999)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	err = e.shop.AddToCart(ctx, 404, itemID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestDelivery(t *testing.T) {
	tests := []struct {
		name     string
		item     domain.ShopItem
		wantKind string
		wantText string
	}{
		{
			name:     "csv document",
			item:     domain.ShopItem{Title: "Leads/2026", FileType: "CSV", ContentText: "a,b"},
			wantKind: "document",
		},
		{
			name:     "pdf link",
			item:     domain.ShopItem{Title: "Guide", FileType: "pdf", FileURL: "https://files/guide.pdf"},
			wantKind: "message",
			wantText: "https://files/guide.pdf",
		},
		{
			name:     "text content",
			item:     domain.ShopItem{Title: "Tips", ContentText: "tip one"},
			wantKind: "message",
			wantText: "tip one",
		},
		{
			name:     "nothing yet",
			item:     domain.ShopItem{Title: "Soon"},
			wantKind: "message",
			wantText: "в ближайшее время",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.shop.deliver(context.Background(), 9, tt.item)

			sent := e.notifier.To(9)
			require.Len(t, sent, 1)
			assert.Equal(t, tt.wantKind, sent[0].Kind)
			if tt.wantKind == "document" {
				assert.Equal(t, "Leads_2026.csv", sent[0].Name)
				assert.Equal(t, []byte("a,b"), sent[0].Content)
			}
			assert.Contains(t, sent[0].Text, tt.wantText)
		})
	}
}

type fixedProvider struct{}

func (fixedProvider) Complete(context.Context, []ai.Message) (*ai.Completion, error) {
	return &ai.Completion{Content: "ok", Usage: domain.Usage{PromptTokens: 80, CompletionTokens: 20, TotalTokens: 100}}, nil
}

// TestEndToEnd registers A, lets B join through A's uid, chats once as B and buys a
// 50-cap item, checking every balance along the way.
func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	log := testutil.Logger()
	evaluator := achievement.NewEvaluator(e.db, e.ledger, log)

	users := user.NewService(e.db, testutil.ReferralConfig(), e.ledger, e.refs, evaluator, e.notifier, i18n.Default(), log)
	chat, err := ai.NewService(e.db, testutil.AIConfig(), testutil.SpamConfig(), e.ledger, fixedProvider{},
		nil, evaluator, e.notifier, i18n.Default(), log)
	require.NoError(t, err)

	a, err := users.Register(ctx, domain.NewUser{TelegramID: 100, FirstName: "A"})
	require.NoError(t, err)
	assert.Equal(t, int64(100), testutil.Balance(t, e.db, a.User.ID))

	b, err := users.Register(ctx, domain.NewUser{TelegramID: 200, FirstName: "B", ReferrerUID: a.User.SystemUID})
	require.NoError(t, err)
	assert.Equal(t, int64(150), testutil.Balance(t, e.db, b.User.ID))
	assert.Equal(t, int64(130), testutil.Balance(t, e.db, a.User.ID))
	assert.Equal(t, int64(1), testutil.Count(t, e.db,
		`SELECT COUNT(*) FROM referrals WHERE referrer_id = $1 AND referred_id = $2 AND level = 1`, a.User.ID, b.User.ID))

	res, err := chat.Chat(ctx, 200, "Привет, Михалыч")
	require.NoError(t, err)
	require.True(t, res.Success, res.Error)
	assert.Equal(t, int64(5), res.CapsSpent)
	assert.Equal(t, int64(145), testutil.Balance(t, e.db, b.User.ID))
	assert.Equal(t, int64(1), testutil.Count(t, e.db, `SELECT COUNT(*) FROM ai_conversations WHERE user_id = $1`, b.User.ID))

	itemID := testutil.InsertShopItem(t, e.db, "Starter kit", 50)
	require.NoError(t, e.shop.AddToCart(ctx, 200, itemID))
	out, err := e.shop.Checkout(ctx, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(95), out.NewBalance)
	assert.Equal(t, int64(95), testutil.Balance(t, e.db, b.User.ID))
	assert.Equal(t, int64(133), testutil.Balance(t, e.db, a.User.ID), "max(1, round(2.5)) = 3")
	assert.Equal(t, int64(1), testutil.Count(t, e.db, `SELECT COUNT(*) FROM shop_purchases WHERE user_id = $1`, b.User.ID))
	assert.Equal(t, int64(0), testutil.Count(t, e.db, `SELECT COUNT(*) FROM user_cart`))

	for _, id := range []int64{a.User.ID, b.User.ID} {
		var sum int64
		require.NoError(t, e.db.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(amount), 0) FROM balance_history WHERE user_id = $1`, id).Scan(&sum))
		assert.Equal(t, testutil.Balance(t, e.db, id), sum, "history sums to the balance")
	}
}
