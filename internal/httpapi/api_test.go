package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/craft-bot/internal/achievement"
	"github.com/Proton-105/craft-bot/internal/admin"
	"github.com/Proton-105/craft-bot/internal/ai"
	"github.com/Proton-105/craft-bot/internal/domain"
	"github.com/Proton-105/craft-bot/internal/i18n"
	"github.com/Proton-105/craft-bot/internal/ledger"
	"github.com/Proton-105/craft-bot/internal/news"
	"github.com/Proton-105/craft-bot/internal/ratelimit"
	"github.com/Proton-105/craft-bot/internal/referral"
	"github.com/Proton-105/craft-bot/internal/settings"
	"github.com/Proton-105/craft-bot/internal/shop"
	"github.com/Proton-105/craft-bot/internal/telegram"
	"github.com/Proton-105/craft-bot/internal/testutil"
	"github.com/Proton-105/craft-bot/internal/user"
	"github.com/Proton-105/craft-bot/pkg/config"
)

const (
	botToken    = "123456:test-token"
	adminSecret = "s3cret"
)

type stubMigrator struct{ version int64 }

func (m stubMigrator) Up(context.Context) (int64, error) { return m.version, nil }

type apiEnv struct {
	db      *sql.DB
	handler http.Handler
	now     time.Time
}

func newAPIEnv(t *testing.T, adminCfg config.AdminConfig, opts ...func(*Deps, *sql.DB)) *apiEnv {
	t.Helper()
	db := testutil.NewDB(t)
	log := testutil.Logger()
	l := ledger.New(log)
	notifier := &testutil.Notifier{}
	evaluator := achievement.NewEvaluator(db, l, log)

	refs, err := referral.NewService(testutil.ReferralConfig(), l, notifier, i18n.Default(), log)
	require.NoError(t, err)

	costs := settings.NewService(db, settings.Defaults{AIMessageCost: 5, NewsDailyCost: 10}, nil, log)
	deps := Deps{
		Users:        user.NewService(db, testutil.ReferralConfig(), l, refs, evaluator, notifier, i18n.Default(), log),
		Shop:         shop.NewService(db, l, refs, evaluator, notifier, i18n.Default(), log),
		Achievements: evaluator,
		Admin:        admin.NewService(db, stubMigrator{version: 7}, evaluator, notifier, i18n.Default(), log),
		News:         news.NewService(db, l, costs, notifier, 0, i18n.Default(), log),
		Settings:     costs,
	}
	for _, opt := range opts {
		opt(&deps, db)
	}

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	api := New(deps, config.BotConfig{Token: botToken, InitDataMaxAge: time.Hour}, adminCfg, log)
	api.now = func() time.Time { return now }

	return &apiEnv{db: db, handler: api.Handler(), now: now}
}

func (e *apiEnv) initData(telegramID int64, authDate time.Time) string {
	return signedInitData(telegramID, authDate, botToken)
}

func signedInitData(telegramID int64, authDate time.Time, token string) string {
	v := url.Values{}
	v.Set("auth_date", strconv.FormatInt(authDate.Unix(), 10))
	v.Set("user", `{"id":`+strconv.FormatInt(telegramID, 10)+`,"first_name":"Ann"}`)
	return telegram.SignInitData(v, token)
}

func (e *apiEnv) do(t *testing.T, method, target string, body any, header map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestInitDataAuth(t *testing.T) {
	e := newAPIEnv(t, config.AdminConfig{})
	testutil.InsertUser(t, e.db, testutil.User{TelegramID: 42, Balance: 100})

	valid := e.initData(42, e.now.Add(-time.Minute))

	tests := []struct {
		name   string
		target string
		status int
		errMsg string
	}{
		{name: "missing", target: "/api/user/profile?telegram_id=42", status: http.StatusUnauthorized, errMsg: "Authentication required"},
		{name: "bad signature", target: "/api/user/profile?telegram_id=42&init_data=" + url.QueryEscape(signedInitData(42, e.now, "other")), status: http.StatusForbidden, errMsg: "Invalid authentication"},
		{name: "expired", target: "/api/user/profile?init_data=" + url.QueryEscape(e.initData(42, e.now.Add(-2*time.Hour))), status: http.StatusForbidden, errMsg: "Invalid authentication"},
		{name: "other user", target: "/api/user/profile?telegram_id=43&init_data=" + url.QueryEscape(valid), status: http.StatusForbidden, errMsg: "Forbidden"},
		{name: "valid", target: "/api/user/profile?telegram_id=42&init_data=" + url.QueryEscape(valid), status: http.StatusOK},
		{name: "id from init data", target: "/api/user/profile?init_data=" + url.QueryEscape(valid), status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := e.do(t, http.MethodGet, tt.target, nil, nil)
			assert.Equal(t, tt.status, rec.Code)
			if tt.errMsg != "" {
				assert.Equal(t, false, body["success"])
				assert.Equal(t, tt.errMsg, body["error"])
				return
			}
			assert.Equal(t, true, body["success"])
			profile, ok := body["profile"].(map[string]any)
			require.True(t, ok)
			assert.EqualValues(t, 100, profile["caps_balance"])
		})
	}
}

type staticProvider struct{}

func (staticProvider) Complete(context.Context, []ai.Message) (*ai.Completion, error) {
	return &ai.Completion{
		Content: "Привет",
		Usage:   domain.Usage{PromptTokens: 80, CompletionTokens: 20, TotalTokens: 100},
	}, nil
}

func TestChat_PerUserLimit(t *testing.T) {
	e := newAPIEnv(t, config.AdminConfig{}, func(d *Deps, db *sql.DB) {
		log := testutil.Logger()
		svc, err := ai.NewService(db, testutil.AIConfig(), testutil.SpamConfig(), ledger.New(log),
			staticProvider{}, nil, nil, &testutil.Notifier{}, i18n.Default(), log)
		require.NoError(t, err)
		d.AI = svc
		d.AILimit = ratelimit.NewPolicy(ratelimit.NewMemoryLimiter(log), "ai:", ratelimit.Rule{Limit: 2, Window: time.Minute})
	})
	testutil.InsertUser(t, e.db, testutil.User{TelegramID: 21, Balance: 100})
	testutil.InsertUser(t, e.db, testutil.User{TelegramID: 22, Balance: 100})

	send := func(telegramID int64, msg string) (*httptest.ResponseRecorder, map[string]any) {
		return e.do(t, http.MethodPost, "/api/ai/chat", map[string]any{
			"init_data": e.initData(telegramID, e.now),
			"message":   msg,
		}, nil)
	}

	for _, msg := range []string{"Как дела?", "Что нового?"} {
		rec, _ := send(21, msg)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec, body := send(21, "Еще вопрос")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, int64(2), testutil.Count(t, e.db,
		`SELECT COUNT(*) FROM ai_conversations c JOIN users u ON u.id = c.user_id WHERE u.telegram_id = 21`))

	rec, _ = send(22, "Как дела?")
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestInitData_FromBody(t *testing.T) {
	e := newAPIEnv(t, config.AdminConfig{})

	rec, body := e.do(t, http.MethodPost, "/api/init", map[string]any{
		"init_data":  e.initData(77, e.now),
		"first_name": "Ann",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["exists"])
	assert.EqualValues(t, 100, body["caps_balance"])
	assert.Equal(t, int64(1), testutil.Count(t, e.db, `SELECT COUNT(*) FROM users WHERE telegram_id = 77`))

	rec, body = e.do(t, http.MethodPost, "/api/init", map[string]any{
		"init_data":  e.initData(77, e.now),
		"first_name": "Ann",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["exists"])
}

func TestErrorMapping(t *testing.T) {
	e := newAPIEnv(t, config.AdminConfig{})
	auth := url.QueryEscape(e.initData(5, e.now))

	// unknown user: not found
	rec, body := e.do(t, http.MethodGet, "/api/user/profile?init_data="+auth, nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, body["success"])

	// malformed JSON: validation
	req := httptest.NewRequest(http.MethodPost, "/api/shop/cart/add?init_data="+auth, bytes.NewBufferString("{"))
	raw := httptest.NewRecorder()
	e.handler.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)

	// unknown route
	rec, _ = e.do(t, http.MethodGet, "/api/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestShopFlow(t *testing.T) {
	e := newAPIEnv(t, config.AdminConfig{})
	uid := testutil.InsertUser(t, e.db, testutil.User{TelegramID: 9, Balance: 200})
	itemID := testutil.InsertShopItem(t, e.db, "Guide", 50)
	auth := e.initData(9, e.now)

	rec, body := e.do(t, http.MethodGet, "/api/shop/items?init_data="+url.QueryEscape(auth), nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := body["items"].(map[string]any)["manuals"].([]any)
	require.Len(t, items, 1)
	assert.NotContains(t, items[0], "content_text")

	rec, _ = e.do(t, http.MethodPost, "/api/shop/cart/add", map[string]any{"init_data": auth, "item_id": itemID}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec, body = e.do(t, http.MethodPost, "/api/shop/checkout", map[string]any{"init_data": auth}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 50, body["total_spent"])
	assert.EqualValues(t, 150, body["new_balance"])
	assert.Equal(t, int64(150), testutil.Balance(t, e.db, uid))

	rec, body = e.do(t, http.MethodPost, "/api/shop/checkout", map[string]any{"init_data": auth}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestAdminAuth(t *testing.T) {
	hash, err := HashAdminSecret(adminSecret)
	require.NoError(t, err)

	tests := []struct {
		name   string
		cfg    config.AdminConfig
		target string
		header string
		status int
	}{
		{name: "not configured", cfg: config.AdminConfig{}, target: "/api/admin/migrate", header: adminSecret, status: http.StatusInternalServerError},
		{name: "plain ok", cfg: config.AdminConfig{Secret: adminSecret}, target: "/api/admin/migrate", header: adminSecret, status: http.StatusOK},
		{name: "plain wrong", cfg: config.AdminConfig{Secret: adminSecret}, target: "/api/admin/migrate", header: "nope", status: http.StatusForbidden},
		{name: "hash ok", cfg: config.AdminConfig{SecretHash: hash}, target: "/api/admin/migrate", header: adminSecret, status: http.StatusOK},
		{name: "hash wrong", cfg: config.AdminConfig{SecretHash: hash}, target: "/api/admin/migrate", header: "nope", status: http.StatusForbidden},
		{name: "query secret ignored", cfg: config.AdminConfig{Secret: adminSecret}, target: "/api/admin/migrate?secret=" + adminSecret, status: http.StatusForbidden},
		{name: "query secret on charge-daily", cfg: config.AdminConfig{Secret: adminSecret}, target: "/api/admin/news/charge-daily?secret=" + adminSecret, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newAPIEnv(t, tt.cfg)
			headers := map[string]string{}
			if tt.header != "" {
				headers[AdminSecretHeader] = tt.header
			}

			rec, _ := e.do(t, http.MethodPost, tt.target, nil, headers)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}

func TestAdminSettingsAndLevel(t *testing.T) {
	e := newAPIEnv(t, config.AdminConfig{Secret: adminSecret})
	uid := testutil.InsertUser(t, e.db, testutil.User{TelegramID: 3})
	headers := map[string]string{AdminSecretHeader: adminSecret}

	rec, body := e.do(t, http.MethodPost, "/api/admin/settings", map[string]any{
		domain.SettingAIMessageCost: 7,
		"unknown":                   "x",
	}, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []any{domain.SettingAIMessageCost}, body["updated"])

	rec, body = e.do(t, http.MethodGet, "/api/admin/settings", nil, headers)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7", body["settings"].(map[string]any)[domain.SettingAIMessageCost])

	rec, _ = e.do(t, http.MethodPost, "/api/admin/settings", map[string]any{domain.SettingAIMessageCost: -1}, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = e.do(t, http.MethodPost, "/api/admin/user/"+strconv.FormatInt(uid, 10)+"/level", map[string]any{"level": "vip"}, headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(1), testutil.Count(t, e.db, `SELECT COUNT(*) FROM users WHERE id = $1 AND user_level = 'vip'`, uid))

	rec, _ = e.do(t, http.MethodPost, "/api/admin/user/"+strconv.FormatInt(uid, 10)+"/level", map[string]any{"level": "gold"}, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProbes(t *testing.T) {
	e := newAPIEnv(t, config.AdminConfig{})

	rec, body := e.do(t, http.MethodGet, "/livez", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, body = e.do(t, http.MethodGet, "/api/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 0, body["users"])

	rec, _ = e.do(t, http.MethodGet, "/api/bot/webhook", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body = e.do(t, http.MethodPost, "/api/bot/webhook", map[string]any{"update_id": 1}, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
}
