// Package httpapi serves the Mini App JSON API, the admin API and the Telegram webhook.
package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/craft-bot/internal/achievement"
	"github.com/Proton-105/craft-bot/internal/admin"
	"github.com/Proton-105/craft-bot/internal/ai"
	"github.com/Proton-105/craft-bot/internal/bot"
	apperrors "github.com/Proton-105/craft-bot/internal/errors"
	"github.com/Proton-105/craft-bot/internal/forms"
	"github.com/Proton-105/craft-bot/internal/health"
	"github.com/Proton-105/craft-bot/internal/lifecycle"
	"github.com/Proton-105/craft-bot/internal/middleware"
	"github.com/Proton-105/craft-bot/internal/news"
	"github.com/Proton-105/craft-bot/internal/ratelimit"
	"github.com/Proton-105/craft-bot/internal/settings"
	"github.com/Proton-105/craft-bot/internal/shop"
	"github.com/Proton-105/craft-bot/internal/university"
	"github.com/Proton-105/craft-bot/internal/user"
	"github.com/Proton-105/craft-bot/pkg/config"
	"github.com/Proton-105/craft-bot/pkg/logger"
)

// WebhookAdmin manages the Telegram webhook registration.
type WebhookAdmin interface {
	SetWebhook(publicURL string) error
	WebhookInfo() (*telebot.Webhook, error)
}

// Deps are the services behind the routes.
type Deps struct {
	Users        *user.Service
	AI           *ai.Service
	Shop         *shop.Service
	University   *university.Service
	Achievements *achievement.Evaluator
	Forms        *forms.Service
	News         *news.Service
	Admin        *admin.Service
	Settings     *settings.Service
	Bot          *bot.Bot
	Webhooks     WebhookAdmin
	Health       *health.Checker
	Probes       lifecycle.HealthChecker
	GlobalLimit  *ratelimit.Policy
	AILimit      *ratelimit.Policy
	Rules        *ratelimit.Rules
	ErrHandler   *apperrors.Handler
}

// API holds the handlers.
type API struct {
	deps       Deps
	bot        config.BotConfig
	admin      *adminAuth
	errHandler *apperrors.Handler
	log        *slog.Logger
	now        func() time.Time
}

// New creates the API over deps.
func New(deps Deps, botCfg config.BotConfig, adminCfg config.AdminConfig, log *slog.Logger) *API {
	if log == nil {
		log = slog.Default()
	}
	errHandler := deps.ErrHandler
	if errHandler == nil {
		errHandler = apperrors.NewHandler(log, false)
	}

	return &API{
		deps:       deps,
		bot:        botCfg,
		admin:      newAdminAuth(adminCfg),
		errHandler: errHandler,
		log:        log.With(slog.String("component", "httpapi")),
		now:        time.Now,
	}
}

// Handler builds the routed handler with the middleware chain.
func (a *API) Handler() http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{"success": false, "error": "Not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{"success": false, "error": "Method not allowed"})
	})
	r.Use(
		middleware.Recovery(a.log, a.errHandler),
		middleware.Logging(a.log),
		middleware.Metrics,
		middleware.RateLimit(a.deps.GlobalLimit, a.deps.Rules, a.log),
	)

	r.HandleFunc("/livez", a.livez).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.readyz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/api/health", a.health).Methods(http.MethodGet)
	r.HandleFunc("/api/offers", a.offers).Methods(http.MethodGet)
	r.HandleFunc("/api/bot/webhook", a.webhookStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/bot/webhook", a.webhook).Methods(http.MethodPost)

	app := r.NewRoute().Subrouter()
	app.Use(a.requireInitData)
	app.HandleFunc("/api/init", a.initUser).Methods(http.MethodPost)
	app.HandleFunc("/api/user/profile", a.profile).Methods(http.MethodGet)
	app.HandleFunc("/api/referral/stats", a.referralStats).Methods(http.MethodGet)
	app.HandleFunc("/api/balance/history", a.balanceHistory).Methods(http.MethodGet)
	app.HandleFunc("/api/achievements/all", a.achievements).Methods(http.MethodGet)
	app.HandleFunc("/api/check-subscription", a.checkSubscription).Methods(http.MethodPost)
	app.HandleFunc("/api/ai/chat", a.chat).Methods(http.MethodPost)
	app.HandleFunc("/api/application/submit", a.submitApplication).Methods(http.MethodPost)
	app.HandleFunc("/api/sos/submit", a.submitSOS).Methods(http.MethodPost)
	app.HandleFunc("/api/support/submit", a.submitSupport).Methods(http.MethodPost)
	app.HandleFunc("/api/university/lessons", a.lessons).Methods(http.MethodGet)
	app.HandleFunc("/api/university/complete", a.completeLesson).Methods(http.MethodPost)
	app.HandleFunc("/api/shop/items", a.shopItems).Methods(http.MethodGet)
	app.HandleFunc("/api/shop/cart", a.cart).Methods(http.MethodGet)
	app.HandleFunc("/api/shop/cart/add", a.cartAdd).Methods(http.MethodPost)
	app.HandleFunc("/api/shop/cart/remove", a.cartRemove).Methods(http.MethodPost)
	app.HandleFunc("/api/shop/checkout", a.checkout).Methods(http.MethodPost)
	app.HandleFunc("/api/shop/purchases", a.purchases).Methods(http.MethodGet)
	app.HandleFunc("/api/news/subscribe", a.newsSubscribe).Methods(http.MethodPost)
	app.HandleFunc("/api/news/unsubscribe", a.newsUnsubscribe).Methods(http.MethodPost)

	adm := r.NewRoute().Subrouter()
	adm.Use(a.requireAdmin)
	adm.HandleFunc("/api/admin/migrate", a.migrate).Methods(http.MethodPost)
	adm.HandleFunc("/api/admin/shop/items", a.adminShopItems).Methods(http.MethodGet)
	adm.HandleFunc("/api/admin/shop/add-item", a.adminAddItem).Methods(http.MethodPost)
	adm.HandleFunc("/api/admin/shop/update-item", a.adminUpdateItem).Methods(http.MethodPost)
	adm.HandleFunc("/api/admin/shop/delete-item", a.adminDeleteItem).Methods(http.MethodPost)
	adm.HandleFunc("/api/admin/ai-history", a.adminAIUsers).Methods(http.MethodGet)
	adm.HandleFunc("/api/admin/ai-history/{user_id:[0-9]+}", a.adminAIConversations).Methods(http.MethodGet)
	adm.HandleFunc("/api/admin/ai/unblock", a.adminUnblock).Methods(http.MethodPost)
	adm.HandleFunc("/api/admin/user-chat/users", a.adminChatThreads).Methods(http.MethodGet)
	adm.HandleFunc("/api/admin/user-chat/messages/{user_id:[0-9]+}", a.adminChatMessages).Methods(http.MethodGet)
	adm.HandleFunc("/api/admin/user-chat/send", a.adminChatSend).Methods(http.MethodPost)
	adm.HandleFunc("/api/admin/user/{user_id:[0-9]+}/level", a.adminSetLevel).Methods(http.MethodPost)
	adm.HandleFunc("/api/admin/settings", a.adminSettings).Methods(http.MethodGet)
	adm.HandleFunc("/api/admin/settings", a.adminUpdateSettings).Methods(http.MethodPost)
	adm.HandleFunc("/api/admin/news/broadcast", a.adminBroadcast).Methods(http.MethodPost)
	adm.HandleFunc("/api/admin/news/subscribers", a.adminSubscribers).Methods(http.MethodGet)
	adm.HandleFunc("/api/admin/news/charge-daily", a.adminChargeDaily).Methods(http.MethodPost)
	adm.HandleFunc("/api/bot/set-webhook", a.setWebhook).Methods(http.MethodGet)
	adm.HandleFunc("/api/bot/webhook-info", a.webhookInfo).Methods(http.MethodGet)

	return middleware.SecurityHeaders(logger.Middleware(r))
}
