// Package bot processes Telegram webhook updates: /start with referral deep links,
// /ref, /stats and free text relayed to the admins.
package bot

import (
	"context"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/craft-bot/internal/bot/handlers"
	"github.com/Proton-105/craft-bot/internal/bot/keyboard"
	apperrors "github.com/Proton-105/craft-bot/internal/errors"
	"github.com/Proton-105/craft-bot/internal/i18n"
	"github.com/Proton-105/craft-bot/internal/idempotency"
	"github.com/Proton-105/craft-bot/pkg/config"
)

// Bot commands.
const (
	CommandStart = "/start"
	CommandRef   = "/ref"
	CommandStats = "/stats"
)

// Deps are the services the bot handlers call.
type Deps struct {
	Users       handlers.Users
	Inbox       handlers.Inbox
	Idempotency idempotency.Manager
	ErrHandler  *apperrors.Handler
}

// Bot wires the router into a webhook-driven telebot instance.
type Bot struct {
	telebot    *telebot.Bot
	router     *Router
	dispatcher *Dispatcher
	username   string
	log        *slog.Logger
}

// New builds the bot over tb, which may be nil when no token is configured: updates
// are then acknowledged and dropped.
func New(tb *telebot.Bot, cfg config.BotConfig, referral config.ReferralConfig, deps Deps, tr i18n.Translator, log *slog.Logger) *Bot {
	if log == nil {
		log = slog.Default()
	}
	if tr == nil {
		tr = i18n.Default()
	}

	kb := keyboard.NewBuilder(cfg.AppURL, tr, log)
	router := NewRouter(log)
	router.Use(ContextMiddleware)
	router.Use(RecoveryMiddleware(log, deps.ErrHandler, tr))
	router.Use(ErrorHandlingMiddleware(deps.ErrHandler, tr))
	router.Use(LoggingMiddleware(log))
	router.Use(MetricsMiddleware)

	router.RegisterCommand(CommandStart, handlers.NewStartHandler(deps.Users, kb, tr, log))
	router.RegisterCommand(CommandRef, handlers.NewRefHandler(deps.Users, cfg.Username, referral, tr))
	router.RegisterCommand(CommandStats, handlers.NewStatsHandler(deps.Users, tr, log))
	router.SetUnknownCommand(handlers.NewHelpHandler(tr))
	router.SetText(handlers.NewTextHandler(deps.Inbox, kb, tr, log))

	b := &Bot{
		telebot:  tb,
		router:   router,
		username: cfg.Username,
		log:      log,
	}

	var processor UpdateProcessor
	if tb != nil {
		tb.Handle(telebot.OnText, router.Route)
		processor = tb
	}
	b.dispatcher = NewDispatcher(processor, deps.Idempotency, log)

	return b
}

// HandleUpdate processes one webhook update. Handler failures are logged, never returned.
func (b *Bot) HandleUpdate(ctx context.Context, update telebot.Update) error {
	if b.telebot == nil {
		b.log.Warn("telegram update dropped, bot is not configured", slog.Int("update_id", update.ID))
		return nil
	}
	return b.dispatcher.Dispatch(ctx, update)
}

// Username is the bot username reported by the webhook status endpoint.
func (b *Bot) Username() string {
	return b.username
}

// Router exposes the command router.
func (b *Bot) Router() *Router {
	return b.router
}
