// Package handlers implements the bot commands.
package handlers

import (
	"context"
	"strings"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/craft-bot/internal/domain"
)

// Handler processes one update.
type Handler func(c telebot.Context) error

// Middleware wraps handlers with additional behavior.
type Middleware func(Handler) Handler

// handlerTimeout bounds the storage and Telegram calls made for one update.
const handlerTimeout = 10 * time.Second

const updateContextKey = "update_ctx"

// SetUpdateContext attaches ctx to the update so handlers inherit its values.
func SetUpdateContext(c telebot.Context, ctx context.Context) {
	c.Set(updateContextKey, ctx)
}

// UpdateContext returns the context attached by SetUpdateContext, or a background one.
func UpdateContext(c telebot.Context) context.Context {
	if c != nil {
		if ctx, ok := c.Get(updateContextKey).(context.Context); ok && ctx != nil {
			return ctx
		}
	}
	return context.Background()
}

func withTimeout(c telebot.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(UpdateContext(c), handlerTimeout)
}

// Users is the part of the user service the bot talks to.
type Users interface {
	GetByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	ReferralStats(ctx context.Context, telegramID int64) (*domain.ReferralStats, error)
	CreatePendingReferral(ctx context.Context, referredTelegramID, referrerTelegramID int64, clickerName string) (*domain.User, error)
}

// Inbox stores free text addressed to the admins.
type Inbox interface {
	RecordUserMessage(ctx context.Context, telegramID int64, text string) error
}

// SplitCommand returns the command without a "@bot" suffix and the trimmed payload.
// Text that does not start with "/" yields an empty command.
func SplitCommand(text string) (cmd, payload string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}

	cmd, payload, _ = strings.Cut(text, " ")
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	return strings.ToLower(cmd), strings.TrimSpace(payload)
}

func senderName(u *telebot.User) string {
	switch {
	case u == nil:
		return ""
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return u.Username
	default:
		return "Пользователь"
	}
}
