package handlers

import (
	"errors"
	"fmt"
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	apperrors "github.com/Proton-105/craft-bot/internal/errors"
	"github.com/Proton-105/craft-bot/internal/i18n"
	"github.com/Proton-105/craft-bot/pkg/config"
)

// ReferralLink is the deep link that starts the bot with a referral payload.
func ReferralLink(botUsername string, telegramID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%s%d", botUsername, referralPrefix, telegramID)
}

// NewRefHandler answers /ref with the personal deep link.
func NewRefHandler(users Users, botUsername string, bonuses config.ReferralConfig, tr i18n.Translator) Handler {
	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}

		ctx, cancel := withTimeout(c)
		defer cancel()

		if _, err := users.GetByTelegramID(ctx, sender.ID); err != nil {
			return notFoundOr(c, tr, err)
		}

		link := ReferralLink(botUsername, sender.ID)
		return c.Send(tr.T("bot.ref", link, bonuses.Level1Bonus, bonuses.Level2Bonus))
	}
}

// NewStatsHandler answers /stats with level counts and total earnings.
func NewStatsHandler(users Users, tr i18n.Translator, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}

		ctx, cancel := withTimeout(c)
		defer cancel()

		stats, err := users.ReferralStats(ctx, sender.ID)
		if err != nil {
			return notFoundOr(c, tr, err)
		}
		return c.Send(tr.T("bot.stats", stats.Level1Count, stats.Level2Count, stats.TotalEarned))
	}
}

// notFoundOr tells an unregistered user so and hands other errors to the middleware.
func notFoundOr(c telebot.Context, tr i18n.Translator, err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Code == apperrors.CodeNotFound {
		return c.Send(tr.T("errors.user_not_found"))
	}
	return err
}
