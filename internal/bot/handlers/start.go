package handlers

import (
	"html"
	"log/slog"
	"strconv"
	"strings"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/craft-bot/internal/bot/keyboard"
	"github.com/Proton-105/craft-bot/internal/i18n"
)

const referralPrefix = "ref_"

// NewStartHandler handles /start, optionally carrying a "ref_<telegram_id>" payload.
// A referral click is remembered as a pending referral; registration in the Mini App
// turns it into a real one.
func NewStartHandler(users Users, kb *keyboard.Builder, tr i18n.Translator, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}

		var intro string
		_, payload := SplitCommand(c.Text())
		if referrerTID, ok := parseReferral(payload); ok && referrerTID != sender.ID {
			intro = invitedBy(c, users, referrerTID, tr, log)
		}

		return c.Send(intro+tr.T("bot.welcome"), kb.OpenApp())
	}
}

func invitedBy(c telebot.Context, users Users, referrerTID int64, tr i18n.Translator, log *slog.Logger) string {
	sender := c.Sender()
	ctx, cancel := withTimeout(c)
	defer cancel()

	referrer, err := users.CreatePendingReferral(ctx, sender.ID, referrerTID, senderName(sender))
	if err != nil {
		// The welcome is still sent; the click is lost.
		log.Error("record pending referral", slog.Int64("telegram_id", sender.ID), slog.Any("error", err))
	}

	name := "#" + strconv.FormatInt(referrerTID, 10)
	if referrer != nil {
		name = referrer.DisplayName()
	}
	return tr.T("bot.invited_by", html.EscapeString(name))
}

func parseReferral(payload string) (int64, bool) {
	if !strings.HasPrefix(payload, referralPrefix) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(payload, referralPrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
