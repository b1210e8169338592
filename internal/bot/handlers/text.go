package handlers

import (
	"log/slog"
	"unicode/utf8"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/craft-bot/internal/bot/keyboard"
	"github.com/Proton-105/craft-bot/internal/i18n"
)

const inboxChars = 2000

// NewTextHandler stores free text for the admins and acknowledges it.
func NewTextHandler(inbox Inbox, kb *keyboard.Builder, tr i18n.Translator, log *slog.Logger) Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(c telebot.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}

		text := c.Text()
		if utf8.RuneCountInString(text) > inboxChars {
			text = string([]rune(text)[:inboxChars])
		}

		ctx, cancel := withTimeout(c)
		defer cancel()

		if err := inbox.RecordUserMessage(ctx, sender.ID, text); err != nil {
			log.Error("store user message", slog.Int64("telegram_id", sender.ID), slog.Any("error", err))
		}
		return c.Send(tr.T("bot.message_received"), kb.OpenApp())
	}
}

// NewHelpHandler lists the commands; it answers every unknown command.
func NewHelpHandler(tr i18n.Translator) Handler {
	return func(c telebot.Context) error {
		return c.Send(tr.T("bot.help"))
	}
}
