// Package keyboard builds the bot's inline keyboards.
package keyboard

import (
	"log/slog"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/craft-bot/internal/i18n"
)

// Builder creates the keyboards attached to bot replies.
type Builder struct {
	appURL string
	tr     i18n.Translator
	log    *slog.Logger
}

// NewBuilder returns a Builder opening the Mini App at appURL.
func NewBuilder(appURL string, tr i18n.Translator, log *slog.Logger) *Builder {
	if log == nil {
		log = slog.Default()
	}
	if tr == nil {
		tr = i18n.Default()
	}
	return &Builder{appURL: appURL, tr: tr, log: log}
}

// OpenApp is a single web_app button launching the Mini App. It returns nil when no
// app URL is configured, which telebot treats as "no keyboard".
func (b *Builder) OpenApp() *telebot.ReplyMarkup {
	if b == nil || b.appURL == "" {
		return nil
	}

	markup, err := NewInlineKeyboard().
		AddRow(InlineButton{Text: b.tr.T("bot.open_app"), WebAppURL: b.appURL}).
		Build()
	if err != nil {
		b.log.Error("build open app keyboard", slog.Any("error", err))
		return nil
	}
	return markup
}
