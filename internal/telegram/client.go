// Package telegram talks to the Telegram Bot API and validates Mini App init data.
package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/craft-bot/pkg/config"
	"github.com/Proton-105/craft-bot/pkg/metrics"
)

// ErrNotConfigured is returned by every call when no bot token is configured.
var ErrNotConfigured = errors.New("telegram: bot token not configured")

// Notifier delivers outbound bot messages. opts are passed to telebot as is
// (for example a *telebot.ReplyMarkup).
type Notifier interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts ...any) error
	SendVideo(ctx context.Context, chatID int64, fileID, caption string) error
	SendDocument(ctx context.Context, chatID int64, fileName string, content []byte, caption string) error
}

// Client is the Bot API client shared by the notifier, the webhook processor and admin endpoints.
type Client struct {
	bot      *telebot.Bot
	username string
	log      *slog.Logger
}

var _ Notifier = (*Client)(nil)

// NewClient creates an offline telebot instance: updates arrive through the HTTP webhook
// and getMe is not called at startup. An empty token yields a client whose calls fail
// with ErrNotConfigured.
func NewClient(cfg config.BotConfig, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}

	c := &Client{username: cfg.Username, log: log}
	if cfg.Token == "" {
		log.Warn("telegram bot token is empty, outbound messages are disabled")
		return c, nil
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	b, err := telebot.NewBot(telebot.Settings{
		Token:       cfg.Token,
		Offline:     true,
		Synchronous: true,
		ParseMode:   telebot.ModeHTML,
		Client:      &http.Client{Timeout: timeout},
		OnError: func(err error, tc telebot.Context) {
			attrs := []any{slog.Any("error", err)}
			if tc != nil && tc.Sender() != nil {
				attrs = append(attrs, slog.Int64("telegram_id", tc.Sender().ID))
			}
			log.Error("telegram handler failed", attrs...)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("initialize telebot: %w", err)
	}

	c.bot = b
	return c, nil
}

// Bot exposes the telebot instance; nil when no token is configured.
func (c *Client) Bot() *telebot.Bot {
	return c.bot
}

// Username is the bot username used in deep links.
func (c *Client) Username() string {
	return c.username
}

func (c *Client) send(ctx context.Context, kind string, chatID int64, what any, opts ...any) error {
	if c.bot == nil {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := c.bot.Send(telebot.ChatID(chatID), what, opts...); err != nil {
		metrics.RecordNotificationFailure(kind)
		return fmt.Errorf("send telegram %s: %w", kind, err)
	}
	return nil
}

func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, opts ...any) error {
	return c.send(ctx, "message", chatID, text, opts...)
}

func (c *Client) SendVideo(ctx context.Context, chatID int64, fileID, caption string) error {
	video := &telebot.Video{File: telebot.File{FileID: fileID}, Caption: caption}
	return c.send(ctx, "video", chatID, video)
}

func (c *Client) SendDocument(ctx context.Context, chatID int64, fileName string, content []byte, caption string) error {
	doc := &telebot.Document{
		File:     telebot.FromReader(bytes.NewReader(content)),
		FileName: fileName,
		Caption:  caption,
	}
	return c.send(ctx, "document", chatID, doc)
}

// IsMember reports whether userID is a creator, administrator or member of channelID.
func (c *Client) IsMember(ctx context.Context, channelID, userID int64) (bool, error) {
	if c.bot == nil {
		return false, ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	member, err := c.bot.ChatMemberOf(telebot.ChatID(channelID), &telebot.User{ID: userID})
	if err != nil {
		return false, fmt.Errorf("get chat member: %w", err)
	}

	switch member.Role {
	case telebot.Creator, telebot.Administrator, telebot.Member:
		return true, nil
	default:
		return false, nil
	}
}

// Ping calls getMe; used by the health checker.
func (c *Client) Ping(ctx context.Context) error {
	if c.bot == nil {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.bot.Raw("getMe", nil); err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	return nil
}

// SetWebhook points Telegram at publicURL.
func (c *Client) SetWebhook(publicURL string) error {
	if c.bot == nil {
		return ErrNotConfigured
	}
	if publicURL == "" {
		return errors.New("telegram: webhook url is empty")
	}
	if err := c.bot.SetWebhook(&telebot.Webhook{Endpoint: &telebot.WebhookEndpoint{PublicURL: publicURL}}); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

// WebhookInfo returns the current webhook registration.
func (c *Client) WebhookInfo() (*telebot.Webhook, error) {
	if c.bot == nil {
		return nil, ErrNotConfigured
	}
	info, err := c.bot.Webhook()
	if err != nil {
		return nil, fmt.Errorf("get webhook info: %w", err)
	}
	return info, nil
}
