package httpapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	telebot "gopkg.in/telebot.v3"

	apperrors "github.com/Proton-105/craft-bot/internal/errors"
)

func (a *API) webhookStatus(w http.ResponseWriter, _ *http.Request) {
	username := a.bot.Username
	if a.deps.Bot != nil {
		username = a.deps.Bot.Username()
	}
	writeJSON(w, http.StatusOK, envelope{"status": "ok", "bot": username})
}

// webhook always acknowledges with 200 so Telegram does not redeliver updates
// that failed on our side.
func (a *API) webhook(w http.ResponseWriter, r *http.Request) {
	var update telebot.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&update); err != nil {
		a.log.Warn("webhook: bad update", slog.Any("error", err))
		writeJSON(w, http.StatusOK, envelope{"ok": true})
		return
	}

	if a.deps.Bot == nil {
		a.log.Warn("webhook: bot not configured", slog.Int("update_id", update.ID))
		writeJSON(w, http.StatusOK, envelope{"ok": true})
		return
	}

	if err := a.deps.Bot.HandleUpdate(r.Context(), update); err != nil {
		a.log.Error("webhook: update failed", slog.Int("update_id", update.ID), slog.Any("error", err))
	}
	writeJSON(w, http.StatusOK, envelope{"ok": true})
}

func (a *API) webhookURL() string {
	if a.bot.WebhookURL != "" {
		return a.bot.WebhookURL
	}
	if a.bot.AppURL == "" {
		return ""
	}
	return strings.TrimRight(a.bot.AppURL, "/") + "/api/bot/webhook"
}

func (a *API) setWebhook(w http.ResponseWriter, r *http.Request) {
	if a.deps.Webhooks == nil {
		a.fail(w, r, apperrors.NewStateError("bot not configured"))
		return
	}
	target := a.webhookURL()
	if target == "" {
		a.fail(w, r, apperrors.NewValidationError("webhook url not configured"))
		return
	}

	if err := a.deps.Webhooks.SetWebhook(target); err != nil {
		a.fail(w, r, apperrors.NewExternalAPIError("telegram", err))
		return
	}
	a.log.Info("webhook registered", slog.String("url", target))
	a.ok(w, envelope{"webhook_url": target})
}

func (a *API) webhookInfo(w http.ResponseWriter, r *http.Request) {
	if a.deps.Webhooks == nil {
		a.fail(w, r, apperrors.NewStateError("bot not configured"))
		return
	}

	// getWebhookInfo reports the registered url in Listen.
	info, err := a.deps.Webhooks.WebhookInfo()
	if err != nil {
		a.fail(w, r, apperrors.NewExternalAPIError("telegram", err))
		return
	}

	out := envelope{
		"url":                  info.Listen,
		"pending_update_count": info.PendingUpdates,
		"last_error_message":   info.ErrorMessage,
		"max_connections":      info.MaxConnections,
	}
	if info.Listen == "" && info.Endpoint != nil {
		out["url"] = info.Endpoint.PublicURL
	}
	if info.ErrorUnixtime > 0 {
		out["last_error_date"] = info.ErrorUnixtime
	}
	a.ok(w, envelope{"webhook": out})
}
