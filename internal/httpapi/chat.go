package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/Proton-105/craft-bot/internal/errors"
)

type chatRequest struct {
	TelegramID flexID `json:"telegram_id"`
	Message    string `json:"message"`
}

// chat answers 429 once the user exceeds the AI limit. Otherwise it answers 200 for
// every outcome the assistant produced, including rejections (spam block, insufficient
// caps), which carry success=false and the user-facing text.
func (a *API) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decode(w, r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	tid, err := telegramID(r.Context(), int64(req.TelegramID))
	if err != nil {
		a.fail(w, r, err)
		return
	}

	allowed, err := a.deps.AILimit.Allow(r.Context(), strconv.FormatInt(tid, 10))
	if err != nil {
		a.log.Warn("ai rate limiter unavailable", slog.Int64("telegram_id", tid), slog.Any("error", err))
	}
	if !allowed {
		a.fail(w, r, apperrors.NewRateLimitError(a.deps.AILimit.RetryAfter()))
		return
	}

	res, err := a.deps.AI.Chat(r.Context(), tid, req.Message)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !res.Success {
		writeJSON(w, http.StatusOK, envelope{"success": false, "error": res.Error})
		return
	}

	a.ok(w, envelope{
		"response":    res.Response,
		"caps_spent":  res.CapsSpent,
		"tokens_used": res.TokensUsed,
		"cost_usd":    res.CostUSD,
	})
}
