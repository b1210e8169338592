package bot

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	telebot "gopkg.in/telebot.v3"

	"github.com/Proton-105/craft-bot/internal/bot/handlers"
	apperrors "github.com/Proton-105/craft-bot/internal/errors"
	"github.com/Proton-105/craft-bot/internal/i18n"
	"github.com/Proton-105/craft-bot/pkg/logger"
	"github.com/Proton-105/craft-bot/pkg/metrics"
)

// ContextMiddleware gives the update a context tagged "tg-<update_id>" so log lines and
// error reports for one update can be joined up.
func ContextMiddleware(next handlers.Handler) handlers.Handler {
	return func(c telebot.Context) error {
		id := "tg-" + strconv.Itoa(c.Update().ID)
		handlers.SetUpdateContext(c, logger.WithCorrelationID(handlers.UpdateContext(c), id))
		return next(c)
	}
}

// RecoveryMiddleware turns a handler panic into a reported error and a generic reply.
func RecoveryMiddleware(log *slog.Logger, errHandler *apperrors.Handler, tr i18n.Translator) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					ctx := handlers.UpdateContext(c)
					log.ErrorContext(ctx, "bot handler panic", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
					report(c, errHandler, tr, fmt.Errorf("panic: %v", r))
					err = nil
				}
			}()
			return next(c)
		}
	}
}

// ErrorHandlingMiddleware swallows handler errors after reporting them, since the
// webhook acknowledges every update anyway.
func ErrorHandlingMiddleware(errHandler *apperrors.Handler, tr i18n.Translator) handlers.Middleware {
	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) error {
			if err := next(c); err != nil {
				report(c, errHandler, tr, err)
			}
			return nil
		}
	}
}

func report(c telebot.Context, errHandler *apperrors.Handler, tr i18n.Translator, err error) {
	if errHandler != nil {
		errHandler.Handle(handlers.UpdateContext(c), err)
	}
	_ = c.Send(tr.T("bot.error"))
}

func LoggingMiddleware(log *slog.Logger) handlers.Middleware {
	if log == nil {
		log = slog.Default()
	}

	return func(next handlers.Handler) handlers.Handler {
		return func(c telebot.Context) error {
			started := time.Now()
			err := next(c)

			var tid int64
			if u := c.Sender(); u != nil {
				tid = u.ID
			}
			lvl := slog.LevelInfo
			if err != nil {
				lvl = slog.LevelWarn
			}
			log.Log(handlers.UpdateContext(c), lvl, "bot update",
				slog.Int64("telegram_id", tid),
				slog.String("command", commandName(c)),
				slog.Duration("duration", time.Since(started)),
				slog.Any("error", err),
			)
			return err
		}
	}
}

func MetricsMiddleware(next handlers.Handler) handlers.Handler {
	return func(c telebot.Context) error {
		err := next(c)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.RecordBotUpdate(commandName(c), outcome)
		return err
	}
}
