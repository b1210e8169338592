package errors

import (
	"context"
	"errors"
	"log/slog"

	"github.com/getsentry/sentry-go"

	"github.com/Proton-105/craft-bot/pkg/logger"
	"github.com/Proton-105/craft-bot/pkg/metrics"
)

// GenericUserMessage is shown for failures that carry no user-facing text.
const GenericUserMessage = "Временная проблема, попробуйте позже"

// Handler is the last stop for errors at the HTTP and bot boundaries: it logs them
// with the correlation id and forwards high-severity ones to Sentry.
type Handler struct {
	log           *slog.Logger
	sentryEnabled bool
}

func NewHandler(log *slog.Logger, sentryEnabled bool) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{log: log, sentryEnabled: sentryEnabled}
}

// Handle records err and returns the message for the user and whether a retry may help.
// Errors that are not AppErrors are treated as high severity.
func (h *Handler) Handle(ctx context.Context, err error) (string, bool) {
	if err == nil {
		return "", false
	}
	if ctx == nil {
		ctx = context.Background()
	}

	code, severity, retryable, userMessage := "", SeverityHigh, false, ""
	var appErr *AppError
	if errors.As(err, &appErr) && appErr != nil {
		code, severity, retryable, userMessage = appErr.Code, appErr.Severity, appErr.Retryable, appErr.UserMessage
	}

	attrs := []any{
		slog.String("code", code),
		slog.String("severity", string(severity)),
		slog.Bool("retryable", retryable),
		slog.Any("error", err),
	}
	correlationID := logger.CorrelationIDFromContext(ctx)
	if correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}
	h.log.Log(ctx, logLevel(severity), "request failed", attrs...)
	metrics.RecordError(code, string(severity))

	if h.sentryEnabled && (severity == SeverityHigh || severity == SeverityCritical) {
		capture(ctx, err, code, severity, correlationID)
	}

	if userMessage == "" {
		userMessage = GenericUserMessage
	}
	return userMessage, retryable
}

func logLevel(s Severity) slog.Level {
	switch s {
	case SeverityLow:
		return slog.LevelInfo
	case SeverityMedium:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func capture(ctx context.Context, err error, code string, severity Severity, correlationID string) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub().Clone()
	}

	hub.WithScope(func(scope *sentry.Scope) {
		if code != "" {
			scope.SetTag("code", code)
		}
		scope.SetTag("severity", string(severity))
		if correlationID != "" {
			scope.SetTag("correlation_id", correlationID)
		}
		hub.CaptureException(err)
	})
}
