package logger

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

const maskedValue = "***"

// Attribute keys containing any of these fragments are replaced wholesale.
var secretKeyFragments = []string{"password", "token", "secret", "api_key", "authorization", "init_data", "dsn"}

// Credentials that leak inside free text: Bot API tokens (telebot puts them in request
// URLs, so they show up in wrapped errors) and OpenAI keys.
var (
	botTokenPattern  = regexp.MustCompile(`\d{6,}:[A-Za-z0-9_-]{30,}`)
	openAIKeyPattern = regexp.MustCompile(`sk-[A-Za-z0-9_-]{16,}`)
)

// MaskingHandler redacts credentials from records and stamps them with the request's
// correlation id before passing them on.
type MaskingHandler struct {
	next slog.Handler
}

func NewMaskingHandler(next slog.Handler) *MaskingHandler {
	return &MaskingHandler{next: next}
}

func (h *MaskingHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.next.Enabled(ctx, lvl)
}

func (h *MaskingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &MaskingHandler{next: h.next.WithAttrs(redactAll(attrs))}
}

func (h *MaskingHandler) WithGroup(name string) slog.Handler {
	return &MaskingHandler{next: h.next.WithGroup(name)}
}

func (h *MaskingHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, scrub(record.Message), record.PC)

	hasCorrelation := false
	record.Attrs(func(a slog.Attr) bool {
		if a.Key == "correlation_id" {
			hasCorrelation = true
		}
		out.AddAttrs(redact(a))
		return true
	})
	if id := CorrelationIDFromContext(ctx); id != "" && !hasCorrelation {
		out.AddAttrs(slog.String("correlation_id", id))
	}

	return h.next.Handle(ctx, out)
}

func redactAll(attrs []slog.Attr) []slog.Attr {
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = redact(a)
	}
	return out
}

func redact(a slog.Attr) slog.Attr {
	if secretKey(a.Key) {
		return slog.String(a.Key, maskedValue)
	}

	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(redactAll(v.Group())...)}
	case slog.KindString:
		return slog.String(a.Key, scrub(v.String()))
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			if msg := err.Error(); scrub(msg) != msg {
				return slog.String(a.Key, scrub(msg))
			}
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}

func secretKey(key string) bool {
	k := strings.ToLower(strings.ReplaceAll(key, "-", "_"))
	for _, frag := range secretKeyFragments {
		if strings.Contains(k, frag) {
			return true
		}
	}
	return false
}

func scrub(s string) string {
	s = botTokenPattern.ReplaceAllString(s, maskedValue)
	return openAIKeyPattern.ReplaceAllString(s, maskedValue)
}
