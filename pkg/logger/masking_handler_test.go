package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskingHandler_MasksSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewMaskingHandler(slog.NewJSONHandler(&buf, nil)))

	log.Info("request",
		slog.String("bot_token", "123:abc"),
		slog.String("X-Admin-Secret", "hunter2"),
		slog.String("init_data", "query_id=1&hash=ff"),
		slog.String("path", "/api/init"),
		slog.Group("ai", slog.String("api_key", "sk-1"), slog.String("model", "gpt")),
	)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.Equal(t, maskedValue, record["bot_token"])
	assert.Equal(t, maskedValue, record["X-Admin-Secret"])
	assert.Equal(t, maskedValue, record["init_data"])
	assert.Equal(t, "/api/init", record["path"])

	group, ok := record["ai"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, maskedValue, group["api_key"])
	assert.Equal(t, "gpt", group["model"])
}

func TestMaskingHandler_ScrubsValuesAndAddsCorrelation(t *testing.T) {
	const token = "123456789:AAHfiqksKZ8WmR2zSjiQ7_v4TMAKdiHm9T0"

	var buf bytes.Buffer
	log := slog.New(NewMaskingHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := WithCorrelationID(context.Background(), "req-1")
	log.ErrorContext(ctx, "send failed",
		slog.Any("error", fmt.Errorf("post https://api.telegram.org/bot%s/sendMessage: timeout", token)),
		slog.String("note", "key sk-abcdefghijklmnopqrstuv rotated"),
		slog.Int64("telegram_id", 42),
	)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))

	assert.NotContains(t, record["error"], token)
	assert.Contains(t, record["error"], "/bot***/sendMessage")
	assert.Equal(t, "key *** rotated", record["note"])
	assert.EqualValues(t, 42, record["telegram_id"])
	assert.Equal(t, "req-1", record["correlation_id"])
}

func TestMiddleware_CorrelationID(t *testing.T) {
	const incoming = "0b7f6a0e-9a4c-4bb5-9a55-3f1ad7d0a4a1"

	testCases := []struct {
		name   string
		header string
		reused bool
	}{
		{name: "reuses valid header", header: incoming, reused: true},
		{name: "replaces garbage", header: "not-a-uuid", reused: false},
		{name: "generates when absent", header: "", reused: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = CorrelationIDFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set(RequestIDHeader, tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.NotEmpty(t, seen)
			assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
			assert.Equal(t, tc.reused, seen == incoming)
		})
	}
}
