package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Proton-105/craft-bot/internal/ratelimit"
	"github.com/Proton-105/craft-bot/pkg/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ok(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

func TestRateLimit_PerIP(t *testing.T) {
	rules, err := ratelimit.NewRules(config.RateLimitConfig{
		Global:    config.RateLimitRule{Limit: 2, Window: "1m"},
		Whitelist: []string{"10.0.0.9"},
	})
	require.NoError(t, err)
	policy := ratelimit.NewPolicy(ratelimit.NewMemoryLimiter(testLogger()), "global:", rules.Global)

	r := mux.NewRouter()
	r.HandleFunc("/api/offers", ok)
	r.HandleFunc("/livez", ok)
	r.Use(RateLimit(policy, rules, testLogger()))

	call := func(path, ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = ip + ":5555"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, call("/api/offers", "1.2.3.4").Code)
	assert.Equal(t, http.StatusOK, call("/api/offers", "1.2.3.4").Code)

	rec := call("/api/offers", "1.2.3.4")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, call("/api/offers", "5.6.7.8").Code, "other addresses keep their own budget")
	assert.Equal(t, http.StatusOK, call("/livez", "1.2.3.4").Code)
	for i := 0; i < 5; i++ {
		assert.Equal(t, http.StatusOK, call("/api/offers", "10.0.0.9").Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", ClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", ClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	assert.Equal(t, "203.0.113.5", ClientIP(req))
}

func TestRecovery(t *testing.T) {
	h := Recovery(testLogger(), nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/shop/items", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, TemporaryProblem, body["error"])
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(ok))

	tests := []struct {
		path  string
		frame string
	}{
		{path: "/", frame: ""},
		{path: "/api/init", frame: "DENY"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"), tt.path)
		assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"), tt.path)
		assert.Equal(t, tt.frame, rec.Header().Get("X-Frame-Options"), tt.path)
	}
}

func TestLoggingAndMetricsKeepStatus(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/admin/user/{id}/level", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Use(Logging(testLogger()), Metrics)

	start := time.Now()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/admin/user/7/level", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Less(t, time.Since(start), time.Second)
}
