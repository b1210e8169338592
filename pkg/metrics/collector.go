package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests labeled by route, method and status",
		},
		[]string{"route", "method", "status"},
	)
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
	botUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_updates_total",
			Help: "Total number of Telegram updates labeled by command and status",
		},
		[]string{"command", "status"},
	)
	ledgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Total number of balance operations by kind",
		},
		[]string{"kind"},
	)
	ledgerCapsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_caps_total",
			Help: "Sum of absolute caps moved by kind and direction",
		},
		[]string{"kind", "direction"},
	)
	aiChatTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_chat_total",
			Help: "AI chat requests by outcome",
		},
		[]string{"outcome"},
	)
	aiTokensTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Total number of LLM tokens reported by the provider",
		},
	)
	checkoutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shop_checkout_total",
			Help: "Shop checkouts by status",
		},
		[]string{"status"},
	)
	notificationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_failures_total",
			Help: "Failed outbound Telegram notifications by kind",
		},
		[]string{"kind"},
	)
	rateLimitChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_checks_total",
			Help: "Rate limit decisions by backend and result",
		},
		[]string{"backend", "result"},
	)
	rateLimitBackendErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_backend_errors_total",
			Help: "Limiter backend failures that triggered the in-memory fallback",
		},
		[]string{"backend"},
	)
	componentUp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "health_component_up",
			Help: "1 when the last health check of a component passed",
		},
		[]string{"component"},
	)
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open",
		},
		[]string{"name"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by type and severity",
		},
		[]string{"type", "severity"},
	)
)

func orUnknown(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

// RecordHTTPRequest increments request counters and records duration.
func RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	route = orUnknown(route)
	httpRequestsTotal.WithLabelValues(route, method, statusClass(status)).Inc()
	httpRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordBotUpdate counts a processed webhook update.
func RecordBotUpdate(command, status string) {
	botUpdatesTotal.WithLabelValues(orUnknown(command), orUnknown(status)).Inc()
}

// RecordLedgerOperation counts one balance mutation.
func RecordLedgerOperation(kind string, amount int64) {
	kind = orUnknown(kind)
	ledgerOperationsTotal.WithLabelValues(kind).Inc()

	direction := "credit"
	if amount < 0 {
		direction = "debit"
		amount = -amount
	}
	ledgerCapsTotal.WithLabelValues(kind, direction).Add(float64(amount))
}

// RecordAIChat counts a chat request by outcome (answered, blocked, injection, insufficient, fallback...).
func RecordAIChat(outcome string, tokens int) {
	aiChatTotal.WithLabelValues(orUnknown(outcome)).Inc()
	if tokens > 0 {
		aiTokensTotal.Add(float64(tokens))
	}
}

// RecordCheckout counts a checkout attempt.
func RecordCheckout(status string) {
	checkoutTotal.WithLabelValues(orUnknown(status)).Inc()
}

// RecordNotificationFailure counts a failed Telegram send.
func RecordNotificationFailure(kind string) {
	notificationFailuresTotal.WithLabelValues(orUnknown(kind)).Inc()
}

// RecordRateLimit counts one limiter decision.
func RecordRateLimit(backend string, allowed bool) {
	result := "allowed"
	if !allowed {
		result = "rejected"
	}
	rateLimitChecksTotal.WithLabelValues(orUnknown(backend), result).Inc()
}

// RecordRateLimitBackendError counts a failed shared-store check.
func RecordRateLimitBackendError(backend string) {
	rateLimitBackendErrorsTotal.WithLabelValues(orUnknown(backend)).Inc()
}

// RecordComponentHealth stores the outcome of a component's last health check.
func RecordComponentHealth(component string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	componentUp.WithLabelValues(orUnknown(component)).Set(v)
}

// RecordBreakerState publishes a circuit breaker's current state.
func RecordBreakerState(name string, state int) {
	breakerState.WithLabelValues(orUnknown(name)).Set(float64(state))
}

// RecordError counts an error that reached a transport boundary, by code and severity.
func RecordError(errType, severity string) {
	errorsTotal.WithLabelValues(orUnknown(errType), orUnknown(severity)).Inc()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
