package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Proton-105/craft-bot/pkg/metrics"
)

// Metrics reports request count and latency per route template.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newStatusRecorder(w)

		next.ServeHTTP(rec, r)

		metrics.RecordHTTPRequest(routeName(r), r.Method, rec.Status(), time.Since(start))
	})
}

// routeName is the matched path template, so /api/admin/user/7/level and
// /api/admin/user/8/level share one label.
func routeName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
