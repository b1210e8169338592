package middleware

import "net/http"

// SecurityHeaders sets the response hardening headers. The Mini App page at "/"
// must stay embeddable in the Telegram client.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		if r.URL.Path == "/" {
			h.Set("Content-Security-Policy", "frame-ancestors https://web.telegram.org https://*.telegram.org")
		} else {
			h.Set("X-Frame-Options", "DENY")
		}

		next.ServeHTTP(w, r)
	})
}
