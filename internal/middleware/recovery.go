package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gorilla/mux"

	apperrors "github.com/Proton-105/craft-bot/internal/errors"
)

// TemporaryProblem is the body of every unexpected failure.
const TemporaryProblem = apperrors.GenericUserMessage

// Recovery turns a handler panic into a generic JSON 500 and reports it.
func Recovery(log *slog.Logger, errHandler *apperrors.Handler) mux.MiddlewareFunc {
	if log == nil {
		log = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				log.Error("panic recovered in http handler",
					slog.String("path", r.URL.Path),
					slog.Any("panic", rec),
					slog.String("stack", string(debug.Stack())),
				)
				if errHandler != nil {
					errHandler.Handle(r.Context(), fmt.Errorf("panic recovered: %v", rec))
				}
				writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": TemporaryProblem})
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
