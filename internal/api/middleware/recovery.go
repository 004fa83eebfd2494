package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/kiranshivaraju/lorastudio/internal/api/response"
)

// Recovery turns a handler panic into a 500 carrying the request id, so a
// user report can be matched to the stack in the logs.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			id := RequestID(r.Context())
			slog.Error("panic recovered",
				"request_id", id,
				"panic", rec,
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)

			var details any
			if id != "" {
				details = map[string]string{"request_id": id}
			}
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "An unexpected error occurred", details)
		}()
		next.ServeHTTP(w, r)
	})
}
