package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestIDHeader carries the id the logger assigns to each request.
const RequestIDHeader = "X-Request-ID"

// requestLog collects fields that inner middleware learn after the logger
// has wrapped the request.
type requestLog struct {
	id        string
	principal *Principal
}

type requestLogKey struct{}

// RequestID returns the id assigned by Logger, or "".
func RequestID(ctx context.Context) string {
	if rl, ok := ctx.Value(requestLogKey{}).(*requestLog); ok {
		return rl.id
	}
	return ""
}

// annotate records the authenticated caller on the access log line.
func annotate(ctx context.Context, p Principal) {
	if rl, ok := ctx.Value(requestLogKey{}).(*requestLog); ok {
		rl.principal = &p
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

// Logger writes one access line per request. Server errors are logged at
// error level, everything else at info.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(RequestIDHeader)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		rl := &requestLog{id: id}
		w.Header().Set(RequestIDHeader, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestLogKey{}, rl)))

		attrs := []any{
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"bytes", rec.bytes,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		}
		if rl.principal != nil {
			attrs = append(attrs, "user_id", rl.principal.UserID, "key_prefix", rl.principal.KeyPrefix)
		}

		level := slog.LevelInfo
		if rec.status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.Log(r.Context(), level, "request", attrs...)
	})
}
