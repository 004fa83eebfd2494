package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/lorastudio/internal/api/response"
	"github.com/kiranshivaraju/lorastudio/internal/cache"
)

const (
	defaultRequestsPerMinute = 60
	rateWindow               = time.Minute
)

// Counter increments a key that expires after a window.
type Counter interface {
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RateLimit counts requests per API key in fixed one-minute windows aligned
// to the clock, so every key's budget resets at the top of the minute.
type RateLimit struct {
	cache          Counter
	requestsPerMin int
	now            func() time.Time
}

type RateLimitOption func(*RateLimit)

// WithRateClock replaces time.Now.
func WithRateClock(now func() time.Time) RateLimitOption {
	return func(rl *RateLimit) { rl.now = now }
}

func NewRateLimit(c Counter, requestsPerMin int, opts ...RateLimitOption) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	rl := &RateLimit{cache: c, requestsPerMin: requestsPerMin, now: time.Now}
	for _, o := range opts {
		o(rl)
	}
	return rl
}

// Limit must run after Authenticate. Requests without a Principal pass
// through, and so does everything while the counter store is down.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFrom(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		now := rl.now()
		start := now.Truncate(rateWindow)
		reset := start.Add(rateWindow)

		count, err := rl.cache.IncrWithExpiry(r.Context(), cache.RateLimitKey(p.KeyID, start), rateWindow)
		if err != nil {
			slog.Warn("rate limit counter unavailable", "request_id", RequestID(r.Context()), "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := max(rl.requestsPerMin-int(count), 0)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if count > int64(rl.requestsPerMin) {
			retry := int(reset.Sub(now).Round(time.Second) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(max(retry, 1)))
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
