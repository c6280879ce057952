package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kiranshivaraju/clearops/internal/api/response"
	"github.com/kiranshivaraju/clearops/internal/cache"
)

const defaultRequestsPerMinute = 60

// RateLimit is a fixed one-minute window counter in Redis, kept per tenant
// and caller. Portal requests count against the end client named in
// X-Client-ID; everything else counts against the API key.
type RateLimit struct {
	cache          cache.Cache
	requestsPerMin int
}

// NewRateLimit creates a new RateLimit middleware.
func NewRateLimit(c cache.Cache, requestsPerMin int) *RateLimit {
	if requestsPerMin <= 0 {
		requestsPerMin = defaultRequestsPerMinute
	}
	return &RateLimit{cache: c, requestsPerMin: requestsPerMin}
}

// subject names the bucket a request counts against. It must run after
// Authenticate and ClientIdentity.
func subject(r *http.Request) (string, bool) {
	if id, ok := GetClientID(r); ok {
		return "client:" + id.String(), true
	}
	if prefix, ok := getKeyPrefix(r); ok {
		return "key:" + prefix, true
	}
	return "", false
}

// Limit rejects requests over the per-minute budget with 429.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		who, ok := subject(r)
		if !ok {
			// Unauthenticated; nothing to count against.
			next.ServeHTTP(w, r)
			return
		}
		tenantID, _ := GetTenantID(r)

		key := cache.RateLimitKey(tenantID, who)
		count, err := rl.cache.IncrWithExpiry(r.Context(), key, time.Minute)
		if err != nil {
			// Fail open.
			slog.Warn("rate limit check failed", "tenant_id", tenantID, "subject", who, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		remaining := max(rl.requestsPerMin-int(count), 0)
		resetTime := time.Now().Add(time.Minute).Unix()

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.requestsPerMin))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", resetTime))

		if count > int64(rl.requestsPerMin) {
			slog.Warn("rate limit exceeded", "tenant_id", tenantID, "subject", who, "count", count)
			w.Header().Set("Retry-After", "60")
			response.Error(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Too many requests", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
