package ratelimit

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// DefaultRetryAfterSeconds is the Retry-After value sent when a client is throttled.
const DefaultRetryAfterSeconds = 1

// Middleware enforces the per-client throttle. clientKey extracts the key
// (usually the client address); requests with an empty key pass through.
//
// Throttled requests get 429 with:
//   - Retry-After: the recommended wait in seconds
//   - X-RateLimit-Remaining: 0
func Middleware(limiter *RateLimiter, clientKey func(r *http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.config.Enabled() {
				next.ServeHTTP(w, r)
				return
			}

			key := clientKey(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			bucket := limiter.GetLimiter(key)
			if !bucket.Allow() {
				w.Header().Set("Retry-After", strconv.Itoa(DefaultRetryAfterSeconds))
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{"error": "Too Many Requests"})
				return
			}

			remaining := int(bucket.Tokens())
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			next.ServeHTTP(w, r)
		})
	}
}
