package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"tutormarket/backend/internal/httpjson"
	"tutormarket/backend/internal/ratelimit"
)

// RateLimit counts requests per caller in category. Authenticated callers are
// keyed by uid, everyone else by client address.
func RateLimit(l *ratelimit.Limiter, category string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := l.Allow(r.Context(), callerKey(r), category)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed {
				wait := int(math.Ceil(time.Until(res.ResetAt).Seconds()))
				if wait < 1 {
					wait = 1
				}
				h.Set("Retry-After", strconv.Itoa(wait))
				httpjson.Write(w, http.StatusTooManyRequests, map[string]any{
					"error":     "too many requests",
					"remaining": 0,
					"reset":     res.ResetAt.UTC().Format(time.RFC3339),
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func callerKey(r *http.Request) string {
	if au, ok := GetAuthUser(r.Context()); ok && au.UID != "" {
		return "uid:" + au.UID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
