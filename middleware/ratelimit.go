package middleware

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/maxmusicschool/schoolauth"
)

// RateChecker counts requests per policy and client address.
// *schoolauth.Engine implements it.
type RateChecker interface {
	CheckRate(ctx context.Context, policy, clientIP string) (schoolauth.RateDecision, error)
}

// RateLimit counts every request under policy, keyed by the address that
// ClientIP attached. Requests over budget get 429 with Retry-After.
func RateLimit(rc RateChecker, policy string, logger schoolauth.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := schoolauth.ClientIPFromContext(r.Context())
			if ip == "" {
				ip = remoteHost(r.RemoteAddr)
			}

			d, err := rc.CheckRate(r.Context(), policy, ip)
			if err != nil && !errors.Is(err, schoolauth.ErrRateLimited) {
				if logger != nil {
					logger.Error(r.Context(), "rate limit check failed", "policy", policy, "err", err)
				}
				writeInternal(w)
				return
			}

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if err != nil {
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				h.Set("Retry-After", strconv.Itoa(secs))
				WriteError(w, http.StatusTooManyRequests, CodeRateLimited, "Too many requests, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
