package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/namesmith/authcore"
	"github.com/namesmith/authcore/rate"
)

// RateLimit enforces the shared, tiered request quota for one endpoint
// class. Authenticated callers (via [Guard] upstream) are keyed by user
// ID at their plan's tier; everyone else is keyed by IP at the anonymous
// tier. Denied requests get 429 with a Retry-After hint.
func RateLimit(engine *authcore.Engine, endpointClass string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			callerKey, tier := callerIdentity(r)

			res := engine.CheckRate(r.Context(), callerKey, tier, endpointClass)
			if res.Remaining >= 0 {
				w.Header().Set("X-RateLimit-Remaining", fmt.Sprint(res.Remaining))
			}
			if !res.Allowed {
				retryAfter := time.Until(res.ResetAt)
				if retryAfter < time.Second {
					retryAfter = time.Second
				}
				w.Header().Set("Retry-After", fmt.Sprint(int(retryAfter.Seconds())))
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func callerIdentity(r *http.Request) (string, rate.Tier) {
	if res, ok := AuthResultFromContext(r.Context()); ok {
		return "u:" + res.Identity.ID, rate.TierFor(res.Identity.Plan, res.Identity.Admin)
	}
	return "ip:" + clientIP(r), rate.TierAnonymous
}
