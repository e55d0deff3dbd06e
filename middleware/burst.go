package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ipLimiter holds a token bucket and last-seen time per IP.
type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// BurstGuard is a process-local token-bucket limiter keyed by client IP.
// It sits in front of the shared tiered limiter and absorbs traffic
// spikes without a store round-trip; it is not a substitute for the
// shared quota.
type BurstGuard struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rps      rate.Limit
	burst    int
}

// NewBurstGuard creates a BurstGuard allowing rps requests per second
// with the given burst size per IP, and starts background cleanup of
// stale entries.
func NewBurstGuard(rps float64, burst int) *BurstGuard {
	bg := &BurstGuard{
		limiters: make(map[string]*ipLimiter),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
	go bg.cleanup()
	return bg
}

func (bg *BurstGuard) getLimiter(ip string) *rate.Limiter {
	bg.mu.Lock()
	defer bg.mu.Unlock()

	v, exists := bg.limiters[ip]
	if !exists {
		limiter := rate.NewLimiter(bg.rps, bg.burst)
		bg.limiters[ip] = &ipLimiter{limiter: limiter, lastSeen: time.Now()}
		return limiter
	}

	v.lastSeen = time.Now()
	return v.limiter
}

// cleanup removes IP entries not seen for 5 minutes.
func (bg *BurstGuard) cleanup() {
	for {
		time.Sleep(3 * time.Minute)
		bg.mu.Lock()
		for ip, v := range bg.limiters {
			if time.Since(v.lastSeen) > 5*time.Minute {
				delete(bg.limiters, ip)
			}
		}
		bg.mu.Unlock()
	}
}

// Middleware rejects over-budget requests with 429.
func (bg *BurstGuard) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !bg.getLimiter(clientIP(r)).Allow() {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
