// Package rate enforces tiered fixed-window request limits backed by the
// shared TTL store.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit, so the
// window boundary is pinned at first use rather than sliding per request.
// The increment is a single atomic round-trip; two concurrent requests can
// never both be admitted past the ceiling on a stale read.
//
// # Failure policy
//
// When the shared store is unreachable the limiter fails OPEN: product
// availability outweighs strict quota enforcement during a cache outage.
// This is the opposite of the fail-closed rule applied to credential
// validity checks. Degraded results are marked and logged at warning
// level.
package rate

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Tier classifies callers into fixed rate classes. Premium and admin exist
// specifically to give paying/internal callers materially higher ceilings
// without separate code paths.
type Tier string

const (
	// TierAnonymous is the default tier for unauthenticated callers.
	TierAnonymous Tier = "anonymous"
	// TierRegistered covers authenticated callers on the free plan.
	TierRegistered Tier = "registered"
	// TierPremium covers paying callers.
	TierPremium Tier = "premium"
	// TierAdmin covers internal/administrative callers.
	TierAdmin Tier = "admin"
)

// TierFor maps a plan string and admin flag onto a Tier, defaulting
// unknown plans to registered.
func TierFor(plan string, admin bool) Tier {
	if admin {
		return TierAdmin
	}
	switch plan {
	case "premium", "pro":
		return TierPremium
	case "":
		return TierAnonymous
	default:
		return TierRegistered
	}
}

// Limit is a (ceiling, window) pair.
type Limit struct {
	Max    int
	Window time.Duration
}

// TierLimits holds a tier's default limit and per-endpoint-class overrides.
type TierLimits struct {
	Default     Limit
	PerEndpoint map[string]Limit
}

// Config holds limiter construction parameters.
type Config struct {
	Prefix string
	Tiers  map[Tier]TierLimits
}

// DefaultTiers returns the built-in tier tables.
func DefaultTiers() map[Tier]TierLimits {
	return map[Tier]TierLimits{
		TierAnonymous: {
			Default: Limit{Max: 30, Window: time.Minute},
			PerEndpoint: map[string]Limit{
				"auth":     {Max: 10, Window: time.Minute},
				"generate": {Max: 5, Window: time.Minute},
			},
		},
		TierRegistered: {
			Default: Limit{Max: 120, Window: time.Minute},
			PerEndpoint: map[string]Limit{
				"auth":     {Max: 20, Window: time.Minute},
				"generate": {Max: 30, Window: time.Minute},
			},
		},
		TierPremium: {
			Default: Limit{Max: 600, Window: time.Minute},
			PerEndpoint: map[string]Limit{
				"generate": {Max: 300, Window: time.Minute},
			},
		},
		TierAdmin: {
			Default: Limit{Max: 5000, Window: time.Minute},
		},
	}
}

// Result is the outcome of a limiter check. Degraded marks fail-open
// admissions taken while the store was unreachable.
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	Degraded  bool
}

// Limiter counts requests per (caller, tier, endpoint class) window.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
	log    zerolog.Logger
}

// New creates a tiered Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config, log zerolog.Logger) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "ac"
	}
	if cfg.Tiers == nil {
		cfg.Tiers = DefaultTiers()
	}
	return &Limiter{redis: redisClient, config: cfg, log: log}
}

func (l *Limiter) key(callerKey string, tier Tier, endpointClass string) string {
	return l.config.Prefix + ":rl:" + string(tier) + ":" + endpointClass + ":" + callerKey
}

func (l *Limiter) limitFor(tier Tier, endpointClass string) Limit {
	limits, ok := l.config.Tiers[tier]
	if !ok {
		limits = l.config.Tiers[TierAnonymous]
	}
	if override, ok := limits.PerEndpoint[endpointClass]; ok {
		return override
	}
	return limits.Default
}

// Check increments the caller's window counter and compares it against the
// tier ceiling for the endpoint class.
func (l *Limiter) Check(ctx context.Context, callerKey string, tier Tier, endpointClass string) Result {
	limit := l.limitFor(tier, endpointClass)
	if limit.Max <= 0 || limit.Window <= 0 {
		return Result{Allowed: true, Remaining: -1}
	}

	key := l.key(callerKey, tier, endpointClass)

	pipe := l.redis.Pipeline()
	incr := pipe.Incr(ctx, key)
	pttl := pipe.PTTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return l.failOpen(endpointClass, tier, err)
	}

	count, err := incr.Result()
	if err != nil {
		return l.failOpen(endpointClass, tier, err)
	}

	now := time.Now()
	resetAt := now.Add(limit.Window)
	if count == 1 {
		if err := l.redis.Expire(ctx, key, limit.Window).Err(); err != nil {
			return l.failOpen(endpointClass, tier, err)
		}
	} else if ttl, ttlErr := pttl.Result(); ttlErr == nil && ttl > 0 {
		resetAt = now.Add(ttl)
	}

	remaining := limit.Max - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return Result{
		Allowed:   count <= int64(limit.Max),
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}

func (l *Limiter) failOpen(endpointClass string, tier Tier, err error) Result {
	l.log.Warn().
		Str("component", "rate").
		Str("tier", string(tier)).
		Str("endpoint_class", endpointClass).
		Err(err).
		Msg("shared store unreachable, rate limiter failing open")
	return Result{Allowed: true, Remaining: -1, Degraded: true}
}
