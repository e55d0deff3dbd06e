// Package lockout counts failed authentication attempts per key and
// computes lockout windows. The orchestrator tracks the failing identity
// and the caller's network origin as independent keys, refusing login when
// either is hot: that stops credential stuffing against one account and
// distributed guessing from one origin across many accounts.
package lockout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable indicates the lockout backend is unreachable.
var ErrStoreUnavailable = errors.New("lockout store unavailable")

// Config holds lockout policy parameters.
type Config struct {
	Prefix    string
	Threshold int
	Window    time.Duration
	Duration  time.Duration
}

func (c *Config) normalize() {
	if c.Prefix == "" {
		c.Prefix = "ac"
	}
	if c.Threshold <= 0 {
		c.Threshold = 5
	}
	if c.Window <= 0 {
		c.Window = 15 * time.Minute
	}
	if c.Duration <= 0 {
		c.Duration = 15 * time.Minute
	}
}

// Tracker tracks rolling failure counts and lock markers in the shared
// TTL store. Counter increments are atomic single round-trips (INCR with
// EXPIRE on first hit), so two concurrent failures can never both observe
// a stale count.
type Tracker struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a lockout Tracker.
func New(redisClient redis.UniversalClient, cfg Config) *Tracker {
	cfg.normalize()
	return &Tracker{redis: redisClient, config: cfg}
}

func (t *Tracker) counterKey(key string) string {
	return t.config.Prefix + ":flc:" + key
}

func (t *Tracker) lockKey(key string) string {
	return t.config.Prefix + ":flk:" + key
}

// RecordFailure increments the rolling counter and, once the threshold is
// reached within the window, sets the lock marker. The counter is left in
// place: attempts during lockout extend scrutiny. The marker itself is set
// NX so repeated attempts never push locked-until further out; the
// lockout duration stays predictable for legitimate users.
func (t *Tracker) RecordFailure(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}

	count, err := t.redis.Incr(ctx, t.counterKey(key)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count == 1 {
		// Window boundary is fixed at the first failure.
		if err := t.redis.Expire(ctx, t.counterKey(key), t.config.Window).Err(); err != nil {
			return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	if count < int64(t.config.Threshold) {
		return false, nil
	}

	if err := t.redis.SetNX(ctx, t.lockKey(key), "1", t.config.Duration).Err(); err != nil {
		return true, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return true, nil
}

// IsLockedOut reports whether key is currently locked and how long until
// the lock elapses.
func (t *Tracker) IsLockedOut(ctx context.Context, key string) (bool, time.Duration, error) {
	if key == "" {
		return false, 0, nil
	}

	ttl, err := t.redis.PTTL(ctx, t.lockKey(key)).Result()
	if err != nil {
		return false, 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if ttl <= 0 {
		// -2 means no key, -1 means no expiry (never set by us).
		return false, 0, nil
	}
	return true, ttl, nil
}

// Clear removes the record entirely. Called on verified successful
// authentication.
func (t *Tracker) Clear(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}
	if err := t.redis.Del(ctx, t.counterKey(key), t.lockKey(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// FailureCount returns the current rolling failure count for key.
// Missing keys return zero and do not reveal account existence.
func (t *Tracker) FailureCount(ctx context.Context, key string) (int, error) {
	count, err := t.redis.Get(ctx, t.counterKey(key)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}
