// Package blacklist records revoked credential identifiers in the shared
// TTL store. A tombstone lives exactly as long as the credential it blocks
// could still be presented, which bounds store growth without any sweeper.
package blacklist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStoreUnavailable indicates the shared store could not be reached.
// Callers on credential-validity paths must treat it as a rejection,
// never as "not revoked".
var ErrStoreUnavailable = errors.New("blacklist store unavailable")

// Blacklist is the revocation ledger keyed by jti.
type Blacklist struct {
	redis  redis.UniversalClient
	prefix string
}

// New creates a Blacklist using the given key prefix.
func New(redisClient redis.UniversalClient, prefix string) *Blacklist {
	if prefix == "" {
		prefix = "ac"
	}
	return &Blacklist{redis: redisClient, prefix: prefix}
}

func (b *Blacklist) key(jti string) string {
	return b.prefix + ":bl:" + jti
}

// Revoke writes a tombstone for jti with TTL equal to the credential's
// remaining lifetime. Already-expired credentials are a no-op: they can
// never pass verification again, so a tombstone would only waste memory.
func (b *Blacklist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	if jti == "" {
		return errors.New("empty jti")
	}

	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	if err := b.redis.Set(ctx, b.key(jti), "1", ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether jti has an active tombstone. Store errors are
// surfaced so the caller can fail closed.
func (b *Blacklist) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if jti == "" {
		return false, nil
	}

	n, err := b.redis.Exists(ctx, b.key(jti)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}
