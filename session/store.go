package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/namesmith/authcore/internal"
)

var (
	// ErrSessionNotFound is returned when the session does not exist,
	// has expired, or has been revoked.
	ErrSessionNotFound = errors.New("session not found")
	// ErrStoreUnavailable indicates the shared store could not be reached.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Store is the session lifecycle abstraction. Two implementations exist:
// the Redis-backed RedisStore and the process-local Memory store used as a
// reduced-guarantee fallback when the shared store is unreachable.
type Store interface {
	Create(ctx context.Context, userID, role, plan string, origin Origin) (*Session, error)
	Get(ctx context.Context, sessionID string) (*Session, error)
	Touch(ctx context.Context, sessionID string) error
	Revoke(ctx context.Context, sessionID string) (bool, error)
	RevokeAll(ctx context.Context, userID, exceptSessionID string) (int, error)
	ListForOwner(ctx context.Context, userID string) ([]*Session, error)
	CountForOwner(ctx context.Context, userID string) (int, error)
}

// Config holds session store tuning parameters.
type Config struct {
	Prefix             string
	Lifetime           time.Duration
	MaxSessionsPerUser int

	// OnEvict, when set, is called after capacity enforcement removes
	// sessions for a user. Must not block.
	OnEvict func(userID string, evicted int)
}

func (c *Config) normalize() {
	if c.Prefix == "" {
		c.Prefix = "ac"
	}
	if c.Lifetime <= 0 {
		c.Lifetime = 7 * 24 * time.Hour
	}
	if c.MaxSessionsPerUser <= 0 {
		c.MaxSessionsPerUser = 5
	}
}

// RedisStore persists sessions in the shared store with self-expiring keys
// and a per-user reverse index for revoke-all and capacity enforcement.
type RedisStore struct {
	redis  redis.UniversalClient
	config Config
}

// NewRedisStore creates a session store backed by the given Redis client.
func NewRedisStore(redisClient redis.UniversalClient, cfg Config) *RedisStore {
	cfg.normalize()
	return &RedisStore{redis: redisClient, config: cfg}
}

func (s *RedisStore) key(sessionID string) string {
	return s.config.Prefix + ":sess:" + sessionID
}

func (s *RedisStore) ownerKey(userID string) string {
	return s.config.Prefix + ":owner:" + userID
}

// Create allocates a fresh session identifier and CSRF secret, persists the
// record with TTL = session lifetime, and indexes it under the owner. When
// the owner is at capacity the oldest session is evicted first. The eviction
// is best-effort: a concurrent create may briefly allow max+1 sessions, but
// eviction is attempted on every create so growth stays bounded.
func (s *RedisStore) Create(ctx context.Context, userID, role, plan string, origin Origin) (*Session, error) {
	if userID == "" {
		return nil, errors.New("empty user id")
	}

	if err := s.evictOverCapacity(ctx, userID); err != nil {
		return nil, err
	}

	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, err
	}
	csrfSecret, err := internal.NewSecret()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	sess := &Session{
		SessionID:    sid.String(),
		UserID:       userID,
		Role:         role,
		Plan:         plan,
		CSRFSecret:   csrfSecret,
		Origin:       origin,
		Active:       true,
		CreatedAt:    now.Unix(),
		LastActivity: now.Unix(),
		ExpiresAt:    now.Add(s.config.Lifetime).Unix(),
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return nil, err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sess.SessionID), data, s.config.Lifetime)
		pipe.SAdd(ctx, s.ownerKey(userID), sess.SessionID)
		pipe.Expire(ctx, s.ownerKey(userID), s.config.Lifetime)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return sess, nil
}

// Get retrieves a session by identifier. Expired or inactive records are
// cleaned up and reported as not found.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (*Session, error) {
	if _, err := internal.ParseSessionID(sessionID); err != nil {
		return nil, ErrSessionNotFound
	}

	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("corrupt session record: %w", err)
	}
	sess.SessionID = sessionID

	if !sess.Active || sess.Expired(time.Now()) {
		if _, err := s.Revoke(ctx, sessionID); err != nil {
			return nil, err
		}
		return nil, ErrSessionNotFound
	}

	return &sess, nil
}

// Touch updates last-activity without extending the key's TTL: the record
// is rewritten with KEEPTTL, so a session can never outlive its original
// lifetime through activity alone.
func (s *RedisStore) Touch(ctx context.Context, sessionID string) error {
	sess, err := s.Get(ctx, sessionID)
	if err != nil {
		return err
	}

	sess.LastActivity = time.Now().Unix()
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(sessionID), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Revoke deletes the session record and drops it from the owner index.
// Revoking an absent session is not an error; the bool reports whether a
// record actually existed.
func (s *RedisStore) Revoke(ctx context.Context, sessionID string) (bool, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var sess Session
	userID := ""
	if json.Unmarshal(data, &sess) == nil {
		userID = sess.UserID
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionID))
		if userID != "" {
			pipe.SRem(ctx, s.ownerKey(userID), sessionID)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return true, nil
}

// RevokeAll revokes every session in the owner's reverse index except the
// optionally excluded one and returns the number revoked.
//
// ATOMICITY NOTE: this is not fully atomic. It reads the index (SMEMBERS)
// and then deletes; a session created between the two phases is missed and
// will expire naturally or be caught by the next RevokeAll call.
func (s *RedisStore) RevokeAll(ctx context.Context, userID, exceptSessionID string) (int, error) {
	sessionIDs, err := s.redis.SMembers(ctx, s.ownerKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	revoked := 0
	for _, sid := range sessionIDs {
		if sid == exceptSessionID {
			continue
		}
		existed, err := s.Revoke(ctx, sid)
		if err != nil {
			return revoked, err
		}
		if existed {
			revoked++
		}
	}

	return revoked, nil
}

// ListForOwner returns the owner's live sessions, skipping index entries
// whose records have already expired out of the store.
func (s *RedisStore) ListForOwner(ctx context.Context, userID string) ([]*Session, error) {
	sessionIDs, err := s.redis.SMembers(ctx, s.ownerKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []*Session{}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(sessionIDs) == 0 {
		return []*Session{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(sessionIDs))
	for i, sid := range sessionIDs {
		cmds[i] = pipe.Get(ctx, s.key(sid))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	now := time.Now()
	sessions := make([]*Session, 0, len(sessionIDs))
	for i, cmd := range cmds {
		data, cmdErr := cmd.Bytes()
		if cmdErr != nil {
			if errors.Is(cmdErr, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, cmdErr)
		}

		var sess Session
		if err := json.Unmarshal(data, &sess); err != nil {
			continue
		}
		sess.SessionID = sessionIDs[i]
		if !sess.Active || sess.Expired(now) {
			continue
		}
		sessions = append(sessions, &sess)
	}

	return sessions, nil
}

// CountForOwner returns the number of indexed sessions for the owner.
func (s *RedisStore) CountForOwner(ctx context.Context, userID string) (int, error) {
	count, err := s.redis.SCard(ctx, s.ownerKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(count), nil
}

// EstimateActive scans session keys and counts matches. Admin-only O(n)
// operation; must not be used in request hot paths.
func (s *RedisStore) EstimateActive(ctx context.Context) (int, error) {
	pattern := s.config.Prefix + ":sess:*"
	var (
		cursor uint64
		total  int
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		total += len(keys)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return total, nil
}

// Ping returns a point-in-time store availability check and latency.
func (s *RedisStore) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return time.Since(start), nil
}

func (s *RedisStore) evictOverCapacity(ctx context.Context, userID string) error {
	sessions, err := s.ListForOwner(ctx, userID)
	if err != nil {
		return err
	}
	if len(sessions) < s.config.MaxSessionsPerUser {
		return nil
	}

	// Evict oldest first until one slot is free.
	evicted := 0
	for len(sessions) >= s.config.MaxSessionsPerUser {
		oldest := sessions[0]
		for _, sess := range sessions[1:] {
			if sess.CreatedAt < oldest.CreatedAt {
				oldest = sess
			}
		}
		if _, err := s.Revoke(ctx, oldest.SessionID); err != nil {
			return err
		}
		evicted++

		remaining := sessions[:0]
		for _, sess := range sessions {
			if sess.SessionID != oldest.SessionID {
				remaining = append(remaining, sess)
			}
		}
		sessions = remaining
	}

	if evicted > 0 && s.config.OnEvict != nil {
		s.config.OnEvict(userID, evicted)
	}
	return nil
}
