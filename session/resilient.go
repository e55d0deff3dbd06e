package session

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Resilient wraps a shared-store-backed Store with a process-local Memory
// fallback. When the shared store is unreachable, Create and Get degrade to
// the fallback so authenticated users keep working on this one replica.
// This is a reduced-guarantee mode: fallback sessions do not survive
// restarts and are invisible to other replicas, so every degradation is
// logged at warning level, never silently absorbed.
type Resilient struct {
	primary  Store
	fallback *Memory
	log      zerolog.Logger

	// OnDegrade, when set, is called each time an operation is served by
	// the process-local fallback. Set before first use; must not block.
	OnDegrade func(op string)
}

// NewResilient wires the fallback around the primary store.
func NewResilient(primary Store, fallback *Memory, log zerolog.Logger) *Resilient {
	return &Resilient{primary: primary, fallback: fallback, log: log}
}

// Create tries the shared store first and degrades to the local fallback
// only on store unavailability. Logical errors pass through unchanged.
func (r *Resilient) Create(ctx context.Context, userID, role, plan string, origin Origin) (*Session, error) {
	sess, err := r.primary.Create(ctx, userID, role, plan, origin)
	if err == nil || !errors.Is(err, ErrStoreUnavailable) {
		return sess, err
	}

	r.log.Warn().
		Str("component", "session").
		Str("op", "create").
		Err(err).
		Msg("shared store unreachable, degrading to process-local session store")
	r.degraded("create")

	return r.fallback.Create(ctx, userID, role, plan, origin)
}

// Get consults the shared store, then the fallback when the store is
// unreachable. A plain not-found from the primary still checks the
// fallback so sessions created while degraded remain usable.
func (r *Resilient) Get(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := r.primary.Get(ctx, sessionID)
	if err == nil {
		return sess, nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		r.log.Warn().
			Str("component", "session").
			Str("op", "get").
			Err(err).
			Msg("shared store unreachable, reading process-local session store")
		r.degraded("get")
		return r.fallback.Get(ctx, sessionID)
	}
	if errors.Is(err, ErrSessionNotFound) {
		if local, localErr := r.fallback.Get(ctx, sessionID); localErr == nil {
			r.degraded("get")
			return local, nil
		}
	}
	return nil, err
}

// Touch passes through to whichever store holds the session.
func (r *Resilient) Touch(ctx context.Context, sessionID string) error {
	err := r.primary.Touch(ctx, sessionID)
	if err == nil || !errors.Is(err, ErrStoreUnavailable) && !errors.Is(err, ErrSessionNotFound) {
		return err
	}
	if fallbackErr := r.fallback.Touch(ctx, sessionID); fallbackErr == nil {
		r.degraded("touch")
		return nil
	}
	return err
}

func (r *Resilient) degraded(op string) {
	if r.OnDegrade != nil {
		r.OnDegrade(op)
	}
}

// Revoke removes the session from both stores so a fallback copy cannot
// resurrect a revoked session.
func (r *Resilient) Revoke(ctx context.Context, sessionID string) (bool, error) {
	localExisted, _ := r.fallback.Revoke(ctx, sessionID)
	existed, err := r.primary.Revoke(ctx, sessionID)
	if err != nil {
		if localExisted {
			return true, err
		}
		return false, err
	}
	return existed || localExisted, nil
}

// RevokeAll revokes on both stores and returns the larger count.
func (r *Resilient) RevokeAll(ctx context.Context, userID, exceptSessionID string) (int, error) {
	localCount, _ := r.fallback.RevokeAll(ctx, userID, exceptSessionID)
	count, err := r.primary.RevokeAll(ctx, userID, exceptSessionID)
	if count < localCount {
		count = localCount
	}
	return count, err
}

// ListForOwner lists from the primary, degrading to the fallback when the
// shared store is unreachable.
func (r *Resilient) ListForOwner(ctx context.Context, userID string) ([]*Session, error) {
	sessions, err := r.primary.ListForOwner(ctx, userID)
	if err != nil && errors.Is(err, ErrStoreUnavailable) {
		r.degraded("list")
		return r.fallback.ListForOwner(ctx, userID)
	}
	return sessions, err
}

// CountForOwner counts on the primary, degrading like ListForOwner.
func (r *Resilient) CountForOwner(ctx context.Context, userID string) (int, error) {
	count, err := r.primary.CountForOwner(ctx, userID)
	if err != nil && errors.Is(err, ErrStoreUnavailable) {
		r.degraded("count")
		return r.fallback.CountForOwner(ctx, userID)
	}
	return count, err
}
