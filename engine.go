package authcore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/namesmith/authcore/blacklist"
	"github.com/namesmith/authcore/csrf"
	"github.com/namesmith/authcore/lockout"
	"github.com/namesmith/authcore/rate"
	"github.com/namesmith/authcore/session"
	"github.com/namesmith/authcore/token"
)

// Engine composes the credential codec, session store, blacklist, lockout
// tracker, and rate limiter into the login, refresh, logout, and
// request-authentication flows. It is the only component the host HTTP
// layer calls directly, and is safe for concurrent use after Build.
type Engine struct {
	config   Config
	log      zerolog.Logger
	codec    *token.Codec
	sessions session.Store
	revoked  *blacklist.Blacklist
	lockouts *lockout.Tracker
	limiter  *rate.Limiter
	users    UserStore
	audit    *auditDispatcher
	metrics  *Metrics
}

// RetryAfterError wraps ErrLockedOut or ErrRateLimited with the hint
// callers surface as a Retry-After header.
type RetryAfterError struct {
	Err        error
	RetryAfter time.Duration
}

func (e *RetryAfterError) Error() string {
	return fmt.Sprintf("%v (retry after %s)", e.Err, e.RetryAfter.Round(time.Second))
}

func (e *RetryAfterError) Unwrap() error { return e.Err }

func identityLockKey(identifier string) string {
	return "id:" + strings.ToLower(strings.TrimSpace(identifier))
}

func originLockKey(ip string) string {
	return "ip:" + ip
}

// storeCtx bounds a shared-store round-trip so a slow store cannot stall
// request handling.
func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.StoreTimeout)
}

/*
====================================
LOGIN
====================================
*/

// Login runs the full login flow: lockout checks on the identity key and
// the origin key, credential verification against the external user store,
// failure accounting, session creation, and credential issuance.
func (e *Engine) Login(ctx context.Context, identifier, secret string) (*LoginResult, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	ip := clientIPFromContext(ctx)
	keys := e.lockoutKeys(identifier, ip)

	// Login is refused if EITHER key is hot: the identity key stops
	// credential stuffing against one account, the origin key stops one
	// origin guessing across many accounts.
	for _, key := range keys {
		locked, retryAfter, err := e.isLockedOut(ctx, key)
		if err != nil {
			// Lockout is a counter, not a credential-validity check;
			// a store outage here degrades to no lockout, logged loudly.
			e.log.Warn().Str("component", "lockout").Str("op", "check").Err(err).
				Msg("shared store unreachable, skipping lockout check")
			continue
		}
		if locked {
			e.metrics.Inc(MetricLoginLockedOut)
			e.emitAudit(ctx, auditEventLoginLockedOut, false, "", "", "auth", ErrLockedOut, func() map[string]string {
				return map[string]string{"key": key}
			})
			return nil, &RetryAfterError{Err: ErrLockedOut, RetryAfter: retryAfter}
		}
	}

	identity, err := e.users.FindByCredentials(ctx, identifier, secret)
	if err != nil {
		// A user store outage is not a credential failure; counting it
		// against the lockout keys would lock out legitimate accounts.
		e.log.Error().Str("component", "users").Str("op", "find_by_credentials").Err(err).
			Msg("user store lookup failed")
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", "auth", ErrStoreUnavailable, func() map[string]string {
			return map[string]string{"identifier": identifier}
		})
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if identity == nil {
		e.recordLoginFailure(ctx, keys)
		e.metrics.Inc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", "auth", ErrInvalidCredentials, func() map[string]string {
			return map[string]string{"identifier": identifier}
		})
		return nil, ErrInvalidCredentials
	}
	if !identity.Active {
		e.recordLoginFailure(ctx, keys)
		e.metrics.Inc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, identity.ID, "", "auth", ErrAccountInactive, nil)
		return nil, ErrAccountInactive
	}

	// Verified success clears both counters outright.
	for _, key := range keys {
		if err := e.clearLockout(ctx, key); err != nil {
			e.log.Warn().Str("component", "lockout").Str("op", "clear").Err(err).
				Msg("failed to clear lockout counters")
		}
	}

	origin := session.NewOrigin(ip, userAgentFromContext(ctx))
	sctx, cancel := e.storeCtx(ctx)
	sess, err := e.sessions.Create(sctx, identity.ID, identity.Role, identity.Plan, origin)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("session creation failed: %w", err)
	}
	e.metrics.Inc(MetricSessionCreated)

	accessToken, accessClaims, err := e.codec.Issue(identity.ID, token.ClassAccess, e.config.Token.AccessTTL, token.Extra{
		Role:      identity.Role,
		Plan:      identity.Plan,
		SessionID: sess.SessionID,
	})
	if err != nil {
		return nil, err
	}
	refreshToken, refreshClaims, err := e.codec.Issue(identity.ID, token.ClassRefresh, e.config.Token.RefreshTTL, token.Extra{
		SessionID: sess.SessionID,
	})
	if err != nil {
		return nil, err
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, identity.ID, sess.SessionID, "auth", nil, nil)

	return &LoginResult{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessClaims.ExpiresAt.Time,
		RefreshExpiresAt: refreshClaims.ExpiresAt.Time,
		SessionID:        sess.SessionID,
		CSRFToken:        sess.CSRFSecret,
		Identity:         *identity,
	}, nil
}

func (e *Engine) lockoutKeys(identifier, ip string) []string {
	keys := []string{identityLockKey(identifier)}
	if e.config.Lockout.TrackOrigin && ip != "" {
		keys = append(keys, originLockKey(ip))
	}
	return keys
}

func (e *Engine) recordLoginFailure(ctx context.Context, keys []string) {
	for _, key := range keys {
		sctx, cancel := e.storeCtx(ctx)
		_, err := e.lockouts.RecordFailure(sctx, key)
		cancel()
		if err != nil {
			e.log.Warn().Str("component", "lockout").Str("op", "record").Err(err).
				Msg("failed to record login failure")
		}
	}
}

func (e *Engine) isLockedOut(ctx context.Context, key string) (bool, time.Duration, error) {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.lockouts.IsLockedOut(sctx, key)
}

func (e *Engine) clearLockout(ctx context.Context, key string) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()
	return e.lockouts.Clear(sctx, key)
}

/*
====================================
REQUEST AUTHENTICATION
====================================
*/

// Authenticate verifies an access credential and its revocation status,
// then resolves the identity from the external user store. Every failure
// collapses to ErrUnauthenticated externally; the audit trail keeps the
// real reason.
func (e *Engine) Authenticate(ctx context.Context, accessToken string) (*AuthResult, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.codec.Verify(accessToken, token.ClassAccess)
	if err != nil {
		e.metrics.Inc(MetricAuthFailure)
		e.emitAudit(ctx, auditEventAuthRejected, false, "", "", "api", ErrUnauthenticated, func() map[string]string {
			return map[string]string{"reason": rejectionReason(err)}
		})
		return nil, ErrUnauthenticated
	}

	// Revocation is the one check that must never be skipped on this
	// path, and it fails CLOSED: an unreachable store rejects.
	sctx, cancel := e.storeCtx(ctx)
	revokedJTI, err := e.revoked.IsRevoked(sctx, claims.JTI())
	cancel()
	if err != nil {
		e.log.Warn().Str("component", "blacklist").Err(err).
			Msg("shared store unreachable, failing closed on credential validity")
		e.metrics.Inc(MetricAuthFailure)
		return nil, ErrUnauthenticated
	}
	if revokedJTI {
		e.metrics.Inc(MetricAuthRevoked)
		e.metrics.Inc(MetricAuthFailure)
		e.emitAudit(ctx, auditEventAuthRejected, false, claims.Subject, claims.SessionID, "api", ErrUnauthenticated, func() map[string]string {
			return map[string]string{"reason": "revoked"}
		})
		return nil, ErrUnauthenticated
	}

	identity, err := e.users.FindByID(ctx, claims.Subject)
	if err != nil || identity == nil || !identity.Active {
		e.metrics.Inc(MetricAuthFailure)
		e.emitAudit(ctx, auditEventAuthRejected, false, claims.Subject, claims.SessionID, "api", ErrUnauthenticated, nil)
		return nil, ErrUnauthenticated
	}

	e.metrics.Inc(MetricAuthSuccess)
	return &AuthResult{
		Identity:  *identity,
		SessionID: claims.SessionID,
		JTI:       claims.JTI(),
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

/*
====================================
REFRESH
====================================
*/

// Refresh verifies a refresh credential, checks its revocation status and
// session, and issues a new access credential. The refresh credential
// itself is not rotated.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	claims, err := e.codec.Verify(refreshToken, token.ClassRefresh)
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, "", "", "auth", ErrUnauthenticated, func() map[string]string {
			return map[string]string{"reason": rejectionReason(err)}
		})
		return nil, ErrUnauthenticated
	}
	if claims.SessionID == "" {
		e.metrics.Inc(MetricRefreshFailure)
		return nil, ErrUnauthenticated
	}

	sctx, cancel := e.storeCtx(ctx)
	revokedJTI, err := e.revoked.IsRevoked(sctx, claims.JTI())
	cancel()
	if err != nil {
		e.log.Warn().Str("component", "blacklist").Err(err).
			Msg("shared store unreachable, failing closed on credential validity")
		e.metrics.Inc(MetricRefreshFailure)
		return nil, ErrUnauthenticated
	}
	if revokedJTI {
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.Subject, claims.SessionID, "auth", ErrUnauthenticated, func() map[string]string {
			return map[string]string{"reason": "revoked"}
		})
		return nil, ErrUnauthenticated
	}

	sctx, cancel = e.storeCtx(ctx)
	sess, err := e.sessions.Get(sctx, claims.SessionID)
	cancel()
	if err != nil {
		e.metrics.Inc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, claims.Subject, claims.SessionID, "auth", ErrSessionNotFound, nil)
		return nil, ErrUnauthenticated
	}

	accessToken, accessClaims, err := e.codec.Issue(sess.UserID, token.ClassAccess, e.config.Token.AccessTTL, token.Extra{
		Role:      sess.Role,
		Plan:      sess.Plan,
		SessionID: sess.SessionID,
	})
	if err != nil {
		return nil, err
	}

	sctx, cancel = e.storeCtx(ctx)
	if err := e.sessions.Touch(sctx, sess.SessionID); err != nil {
		e.log.Warn().Str("component", "session").Str("op", "touch").Err(err).
			Msg("failed to update session last-activity")
	}
	cancel()

	e.metrics.Inc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, sess.UserID, sess.SessionID, "auth", nil, nil)

	return &RefreshResult{
		AccessToken:     accessToken,
		AccessExpiresAt: accessClaims.ExpiresAt.Time,
		SessionID:       sess.SessionID,
	}, nil
}

/*
====================================
LOGOUT & SESSION MANAGEMENT
====================================
*/

// Logout resolves the session from the presented refresh credential,
// revokes it, and blacklists both outstanding jtis so neither credential
// is honored again within its remaining lifetime.
func (e *Engine) Logout(ctx context.Context, refreshToken, accessToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	claims, err := e.codec.Verify(refreshToken, token.ClassRefresh)
	if err != nil {
		return ErrUnauthenticated
	}

	sctx, cancel := e.storeCtx(ctx)
	_, err = e.sessions.Revoke(sctx, claims.SessionID)
	cancel()
	if err != nil {
		return fmt.Errorf("session invalidation failed: %w", err)
	}
	e.metrics.Inc(MetricSessionRevoked)

	if err := e.blacklistClaims(ctx, claims); err != nil {
		return err
	}

	// The access credential is blacklisted on a best-effort basis: if the
	// client did not present one, or presented garbage, the session and
	// refresh revocations above already cut off renewal.
	if accessToken != "" {
		if accessClaims, err := e.codec.Verify(accessToken, token.ClassAccess); err == nil {
			if err := e.blacklistClaims(ctx, accessClaims); err != nil {
				return err
			}
		}
	}

	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, auditEventLogoutSession, true, claims.Subject, claims.SessionID, "auth", nil, nil)
	return nil
}

// LogoutAll revokes every session the identity owns except the optionally
// excluded one and returns the number revoked. Outstanding access
// credentials for other sessions expire naturally within the access TTL.
func (e *Engine) LogoutAll(ctx context.Context, userID, exceptSessionID string) (int, error) {
	if e == nil {
		return 0, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	count, err := e.sessions.RevokeAll(sctx, userID, exceptSessionID)
	cancel()
	if err != nil {
		return count, fmt.Errorf("session invalidation failed: %w", err)
	}

	e.metrics.Inc(MetricLogoutAll)
	e.emitAudit(ctx, auditEventLogoutAll, true, userID, "", "auth", nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprint(count)}
	})
	return count, nil
}

// ListSessions returns the identity's active sessions, redacted for
// external viewing.
func (e *Engine) ListSessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	sessions, err := e.sessions.ListForOwner(sctx, userID)
	if err != nil {
		return nil, err
	}

	infos := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		infos = append(infos, session.InfoOf(sess))
	}
	return infos, nil
}

// RevokeSession revokes one session after verifying it belongs to userID.
// Revoking an already-gone session is not an error.
func (e *Engine) RevokeSession(ctx context.Context, userID, sessionID string) (bool, error) {
	if e == nil {
		return false, ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	sess, err := e.sessions.Get(sctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}
	if sess.UserID != userID {
		return false, ErrSessionNotFound
	}

	existed, err := e.sessions.Revoke(sctx, sessionID)
	if err != nil {
		return existed, err
	}
	if existed {
		e.metrics.Inc(MetricSessionRevoked)
		e.emitAudit(ctx, auditEventSessionRevoked, true, userID, sessionID, "auth", nil, nil)
	}
	return existed, nil
}

func (e *Engine) blacklistClaims(ctx context.Context, claims *token.Claims) error {
	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	if err := e.revoked.Revoke(sctx, claims.JTI(), claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("credential revocation failed: %w", err)
	}
	return nil
}

/*
====================================
CSRF & RATE LIMITING SUPPORT
====================================
*/

// ValidateCSRF loads the session and runs the double-submit check against
// its embedded secret.
func (e *Engine) ValidateCSRF(ctx context.Context, sessionID, headerValue, cookieValue string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	sctx, cancel := e.storeCtx(ctx)
	sess, err := e.sessions.Get(sctx, sessionID)
	cancel()
	if err != nil {
		return ErrUnauthenticated
	}

	if !csrf.Validate(headerValue, cookieValue, sess.CSRFSecret) {
		e.metrics.Inc(MetricCSRFRejected)
		e.emitAudit(ctx, auditEventCSRFRejected, false, sess.UserID, sessionID, "api", ErrCSRFRejected, nil)
		return ErrCSRFRejected
	}
	return nil
}

// CheckRate runs the tiered limiter for the caller. With rate limiting
// disabled every call is admitted.
func (e *Engine) CheckRate(ctx context.Context, callerKey string, tier rate.Tier, endpointClass string) rate.Result {
	if e == nil || e.limiter == nil {
		return rate.Result{Allowed: true, Remaining: -1}
	}

	sctx, cancel := e.storeCtx(ctx)
	defer cancel()

	res := e.limiter.Check(sctx, callerKey, tier, endpointClass)
	if res.Degraded {
		e.metrics.Inc(MetricRateDegraded)
	}
	if !res.Allowed {
		e.metrics.Inc(MetricRateLimited)
		e.emitAudit(ctx, auditEventRateLimited, false, "", "", endpointClass, ErrRateLimited, func() map[string]string {
			return map[string]string{"tier": string(tier)}
		})
	}
	return res
}

/*
====================================
INTROSPECTION & SHUTDOWN
====================================
*/

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{}
	}
	return e.metrics.Snapshot()
}

// AuditDropped reports how many audit events were dropped by the
// dispatcher's full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// rejectionReason maps codec errors onto audit vocabulary without leaking
// anything externally (callers only ever see ErrUnauthenticated).
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, token.ErrExpired):
		return "expired"
	default:
		return "invalid"
	}
}
