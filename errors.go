package authcore

import "errors"

var (
	// ErrUnauthenticated is the single externally-visible rejection for
	// invalid, expired, and revoked credentials. The collapse is
	// deliberate: callers must not learn why a credential failed.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidCredentials is returned on a failed password check during login.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrLockedOut is surfaced distinctly (HTTP 423-equivalent); the
	// accompanying retry-after hint tells legitimate users how long to wait.
	ErrLockedOut = errors.New("locked out")
	// ErrRateLimited is surfaced distinctly with a retry-after hint.
	ErrRateLimited = errors.New("rate limited")
	// ErrCSRFRejected is returned when the double-submit check fails.
	ErrCSRFRejected = errors.New("csrf validation failed")
	// ErrSessionNotFound is returned when a session is absent, expired, or revoked.
	ErrSessionNotFound = errors.New("session not found")
	// ErrUserNotFound is returned when the external user store has no such identity.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountInactive is returned for identities the user store marks inactive.
	ErrAccountInactive = errors.New("account inactive")
	// ErrStoreUnavailable marks shared-store failures. It is never surfaced
	// to end callers: the engine converts it into fail-open or fail-closed
	// behavior per component and logs it.
	ErrStoreUnavailable = errors.New("shared store unavailable")
	// ErrEngineNotReady is returned when the engine is used before it is built.
	ErrEngineNotReady = errors.New("engine not initialized")
)
