// Package authcore provides the security core for an authenticated web
// service: signed access and refresh credentials, Redis-backed sessions
// with a process-local fallback, credential revocation, login lockout,
// CSRF double-submit validation, and tiered rate limiting.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder],
// [Config], and value types (LoginResult, AuthResult, MetricsSnapshot,
// SessionInfo). Domain building blocks live in the token, session,
// blacklist, lockout, rate, and csrf sub-packages and can be used on
// their own; the engine only composes them.
//
// # What this package must NOT do
//
//   - Store or verify end-user secrets. Credential verification is
//     delegated to the host through [UserStore]; the password sub-package
//     is offered as one implementation aid.
//   - Leak failure detail on the request-authentication path. External
//     callers see [ErrUnauthenticated]; the audit trail keeps the reason.
//   - Expose Redis clients or key layouts in its public API.
//
// # Failure posture
//
// Checks that decide whether a presented credential is still valid fail
// closed: an unreachable shared store rejects the request. Checks that
// only throttle (rate limiting, lockout counters) fail open and are
// logged, so a store outage degrades protection rather than availability.
package authcore
