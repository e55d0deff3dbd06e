// Package middleware exposes net/http adapters for the engine: the
// authentication gate, CSRF enforcement, tiered rate limiting, a
// process-local burst guard, and the credential cookie helpers.
//
// # Recommended chain
//
// Outermost to innermost:
//
//	ClientContext -> BurstGuard -> RateLimit -> Guard -> CSRF -> handler
//
// [ClientContext] must run first so engine flows see the caller's IP and
// User-Agent. [Guard] must run before [CSRF] and before any [RateLimit]
// that should key by identity rather than IP.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; all decisions are delegated to
// the engine.
//
// # What this package must NOT do
//
//   - Parse or create credentials directly (delegates to Engine).
//   - Access the shared store (Engine handles I/O). BurstGuard is the one
//     stateful piece here and its state is deliberately process-local.
package middleware
