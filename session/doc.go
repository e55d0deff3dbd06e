// Package session provides server-side session persistence with a
// per-user reverse index, capacity enforcement, and a process-local
// fallback for shared-store outages.
//
// # Architecture boundaries
//
// This package owns the [Store] implementations and the [Session] model.
// It does NOT interpret credentials, evaluate CSRF secrets, or enforce
// authentication policy; those responsibilities belong to the Engine and
// the csrf package.
//
// # Degraded mode
//
// [Resilient] selects between the Redis-backed store and the in-process
// [Memory] store at call time: the fallback is engaged only when the shared
// store is unreachable, and every degradation is logged. Sessions created
// in degraded mode are scoped to a single replica and do not survive a
// process restart.
package session
