// Package token issues and verifies signed, expiring claim sets with strict
// validation semantics suitable for low-latency authentication paths.
//
// Verification is pure: all timestamps live in the claims themselves, so no
// store round-trip is needed. Revocation is out of scope: callers consult
// the blacklist with the returned jti, and may skip that round-trip only
// on low-stakes checks.
package token
