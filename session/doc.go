// Package session manages server-side login sessions: creation with a
// per-user cap, validation with destroy-on-expiry, refresh-token binding,
// and a periodic expiry sweep.
//
// # Lifecycle
//
// A session moves Active -> Expired -> removed, or leaves Active early by
// explicit destruction or by eviction when its user exceeds the session
// cap. Nothing else changes a session's state.
//
// # Binary encoding
//
// [RedisStore] persists sessions in a compact, versioned binary format
// (see [Encode]). Refresh tokens are never stored; a session keeps the
// SHA-256 of its current refresh token and is found through an index keyed
// by that hash.
//
// # Architecture boundaries
//
// This package owns the [Store] implementations and the [Manager]. It does
// NOT verify JWTs or decide whether a user may log in; those belong to the
// Engine.
//
// # What this package must NOT do
//
//   - Import authcore, jwt or password (no upward imports).
//   - Store plaintext refresh tokens.
package session
