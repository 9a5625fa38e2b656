// Package authcore is the authentication and session-security core of the
// claims platform: password hashing, JWT issuance and verification, session
// lifecycle and the account-lockout state machine.
//
// Engine methods are safe to call from multiple goroutines after
// construction through [Builder.Build].
//
// # Architecture boundaries
//
// authcore is the public surface. It exposes [Engine], [Builder], [Config],
// [AuthError] and value types such as [PublicUser] and [TokenPair].
// Persistence is pluggable through the store.UserStore,
// store.ResetTokenStore and session.Store interfaces; flow orchestration
// lives in internal/flows.
//
// # Account states
//
// A user record is Active, Locked until a deadline, or Deactivated.
// Deactivation dominates a lock, and a lock lapses once the clock reaches
// LockedUntil. Password changes, resets, role changes and deactivation
// destroy every session of the user.
//
// # What this package must NOT do
//
//   - Reveal through its errors whether an email is registered, on login or
//     on password-reset requests.
//   - Put internal failure detail into AuthError messages; the cause is only
//     reachable through errors.Unwrap.
//   - Call the rate limiter. Throttling belongs to the transport layer, see
//     package ratelimit.
package authcore
