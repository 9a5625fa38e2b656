// Package flows contains the orchestration logic behind the Engine's
// multi-step operations: login, token refresh, password change and reset
// completion.
//
// Each flow function (RunLogin, RunRefresh, ...) accepts a typed dependency
// struct of closures and returns results without side effects beyond those
// dependencies. This keeps the Engine thin and lets the flows be tested
// with plain fakes.
//
// # Locking discipline
//
// Password derivation always runs before LockUser is taken. Under the lock
// a flow re-reads the user record and applies its read-modify-write, so
// concurrent logins cannot lose a failure increment or skip a lockout.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authcore (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency closures.
package flows
