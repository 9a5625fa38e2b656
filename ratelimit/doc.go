// Package ratelimit provides sliding-window attempt limiters with a
// temporary block once the budget is spent.
//
// # Window semantics
//
// Each key keeps the timestamps of its admitted attempts. Attempts older
// than Window are discarded. When MaxAttempts attempts already sit inside
// the window, the next attempt is refused and the key is blocked for
// BlockDuration; while blocked every attempt is refused and the window
// starts empty once the block lifts.
//
// The limiters are consumed by the transport layer in front of the Engine
// (for example keyed by client IP or by email); the Engine itself does not
// call them.
package ratelimit
