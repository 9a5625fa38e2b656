// Package store defines the persistence contracts for user records and
// password-reset tokens, together with the shared model types used across
// authcore.
//
// # Architecture boundaries
//
// Implementations own durability and uniqueness only. Lockout, lifecycle and
// token rules live in the Engine; a store never decides whether a login is
// allowed.
//
// The in-memory implementations in this package are safe for concurrent use
// and return defensive copies, so callers can mutate returned records freely
// and persist them with UpdateUser.
package store
