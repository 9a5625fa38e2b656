// Package password implements salted password hashing, strength scoring,
// reset-token primitives and secure password generation.
//
// # Output format
//
// Hashes are PBKDF2-HMAC-SHA512 digests stored as two hex fields:
//
//	<hex salt>:<hex digest>
//
// With the defaults (16-byte salt, 64-byte key) that is 32 and 128 hex
// characters. The iteration count is not encoded; it comes from [Config].
//
// # Concurrency
//
// Derivation is CPU bound. A [Hasher] admits at most MaxConcurrent
// derivations at once; callers wait for a slot under their context, but a
// derivation that has started always runs to completion.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other authcore package.
//   - Log plaintext passwords, salts or digests.
package password
