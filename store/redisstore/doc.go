// Package redisstore implements store.ResetTokenStore on Redis.
//
// Each token is a versioned binary record under its own key, plus
// membership in an index set used to enumerate candidates. Marking a token
// used runs as a WATCH/MULTI optimistic transaction with retry, so exactly
// one concurrent caller wins.
//
// # What this package must NOT do
//
//   - Store raw reset secrets; only the SHA-256 hex digest is persisted.
//   - Decide whether a token matches a presented secret. Matching is the
//     caller's constant-time comparison.
package redisstore
