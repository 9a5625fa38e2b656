// Package jwt issues and verifies HS256 access and refresh tokens.
//
// # Signature encoding
//
// Tokens carry a double-encoded signature: the HMAC-SHA256 digest is first
// rendered as standard base64 text, and that text is then base64url-encoded
// as the third segment. This is not the RFC 7515 form, so tokens only
// verify with this package. The encoding is kept for wire compatibility
// with tokens already in circulation; do not "fix" it without a migration.
//
// The signing method behind it is private and is never registered with
// golang-jwt, so other HS256 users in the same process are unaffected.
//
// # Introspection
//
// [DecodeToken], [GetTokenExpiration] and [Manager.IsTokenExpired] read claims
// without verifying them and must not drive authorization decisions.
package jwt
