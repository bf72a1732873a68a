// Package auth provides authentication and authorisation for Latch Core.
//
// It implements a 2-tier role model (operator → admin) with:
//   - Argon2id operator key hashing (OWASP 2025 recommendation)
//   - Short-lived HS256 JWT access tokens, validated by signature only
//   - Static role checks (compile-time, no database lookup)
//
// Operators are declared in configuration, not a database: each entry
// carries a subject, a role, and the Argon2id PHC hash of its key. The
// token endpoint verifies a presented key against the hash and mints an
// access token. There are no refresh tokens; clients re-authenticate
// with their key when the token expires.
package auth
