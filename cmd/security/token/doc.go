// Package token provides server-side fingerprint hashing for refresh tokens.
//
// Refresh tokens are never stored in plaintext; the session row keeps only an
// HMAC-SHA256 (or SHA-256 in dev) hex digest used to bind the presented token
// to its session during rotation.
package token
