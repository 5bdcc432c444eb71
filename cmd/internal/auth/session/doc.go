// Package session implements Paydesk's session architecture.
//
// It provides a multi-device session model with refresh-token rotation,
// reuse detection, and per-session/per-user revocation.
//
// Access and refresh tokens are HS256 JWTs. Refresh tokens carry the session
// id and a unique jti; the session row stores the jti plus a fingerprint of
// the whole token (HMAC-SHA256 when PAYDESK_TOKEN_HMAC_KEY is set; otherwise
// SHA-256 for dev/back-compat). A refresh token is redeemable exactly once.
//
// Transport (HTTP) integration is intentionally out of scope here.
package session
