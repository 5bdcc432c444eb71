package session

import "errors"

var (
	// ErrTokenMalformed is returned when a token is not structurally a JWT.
	ErrTokenMalformed = errors.New("malformed token")

	// ErrTokenSignatureInvalid is returned when a token signature does not verify.
	ErrTokenSignatureInvalid = errors.New("invalid token signature")

	// ErrTokenExpired is returned when a token is past its expiry (with skew).
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidToken is returned when a token verifies but its claims are unusable
	// (wrong issuer, wrong token use, missing sid/sub).
	ErrInvalidToken = errors.New("invalid token")

	// ErrSessionNotFound is returned when a token references no session row.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionMismatch is returned when a token does not match the live session
	// it references (stale jti or fingerprint). Treated as replay.
	ErrSessionMismatch = errors.New("token does not match session")

	// ErrSessionExpired is returned when the session is expired.
	ErrSessionExpired = errors.New("session expired")

	// ErrSessionRevoked is returned when the session has been revoked.
	ErrSessionRevoked = errors.New("session revoked")

	// ErrRefreshReuseDetected is returned when a rotated (replaced) refresh token
	// is presented again. All sessions for the user are revoked.
	ErrRefreshReuseDetected = errors.New("refresh token reuse detected")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
