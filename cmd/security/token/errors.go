package token

import "errors"

// Key-loading errors. Both mean the refresh-token fingerprint key is
// unusable; they fail startup, never an individual request.
var (
	ErrHMACKeyMissing  = errors.New("fingerprint HMAC key not configured")
	ErrHMACKeyTooShort = errors.New("fingerprint HMAC key below minimum length")
)
