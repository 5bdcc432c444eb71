package password

import "errors"

// Errors callers are expected to branch on with errors.Is. The HTTP layer
// maps the policy ones to field-level validation messages; ErrInvalidHash
// always surfaces as an internal fault.
var (
	ErrPasswordTooShort = errors.New("password below minimum length")
	ErrPasswordTooLong  = errors.New("password above maximum length")
	ErrWeakPassword     = errors.New("password matches a trivial pattern")

	// ErrInvalidHash covers stored hashes that cannot be parsed as well as
	// hashes whose declared cost parameters exceed the configured limits.
	ErrInvalidHash = errors.New("malformed or unacceptable password hash")
)
