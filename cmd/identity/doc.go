// Package identity implements Paydesk's identity foundation.
//
// It contains the user/credential store, email verification codes,
// ULID id generation and the sentinel error kinds the HTTP layer maps
// to status codes.
package identity
