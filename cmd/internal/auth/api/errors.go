// Package authapi wires Paydesk's HTTP auth endpoints to the identity and
// session services.
package authapi

import (
	"errors"
	"net/http"

	"paydesk/cmd/identity"
	"paydesk/cmd/internal/auth/session"
)

// ErrorKind is the closed set of API failure categories. Every handler error
// funnels through one of these; the kind alone decides the HTTP status and
// the stable machine-readable code in the response envelope.
type ErrorKind int

const (
	KindValidation ErrorKind = iota
	KindBadRequest
	KindUnauthorized
	KindInvalidCredentials
	KindInvalidTokenFormat
	KindInvalidTokenSignature
	KindExpiredToken
	KindTokenSessionMismatch
	KindSessionNotFound
	KindForbidden
	KindNotFound
	KindConflict
	KindRateLimited
	KindInternal
)

// Status returns the HTTP status for the kind. Unknown kinds are a server
// bug and map to 500 so nothing internal leaks with a misleading status.
func (k ErrorKind) Status() int {
	switch k {
	case KindValidation, KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized, KindInvalidCredentials,
		KindInvalidTokenFormat, KindInvalidTokenSignature,
		KindExpiredToken, KindTokenSessionMismatch, KindSessionNotFound:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Code returns the stable machine-readable code for the kind.
func (k ErrorKind) Code() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindBadRequest:
		return "bad_request"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindInvalidTokenFormat:
		return "invalid_token_format"
	case KindInvalidTokenSignature:
		return "invalid_token_signature"
	case KindExpiredToken:
		return "expired_token"
	case KindTokenSessionMismatch:
		return "token_session_mismatch"
	case KindSessionNotFound:
		return "session_not_found"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "server_error"
	}
}

// defaultMessage is used when a handler has nothing more specific to say.
func (k ErrorKind) defaultMessage() string {
	switch k {
	case KindValidation:
		return "Validation failed"
	case KindBadRequest:
		return "Bad request"
	case KindUnauthorized:
		return "Authentication required"
	case KindInvalidCredentials:
		return "Invalid credentials"
	case KindInvalidTokenFormat:
		return "Invalid token format"
	case KindInvalidTokenSignature:
		return "Invalid token signature"
	case KindExpiredToken:
		return "Token has expired"
	case KindTokenSessionMismatch:
		return "Token does not match session"
	case KindSessionNotFound:
		return "Session not found"
	case KindForbidden:
		return "Forbidden"
	case KindNotFound:
		return "Not found"
	case KindConflict:
		return "Already exists"
	case KindRateLimited:
		return "Too many attempts"
	default:
		return "Internal server error"
	}
}

// tokenErrorKind narrows a session-layer error to an API kind. Everything a
// token or session can do wrong surfaces as 401, but the code stays precise.
func tokenErrorKind(err error) (ErrorKind, bool) {
	switch {
	case errors.Is(err, session.ErrTokenMalformed), errors.Is(err, session.ErrInvalidToken):
		return KindInvalidTokenFormat, true
	case errors.Is(err, session.ErrTokenSignatureInvalid):
		return KindInvalidTokenSignature, true
	case errors.Is(err, session.ErrTokenExpired):
		return KindExpiredToken, true
	case errors.Is(err, session.ErrSessionMismatch), errors.Is(err, session.ErrRefreshReuseDetected):
		return KindTokenSessionMismatch, true
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrSessionRevoked),
		errors.Is(err, session.ErrSessionExpired):
		return KindSessionNotFound, true
	default:
		return KindInternal, false
	}
}

// identityErrorKind narrows an identity-layer error to an API kind.
func identityErrorKind(err error) (ErrorKind, bool) {
	switch {
	case identity.IsConflict(err):
		return KindConflict, true
	case identity.IsCodeInvalid(err):
		return KindValidation, true
	case identity.IsInvalidInput(err):
		return KindBadRequest, true
	case identity.IsNotFound(err):
		return KindNotFound, true
	default:
		return KindInternal, false
	}
}
