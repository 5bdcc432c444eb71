package authapi

import (
	"fmt"
	"net/http"
	"testing"

	"paydesk/cmd/internal/auth/session"
)

func TestErrorKindStatus(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindBadRequest, http.StatusBadRequest},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindInvalidCredentials, http.StatusUnauthorized},
		{KindInvalidTokenFormat, http.StatusUnauthorized},
		{KindInvalidTokenSignature, http.StatusUnauthorized},
		{KindExpiredToken, http.StatusUnauthorized},
		{KindTokenSessionMismatch, http.StatusUnauthorized},
		{KindSessionNotFound, http.StatusUnauthorized},
		{KindForbidden, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindInternal, http.StatusInternalServerError},
	}
	for _, tc := range tests {
		if got := tc.kind.Status(); got != tc.want {
			t.Fatalf("%s: status=%d, want %d", tc.kind.Code(), got, tc.want)
		}
	}
}

func TestErrorKindCodesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for k := KindValidation; k <= KindInternal; k++ {
		code := k.Code()
		if code == "" {
			t.Fatalf("kind %d has empty code", k)
		}
		if seen[code] {
			t.Fatalf("duplicate code %q", code)
		}
		seen[code] = true
	}
}

func TestTokenErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{session.ErrTokenMalformed, KindInvalidTokenFormat},
		{session.ErrInvalidToken, KindInvalidTokenFormat},
		{session.ErrTokenSignatureInvalid, KindInvalidTokenSignature},
		{session.ErrTokenExpired, KindExpiredToken},
		{session.ErrSessionMismatch, KindTokenSessionMismatch},
		{session.ErrRefreshReuseDetected, KindTokenSessionMismatch},
		{session.ErrSessionNotFound, KindSessionNotFound},
		{session.ErrSessionRevoked, KindSessionNotFound},
		{session.ErrSessionExpired, KindSessionNotFound},
	}
	for _, tc := range tests {
		got, known := tokenErrorKind(tc.err)
		if !known {
			t.Fatalf("%v: expected a known kind", tc.err)
		}
		if got != tc.want {
			t.Fatalf("%v: kind=%s, want %s", tc.err, got.Code(), tc.want.Code())
		}
	}

	if _, known := tokenErrorKind(fmt.Errorf("boom")); known {
		t.Fatalf("arbitrary error must not map to a token kind")
	}
}
