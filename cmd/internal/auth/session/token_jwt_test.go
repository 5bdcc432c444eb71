package session

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestManager(t *testing.T) TokenManager {
	t.Helper()
	cfg := DefaultConfig()
	cfg.JWTSecret = testSecret

	mgr, err := NewHS256Manager(cfg)
	if err != nil {
		t.Fatalf("NewHS256Manager: %v", err)
	}
	return mgr
}

func TestHS256_IssueAndVerifyAccess(t *testing.T) {
	mgr := newTestManager(t)
	now := time.Now().UTC()

	tok, exp, err := mgr.IssueAccess("01HUSER", "01HSESSION", "member", "org-1", now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if !exp.After(now) {
		t.Fatalf("expected exp after now")
	}

	claims, err := mgr.VerifyAccess(tok, now.Add(1*time.Second))
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.UserID != "01HUSER" || claims.SessionID != "01HSESSION" {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	if claims.Role != "member" || claims.OrgID != "org-1" {
		t.Fatalf("authorization claims mismatch: %+v", claims)
	}
	if claims.JTI == "" {
		t.Fatalf("missing jti")
	}
}

func TestHS256_IssueAndVerifyRefresh(t *testing.T) {
	mgr := newTestManager(t)
	now := time.Now().UTC()

	tok, jti, exp, err := mgr.IssueRefresh("01HUSER", "01HSESSION", true, 30*24*time.Hour, now)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if jti == "" {
		t.Fatalf("missing jti")
	}
	if want := now.Add(30 * 24 * time.Hour); !exp.Equal(want) {
		t.Fatalf("exp mismatch: got %v want %v", exp, want)
	}

	claims, err := mgr.VerifyRefresh(tok, now.Add(1*time.Second))
	if err != nil {
		t.Fatalf("VerifyRefresh: %v", err)
	}
	if claims.JTI != jti {
		t.Fatalf("jti mismatch: got %q want %q", claims.JTI, jti)
	}
	if !claims.RememberMe {
		t.Fatalf("remember_me claim lost")
	}
}

func TestHS256_TokenUseSeparation(t *testing.T) {
	mgr := newTestManager(t)
	now := time.Now().UTC()

	access, _, err := mgr.IssueAccess("u", "s", "", "", now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	refresh, _, _, err := mgr.IssueRefresh("u", "s", false, time.Hour, now)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}

	if _, err := mgr.VerifyRefresh(access, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access token accepted as refresh: %v", err)
	}
	if _, err := mgr.VerifyAccess(refresh, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}
}

func TestHS256_VerifyErrorKinds(t *testing.T) {
	mgr := newTestManager(t)
	now := time.Now().UTC()

	// Malformed: not a JWT at all.
	if _, err := mgr.VerifyRefresh("not-a-token", now); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}

	// Bad signature: signed with a different secret.
	otherCfg := DefaultConfig()
	otherCfg.JWTSecret = strings.Repeat("x", 32)
	other, err := NewHS256Manager(otherCfg)
	if err != nil {
		t.Fatalf("NewHS256Manager: %v", err)
	}
	forged, _, _, err := other.IssueRefresh("u", "s", false, time.Hour, now)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, err := mgr.VerifyRefresh(forged, now); !errors.Is(err, ErrTokenSignatureInvalid) {
		t.Fatalf("expected ErrTokenSignatureInvalid, got %v", err)
	}

	// Expired: verify far past expiry (beyond clock skew).
	expired, _, _, err := mgr.IssueRefresh("u", "s", false, time.Minute, now)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}
	if _, err := mgr.VerifyRefresh(expired, now.Add(2*time.Hour)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestHS256_ClockSkewTolerated(t *testing.T) {
	mgr := newTestManager(t)
	now := time.Now().UTC()

	tok, _, _, err := mgr.IssueRefresh("u", "s", false, time.Minute, now)
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}

	// Just past expiry but within the 30s default skew.
	if _, err := mgr.VerifyRefresh(tok, now.Add(time.Minute+10*time.Second)); err != nil {
		t.Fatalf("expected skew tolerance, got %v", err)
	}
}

func TestNewHS256Manager_RejectsShortSecret(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWTSecret = "too-short"
	if _, err := NewHS256Manager(cfg); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}
}
