package authapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func cookieByName(t *testing.T, res *http.Response, name string) *http.Cookie {
	t.Helper()
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("cookie %q not set", name)
	return nil
}

func TestSetRefreshCookie_MaxAgeTracksTTL(t *testing.T) {
	h := &Handler{cfg: Config{
		RefreshCookieName: "refreshToken",
		CookiePath:        "/",
		CookieSecure:      true,
	}}

	now := time.Now().UTC()

	tests := []struct {
		name string
		ttl  time.Duration
		want int
	}{
		{"base", 7 * 24 * time.Hour, 604800},
		{"remember_me", 30 * 24 * time.Hour, 2592000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.setRefreshCookie(rr, "tok-123", now.Add(tc.ttl), now)

			c := cookieByName(t, rr.Result(), "refreshToken")
			if c.MaxAge != tc.want {
				t.Fatalf("MaxAge=%d, want %d", c.MaxAge, tc.want)
			}
			if !c.HttpOnly {
				t.Fatalf("refresh cookie must be httpOnly")
			}
			if !c.Secure {
				t.Fatalf("refresh cookie must be secure")
			}
			if c.SameSite != http.SameSiteStrictMode {
				t.Fatalf("SameSite=%v, want Strict", c.SameSite)
			}
		})
	}
}

func TestClearRefreshCookie(t *testing.T) {
	h := &Handler{cfg: Config{
		RefreshCookieName: "refreshToken",
		CookiePath:        "/",
	}}

	rr := httptest.NewRecorder()
	h.clearRefreshCookie(rr)

	c := cookieByName(t, rr.Result(), "refreshToken")
	if c.Value != "" {
		t.Fatalf("cleared cookie must be empty, got %q", c.Value)
	}
	if c.MaxAge != -1 {
		t.Fatalf("MaxAge=%d, want -1", c.MaxAge)
	}
}

func TestCheckCSRF(t *testing.T) {
	h := &Handler{cfg: Config{
		CSRFCookieName: "csrfToken",
		CSRFHeaderName: "X-CSRF-Token",
	}}

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "csrfToken", Value: "abc"})
	req.Header.Set("X-CSRF-Token", "abc")
	if !h.checkCSRF(req) {
		t.Fatalf("matching double-submit must pass")
	}

	req.Header.Set("X-CSRF-Token", "def")
	if h.checkCSRF(req) {
		t.Fatalf("mismatched double-submit must fail")
	}

	req.Header.Del("X-CSRF-Token")
	if h.checkCSRF(req) {
		t.Fatalf("missing header must fail")
	}
}

func TestCheckCSRF_DisabledByDefault(t *testing.T) {
	h := &Handler{cfg: Config{}}
	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	if !h.checkCSRF(req) {
		t.Fatalf("csrf must be a no-op when no cookie name is configured")
	}
}

func TestRefreshTokenFromRequest_PrefersCookie(t *testing.T) {
	h := &Handler{cfg: Config{RefreshCookieName: "refreshToken"}}

	req := httptest.NewRequest(http.MethodPost, "/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: "tok-cookie"})

	token, fromCookie, ok := h.refreshTokenFromRequest(httptest.NewRecorder(), req)
	if !ok || !fromCookie || token != "tok-cookie" {
		t.Fatalf("got token=%q fromCookie=%v ok=%v", token, fromCookie, ok)
	}
}
