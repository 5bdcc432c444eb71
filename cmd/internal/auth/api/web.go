package authapi

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"time"
)

// setRefreshCookie stores the refresh token in an httpOnly cookie scoped to
// the auth paths. MaxAge tracks the refresh TTL so browsers drop the cookie
// together with the token: 604800 seconds normally, 2592000 with rememberMe.
func (h *Handler) setRefreshCookie(w http.ResponseWriter, token string, expiresAt time.Time, now time.Time) {
	maxAge := int(expiresAt.Sub(now).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.RefreshCookieName,
		Value:    token,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		MaxAge:   maxAge,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	h.issueCSRFCookie(w, maxAge)
}

// clearRefreshCookie expires the refresh cookie. Used on logout and account
// deletion regardless of whether revocation succeeded server-side.
func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.RefreshCookieName,
		Value:    "",
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
	if h.cfg.CSRFCookieName != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     h.cfg.CSRFCookieName,
			Value:    "",
			Path:     h.cfg.CookiePath,
			Domain:   h.cfg.CookieDomain,
			MaxAge:   -1,
			Secure:   h.cfg.CookieSecure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// issueCSRFCookie mints a readable (not httpOnly) token for the double-submit
// check. Disabled when no CSRF cookie name is configured.
func (h *Handler) issueCSRFCookie(w http.ResponseWriter, maxAge int) {
	if h.cfg.CSRFCookieName == "" {
		return
	}
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CSRFCookieName,
		Value:    hex.EncodeToString(buf),
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		MaxAge:   maxAge,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})
}

// checkCSRF enforces the double-submit token on cookie-authenticated refresh
// requests. Requests that sent the refresh token in the body are exempt; a
// cross-site page cannot read the cookie to copy it into a body.
func (h *Handler) checkCSRF(r *http.Request) bool {
	if h.cfg.CSRFCookieName == "" {
		return true
	}
	c, err := r.Cookie(h.cfg.CSRFCookieName)
	if err != nil || c.Value == "" {
		return false
	}
	header := r.Header.Get(h.cfg.CSRFHeaderName)
	if header == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.Value), []byte(header)) == 1
}

// refreshTokenFromRequest prefers the httpOnly cookie and falls back to the
// JSON body for non-browser clients. fromCookie tells the caller whether the
// CSRF check applies.
func (h *Handler) refreshTokenFromRequest(w http.ResponseWriter, r *http.Request) (token string, fromCookie bool, ok bool) {
	if c, err := r.Cookie(h.cfg.RefreshCookieName); err == nil && c.Value != "" {
		return c.Value, true, true
	}
	if r.Body == nil || r.ContentLength == 0 {
		return "", false, true
	}
	var req refreshRequest
	if !decodeJSON(w, r, &req) {
		return "", false, false
	}
	return req.RefreshToken, false, true
}
