package authapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"paydesk/cmd/internal/auth/session"
	"paydesk/cmd/internal/events"
)

// handleRefresh rotates a refresh token: the presented token is consumed and
// a new session with fresh tokens replaces it. Exactly one caller wins a
// concurrent redemption; everyone else trips reuse detection.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	token, fromCookie, ok := h.refreshTokenFromRequest(w, r)
	if !ok {
		return
	}
	if token == "" {
		writeKind(w, KindBadRequest, "Refresh token is required")
		return
	}
	if fromCookie && !h.checkCSRF(r) {
		writeKind(w, KindForbidden, "CSRF token missing or invalid")
		return
	}

	ip := h.clientIP(r)
	ua := r.UserAgent()

	issued, err := h.sessions.RotateRefresh(ctx, now, token, session.DeviceContext{
		UserAgent: ua,
		IP:        ip,
	})
	if err != nil {
		if errors.Is(err, session.ErrRefreshReuseDetected) || errors.Is(err, session.ErrSessionMismatch) {
			// The lineage has been revoked server-side; drop the cookie so
			// the client stops retrying a dead token.
			h.auditRefreshReuse(ctx, ip, ua)
			h.clearRefreshCookie(w)
		}
		kind, known := tokenErrorKind(err)
		if !known {
			h.log.Error("auth.refresh.rotate.fail", zap.Error(err))
		}
		writeKind(w, kind, "")
		return
	}

	h.setRefreshCookie(w, issued.RefreshToken, issued.RefreshExp, now)
	h.auditRefreshSuccess(ctx, issued.SessionID, ip, ua)

	writeSuccess(w, http.StatusOK, "Token refreshed", authResponse{
		AccessToken:     issued.AccessToken,
		AccessExpiresAt: issued.AccessExp.UTC().Format(time.RFC3339),
		RefreshToken:    issued.RefreshToken,
	})
}

// handleLogout is fail-open: whatever happens server-side, the client gets a
// 200 and a cleared cookie. Revocation is attempted best-effort.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	if token := h.refreshTokenLenient(r); token != "" {
		claims, err := h.sessions.RevokeByRefreshToken(ctx, now, token)
		if err != nil {
			h.log.Debug("auth.logout.revoke.fail", zap.Error(err))
		} else {
			h.auditLogout(ctx, claims.UserID, claims.SessionID, h.clientIP(r), r.UserAgent())
		}
	}

	h.clearRefreshCookie(w)
	writeSuccess(w, http.StatusOK, "Logged out", nil)
}

// refreshTokenLenient pulls the refresh token from the cookie or body without
// ever failing the request. Logout must not 400 on garbage input.
func (h *Handler) refreshTokenLenient(r *http.Request) string {
	if c, err := r.Cookie(h.cfg.RefreshCookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if r.Body == nil {
		return ""
	}
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ""
	}
	return req.RefreshToken
}

// handleLogoutAll revokes every session of the authenticated user.
func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	if err := h.sessions.RevokeAll(ctx, now, claims.UserID); err != nil {
		h.log.Error("auth.logout_all.fail", zap.Error(err), zap.String("user_id", claims.UserID))
		writeKind(w, KindInternal, "")
		return
	}

	h.publish(ctx, events.SessionRevokedAll, claims.UserID, nil)
	h.auditLogoutAll(ctx, claims.UserID, h.clientIP(r), r.UserAgent())
	h.clearRefreshCookie(w)
	writeSuccess(w, http.StatusOK, "All sessions revoked", nil)
}
