package authapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"paydesk/cmd/identity"
	"paydesk/cmd/internal/auth/session"
	"paydesk/cmd/internal/events"
	"paydesk/cmd/security/password"
)

// Handler serves the /auth HTTP surface.
type Handler struct {
	cfg       Config
	log       *zap.Logger
	pool      *pgxpool.Pool
	users     identity.Store
	sessions  *session.Service
	passwords password.Config

	email    EmailSender
	idTokens IdentityTokenVerifier
	events   events.Producer

	now func() time.Time

	// dummyHash absorbs a full argon2id verification when the account does
	// not exist, keeping login timing independent of account existence.
	dummyHash string
}

// HandlerOption customizes a Handler.
type HandlerOption func(*Handler)

func WithEmailSender(s EmailSender) HandlerOption {
	return func(h *Handler) { h.email = s }
}

func WithIdentityTokenVerifier(v IdentityTokenVerifier) HandlerOption {
	return func(h *Handler) { h.idTokens = v }
}

func WithEventProducer(p events.Producer) HandlerOption {
	return func(h *Handler) { h.events = p }
}

func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.now = now }
}

// New constructs the auth handler. The pool is used for audit writes and
// login throttling; users, sessions and passwords carry the actual auth work.
func New(cfg Config, log *zap.Logger, pool *pgxpool.Pool, users identity.Store, sessions *session.Service, passwords password.Config, opts ...HandlerOption) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{
		cfg:       cfg,
		log:       log,
		pool:      pool,
		users:     users,
		sessions:  sessions,
		passwords: passwords,
		email:     NoopEmailSender{},
		idTokens:  NoopIdentityTokenVerifier{},
		events:    events.NoopProducer{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if dummy, err := h.passwords.Hash("placeholder-Decoy-17"); err == nil {
		h.dummyHash = dummy
	}
	return h
}

// Routes returns the router for the auth surface, ready to mount.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(h.limitBody)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.handleRegister)
		r.Post("/verify-email", h.handleVerifyEmail)
		r.Post("/login", h.handleLogin)
		r.Post("/oauth", h.handleOAuth)
		r.Post("/refresh", h.handleRefresh)
		r.Post("/logout", h.handleLogout)
		r.Post("/logout-all", h.handleLogoutAll)
		r.Post("/change-password", h.handleChangePassword)
		r.Delete("/account", h.handleDeleteAccount)
	})
	r.Get("/me", h.handleMe)

	return r
}

func (h *Handler) limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// ---- request helpers ----

// requireAuth authenticates the request via the Authorization bearer token
// and the server-side session check. A false return means the response has
// already been written.
func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) (session.AccessClaims, bool) {
	token := bearerToken(r)
	if token == "" {
		writeKind(w, KindUnauthorized, "Missing bearer token")
		return session.AccessClaims{}, false
	}
	now := h.now()
	claims, err := h.sessions.ValidateAccessToken(r.Context(), token, now)
	if err != nil {
		kind, known := tokenErrorKind(err)
		if !known {
			h.log.Error("auth.access.validate.fail", zap.Error(err))
		}
		writeKind(w, kind, "")
		return session.AccessClaims{}, false
	}
	// Stamp last_used_at; activity tracking must never fail the request.
	if err := h.sessions.TouchSession(r.Context(), now, claims.SessionID); err != nil {
		h.log.Debug("auth.session.touch.fail", zap.Error(err), zap.String("session_id", claims.SessionID))
	}
	return claims, true
}

func bearerToken(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if v == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(v) <= len(prefix) || !strings.EqualFold(v[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(v[len(prefix):])
}

// clientIP resolves the caller's IP, honoring X-Forwarded-For only when the
// deployment says a trusted proxy sets it.
func (h *Handler) clientIP(r *http.Request) net.IP {
	if h.cfg.TrustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return net.ParseIP(strings.TrimSpace(r.RemoteAddr))
	}
	return net.ParseIP(host)
}

func parseForwardedIP(v string) net.IP {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	// First hop is the original client.
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return net.ParseIP(strings.TrimSpace(v))
}

// publish sends a domain event best-effort.
func (h *Handler) publish(ctx context.Context, name, userID string, data map[string]any) {
	if h.events == nil {
		return
	}
	_ = h.events.Publish(ctx, events.Envelope{
		Name:       name,
		OccurredAt: h.now().UTC(),
		UserID:     userID,
		Data:       data,
	})
}

// ---- login ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	fields := map[string]string{}
	email := identity.NormalizeEmail(req.Email)
	if email == "" {
		fields["email"] = "Email is required"
	} else if !identity.ValidEmail(email) {
		fields["email"] = "Email address is invalid"
	}
	if req.Password == "" {
		fields["password"] = "Password is required"
	}
	if len(fields) > 0 {
		writeValidation(w, fields)
		return
	}

	ip := h.clientIP(r)
	ua := r.UserAgent()

	if limited, retryAfter, err := h.checkLoginIPThrottle(ctx, ip, now); err != nil {
		h.log.Error("auth.login.throttle.ip.fail", zap.Error(err))
	} else if limited {
		h.auditLoginRateLimited(ctx, nil, ip, ua, email, retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}

	user, err := h.users.GetUserByEmail(ctx, email)
	if err != nil {
		if identity.IsNotFound(err) {
			// Burn a hash verification so the miss costs the same as a hit.
			if h.dummyHash != "" {
				_, _ = h.passwords.Verify(h.dummyHash, req.Password)
			}
			h.auditLoginFailed(ctx, nil, ip, ua, email, "unknown_account")
			writeKind(w, KindInvalidCredentials, "")
			return
		}
		h.log.Error("auth.login.lookup.fail", zap.Error(err))
		writeKind(w, KindInternal, "")
		return
	}

	if limited, retryAfter, err := h.checkLoginUserThrottle(ctx, user.ID, now); err != nil {
		h.log.Error("auth.login.throttle.user.fail", zap.Error(err))
	} else if limited {
		h.auditLoginRateLimited(ctx, &user.ID, ip, ua, email, retryAfter)
		writeRateLimited(w, retryAfter)
		return
	}

	creds, err := h.users.GetCredentials(ctx, user.ID)
	if err != nil {
		h.log.Error("auth.login.credentials.fail", zap.Error(err))
		writeKind(w, KindInternal, "")
		return
	}
	hash, err := creds.Password()
	if identity.IsNoPassword(err) {
		// External-provider account without a password. Indistinguishable
		// from a wrong password to the caller.
		if h.dummyHash != "" {
			_, _ = h.passwords.Verify(h.dummyHash, req.Password)
		}
		h.auditLoginFailed(ctx, &user.ID, ip, ua, email, "no_password")
		writeKind(w, KindInvalidCredentials, "")
		return
	}

	match, err := h.passwords.Verify(hash, req.Password)
	if err != nil {
		h.log.Error("auth.login.verify.fail", zap.Error(err))
		writeKind(w, KindInternal, "")
		return
	}
	if !match {
		h.auditLoginFailed(ctx, &user.ID, ip, ua, email, "bad_password")
		writeKind(w, KindInvalidCredentials, "")
		return
	}

	if h.cfg.RequireVerifiedEmail && !user.Verified() {
		h.auditLoginFailed(ctx, &user.ID, ip, ua, email, "email_unverified")
		writeKind(w, KindForbidden, "Email address is not verified")
		return
	}

	issued, err := h.sessions.IssueSession(ctx, now, session.Principal{
		UserID: user.ID,
		Role:   string(user.Role),
		OrgID:  strOrEmpty(user.OrgID),
	}, session.DeviceContext{
		RememberMe: req.RememberMe,
		UserAgent:  ua,
		IP:         ip,
	})
	if err != nil {
		h.log.Error("auth.login.issue.fail", zap.Error(err))
		writeKind(w, KindInternal, "")
		return
	}

	h.setRefreshCookie(w, issued.RefreshToken, issued.RefreshExp, now)
	h.auditLoginSuccess(ctx, &user.ID, issued.SessionID, ip, ua, email)

	writeSuccess(w, http.StatusOK, "Login successful", authResponse{
		AccessToken:     issued.AccessToken,
		AccessExpiresAt: issued.AccessExp.UTC().Format(time.RFC3339),
		RefreshToken:    issued.RefreshToken,
		User:            toUserResponse(user),
	})
}

// ---- oauth ----

func (h *Handler) handleOAuth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	var req oauthRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	fields := map[string]string{}
	provider := strings.ToLower(strings.TrimSpace(req.Provider))
	if provider == "" {
		fields["provider"] = "Provider is required"
	}
	if strings.TrimSpace(req.IdentityToken) == "" {
		fields["identityToken"] = "Identity token is required"
	}
	if len(fields) > 0 {
		writeValidation(w, fields)
		return
	}

	ext, err := h.idTokens.VerifyIdentityToken(ctx, provider, req.IdentityToken)
	switch {
	case err == nil:
	case errors.Is(err, ErrUnsupportedProvider):
		writeKind(w, KindBadRequest, "Unsupported identity provider")
		return
	case errors.Is(err, ErrIdentityTokenInvalid):
		writeKind(w, KindUnauthorized, "Identity token could not be verified")
		return
	default:
		h.log.Error("auth.oauth.verify.fail", zap.Error(err), zap.String("provider", provider))
		writeKind(w, KindInternal, "")
		return
	}

	var displayName *string
	if v := strings.TrimSpace(ext.DisplayName); v != "" {
		displayName = &v
	}

	user, created, err := h.users.FindOrCreateByExternalIdentity(ctx, identity.ExternalIdentityInput{
		Provider:    ext.Provider,
		Subject:     ext.Subject,
		Email:       ext.Email,
		DisplayName: displayName,
		Now:         now,
	})
	if err != nil {
		if kind, known := identityErrorKind(err); known {
			writeKind(w, kind, "")
			return
		}
		h.log.Error("auth.oauth.resolve.fail", zap.Error(err), zap.String("provider", provider))
		writeKind(w, KindInternal, "")
		return
	}

	ip := h.clientIP(r)
	ua := r.UserAgent()

	issued, err := h.sessions.IssueSession(ctx, now, session.Principal{
		UserID: user.ID,
		Role:   string(user.Role),
		OrgID:  strOrEmpty(user.OrgID),
	}, session.DeviceContext{
		RememberMe: req.RememberMe,
		UserAgent:  ua,
		IP:         ip,
	})
	if err != nil {
		h.log.Error("auth.oauth.issue.fail", zap.Error(err))
		writeKind(w, KindInternal, "")
		return
	}

	if created {
		h.publish(ctx, events.UserRegistered, user.ID, map[string]any{"provider": provider})
	}
	h.setRefreshCookie(w, issued.RefreshToken, issued.RefreshExp, now)
	h.auditOAuthLogin(ctx, user.ID, issued.SessionID, ip, ua, provider, created)

	writeSuccess(w, http.StatusOK, "Login successful", authResponse{
		AccessToken:     issued.AccessToken,
		AccessExpiresAt: issued.AccessExp.UTC().Format(time.RFC3339),
		RefreshToken:    issued.RefreshToken,
		User:            toUserResponse(user),
	})
}
