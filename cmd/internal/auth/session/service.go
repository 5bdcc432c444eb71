package session

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"
)

// Principal carries the authorization claims embedded in access tokens.
type Principal struct {
	UserID string
	Role   string
	OrgID  string
}

// PrincipalLookup resolves a user's current authorization claims. Rotation
// needs it because the session row does not duplicate role/org data.
type PrincipalLookup func(ctx context.Context, userID string) (role string, orgID string, err error)

// Service implements the high-level session operations for Paydesk.
//
// It issues sessions (access + refresh), validates access tokens,
// supports per-session and per-user revocation, and performs refresh rotation
// with reuse detection under a strict transactional model.
type Service struct {
	cfg        Config
	tokens     TokenManager
	store      Store
	principals PrincipalLookup

	// pool is used to create explicit transactions for rotation safety.
	pool *pgxpool.Pool
}

// Issued is the result of issuing or rotating a session.
type Issued struct {
	SessionID    string
	AccessToken  string
	AccessExp    time.Time
	RefreshToken string
	RefreshExp   time.Time
	RememberMe   bool
}

// NewService constructs a Service with the provided configuration, store,
// token manager and principal lookup.
//
// The pool is required for refresh rotation, which must run inside a single
// transaction. principals may be nil; rotated access tokens then carry no
// role/org claims.
func NewService(cfg Config, pool *pgxpool.Pool, store Store, tokens TokenManager, principals PrincipalLookup) *Service {
	return &Service{cfg: cfg, pool: pool, store: store, tokens: tokens, principals: principals}
}

func (s *Service) refreshTTL(rememberMe bool) time.Duration {
	if rememberMe {
		return s.cfg.RefreshTTLRemember
	}
	return s.cfg.RefreshTTL
}

// IssueSession creates a new session row in the database and returns fresh tokens.
//
// The refresh token embeds the session id; the row stores the token's jti and
// a fingerprint of the whole token, never the token itself.
func (s *Service) IssueSession(ctx context.Context, now time.Time, p Principal, dev DeviceContext) (Issued, error) {
	sessionID := ulid.Make().String()

	refreshTTL := s.refreshTTL(dev.RememberMe)
	refreshPlain, jti, refreshExp, err := s.tokens.IssueRefresh(p.UserID, sessionID, dev.RememberMe, refreshTTL, now)
	if err != nil {
		return Issued{}, err
	}
	refreshHash := hashRefreshTokenHex(refreshPlain)

	if err := s.store.Create(ctx, now, sessionID, p.UserID, dev, jti, refreshHash, refreshExp); err != nil {
		return Issued{}, err
	}

	accessToken, accessExp, err := s.tokens.IssueAccess(p.UserID, sessionID, p.Role, p.OrgID, now)
	if err != nil {
		return Issued{}, err
	}

	return Issued{
		SessionID:    sessionID,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: refreshPlain,
		RefreshExp:   refreshExp,
		RememberMe:   dev.RememberMe,
	}, nil
}

// ValidateAccessToken verifies an access token and ensures the backing session is active.
func (s *Service) ValidateAccessToken(ctx context.Context, token string, now time.Time) (AccessClaims, error) {
	claims, err := s.tokens.VerifyAccess(token, now)
	if err != nil {
		return AccessClaims{}, err
	}

	// Server-authoritative session check to honor revocations.
	row, err := s.store.GetByID(ctx, claims.SessionID)
	if err != nil {
		return AccessClaims{}, err
	}

	if row.UserID != claims.UserID {
		return AccessClaims{}, ErrSessionMismatch
	}
	if row.RevokedAt != nil || row.ReplacedBySessionID != nil {
		return AccessClaims{}, ErrSessionRevoked
	}
	if !row.ExpiresAt.After(now) {
		return AccessClaims{}, ErrSessionExpired
	}

	return claims, nil
}

// RevokeSession revokes a single session by ID (e.g., logout from a device).
func (s *Service) RevokeSession(ctx context.Context, now time.Time, sessionID string) error {
	return s.store.Revoke(ctx, now, sessionID, "logout")
}

// RevokeAll revokes all sessions for a user (e.g., logout everywhere).
func (s *Service) RevokeAll(ctx context.Context, now time.Time, userID string) error {
	return s.store.RevokeAll(ctx, now, userID, "logout")
}

// RevokeOthers revokes every session of the user except the one given.
// Used after a password change so other devices must re-authenticate.
func (s *Service) RevokeOthers(ctx context.Context, now time.Time, userID, keepSessionID string) error {
	return s.store.RevokeAllExcept(ctx, now, userID, keepSessionID, "password_changed")
}

// RevokeByRefreshToken revokes the session a refresh token points at and
// returns the verified claims so the caller can attribute the logout.
// Verification errors pass through; the caller decides whether logout is
// fail-open.
func (s *Service) RevokeByRefreshToken(ctx context.Context, now time.Time, refreshTokenPlain string) (RefreshClaims, error) {
	claims, err := s.tokens.VerifyRefresh(strings.TrimSpace(refreshTokenPlain), now)
	if err != nil {
		return RefreshClaims{}, err
	}
	if err := s.store.Revoke(ctx, now, claims.SessionID, "logout"); err != nil {
		return RefreshClaims{}, err
	}
	return claims, nil
}

// TouchSession updates last_used_at for a session (best-effort).
func (s *Service) TouchSession(ctx context.Context, now time.Time, sessionID string) error {
	return s.store.Touch(ctx, now, sessionID)
}

// RotateRefresh performs refresh rotation with reuse detection.
//
// Security model:
//   - Verify the token first; malformed, bad-signature and expired tokens are
//     rejected before any database work.
//   - Lock the session row referenced by the token (SELECT ... FOR UPDATE),
//     so concurrent redemptions of the same token serialize; the loser sees
//     the revoked+replaced row.
//   - If the row is revoked and replaced, the token was already redeemed:
//     revoke all sessions for the user and return ErrRefreshReuseDetected.
//   - If the token's jti or fingerprint does not match a live row, a stale
//     token is being replayed against a rotated-forward session: revoke all
//     sessions and return ErrSessionMismatch.
//   - Otherwise create the replacement session, revoke the old one and link
//     replaced_by_session_id, all in one transaction.
func (s *Service) RotateRefresh(ctx context.Context, now time.Time, refreshTokenPlain string, dev DeviceContext) (Issued, error) {
	refreshTokenPlain = strings.TrimSpace(refreshTokenPlain)
	// Basic sanity bounds to avoid pathological inputs.
	if refreshTokenPlain == "" || len(refreshTokenPlain) > 4096 {
		return Issued{}, ErrTokenMalformed
	}

	claims, err := s.tokens.VerifyRefresh(refreshTokenPlain, now)
	if err != nil {
		return Issued{}, err
	}

	// Hash in-memory; the plain token is never persisted.
	refreshHash := hashRefreshTokenHex(refreshTokenPlain)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Issued{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row, err := getByIDForUpdateTx(ctx, tx, claims.SessionID)
	if err != nil {
		return Issued{}, err
	}

	if row.UserID != claims.UserID {
		return Issued{}, ErrSessionMismatch
	}

	// Reuse detection: a rotated refresh token presented again.
	if row.RevokedAt != nil && row.ReplacedBySessionID != nil {
		// Revoke all sessions for the user. This is a security incident.
		if err := revokeAllTx(ctx, tx, now, row.UserID, "reuse_detected"); err != nil {
			return Issued{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return Issued{}, err
		}
		return Issued{}, ErrRefreshReuseDetected
	}

	// If revoked without replacement: treat as revoked (logout).
	if row.RevokedAt != nil {
		return Issued{}, ErrSessionRevoked
	}

	if !row.ExpiresAt.After(now) {
		return Issued{}, ErrSessionExpired
	}

	// A live session must be presented with its current token.
	if row.RefreshJTI != claims.JTI || !ctEqHex64(row.RefreshTokenHash, refreshHash) {
		if err := revokeAllTx(ctx, tx, now, row.UserID, "replay_suspected"); err != nil {
			return Issued{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return Issued{}, err
		}
		return Issued{}, ErrSessionMismatch
	}

	// Rotate: create new session + revoke old + point replaced_by.
	// The remember flag is sticky for the lifetime of the lineage.
	rememberMe := row.RememberMe
	newSessionID := ulid.Make().String()

	newRefreshPlain, newJTI, newRefreshExp, err := s.tokens.IssueRefresh(row.UserID, newSessionID, rememberMe, s.refreshTTL(rememberMe), now)
	if err != nil {
		return Issued{}, err
	}
	newRefreshHash := hashRefreshTokenHex(newRefreshPlain)

	newDev := dev
	newDev.RememberMe = rememberMe

	if err := createTx(ctx, tx, now, newSessionID, row.UserID, newDev, newJTI, newRefreshHash, newRefreshExp); err != nil {
		return Issued{}, err
	}

	if err := markRotatedTx(ctx, tx, now, row.ID, newSessionID); err != nil {
		return Issued{}, err
	}

	role, orgID := "", ""
	if s.principals != nil {
		role, orgID, err = s.principals(ctx, row.UserID)
		if err != nil {
			return Issued{}, err
		}
	}

	accessToken, accessExp, err := s.tokens.IssueAccess(row.UserID, newSessionID, role, orgID, now)
	if err != nil {
		return Issued{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Issued{}, err
	}

	return Issued{
		SessionID:    newSessionID,
		AccessToken:  accessToken,
		AccessExp:    accessExp,
		RefreshToken: newRefreshPlain,
		RefreshExp:   newRefreshExp,
		RememberMe:   rememberMe,
	}, nil
}

// ctEqHex64 compares two expected 64-char hex strings in constant time.
// Rejects if either length != 64 to keep timing stable.
func ctEqHex64(a, b string) bool {
	if len(a) != 64 || len(b) != 64 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
