package session

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (paydesk.sessions).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed session store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Create inserts a new session row.
func (s *PostgresStore) Create(ctx context.Context, now time.Time, sessionID, userID string, dev DeviceContext, refreshJTI, refreshHash string, expiresAt time.Time) error {
	var ip net.IP
	if dev.IP != nil {
		ip = dev.IP
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO paydesk.sessions (
			id, user_id, refresh_jti, refresh_token_hash, remember_me,
			created_at, last_used_at, expires_at, revoked_at,
			replaced_by_session_id, user_agent, ip, revocation_reason
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $6, $7, NULL,
			NULL, $8, $9, NULL
		)
	`, sessionID, userID, refreshJTI, refreshHash, dev.RememberMe, now, expiresAt, nullIfEmpty(dev.UserAgent), ip)
	return err
}

// GetByID loads a session row by ID.
func (s *PostgresStore) GetByID(ctx context.Context, sessionID string) (Row, error) {
	var row Row

	err := s.pool.QueryRow(ctx, `
		SELECT
			id, user_id, refresh_jti, refresh_token_hash, remember_me,
			created_at, last_used_at, expires_at, revoked_at,
			replaced_by_session_id
		FROM paydesk.sessions
		WHERE id = $1
	`, sessionID).Scan(
		&row.ID,
		&row.UserID,
		&row.RefreshJTI,
		&row.RefreshTokenHash,
		&row.RememberMe,
		&row.CreatedAt,
		&row.LastUsedAt,
		&row.ExpiresAt,
		&row.RevokedAt,
		&row.ReplacedBySessionID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Row{}, ErrSessionNotFound
	}
	if err != nil {
		return Row{}, err
	}

	return row, nil
}

// Touch updates last_used_at for a session.
func (s *PostgresStore) Touch(ctx context.Context, now time.Time, sessionID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE paydesk.sessions
		SET last_used_at = $2
		WHERE id = $1
	`, sessionID, now)
	return err
}

// Revoke revokes a single session (idempotent).
func (s *PostgresStore) Revoke(ctx context.Context, now time.Time, sessionID string, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE paydesk.sessions
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE id = $1
	`, sessionID, now, reason)
	return err
}

// RevokeAll revokes all sessions for a user (idempotent).
func (s *PostgresStore) RevokeAll(ctx context.Context, now time.Time, userID string, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE paydesk.sessions
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE user_id = $1
	`, userID, now, reason)
	return err
}

// RevokeAllExcept revokes all of a user's sessions but one (idempotent).
func (s *PostgresStore) RevokeAllExcept(ctx context.Context, now time.Time, userID string, keepSessionID string, reason string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE paydesk.sessions
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $4)
		WHERE user_id = $1
		  AND id <> $3
	`, userID, now, keepSessionID, reason)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
