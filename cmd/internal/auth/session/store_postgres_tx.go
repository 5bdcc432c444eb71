package session

import (
	"context"
	"errors"
	"net"
	"time"

	"paydesk/cmd/security/token"

	"github.com/jackc/pgx/v5"
)

func hashRefreshTokenHex(s string) string {
	return token.HashRefreshTokenHex(s)
}

func getByIDForUpdateTx(ctx context.Context, tx pgx.Tx, sessionID string) (Row, error) {
	var row Row

	err := tx.QueryRow(ctx, `
		SELECT
			id, user_id, refresh_jti, refresh_token_hash, remember_me,
			created_at, last_used_at, expires_at, revoked_at,
			replaced_by_session_id
		FROM paydesk.sessions
		WHERE id = $1
		FOR UPDATE
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

func createTx(
	ctx context.Context,
	tx pgx.Tx,
	now time.Time,
	sessionID string,
	userID string,
	dev DeviceContext,
	refreshJTI string,
	refreshHash string,
	expiresAt time.Time,
) error {
	var ip net.IP
	if dev.IP != nil {
		ip = dev.IP
	}

	_, err := tx.Exec(ctx, `
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

func markRotatedTx(ctx context.Context, tx pgx.Tx, now time.Time, oldID string, newID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE paydesk.sessions
		SET
			last_used_at = $2,
			revoked_at = $2,
			replaced_by_session_id = $3,
			revocation_reason = 'rotation'
		WHERE id = $1
	`, oldID, now, newID)
	return err
}

func revokeAllTx(ctx context.Context, tx pgx.Tx, now time.Time, userID string, reason string) error {
	_, err := tx.Exec(ctx, `
		UPDATE paydesk.sessions
		SET revoked_at = COALESCE(revoked_at, $2),
		    revocation_reason = COALESCE(revocation_reason, $3)
		WHERE user_id = $1
	`, userID, now, reason)
	return err
}
