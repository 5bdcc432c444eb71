package session

import (
	"context"
	"net"
	"time"
)

// DeviceContext describes the client that owns a session.
type DeviceContext struct {
	RememberMe bool
	UserAgent  string
	IP         net.IP
}

// Row mirrors the paydesk.sessions row used by the session subsystem.
type Row struct {
	ID                  string
	UserID              string
	RefreshJTI          string
	RefreshTokenHash    string
	RememberMe          bool
	CreatedAt           time.Time
	LastUsedAt          *time.Time
	ExpiresAt           time.Time
	RevokedAt           *time.Time
	ReplacedBySessionID *string
}

// Store abstracts persistence for session state.
//
// Rotation does not go through this interface; it runs against tx-scoped
// helpers so the whole consume-and-replace is one transaction.
type Store interface {
	// Create inserts a new session row with a caller-chosen id. The id is
	// chosen by the service because the refresh token embeds it.
	Create(
		ctx context.Context,
		now time.Time,
		sessionID string,
		userID string,
		dev DeviceContext,
		refreshJTI string,
		refreshHash string,
		expiresAt time.Time,
	) error

	// GetByID loads a session row by ID.
	GetByID(ctx context.Context, sessionID string) (Row, error)

	// Touch updates last_used_at for a session.
	Touch(ctx context.Context, now time.Time, sessionID string) error

	// Revoke revokes a single session (idempotent).
	Revoke(ctx context.Context, now time.Time, sessionID string, reason string) error

	// RevokeAll revokes all sessions for a user (idempotent).
	RevokeAll(ctx context.Context, now time.Time, userID string, reason string) error

	// RevokeAllExcept revokes all sessions for a user except one, typically
	// the session performing a password change (idempotent).
	RevokeAllExcept(ctx context.Context, now time.Time, userID string, keepSessionID string, reason string) error
}
