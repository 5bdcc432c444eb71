package identity

import (
	"context"
	"time"
)

// Role is a coarse authorization tier. Fine-grained permissions live elsewhere.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
)

// User is Paydesk's canonical security principal.
type User struct {
	ID        string
	Email     string
	EmailNorm string

	DisplayName *string
	Role        Role
	OrgID       *string

	// EmailVerifiedAt is nil until the 6-digit code is consumed.
	EmailVerifiedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Verified reports whether the user's email address has been confirmed.
func (u User) Verified() bool { return u.EmailVerifiedAt != nil }

// Credentials holds the password-auth material for a user.
// PasswordHash is nil for accounts created via an external identity provider
// that never set a password.
type Credentials struct {
	UserID       string
	PasswordHash *string
	UpdatedAt    time.Time
}

// Password returns the stored hash, or an ErrNoPassword-kinded error when the
// account has no password set. Callers branch with IsNoPassword.
func (c Credentials) Password() (string, error) {
	if c.PasswordHash == nil {
		return "", OpError{Op: "identity.Credentials.Password", Kind: ErrNoPassword}
	}
	return *c.PasswordHash, nil
}

// CreateUserInput describes a user registration request.
type CreateUserInput struct {
	Email       string
	DisplayName *string
	// PasswordHash is the already-encoded argon2id hash; nil for OAuth-only
	// accounts. Hashing happens in the caller so the store never sees plaintext.
	PasswordHash *string
	Role         Role
	OrgID        *string
	// EmailVerified marks the account verified at creation (provider-asserted
	// emails on the OAuth path).
	EmailVerified bool
	Now           time.Time
}

// CreateUserResult returns the created user.
type CreateUserResult struct {
	User User
}

// ExternalIdentityInput identifies a user asserted by an OAuth/OIDC provider.
type ExternalIdentityInput struct {
	Provider    string
	Subject     string
	Email       string
	DisplayName *string
	Now         time.Time
}

// Store is the identity persistence boundary.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (CreateUserResult, error)

	GetUserByID(ctx context.Context, id string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetCredentials(ctx context.Context, userID string) (Credentials, error)

	// SetPasswordHash replaces the stored password hash (change-password).
	SetPasswordHash(ctx context.Context, userID string, hash string, now time.Time) error

	// CreateVerificationCode mints a 6-digit code for the user and stores only
	// its hash. Previous unconsumed codes for the user are superseded.
	// The plain code is returned exactly once for delivery and never logged.
	CreateVerificationCode(ctx context.Context, userID string, ttl time.Duration, now time.Time) (string, error)

	// ConsumeVerificationCode atomically marks a matching, unexpired, unused
	// code as used and stamps the user verified. Wrong, expired and already
	// used codes all return ErrCodeInvalid.
	ConsumeVerificationCode(ctx context.Context, userID string, code string, now time.Time) error

	// FindOrCreateByExternalIdentity resolves a provider-asserted identity to
	// a local user, linking or creating as needed. created reports whether a
	// new user row was made.
	FindOrCreateByExternalIdentity(ctx context.Context, in ExternalIdentityInput) (u User, created bool, err error)

	// DeleteUser hard-deletes the user; sessions, credentials, external
	// identities and verification codes go with it via FK cascade.
	DeleteUser(ctx context.Context, userID string) error
}
