package identity

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements identity persistence over PostgreSQL.
//
// Design notes:
// - The pgx pool is owned by the caller; this store must NOT close it.
// - Schema/table identifiers are safely quoted to avoid SQL injection via identifiers.
// - Verification-code consumption is a single guarded UPDATE (atomic).
// - Errors are mapped to identity sentinel kinds where appropriate.
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures the store.
type PostgresOption func(*PostgresStore) error

var pgIdentRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// WithSchema sets the Postgres schema used by the identity store (default "paydesk").
// The schema name is validated to be a legal PostgreSQL identifier.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return fmt.Errorf("identity: empty schema")
		}
		if !pgIdentRe.MatchString(schema) {
			return fmt.Errorf("identity: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a PostgresStore with secure defaults.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "paydesk",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return st, nil
}

const (
	defaultCodeTTL = 15 * time.Minute
	maxCodeTTL     = 24 * time.Hour
)

const userColumns = `id, email, email_norm, display_name, role, org_id, email_verified_at, created_at, updated_at`

// CreateUser creates a new user and its credentials row transactionally.
// The credentials row exists even for OAuth-only accounts (NULL hash), so
// change-password can distinguish "no password set" from "no such user".
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (CreateUserResult, error) {
	const op = "identity.CreateUser"

	if s == nil || s.pool == nil {
		return CreateUserResult{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return CreateUserResult{}, err
	}

	email := strings.TrimSpace(in.Email)
	if !ValidEmail(email) {
		return CreateUserResult{}, pgInvalid(op, "invalid email")
	}
	emailNorm := NormalizeEmail(email)

	role := in.Role
	if role == "" {
		role = RoleMember
	}
	switch role {
	case RoleMember, RoleAdmin:
	default:
		return CreateUserResult{}, pgInvalid(op, "invalid role")
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	userID, err := NewULID(now)
	if err != nil {
		return CreateUserResult{}, err
	}

	var verifiedAt *time.Time
	if in.EmailVerified {
		verifiedAt = &now
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return CreateUserResult{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	users := pgIdent(s.schema, "users")
	creds := pgIdent(s.schema, "user_credentials")

	_, err = tx.Exec(ctx,
		`INSERT INTO `+users+` (
		     id, email, email_norm, display_name, role, org_id, email_verified_at, created_at, updated_at
		   ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`,
		userID,
		email,
		emailNorm,
		pgTrimPtr(in.DisplayName),
		string(role),
		pgTrimPtr(in.OrgID),
		verifiedAt,
		now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return CreateUserResult{}, ConflictError{Op: op, Field: field}
		}
		return CreateUserResult{}, err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+creds+` (user_id, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $3)`,
		userID, in.PasswordHash, now,
	)
	if err != nil {
		// FK failure here indicates schema inconsistency, not user error.
		return CreateUserResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return CreateUserResult{}, err
	}

	out := User{
		ID:              userID,
		Email:           email,
		EmailNorm:       emailNorm,
		DisplayName:     pgTrimPtr(in.DisplayName),
		Role:            role,
		OrgID:           pgTrimPtr(in.OrgID),
		EmailVerifiedAt: verifiedAt,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	return CreateUserResult{User: out}, nil
}

// GetUserByID fetches a user by id. Returns ErrNotFound when missing.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if strings.TrimSpace(id) == "" {
		return User{}, pgInvalid(op, "missing user id")
	}

	users := pgIdent(s.schema, "users")
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+users+` WHERE id = $1`, id)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, err
	}
	return u, nil
}

// GetUserByEmail fetches a user by normalized email. Returns ErrNotFound when missing.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	const op = "identity.GetUserByEmail"

	if s == nil || s.pool == nil {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	norm := NormalizeEmail(email)
	if norm == "" {
		return User{}, pgInvalid(op, "missing email")
	}

	users := pgIdent(s.schema, "users")
	row := s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM `+users+` WHERE email_norm = $1`, norm)

	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, NotFoundError{Op: op, Resource: "user"}
		}
		return User{}, err
	}
	return u, nil
}

// GetCredentials fetches the credentials row for a user.
func (s *PostgresStore) GetCredentials(ctx context.Context, userID string) (Credentials, error) {
	const op = "identity.GetCredentials"

	if s == nil || s.pool == nil {
		return Credentials{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}
	if strings.TrimSpace(userID) == "" {
		return Credentials{}, pgInvalid(op, "missing user id")
	}

	creds := pgIdent(s.schema, "user_credentials")

	var c Credentials
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, password_hash, updated_at FROM `+creds+` WHERE user_id = $1`,
		userID,
	).Scan(&c.UserID, &c.PasswordHash, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Credentials{}, NotFoundError{Op: op, Resource: "credentials"}
		}
		return Credentials{}, err
	}
	return c, nil
}

// SetPasswordHash replaces the stored password hash.
func (s *PostgresStore) SetPasswordHash(ctx context.Context, userID string, hash string, now time.Time) error {
	const op = "identity.SetPasswordHash"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return pgInvalid(op, "missing user id")
	}
	if strings.TrimSpace(hash) == "" {
		return pgInvalid(op, "missing password hash")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	creds := pgIdent(s.schema, "user_credentials")

	ct, err := s.pool.Exec(ctx,
		`UPDATE `+creds+`
		    SET password_hash = $1,
		        updated_at = $2
		  WHERE user_id = $3`,
		hash, now, userID,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "credentials"}
	}
	return nil
}

// CreateVerificationCode mints a fresh 6-digit code and stores only its hash.
// Older unconsumed codes for the user are expired so only the latest works.
func (s *PostgresStore) CreateVerificationCode(ctx context.Context, userID string, ttl time.Duration, now time.Time) (string, error) {
	const op = "identity.CreateVerificationCode"

	if s == nil || s.pool == nil {
		return "", OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(userID) == "" {
		return "", pgInvalid(op, "missing user id")
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if ttl <= 0 {
		ttl = defaultCodeTTL
	}
	if ttl > maxCodeTTL {
		ttl = maxCodeTTL
	}

	code, err := NewVerificationCode()
	if err != nil {
		return "", err
	}
	hash := HashVerificationCode(userID, code)

	codeID, err := NewULID(now)
	if err != nil {
		return "", err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	codes := pgIdent(s.schema, "verification_codes")

	// Supersede prior pending codes.
	_, err = tx.Exec(ctx,
		`UPDATE `+codes+`
		    SET expires_at = $1
		  WHERE user_id = $2
		    AND used_at IS NULL
		    AND expires_at > $1`,
		now, userID,
	)
	if err != nil {
		return "", err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO `+codes+` (id, user_id, code_hash, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		codeID, userID, hash, now, now.Add(ttl),
	)
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return "", NotFoundError{Op: op, Resource: "user"}
		}
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}

	return code, nil
}

// ConsumeVerificationCode marks a matching live code used and stamps the user
// verified, atomically. Wrong, expired and already used codes are all
// ErrCodeInvalid; callers cannot distinguish them.
func (s *PostgresStore) ConsumeVerificationCode(ctx context.Context, userID string, code string, now time.Time) error {
	const op = "identity.ConsumeVerificationCode"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return pgInvalid(op, "missing user id")
	}

	code = strings.TrimSpace(code)
	if len(code) != VerificationCodeLength {
		return invalidCode()
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}

	hash := HashVerificationCode(userID, code)

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	codes := pgIdent(s.schema, "verification_codes")
	users := pgIdent(s.schema, "users")

	// Guarded UPDATE; a consumed or expired code affects zero rows.
	ct, err := tx.Exec(ctx,
		`UPDATE `+codes+`
		    SET used_at = $1
		  WHERE user_id = $2
		    AND code_hash = $3
		    AND used_at IS NULL
		    AND expires_at > $1`,
		now, userID, hash,
	)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return invalidCode()
	}

	_, err = tx.Exec(ctx,
		`UPDATE `+users+`
		    SET email_verified_at = COALESCE(email_verified_at, $1),
		        updated_at = $1
		  WHERE id = $2`,
		now, userID,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// FindOrCreateByExternalIdentity resolves a provider identity to a local user.
//
// Resolution order:
//  1. existing (provider, subject) link -> that user
//  2. existing user with the same normalized email -> link and return
//  3. otherwise create a verified user (provider asserts the email) and link
func (s *PostgresStore) FindOrCreateByExternalIdentity(ctx context.Context, in ExternalIdentityInput) (User, bool, error) {
	const op = "identity.FindOrCreateByExternalIdentity"

	if s == nil || s.pool == nil {
		return User{}, false, OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return User{}, false, err
	}

	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	subject := strings.TrimSpace(in.Subject)
	if provider == "" || subject == "" {
		return User{}, false, pgInvalid(op, "missing provider or subject")
	}

	email := strings.TrimSpace(in.Email)
	if !ValidEmail(email) {
		return User{}, false, pgInvalid(op, "invalid email")
	}
	emailNorm := NormalizeEmail(email)

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return User{}, false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	users := pgIdent(s.schema, "users")
	idents := pgIdent(s.schema, "external_identities")
	creds := pgIdent(s.schema, "user_credentials")

	// 1. Existing link.
	var userID string
	err = tx.QueryRow(ctx,
		`SELECT user_id FROM `+idents+` WHERE provider = $1 AND subject = $2`,
		provider, subject,
	).Scan(&userID)
	switch {
	case err == nil:
		row := tx.QueryRow(ctx, `SELECT `+userColumns+` FROM `+users+` WHERE id = $1`, userID)
		u, err := scanUser(row)
		if err != nil {
			return User{}, false, err
		}
		if err := tx.Commit(ctx); err != nil {
			return User{}, false, err
		}
		return u, false, nil
	case errors.Is(err, pgx.ErrNoRows):
		// fall through
	default:
		return User{}, false, err
	}

	// 2. Existing user by email.
	created := false
	row := tx.QueryRow(ctx, `SELECT `+userColumns+` FROM `+users+` WHERE email_norm = $1 FOR UPDATE`, emailNorm)
	u, err := scanUser(row)
	switch {
	case err == nil:
		// link below
	case errors.Is(err, pgx.ErrNoRows):
		// 3. Create a new verified user with NULL password hash.
		created = true
		newID, err := NewULID(now)
		if err != nil {
			return User{}, false, err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO `+users+` (
			     id, email, email_norm, display_name, role, org_id, email_verified_at, created_at, updated_at
			   ) VALUES ($1, $2, $3, $4, $5, NULL, $6, $6, $6)`,
			newID, email, emailNorm, pgTrimPtr(in.DisplayName), string(RoleMember), now,
		)
		if err != nil {
			if field, ok := pgClassifyUniqueViolation(err); ok {
				return User{}, false, ConflictError{Op: op, Field: field}
			}
			return User{}, false, err
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO `+creds+` (user_id, password_hash, created_at, updated_at)
			 VALUES ($1, NULL, $2, $2)`,
			newID, now,
		)
		if err != nil {
			return User{}, false, err
		}
		verifiedAt := now
		u = User{
			ID:              newID,
			Email:           email,
			EmailNorm:       emailNorm,
			DisplayName:     pgTrimPtr(in.DisplayName),
			Role:            RoleMember,
			EmailVerifiedAt: &verifiedAt,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
	default:
		return User{}, false, err
	}

	identID, err := NewULID(now)
	if err != nil {
		return User{}, false, err
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO `+idents+` (id, user_id, provider, subject, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		identID, u.ID, provider, subject, now,
	)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			// Concurrent link of the same (provider, subject) won the race.
			return User{}, false, ConflictError{Op: op, Field: field}
		}
		return User{}, false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return User{}, false, err
	}

	return u, created, nil
}

// DeleteUser hard-deletes the user row. Credentials, external identities,
// verification codes and sessions cascade via FK; audit rows keep a NULL user.
// Idempotent: deleting a missing user returns ErrNotFound.
func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	const op = "identity.DeleteUser"

	if s == nil || s.pool == nil {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "nil store"}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(userID) == "" {
		return pgInvalid(op, "missing user id")
	}

	users := pgIdent(s.schema, "users")

	ct, err := s.pool.Exec(ctx, `DELETE FROM `+users+` WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return NotFoundError{Op: op, Resource: "user"}
	}
	return nil
}

// ---- helpers ----

func scanUser(row pgx.Row) (User, error) {
	var (
		u    User
		role string
	)
	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.EmailNorm,
		&u.DisplayName,
		&role,
		&u.OrgID,
		&u.EmailVerifiedAt,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return User{}, err
	}
	u.Role = Role(role)
	return u, nil
}

// pgTrimPtr trims a string pointer, returning nil if result is empty.
func pgTrimPtr(p *string) *string {
	if p == nil {
		return nil
	}
	s := strings.TrimSpace(*p)
	if s == "" {
		return nil
	}
	return &s
}

// pgInvalid standardizes invalid input errors.
func pgInvalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Msg: msg}
}

// pgIdent safely quotes a schema-qualified identifier: "schema"."name".
func pgIdent(schema, name string) string {
	return pgx.Identifier{schema, name}.Sanitize()
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23503" // foreign_key_violation
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names; fall back to substring heuristics.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))

	switch c {
	case "uq_users_email_norm":
		return "email", true
	case "uq_external_identities_provider_subject":
		return "provider_subject", true
	case "uq_sessions_refresh_token_hash", "uq_sessions_refresh_jti":
		return "refresh_token", true
	default:
		switch {
		case strings.Contains(c, "email"):
			return "email", true
		case strings.Contains(c, "provider") || strings.Contains(c, "subject"):
			return "provider_subject", true
		case strings.Contains(c, "refresh"):
			return "refresh_token", true
		default:
			return "unique", true
		}
	}
}
