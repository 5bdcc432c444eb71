package identity

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Integration tests are opt-in and require PAYDESK_TEST_DATABASE_URL.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStore_CreateUser_ConflictEmail_CaseInsensitive(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	hash := "x"
	_, err := s.CreateUser(ctx, CreateUserInput{
		Email:        "User@Example.com",
		PasswordHash: &hash,
		Now:          time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user 1: %v", err)
	}

	// Same email (case-insensitive) should conflict.
	_, err = s.CreateUser(ctx, CreateUserInput{
		Email:        "user@example.COM",
		PasswordHash: &hash,
		Now:          time.Now().UTC(),
	})
	if err == nil {
		t.Fatalf("expected conflict, got nil")
	}
	if !IsConflict(err) {
		t.Fatalf("expected conflict error, got: %v", err)
	}
}

func TestPostgresStore_VerificationCode_Lifecycle(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	hash := "x"
	res, err := s.CreateUser(ctx, CreateUserInput{
		Email:        "verify-" + strings.ToLower(mustNewULIDLike(t)) + "@example.com",
		PasswordHash: &hash,
		Now:          time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if res.User.Verified() {
		t.Fatalf("new user must start unverified")
	}

	code, err := s.CreateVerificationCode(ctx, res.User.ID, 15*time.Minute, time.Now().UTC())
	if err != nil {
		t.Fatalf("create code: %v", err)
	}
	if len(code) != VerificationCodeLength {
		t.Fatalf("unexpected code %q", code)
	}

	// Wrong code is rejected.
	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}
	err = s.ConsumeVerificationCode(ctx, res.User.ID, wrong, time.Now().UTC())
	if !IsCodeInvalid(err) {
		t.Fatalf("expected ErrCodeInvalid for wrong code, got: %v", err)
	}

	// Correct code verifies the user.
	if err := s.ConsumeVerificationCode(ctx, res.User.ID, code, time.Now().UTC()); err != nil {
		t.Fatalf("consume code: %v", err)
	}

	u, err := s.GetUserByID(ctx, res.User.ID)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if !u.Verified() {
		t.Fatalf("user must be verified after consuming the code")
	}

	// Replay of a consumed code is rejected.
	err = s.ConsumeVerificationCode(ctx, res.User.ID, code, time.Now().UTC())
	if !IsCodeInvalid(err) {
		t.Fatalf("expected ErrCodeInvalid on replay, got: %v", err)
	}
}

func TestPostgresStore_VerificationCode_SupersedesPrevious(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	hash := "x"
	res, err := s.CreateUser(ctx, CreateUserInput{
		Email:        "supersede-" + strings.ToLower(mustNewULIDLike(t)) + "@example.com",
		PasswordHash: &hash,
		Now:          time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	first, err := s.CreateVerificationCode(ctx, res.User.ID, 15*time.Minute, time.Now().UTC())
	if err != nil {
		t.Fatalf("create first code: %v", err)
	}
	second, err := s.CreateVerificationCode(ctx, res.User.ID, 15*time.Minute, time.Now().UTC())
	if err != nil {
		t.Fatalf("create second code: %v", err)
	}

	if first != second {
		err = s.ConsumeVerificationCode(ctx, res.User.ID, first, time.Now().UTC())
		if !IsCodeInvalid(err) {
			t.Fatalf("expected superseded code to be rejected, got: %v", err)
		}
	}

	if err := s.ConsumeVerificationCode(ctx, res.User.ID, second, time.Now().UTC()); err != nil {
		t.Fatalf("consume latest code: %v", err)
	}
}

func TestPostgresStore_FindOrCreateByExternalIdentity(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	email := "oauth-" + strings.ToLower(mustNewULIDLike(t)) + "@example.com"

	u1, created, err := s.FindOrCreateByExternalIdentity(ctx, ExternalIdentityInput{
		Provider: "google",
		Subject:  "sub-123",
		Email:    email,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if !created {
		t.Fatalf("expected a new user on first resolve")
	}
	if !u1.Verified() {
		t.Fatalf("provider-asserted email must be verified at creation")
	}

	// OAuth-only account has a NULL password hash.
	c, err := s.GetCredentials(ctx, u1.ID)
	if err != nil {
		t.Fatalf("get credentials: %v", err)
	}
	if c.PasswordHash != nil {
		t.Fatalf("expected NULL password hash for OAuth-only account")
	}

	// Second resolve returns the same user without creating.
	u2, created, err := s.FindOrCreateByExternalIdentity(ctx, ExternalIdentityInput{
		Provider: "google",
		Subject:  "sub-123",
		Email:    email,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if created {
		t.Fatalf("second resolve must not create a user")
	}
	if u2.ID != u1.ID {
		t.Fatalf("expected same user, got %s vs %s", u2.ID, u1.ID)
	}
}

func TestPostgresStore_FindOrCreateByExternalIdentity_LinksExistingEmail(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	email := "link-" + strings.ToLower(mustNewULIDLike(t)) + "@example.com"
	hash := "x"

	res, err := s.CreateUser(ctx, CreateUserInput{
		Email:        email,
		PasswordHash: &hash,
		Now:          time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	u, created, err := s.FindOrCreateByExternalIdentity(ctx, ExternalIdentityInput{
		Provider: "github",
		Subject:  "gh-42",
		Email:    strings.ToUpper(email), // matching is case-insensitive
		Now:      time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if created {
		t.Fatalf("must link to the existing user, not create")
	}
	if u.ID != res.User.ID {
		t.Fatalf("expected link to %s, got %s", res.User.ID, u.ID)
	}
}

func TestPostgresStore_DeleteUser_Cascades(t *testing.T) {
	t.Parallel()

	pool := mustOpenTestPool(t)
	defer pool.Close()

	schema := mustCreateTestSchema(t, pool)
	t.Cleanup(func() { mustDropSchema(t, pool, schema) })
	mustApplyIdentitySchema(t, pool, schema)

	s := mustNewIdentityStore(t, pool, schema)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	hash := "x"
	res, err := s.CreateUser(ctx, CreateUserInput{
		Email:        "delete-" + strings.ToLower(mustNewULIDLike(t)) + "@example.com",
		PasswordHash: &hash,
		Now:          time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	if _, err := s.CreateVerificationCode(ctx, res.User.ID, 15*time.Minute, time.Now().UTC()); err != nil {
		t.Fatalf("create code: %v", err)
	}

	if err := s.DeleteUser(ctx, res.User.ID); err != nil {
		t.Fatalf("delete user: %v", err)
	}

	if _, err := s.GetUserByID(ctx, res.User.ID); !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound after delete, got: %v", err)
	}
	if _, err := s.GetCredentials(ctx, res.User.ID); !IsNotFound(err) {
		t.Fatalf("expected credentials gone after delete, got: %v", err)
	}

	// Second delete is a clean not-found, not an internal error.
	if err := s.DeleteUser(ctx, res.User.ID); !IsNotFound(err) {
		t.Fatalf("expected ErrNotFound on second delete, got: %v", err)
	}
}

// ---- helpers ----

func mustNewIdentityStore(t *testing.T, pool *pgxpool.Pool, schema string) *PostgresStore {
	t.Helper()
	s, err := NewPostgresStore(pool, WithSchema(schema))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func mustOpenTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	raw := strings.TrimSpace(os.Getenv("PAYDESK_TEST_DATABASE_URL"))
	if raw == "" {
		t.Skip("integration test skipped: PAYDESK_TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 12*time.Second)
	defer cancel()

	cfg, err := pgxpool.ParseConfig(raw)
	if err != nil {
		t.Fatalf("parse PAYDESK_TEST_DATABASE_URL: %v", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}

	// Validate acquire quickly (fast fail).
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer pingCancel()

	c, err := pool.Acquire(pingCtx)
	if err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (PAYDESK_TEST_DATABASE_URL set): %v", err)
		}
		t.Fatalf("acquire: %v", err)
	}
	c.Release()

	return pool
}

func mustCreateTestSchema(t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()

	schema := "paydesk_it_" + strings.ToLower(mustNewULIDLike(t))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := pool.Exec(ctx, `CREATE SCHEMA `+pgxIdent1(schema)); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return schema
}

func mustDropSchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, _ = pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgxIdent1(schema)+` CASCADE`)
}

func mustApplyIdentitySchema(t *testing.T, pool *pgxpool.Pool, schema string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	users := pgIdent(schema, "users")
	creds := pgIdent(schema, "user_credentials")
	idents := pgIdent(schema, "external_identities")
	codes := pgIdent(schema, "verification_codes")

	schemaSQL := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  email_norm TEXT NOT NULL,
  display_name TEXT NULL,
  role TEXT NOT NULL DEFAULT 'member',
  org_id TEXT NULL,
  email_verified_at TIMESTAMPTZ NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT chk_users_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT chk_users_role CHECK (role IN ('member', 'admin')),
  CONSTRAINT uq_users_email_norm UNIQUE (email_norm)
);

CREATE TABLE IF NOT EXISTS %s (
  user_id TEXT PRIMARY KEY REFERENCES %s(id) ON DELETE CASCADE,
  password_hash TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
  provider TEXT NOT NULL,
  subject TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),

  CONSTRAINT chk_external_identities_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT uq_external_identities_provider_subject UNIQUE (provider, subject)
);

CREATE TABLE IF NOT EXISTS %s (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL REFERENCES %s(id) ON DELETE CASCADE,
  code_hash TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  expires_at TIMESTAMPTZ NOT NULL,
  used_at TIMESTAMPTZ NULL,

  CONSTRAINT chk_verification_codes_id_ulid_len CHECK (char_length(id) = 26),
  CONSTRAINT chk_verification_codes_hash_len CHECK (char_length(code_hash) = 64)
);

CREATE INDEX IF NOT EXISTS idx_verification_codes_user_id ON %s (user_id);
`, users, creds, users, idents, users, codes, users, codes)

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host") {
		return true
	}
	return false
}

func mustNewULIDLike(t *testing.T) string {
	t.Helper()

	id, err := NewULID(time.Now().UTC())
	if err != nil {
		t.Fatalf("ulid: %v", err)
	}
	return id
}

func pgxIdent1(ident string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection in dynamic DDL.
	return pgx.Identifier{ident}.Sanitize()
}
