package authapi

import (
	"context"
	"errors"
)

// EmailSender delivers verification codes. Production wires an SMTP or
// provider-backed implementation; tests and local dev use the noop.
type EmailSender interface {
	SendVerificationCode(ctx context.Context, email, code string) error
}

// NoopEmailSender drops mail on the floor.
type NoopEmailSender struct{}

func (NoopEmailSender) SendVerificationCode(ctx context.Context, email, code string) error {
	return nil
}

// ExternalIdentity is a provider-asserted identity extracted from a verified
// identity token.
type ExternalIdentity struct {
	Provider    string
	Subject     string
	Email       string
	DisplayName string
}

// ErrUnsupportedProvider is returned when no verifier handles the provider.
var ErrUnsupportedProvider = errors.New("authapi: unsupported identity provider")

// ErrIdentityTokenInvalid is returned when a provider token fails
// verification.
var ErrIdentityTokenInvalid = errors.New("authapi: identity token invalid")

// IdentityTokenVerifier validates OAuth/OIDC identity tokens and extracts the
// asserted identity. Implementations own signature checks, audience and
// issuer validation for their provider.
type IdentityTokenVerifier interface {
	VerifyIdentityToken(ctx context.Context, provider, identityToken string) (ExternalIdentity, error)
}

// NoopIdentityTokenVerifier rejects every provider. It is the default so an
// unconfigured deployment cannot accept unverified assertions.
type NoopIdentityTokenVerifier struct{}

func (NoopIdentityTokenVerifier) VerifyIdentityToken(ctx context.Context, provider, identityToken string) (ExternalIdentity, error) {
	return ExternalIdentity{}, ErrUnsupportedProvider
}
