package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims is the minimal identity envelope propagated across the HTTP layer.
type AccessClaims struct {
	UserID    string
	SessionID string
	JTI       string
	Role      string
	OrgID     string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Issuer    string
}

// RefreshClaims is the decoded content of a refresh token.
type RefreshClaims struct {
	UserID     string
	SessionID  string
	JTI        string
	RememberMe bool
	ExpiresAt  time.Time
	IssuedAt   time.Time
}

// TokenManager issues and verifies Paydesk's access and refresh tokens.
//
// Verification errors are distinguished so the API layer can report precise
// reasons: ErrTokenMalformed, ErrTokenSignatureInvalid, ErrTokenExpired,
// ErrInvalidToken.
type TokenManager interface {
	IssueAccess(userID, sessionID, role, orgID string, now time.Time) (token string, exp time.Time, err error)
	IssueRefresh(userID, sessionID string, rememberMe bool, ttl time.Duration, now time.Time) (token, jti string, exp time.Time, err error)
	VerifyAccess(token string, now time.Time) (AccessClaims, error)
	VerifyRefresh(token string, now time.Time) (RefreshClaims, error)
}

// Token-use discriminator so an access token can never be redeemed as a
// refresh token or vice versa.
const (
	tokenUseAccess  = "access"
	tokenUseRefresh = "refresh"
)

type accessJWTClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid"`
	Role      string `json:"role,omitempty"`
	OrgID     string `json:"org_id,omitempty"`
	TokenUse  string `json:"token_use"`
}

type refreshJWTClaims struct {
	jwt.RegisteredClaims
	SessionID  string `json:"sid"`
	RememberMe bool   `json:"remember_me"`
	TokenUse   string `json:"token_use"`
}

type hs256Manager struct {
	issuer    string
	accessTTL time.Duration
	clockSkew time.Duration
	secret    []byte
}

// NewHS256Manager builds a TokenManager signing with HMAC-SHA256.
//
// The secret must be at least 32 bytes. Issuer and expiry rules are enforced
// on verification; clock skew is applied as parser leeway.
func NewHS256Manager(cfg Config) (TokenManager, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, ErrConfig
	}
	if cfg.Issuer == "" || cfg.AccessTokenTTL <= 0 {
		return nil, ErrConfig
	}
	return &hs256Manager{
		issuer:    cfg.Issuer,
		accessTTL: cfg.AccessTokenTTL,
		clockSkew: cfg.ClockSkew,
		secret:    []byte(cfg.JWTSecret),
	}, nil
}

func (m *hs256Manager) IssueAccess(userID, sessionID, role, orgID string, now time.Time) (string, time.Time, error) {
	exp := now.Add(m.accessTTL)

	claims := accessJWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
		SessionID: sessionID,
		Role:      role,
		OrgID:     orgID,
		TokenUse:  tokenUseAccess,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

func (m *hs256Manager) IssueRefresh(userID, sessionID string, rememberMe bool, ttl time.Duration, now time.Time) (string, string, time.Time, error) {
	if ttl <= 0 {
		return "", "", time.Time{}, ErrConfig
	}
	exp := now.Add(ttl)
	jti := uuid.NewString()

	claims := refreshJWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
		SessionID:  sessionID,
		RememberMe: rememberMe,
		TokenUse:   tokenUseRefresh,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", "", time.Time{}, err
	}
	return signed, jti, exp, nil
}

func (m *hs256Manager) parserOpts(now time.Time) []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(m.clockSkew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
}

func (m *hs256Manager) keyfunc(*jwt.Token) (any, error) { return m.secret, nil }

func (m *hs256Manager) VerifyAccess(token string, now time.Time) (AccessClaims, error) {
	var claims accessJWTClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, m.keyfunc, m.parserOpts(now)...)
	if err != nil {
		return AccessClaims{}, mapJWTError(err)
	}
	if !parsed.Valid || claims.TokenUse != tokenUseAccess {
		return AccessClaims{}, ErrInvalidToken
	}
	if claims.Subject == "" || claims.SessionID == "" || claims.ID == "" {
		return AccessClaims{}, ErrInvalidToken
	}

	return AccessClaims{
		UserID:    claims.Subject,
		SessionID: claims.SessionID,
		JTI:       claims.ID,
		Role:      claims.Role,
		OrgID:     claims.OrgID,
		ExpiresAt: claims.ExpiresAt.Time,
		IssuedAt:  claims.IssuedAt.Time,
		Issuer:    claims.Issuer,
	}, nil
}

func (m *hs256Manager) VerifyRefresh(token string, now time.Time) (RefreshClaims, error) {
	var claims refreshJWTClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, m.keyfunc, m.parserOpts(now)...)
	if err != nil {
		return RefreshClaims{}, mapJWTError(err)
	}
	if !parsed.Valid || claims.TokenUse != tokenUseRefresh {
		return RefreshClaims{}, ErrInvalidToken
	}
	if claims.Subject == "" || claims.SessionID == "" || claims.ID == "" {
		return RefreshClaims{}, ErrInvalidToken
	}

	return RefreshClaims{
		UserID:     claims.Subject,
		SessionID:  claims.SessionID,
		JTI:        claims.ID,
		RememberMe: claims.RememberMe,
		ExpiresAt:  claims.ExpiresAt.Time,
		IssuedAt:   claims.IssuedAt.Time,
	}, nil
}

// mapJWTError narrows golang-jwt parse failures to this package's sentinels.
// Order matters: a malformed token must not be reported as a bad signature.
func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrTokenMalformed
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrTokenSignatureInvalid
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrInvalidToken
	}
}
