package authapi

import (
	"time"

	"paydesk/cmd/identity"
)

type registerRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type verifyEmailRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type oauthRequest struct {
	Provider      string `json:"provider"`
	IdentityToken string `json:"identityToken"`
	RememberMe    bool   `json:"rememberMe"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type userResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName"`
	Role          string `json:"role"`
	OrgID         string `json:"orgId,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
	CreatedAt     string `json:"createdAt"`
}

// authResponse is the data payload for login, oauth and refresh. The refresh
// token rides in an httpOnly cookie; it is mirrored here only for clients
// that cannot use cookies.
type authResponse struct {
	AccessToken     string        `json:"accessToken"`
	AccessExpiresAt string        `json:"accessExpiresAt"`
	RefreshToken    string        `json:"refreshToken,omitempty"`
	User            *userResponse `json:"user,omitempty"`
}

func toUserResponse(u identity.User) *userResponse {
	return &userResponse{
		ID:            u.ID,
		Email:         u.Email,
		DisplayName:   strOrEmpty(u.DisplayName),
		Role:          string(u.Role),
		OrgID:         strOrEmpty(u.OrgID),
		EmailVerified: u.Verified(),
		CreatedAt:     u.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
