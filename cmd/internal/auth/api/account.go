package authapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"paydesk/cmd/identity"
	"paydesk/cmd/internal/events"
	"paydesk/cmd/security/password"
)

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	fields := map[string]string{}
	email := identity.NormalizeEmail(req.Email)
	if email == "" {
		fields["email"] = "Email is required"
	} else if !identity.ValidEmail(email) {
		fields["email"] = "Email address is invalid"
	}
	if req.Password == "" {
		fields["password"] = "Password is required"
	}
	if len(fields) > 0 {
		writeValidation(w, fields)
		return
	}

	hash, err := h.passwords.Hash(req.Password)
	if err != nil {
		if msg, ok := passwordPolicyMessage(err); ok {
			writeValidation(w, map[string]string{"password": msg})
			return
		}
		h.log.Error("auth.register.hash.fail", zap.Error(err))
		writeKind(w, KindInternal, "")
		return
	}

	var displayName *string
	if v := strings.TrimSpace(req.DisplayName); v != "" {
		displayName = &v
	}

	res, err := h.users.CreateUser(ctx, identity.CreateUserInput{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: &hash,
		Role:         identity.RoleMember,
		Now:          now,
	})
	if err != nil {
		if identity.IsConflict(err) {
			writeKind(w, KindConflict, "Email is already registered")
			return
		}
		if kind, known := identityErrorKind(err); known {
			writeKind(w, kind, "")
			return
		}
		h.log.Error("auth.register.create.fail", zap.Error(err))
		writeKind(w, KindInternal, "")
		return
	}
	user := res.User

	h.sendVerificationCode(r, user)

	h.publish(ctx, events.UserRegistered, user.ID, nil)
	h.auditRegister(ctx, user.ID, h.clientIP(r), r.UserAgent())

	writeSuccess(w, http.StatusCreated, "Registration successful, verification code sent", map[string]any{
		"user": toUserResponse(user),
	})
}

// sendVerificationCode mints and delivers a fresh code. Delivery is
// best-effort; the user can always request a resend.
func (h *Handler) sendVerificationCode(r *http.Request, user identity.User) {
	ctx := r.Context()
	code, err := h.users.CreateVerificationCode(ctx, user.ID, h.cfg.VerificationCodeTTL, h.now())
	if err != nil {
		h.log.Error("auth.verification.code.fail", zap.Error(err), zap.String("user_id", user.ID))
		return
	}
	if err := h.email.SendVerificationCode(ctx, user.Email, code); err != nil {
		h.log.Warn("auth.verification.send.fail", zap.Error(err), zap.String("user_id", user.ID))
	}
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	var req verifyEmailRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	fields := map[string]string{}
	email := identity.NormalizeEmail(req.Email)
	if email == "" {
		fields["email"] = "Email is required"
	} else if !identity.ValidEmail(email) {
		fields["email"] = "Email address is invalid"
	}
	code := strings.TrimSpace(req.Code)
	if len(code) != identity.VerificationCodeLength {
		fields["code"] = "Verification code must be 6 digits"
	}
	if len(fields) > 0 {
		writeValidation(w, fields)
		return
	}

	user, err := h.users.GetUserByEmail(ctx, email)
	if err != nil {
		if identity.IsNotFound(err) {
			// Same answer as a wrong code so addresses cannot be probed.
			writeValidation(w, map[string]string{"code": "Invalid or expired verification code"})
			return
		}
		h.log.Error("auth.verify_email.lookup.fail", zap.Error(err))
		writeKind(w, KindInternal, "")
		return
	}

	if err := h.users.ConsumeVerificationCode(ctx, user.ID, code, now); err != nil {
		if identity.IsCodeInvalid(err) {
			writeValidation(w, map[string]string{"code": "Invalid or expired verification code"})
			return
		}
		h.log.Error("auth.verify_email.consume.fail", zap.Error(err), zap.String("user_id", user.ID))
		writeKind(w, KindInternal, "")
		return
	}

	h.publish(ctx, events.UserVerified, user.ID, nil)
	h.auditEmailVerified(ctx, user.ID, h.clientIP(r), r.UserAgent())

	writeSuccess(w, http.StatusOK, "Email verified", nil)
}

func (h *Handler) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	now := h.now()

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	var req changePasswordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	fields := map[string]string{}
	if req.CurrentPassword == "" {
		fields["currentPassword"] = "Current password is required"
	}
	if req.NewPassword == "" {
		fields["newPassword"] = "New password is required"
	}
	if len(fields) > 0 {
		writeValidation(w, fields)
		return
	}

	creds, err := h.users.GetCredentials(ctx, claims.UserID)
	if err != nil {
		h.log.Error("auth.change_password.credentials.fail", zap.Error(err))
		writeKind(w, KindInternal, "")
		return
	}
	currentHash, err := creds.Password()
	if identity.IsNoPassword(err) {
		writeKind(w, KindBadRequest, "Password login is not enabled for this account")
		return
	}

	match, err := h.passwords.Verify(currentHash, req.CurrentPassword)
	if err != nil {
		h.log.Error("auth.change_password.verify.fail", zap.Error(err))
		writeKind(w, KindInternal, "")
		return
	}
	if !match {
		writeKind(w, KindInvalidCredentials, "Current password is incorrect")
		return
	}

	hash, err := h.passwords.Hash(req.NewPassword)
	if err != nil {
		if msg, ok := passwordPolicyMessage(err); ok {
			writeValidation(w, map[string]string{"newPassword": msg})
			return
		}
		h.log.Error("auth.change_password.hash.fail", zap.Error(err))
		writeKind(w, KindInternal, "")
		return
	}

	if err := h.users.SetPasswordHash(ctx, claims.UserID, hash, now); err != nil {
		h.log.Error("auth.change_password.store.fail", zap.Error(err))
		writeKind(w, KindInternal, "")
		return
	}

	// Other devices must re-authenticate with the new password; the session
	// that made the change stays live.
	if err := h.sessions.RevokeOthers(ctx, now, claims.UserID, claims.SessionID); err != nil {
		h.log.Error("auth.change_password.revoke_others.fail", zap.Error(err))
	}

	h.publish(ctx, events.PasswordChanged, claims.UserID, nil)
	h.auditPasswordChanged(ctx, claims.UserID, h.clientIP(r), r.UserAgent())

	writeSuccess(w, http.StatusOK, "Password changed", nil)
}

func (h *Handler) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	// Sessions, credentials, external identities and pending codes go with
	// the user row via FK cascade.
	if err := h.users.DeleteUser(ctx, claims.UserID); err != nil {
		if identity.IsNotFound(err) {
			h.clearRefreshCookie(w)
			writeKind(w, KindNotFound, "Account not found")
			return
		}
		h.log.Error("auth.account.delete.fail", zap.Error(err), zap.String("user_id", claims.UserID))
		writeKind(w, KindInternal, "")
		return
	}

	h.publish(ctx, events.UserDeleted, claims.UserID, nil)
	h.auditAccountDeleted(ctx, claims.UserID, h.clientIP(r), r.UserAgent())
	h.clearRefreshCookie(w)

	writeSuccess(w, http.StatusOK, "Account deleted", nil)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, ok := h.requireAuth(w, r)
	if !ok {
		return
	}

	user, err := h.users.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeKind(w, KindNotFound, "Account not found")
			return
		}
		h.log.Error("auth.me.lookup.fail", zap.Error(err))
		writeKind(w, KindInternal, "")
		return
	}

	writeSuccess(w, http.StatusOK, "OK", map[string]any{
		"user": toUserResponse(user),
	})
}

func passwordPolicyMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, password.ErrPasswordTooShort):
		return "Password is too short", true
	case errors.Is(err, password.ErrPasswordTooLong):
		return "Password is too long", true
	case errors.Is(err, password.ErrWeakPassword):
		return "Password is too easy to guess", true
	default:
		return "", false
	}
}
