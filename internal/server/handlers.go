package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"audit-central/backend/internal/auth"
	sessiondomain "audit-central/backend/internal/session/domain"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Force    bool   `json:"force"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type validateTokenRequest struct {
	Token string `json:"token"`
}

type switchContextRequest struct {
	OrganizationID string `json:"organizationId"`
	YearID         string `json:"yearId"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

type tokenResponse struct {
	AccessToken            string `json:"accessToken"`
	RefreshToken           string `json:"refreshToken"`
	AccountID              string `json:"accountId"`
	Name                   string `json:"name"`
	Email                  string `json:"email"`
	Mobile                 string `json:"mobile"`
	TenantID               string `json:"tenantId,omitempty"`
	OrganizationID         string `json:"organizationId,omitempty"`
	RoleID                 string `json:"roleId,omitempty"`
	YearID                 string `json:"yearId,omitempty"`
	Timezone               string `json:"timezone,omitempty"`
	PreviousSessionRevoked bool   `json:"previousSessionRevoked"`
	SessionMessage         string `json:"sessionMessage,omitempty"`
}

func (s *Server) tokenResponse(res *auth.TokenResult) (*tokenResponse, error) {
	// Access tokens travel wrapped in the transport envelope; only the
	// service ever sees the bare JWT.
	sealed, err := s.codec.Encrypt(res.AccessToken)
	if err != nil {
		return nil, err
	}
	out := &tokenResponse{
		AccessToken:            sealed,
		RefreshToken:           res.RefreshToken,
		AccountID:              res.Account.ID,
		Name:                   res.Account.Name,
		Email:                  res.Account.Email,
		Mobile:                 res.Account.Mobile,
		Timezone:               res.Account.Timezone,
		PreviousSessionRevoked: res.PreviousSessionRevoked,
		SessionMessage:         res.SessionMessage,
	}
	if res.Context != nil {
		out.TenantID = res.Context.TenantID
		out.OrganizationID = res.Context.OrganizationID
		out.RoleID = res.Context.RoleID
		out.YearID = res.Context.YearID
		if res.Context.Timezone != "" {
			out.Timezone = res.Context.Timezone
		}
	}
	return out, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	res, err := s.svc.Login(r.Context(), auth.LoginRequest{
		Email:    req.Email,
		Password: req.Password,
		Force:    req.Force,
		Device:   deviceDescriptor(r),
		Origin:   clientOrigin(r),
	})
	if err != nil {
		var conflict *auth.SessionConflictError
		if errors.As(err, &conflict) {
			s.metrics.Login("conflict")
			writeJSON(w, http.StatusConflict, map[string]any{
				"status":         http.StatusConflict,
				"code":           errCodeConflict,
				"message":        "another session is active",
				"activeSessions": summaries(conflict.Sessions),
			})
			return
		}
		s.metrics.Login("failure")
		s.writeAuthError(w, err, "login failed")
		return
	}

	body, err := s.tokenResponse(res)
	if err != nil {
		s.logger.Error("seal access token", "error", err)
		writeInternalError(w, "login failed")
		return
	}
	s.metrics.Login("success")
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	raw := req.RefreshToken
	if raw == "" {
		if c, err := r.Cookie("refresh_token"); err == nil {
			raw = c.Value
		}
	}

	res, err := s.svc.Refresh(r.Context(), raw, deviceDescriptor(r), clientOrigin(r))
	if err != nil {
		s.metrics.Refresh("failure")
		s.writeAuthError(w, err, "refresh failed")
		return
	}

	body, err := s.tokenResponse(res)
	if err != nil {
		s.logger.Error("seal access token", "error", err)
		writeInternalError(w, "refresh failed")
		return
	}
	s.metrics.Refresh("success")
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	var req validateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	plaintext, err := s.codec.Decrypt(req.Token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"valid": false, "reason": "malformed"})
		return
	}
	res, err := s.svc.Validate(r.Context(), plaintext)
	if err != nil {
		s.logger.Error("token validation failed", "error", err)
		writeInternalError(w, "validation failed")
		return
	}
	s.metrics.Validation(res.Outcome.String())

	out := map[string]any{"valid": res.Valid(), "reason": res.Outcome.String()}
	if res.Valid() {
		out["accountId"] = res.Claims.AccountID
		out["email"] = res.Claims.Email
		out["tenantId"] = res.Claims.TenantID
		out["organizationId"] = res.Claims.OrganizationID
		out["roleId"] = res.Claims.RoleID
		out["sessionId"] = res.Claims.SessionID()
		out["expiresAt"] = res.Claims.ExpiresAt
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "missing claims")
		return
	}
	if err := s.svc.Logout(r.Context(), claims, deviceDescriptor(r), clientOrigin(r)); err != nil {
		s.writeAuthError(w, err, "logout failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) handleSwitchContext(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "missing claims")
		return
	}
	var req switchContextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	res, err := s.svc.SwitchContext(r.Context(), claims, req.OrganizationID, req.YearID,
		deviceDescriptor(r), clientOrigin(r))
	if err != nil {
		s.writeAuthError(w, err, "context switch failed")
		return
	}
	body, err := s.tokenResponse(res)
	if err != nil {
		s.logger.Error("seal access token", "error", err)
		writeInternalError(w, "context switch failed")
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "missing claims")
		return
	}
	acct, err := s.svc.Me(r.Context(), claims)
	if err != nil {
		s.writeAuthError(w, err, "profile lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accountId":      acct.ID,
		"name":           acct.Name,
		"email":          acct.Email,
		"mobile":         acct.Mobile,
		"tenantId":       claims.TenantID,
		"organizationId": claims.OrganizationID,
		"roleId":         claims.RoleID,
		"yearId":         claims.YearID,
		"timezone":       claims.Timezone,
	})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.svc.ForgotPassword(r.Context(), req.Email, clientOrigin(r)); err != nil {
		if errors.Is(err, auth.ErrInvalidArgument) {
			writeBadRequest(w, "email is required")
			return
		}
		s.logger.Error("forgot password failed", "error", err)
		writeInternalError(w, "could not process request")
		return
	}
	// Identical body whether or not the address exists.
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "If the address is registered, a reset code has been sent.",
	})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if err := s.svc.ResetPassword(r.Context(), req.Email, req.OTP, req.NewPassword, clientOrigin(r)); err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidArgument):
			writeBadRequest(w, "email and otp are required")
		case errors.Is(err, auth.ErrWeakPassword):
			writeBadRequest(w, "password must be at least 8 characters")
		case errors.Is(err, auth.ErrResetCodeInvalid):
			writeBadRequest(w, "reset code is not valid")
		default:
			s.logger.Error("reset password failed", "error", err)
			writeInternalError(w, "could not process request")
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// writeAuthError maps service sentinels to HTTP statuses.
func (s *Server) writeAuthError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, auth.ErrInvalidArgument):
		writeBadRequest(w, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeUnauthorized(w, "invalid credentials")
	case errors.Is(err, auth.ErrRefreshUnknown),
		errors.Is(err, auth.ErrRefreshExpired),
		errors.Is(err, auth.ErrRefreshRevoked),
		errors.Is(err, auth.ErrRefreshReplayed),
		errors.Is(err, auth.ErrSessionInvalid):
		writeUnauthorized(w, err.Error())
	case errors.Is(err, auth.ErrAccountInactive),
		errors.Is(err, auth.ErrLicenseExpired),
		errors.Is(err, auth.ErrNoGrants):
		writeForbidden(w, err.Error())
	default:
		s.logger.Error(fallback, "error", err)
		writeInternalError(w, fallback)
	}
}

func summaries(list []sessiondomain.Summary) []sessiondomain.Summary {
	if list == nil {
		return []sessiondomain.Summary{}
	}
	return list
}
