package auth

import (
	"errors"
	"fmt"

	sessiondomain "audit-central/backend/internal/session/domain"
)

var (
	// ErrInvalidArgument is returned for missing or malformed request fields.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidCredentials covers unknown email and wrong password alike so
	// responses do not reveal which one failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrLicenseExpired     = errors.New("license has expired")
	// ErrNoGrants is returned when the account has no organization grant to
	// land in, or requests a switch to an organization it holds no role in.
	ErrNoGrants = errors.New("no organization access")
	// ErrSessionInvalid is returned when the session behind a token was
	// revoked or superseded by a newer login.
	ErrSessionInvalid = errors.New("session is no longer valid")

	ErrRefreshUnknown  = errors.New("refresh token not recognized")
	ErrRefreshExpired  = errors.New("refresh token has expired")
	ErrRefreshRevoked  = errors.New("refresh token has been revoked")
	ErrRefreshReplayed = errors.New("refresh token already used")

	// ErrResetCodeInvalid covers unknown accounts, wrong codes, expired codes
	// and exhausted attempts so reset responses stay uniform.
	ErrResetCodeInvalid = errors.New("reset code is not valid")
	// ErrWeakPassword is returned when the proposed password is too short.
	ErrWeakPassword = errors.New("password does not meet requirements")
)

// SessionConflictError reports that the account already has an active session
// and the login did not ask to displace it. Sessions carries the summaries
// shown in the "continue anyway?" prompt.
type SessionConflictError struct {
	Sessions []sessiondomain.Summary
}

func (e *SessionConflictError) Error() string {
	return fmt.Sprintf("account has %d active session(s)", len(e.Sessions))
}
