package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// MFA state errors
	ErrMFANotEnabled        = errors.New("mfa is not enabled for this user")
	ErrMFAAlreadyEnabled    = errors.New("mfa is already enabled for this user")
	ErrMFAInvalidCode       = errors.New("invalid verification code")
	ErrMFARateLimited       = errors.New("too many failed verification attempts")
	ErrMFANoPendingSecret   = errors.New("no pending secret to confirm")
	ErrMFAMethodUnavailable = errors.New("verification method has no delivery provider")
	ErrReauthRequired       = errors.New("re-authentication proof required")
)
