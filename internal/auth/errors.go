package auth

import "errors"

// Operational error kinds. Handlers map these onto client-facing rejections;
// anything else propagates as an internal error and is logged with context.
var (
	// ErrInvalidCredentials covers both unknown email and wrong password so
	// responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountInactive means the caller proved identity but the account is
	// suspended.
	ErrAccountInactive = errors.New("auth: account inactive")
	// ErrTokenExpired means a structurally valid access token aged out.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrTokenInvalid covers bad signatures and malformed tokens, and also
	// absent, expired or already-used refresh/reset tokens. Collapsing those
	// reasons is deliberate; do not add detail.
	ErrTokenInvalid = errors.New("auth: token invalid")
	// ErrPermissionDenied means the authenticated variant may not perform
	// the operation.
	ErrPermissionDenied = errors.New("auth: permission denied")
	// ErrValidationFailed rejects malformed input before any store access.
	ErrValidationFailed = errors.New("auth: validation failed")
	// ErrNotFound is the store-level miss; services translate it, callers
	// outside the package should never see it.
	ErrNotFound = errors.New("auth: not found")
)
