package services

import "errors"

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrIO         = errors.New("io failure")
	ErrDecode     = errors.New("decode failed")
	ErrDatabase   = errors.New("database error")
)

// OTP outcomes. All of them mean "invalid OTP" to the caller; they differ
// only for logs and messages.
var (
	ErrResendThrottled  = errors.New("resend throttled")
	ErrNoPendingRequest = errors.New("no pending access request")
	ErrCodeMismatch     = errors.New("code mismatch")
	ErrCodeExpired      = errors.New("code expired")
	ErrTooManyAttempts  = errors.New("too many attempts")
)

// IsInvalidOTP reports whether err is one of the verification failures.
func IsInvalidOTP(err error) bool {
	return errors.Is(err, ErrNoPendingRequest) ||
		errors.Is(err, ErrCodeMismatch) ||
		errors.Is(err, ErrCodeExpired) ||
		errors.Is(err, ErrTooManyAttempts)
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
)
