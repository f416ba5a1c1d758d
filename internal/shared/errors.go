package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked indicates the account is under a lockout window.
	ErrAccountLocked = errors.New("account locked")
	// ErrDuplicateAccount indicates an account already exists for the email.
	ErrDuplicateAccount = errors.New("account already exists")
)
