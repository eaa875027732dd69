package constants

import "errors"

// Login errors.
var (
	ErrNoLoginCredential = errors.New("provide --passcode or --username to log in")
	ErrPasswordRequired  = errors.New("a password is required when logging in with --username")
)

// Token errors.
var (
	ErrInvalidJWTFormat  = errors.New("invalid JWT format")
	ErrNoExpirationClaim = errors.New("no expiration claim found")
)
