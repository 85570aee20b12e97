package auth

import (
	"errors"
)

// Common auth errors
var (
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrNotAdmin           = errors.New("administrator access required")
	ErrNotImpersonating   = errors.New("not acting as a bot")
)

// Credential bounds
const (
	MinPasswordLength = 6
	MaxUsernameLength = 32
)
