package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by the session manager and the token issuer.
// The transport layer maps these to status codes; storage failures are
// wrapped separately and never collapse into this taxonomy.
var (
	ErrDuplicateIdentity   = errors.New("auth: identity already registered")
	ErrInvalidCredentials  = errors.New("auth: invalid credentials")
	ErrAccountInactive     = errors.New("auth: account inactive")
	ErrPrincipalNotFound   = errors.New("auth: principal not found")
	ErrInvalidRefreshToken = errors.New("auth: invalid or expired refresh token")
	ErrExpiredToken        = errors.New("auth: access token expired")
	ErrInvalidSignature    = errors.New("auth: invalid token signature")
	ErrUnauthenticated     = errors.New("auth: unauthenticated")
)

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("auth: not found")

// ForbiddenError is returned by the guard when the principal lacks one or
// more required permissions. Missing keys are kept for logging; callers
// must not echo them to clients.
type ForbiddenError struct {
	Missing []string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("auth: forbidden, missing permissions: %s", strings.Join(e.Missing, ", "))
}

// IsForbidden reports whether err is a permission denial.
func IsForbidden(err error) bool {
	var fe *ForbiddenError
	return errors.As(err, &fe)
}
