package auth

import "errors"

// Verification failures. Callers classify with errors.Is; the wrapped cause
// is kept for logs only.
var (
	ErrTokenMalformed = errors.New("token malformed")
	ErrTokenSignature = errors.New("token signature invalid")
	ErrTokenExpired   = errors.New("token expired")
	ErrTokenClaims    = errors.New("token claims invalid")
)
