package login

import (
	"errors"
	"net/http"
)

// Caller-facing failures. Lower-level causes may be wrapped inside; classify
// with errors.Is and never show err.Error() to clients.
var (
	// ErrInvalidCredentials covers both an unknown identifier and a wrong secret.
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInvalidToken           = errors.New("invalid token")
	ErrExpiredToken           = errors.New("token expired")
	ErrProviderExchangeFailed = errors.New("provider exchange failed")
	// ErrAccountConflict refuses a federated merge into an existing account
	// whose email the provider has not verified.
	ErrAccountConflict = errors.New("account conflict")
	ErrTooManyAttempts = errors.New("too many attempts")
)

// Stable machine-readable codes.
const (
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeInvalidToken       = "INVALID_TOKEN"
	CodeTokenExpired       = "TOKEN_EXPIRED"
	CodeProviderExchange   = "PROVIDER_EXCHANGE_FAILED"
	CodeAccountConflict    = "ACCOUNT_CONFLICT"
	CodeTooManyAttempts    = "TOO_MANY_ATTEMPTS"
	CodeInternal           = "INTERNAL_SERVER_ERROR"
)

type failure struct {
	err     error
	code    string
	status  int
	message string
}

var failures = []failure{
	{ErrInvalidCredentials, CodeInvalidCredentials, http.StatusUnauthorized, "Invalid user ID or password."},
	{ErrExpiredToken, CodeTokenExpired, http.StatusUnauthorized, "Token has expired."},
	{ErrInvalidToken, CodeInvalidToken, http.StatusUnauthorized, "Token is invalid."},
	{ErrProviderExchangeFailed, CodeProviderExchange, http.StatusUnauthorized, "Federated login failed."},
	{ErrAccountConflict, CodeAccountConflict, http.StatusConflict, "Account conflict."},
	{ErrTooManyAttempts, CodeTooManyAttempts, http.StatusTooManyRequests, "Too many failed login attempts. Try again later."},
}

var internalFailure = failure{code: CodeInternal, status: http.StatusInternalServerError, message: "Internal server error."}

func lookup(err error) failure {
	for _, f := range failures {
		if errors.Is(err, f.err) {
			return f
		}
	}
	return internalFailure
}

// Code returns the stable code for err, or INTERNAL_SERVER_ERROR.
func Code(err error) string { return lookup(err).code }

// HTTPStatus returns the response status for err.
func HTTPStatus(err error) int { return lookup(err).status }

// Message returns a client-safe message for err.
func Message(err error) string { return lookup(err).message }
