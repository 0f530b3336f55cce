package login

import (
	"context"
	"time"

	"admin-auth/internal/audit"
	"admin-auth/internal/auth"
	"admin-auth/internal/federation"
	"admin-auth/internal/identity"
)

// TokenCodec is satisfied by *auth.Codec.
type TokenCodec interface {
	Issue(subject string, roles []auth.Role, kind auth.TokenKind, now time.Time) (string, time.Time, error)
	Verify(token string, now time.Time) (auth.Principal, error)
	AccessTTL() time.Duration
}

// PasswordHasher is satisfied by *password.Hasher.
type PasswordHasher interface {
	Hash(secret string) (string, error)
	Matches(secret, hash string) bool
}

// Exchanger is satisfied by *federation.GoogleExchange.
type Exchanger interface {
	Exchange(ctx context.Context, code string) (federation.Profile, error)
}

// AttemptLimiter is satisfied by *throttle.LoginThrottle.
type AttemptLimiter interface {
	Allow(ctx context.Context, identifier string) error
	Fail(ctx context.Context, identifier string) error
	Reset(ctx context.Context, identifier string) error
}

// EventRecorder is satisfied by *audit.Service.
type EventRecorder interface {
	Append(ctx context.Context, e audit.Event) error
}

// RequestMeta is what the transport knows about the caller.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// Summary is the account view returned with a fresh token pair.
type Summary struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Email    string            `json:"email"`
	Roles    []auth.Role       `json:"roles"`
	Provider identity.Provider `json:"provider"`
}

// Outcome is produced by every successful login, refresh and federated login.
// It is never stored.
type Outcome struct {
	AccessToken  string  `json:"accessToken"`
	RefreshToken string  `json:"refreshToken"`
	TokenType    string  `json:"tokenType"`
	ExpiresIn    int64   `json:"expiresIn"`
	User         Summary `json:"user"`
}

// ValidationResult never carries an error; Message explains a false Valid.
type ValidationResult struct {
	Valid   bool        `json:"valid"`
	Subject string      `json:"subject,omitempty"`
	Roles   []auth.Role `json:"roles,omitempty"`
	Message string      `json:"message"`
}

const tokenTypeBearer = "Bearer"
