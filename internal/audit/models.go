package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Subject, ip and user agent capture are best-effort; never block auth flows on audit failures.
// - Message and Metadata must not contain secrets or full tokens.
type Event struct {
	ID   string    `json:"id" db:"id"`
	Type EventType `json:"type" db:"type"`

	// Subject is the account the event is about. Empty for anonymous failures
	// where no account was resolved.
	Subject string `json:"subject,omitempty" db:"subject"`

	// IPAddress should capture the original client IP when available.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent string `json:"user_agent,omitempty" db:"user_agent"`

	Message  string `json:"message,omitempty" db:"message"`
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventLoginSucceeded EventType = "login_succeeded"
	EventLoginFailed    EventType = "login_failed"
	EventLoginThrottled EventType = "login_throttled"
	EventTokenRefreshed EventType = "token_refreshed"
	EventLogout         EventType = "logout"
	EventFederatedLogin EventType = "federated_login"
	EventProviderLinked EventType = "provider_linked"
	EventRoleAssigned   EventType = "role_assigned"
)
