package identity

import (
	"strings"
	"time"

	"admin-auth/internal/auth"
)

// Provider records how an account authenticates.
type Provider string

const (
	ProviderLocal  Provider = "LOCAL"
	ProviderGoogle Provider = "GOOGLE"
)

func (p Provider) Valid() bool { return p == ProviderLocal || p == ProviderGoogle }

// Account is the stored identity. The core only reads it, except for the
// federated-login upsert and role assignment.
type Account struct {
	ID           string      `json:"id" db:"user_id"`
	PasswordHash string      `json:"-" db:"user_pwd"`
	DisplayName  string      `json:"name" db:"user_name"`
	Email        string      `json:"email" db:"email"`
	Provider     Provider    `json:"provider" db:"provider"`
	ExternalID   string      `json:"external_id,omitempty" db:"provider_id"`
	Roles        []auth.Role `json:"roles" db:"-"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

func (a Account) clone() Account {
	out := a
	out.Roles = append([]auth.Role(nil), a.Roles...)
	return out
}

// NormalizeEmail is the lookup form of an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
