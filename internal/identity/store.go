package identity

import (
	"context"
	"errors"

	"admin-auth/internal/auth"
)

var (
	ErrNotFound  = errors.New("identity: account not found")
	ErrDuplicate = errors.New("identity: account already exists")
	ErrInvalid   = errors.New("identity: invalid account")
)

// Store is the account persistence contract consumed by the login service.
// Implementations must be safe for concurrent use.
type Store interface {
	FindByID(ctx context.Context, id string) (Account, error)
	// FindByEmail matches case-insensitively.
	FindByEmail(ctx context.Context, email string) (Account, error)
	// Create persists the account together with its roles.
	Create(ctx context.Context, a Account) error
	// LinkProvider overwrites the provider and external id (last writer wins).
	LinkProvider(ctx context.Context, id string, p Provider, externalID string) error
	// AssignRole is idempotent.
	AssignRole(ctx context.Context, id string, r auth.Role) error
}

func validateNew(a Account) error {
	if a.ID == "" {
		return errors.Join(ErrInvalid, errors.New("id is required"))
	}
	if !a.Provider.Valid() {
		return errors.Join(ErrInvalid, errors.New("unknown provider "+string(a.Provider)))
	}
	for _, r := range a.Roles {
		if !r.Valid() {
			return errors.Join(ErrInvalid, errors.New("unknown role "+string(r)))
		}
	}
	return nil
}
