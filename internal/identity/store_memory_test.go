package identity

import (
	"context"
	"testing"

	"admin-auth/internal/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	require.NoError(t, s.Create(context.Background(), Account{
		ID:           "admin",
		PasswordHash: "$2a$10$hash",
		DisplayName:  "Admin",
		Email:        "Admin@Example.com",
		Provider:     ProviderLocal,
		Roles:        []auth.Role{auth.RoleAdmin},
	}))
	return s
}

func TestMemoryStore_FindByIDAndEmail(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	a, err := s.FindByID(ctx, "admin")
	require.NoError(t, err)
	assert.Equal(t, "Admin", a.DisplayName)
	assert.Equal(t, []auth.Role{auth.RoleAdmin}, a.Roles)
	assert.False(t, a.CreatedAt.IsZero())

	b, err := s.FindByEmail(ctx, "  admin@EXAMPLE.com ")
	require.NoError(t, err)
	assert.Equal(t, "admin", b.ID)

	_, err = s.FindByID(ctx, "nouser")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	a, _ := s.FindByID(ctx, "admin")
	a.Roles[0] = auth.RoleGuest

	b, _ := s.FindByID(ctx, "admin")
	assert.Equal(t, auth.RoleAdmin, b.Roles[0])
}

func TestMemoryStore_CreateRejectsDuplicatesAndBadInput(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.Create(ctx, Account{ID: "admin", Provider: ProviderLocal}), ErrDuplicate)
	assert.ErrorIs(t, s.Create(ctx, Account{ID: "other", Email: "admin@example.com", Provider: ProviderLocal}), ErrDuplicate)
	assert.ErrorIs(t, s.Create(ctx, Account{ID: "", Provider: ProviderLocal}), ErrInvalid)
	assert.ErrorIs(t, s.Create(ctx, Account{ID: "x", Provider: "GITHUB"}), ErrInvalid)
	assert.ErrorIs(t, s.Create(ctx, Account{ID: "x", Provider: ProviderLocal, Roles: []auth.Role{"ROLE_ROOT"}}), ErrInvalid)
}

func TestMemoryStore_LinkProviderOverwrites(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	require.NoError(t, s.LinkProvider(ctx, "admin", ProviderGoogle, "g-1"))
	require.NoError(t, s.LinkProvider(ctx, "admin", ProviderGoogle, "g-2"))

	a, _ := s.FindByID(ctx, "admin")
	assert.Equal(t, ProviderGoogle, a.Provider)
	assert.Equal(t, "g-2", a.ExternalID)

	assert.ErrorIs(t, s.LinkProvider(ctx, "nouser", ProviderGoogle, "g"), ErrNotFound)
}

func TestMemoryStore_AssignRoleIsIdempotent(t *testing.T) {
	s := seed(t)
	ctx := context.Background()

	require.NoError(t, s.AssignRole(ctx, "admin", auth.RoleUser))
	require.NoError(t, s.AssignRole(ctx, "admin", auth.RoleUser))

	a, _ := s.FindByID(ctx, "admin")
	assert.Equal(t, []auth.Role{auth.RoleAdmin, auth.RoleUser}, a.Roles)

	assert.ErrorIs(t, s.AssignRole(ctx, "nouser", auth.RoleUser), ErrNotFound)
	assert.ErrorIs(t, s.AssignRole(ctx, "admin", "ROLE_ROOT"), ErrInvalid)
}
