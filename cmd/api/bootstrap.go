package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"admin-auth/internal/auth"
	"admin-auth/internal/config"
	"admin-auth/internal/identity"
	"admin-auth/internal/login"
)

// seedAdmin creates the bootstrap admin account if configured and missing.
// An existing account is left untouched, whatever its password or roles.
func seedAdmin(ctx context.Context, store identity.Store, hasher login.PasswordHasher, cfg config.BootstrapConfig, log *slog.Logger) error {
	if cfg.AdminID == "" {
		return nil
	}
	_, err := store.FindByID(ctx, cfg.AdminID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, identity.ErrNotFound) {
		return fmt.Errorf("bootstrap admin lookup: %w", err)
	}

	hash, err := hasher.Hash(cfg.AdminPassword)
	if err != nil {
		return fmt.Errorf("bootstrap admin hash: %w", err)
	}
	err = store.Create(ctx, identity.Account{
		ID:           cfg.AdminID,
		PasswordHash: hash,
		DisplayName:  cfg.AdminID,
		Email:        cfg.AdminEmail,
		Provider:     identity.ProviderLocal,
		Roles:        []auth.Role{auth.RoleAdmin},
	})
	if errors.Is(err, identity.ErrDuplicate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("bootstrap admin create: %w", err)
	}
	log.Info("bootstrap admin created", "subject", cfg.AdminID)
	return nil
}
