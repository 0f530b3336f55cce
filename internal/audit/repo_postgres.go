package audit

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// PostgresRepo writes to the audit_events table. INSERT only.
type PostgresRepo struct {
	db *sqlx.DB
}

func NewPostgresRepo(db *sqlx.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.NamedExecContext(ctx, `
INSERT INTO audit_events (id, type, subject, ip_address, user_agent, message, metadata, created_at)
VALUES (:id, :type, :subject, :ip_address, :user_agent, :message, :metadata, :created_at)`, e)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}
