package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"admin-auth/internal/auth"
	"admin-auth/pkg/utils"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"
)

// Postgres error codes we translate.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// PostgresStore reads and writes the user_info and user_role_map tables
// (see migrations/0001_auth.sql).
type PostgresStore struct {
	db    *sqlx.DB
	clock func() time.Time
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

const selectAccount = `
SELECT user_id,
       COALESCE(user_pwd, '')    AS user_pwd,
       COALESCE(user_name, '')   AS user_name,
       COALESCE(email, '')       AS email,
       provider,
       COALESCE(provider_id, '') AS provider_id,
       created_at,
       updated_at
FROM user_info`

func (s *PostgresStore) FindByID(ctx context.Context, id string) (Account, error) {
	return s.findOne(ctx, selectAccount+` WHERE user_id = $1`, id)
}

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (Account, error) {
	return s.findOne(ctx, selectAccount+` WHERE lower(email) = $1`, NormalizeEmail(email))
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg string) (Account, error) {
	var a Account
	if err := s.db.GetContext(ctx, &a, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, fmt.Errorf("select account: %w", err)
	}

	var names []string
	if err := s.db.SelectContext(ctx, &names,
		`SELECT role_id FROM user_role_map WHERE user_id = $1 ORDER BY created_at, role_id`, a.ID); err != nil {
		return Account{}, fmt.Errorf("select roles: %w", err)
	}
	for _, n := range names {
		r, err := auth.ParseRole(n)
		if err != nil {
			return Account{}, fmt.Errorf("account %s: %w", a.ID, err)
		}
		a.Roles = append(a.Roles, r)
	}
	return a, nil
}

// Create inserts the account row and its role rows in one transaction, so a
// crash between the two never leaves a role-less account behind.
func (s *PostgresStore) Create(ctx context.Context, a Account) error {
	if err := validateNew(a); err != nil {
		return err
	}
	now := s.clock().UTC()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now

	err := utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, `
INSERT INTO user_info (user_id, user_pwd, user_name, email, provider, provider_id, created_at, updated_at)
VALUES (:user_id, :user_pwd, :user_name, NULLIF(:email, ''), :provider, NULLIF(:provider_id, ''), :created_at, :updated_at)`, a); err != nil {
			return err
		}
		for _, r := range lo.Uniq(a.Roles) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO user_role_map (user_id, role_id, created_at) VALUES ($1, $2, $3)`,
				a.ID, string(r), now); err != nil {
				return err
			}
		}
		return nil
	})
	if isPgCode(err, pgUniqueViolation) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *PostgresStore) LinkProvider(ctx context.Context, id string, p Provider, externalID string) error {
	if !p.Valid() {
		return ErrInvalid
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_info SET provider = $2, provider_id = NULLIF($3, ''), updated_at = $4 WHERE user_id = $1`,
		id, string(p), externalID, s.clock().UTC())
	if err != nil {
		return fmt.Errorf("link provider: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("link provider: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AssignRole(ctx context.Context, id string, r auth.Role) error {
	if !r.Valid() {
		return ErrInvalid
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_role_map (user_id, role_id, created_at) VALUES ($1, $2, $3)
ON CONFLICT (user_id, role_id) DO NOTHING`,
		id, string(r), s.clock().UTC())
	if isPgCode(err, pgForeignKeyViolation) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
