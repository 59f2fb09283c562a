package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noahsadir/courseman/internal/account/domain"
	"github.com/noahsadir/courseman/internal/db"
)

// EmailConstraint is the unique constraint on accounts.email.
const EmailConstraint = "accounts_email_key"

type PostgresRepository struct {
	db db.Querier
}

// NewPostgresRepository returns an account repository that uses the given db for persistence.
func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

// GetByID returns the account for internalID, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, internalID string) (*domain.Account, error) {
	return r.getOne(ctx, `
		SELECT internal_id, email, password_hash, created_at
		FROM accounts WHERE internal_id = $1`, internalID)
}

// GetByEmail returns the account with the given email, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.getOne(ctx, `
		SELECT internal_id, email, password_hash, created_at
		FROM accounts WHERE email = $1`, email)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg string) (*domain.Account, error) {
	var a domain.Account
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&a.InternalID, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return &a, nil
}

// Create inserts the account. The account must have InternalID set; it is not assigned by this method.
// A duplicate id or email surfaces as the driver's unique violation error.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Account) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO accounts (internal_id, email, password_hash, created_at)
		VALUES ($1, $2, $3, $4)`,
		a.InternalID, a.Email, a.PasswordHash, a.CreatedAt)
	return err
}
