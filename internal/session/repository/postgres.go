package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/noahsadir/courseman/internal/db"
	"github.com/noahsadir/courseman/internal/session/domain"
)

type PostgresRepository struct {
	db db.Querier
}

// NewPostgresRepository returns a session repository backed by q (a *sql.DB or *sql.Tx).
func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

// GetByAccount returns the account's session, or nil if it has none.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByAccount(ctx context.Context, accountID string) (*domain.Session, error) {
	var (
		s         domain.Session
		requestID sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT internal_id, token, issued_at, expires_at, request_id
		FROM sessions
		WHERE internal_id = $1`, accountID,
	).Scan(&s.AccountID, &s.Token, &s.IssuedAt, &s.ExpiresAt, &requestID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.RequestID = requestID.String
	s.IssuedAt = s.IssuedAt.UTC()
	s.ExpiresAt = s.ExpiresAt.UTC()
	return &s, nil
}

// Upsert writes s as the account's only session in a single statement, replacing any previous token.
func (r *PostgresRepository) Upsert(ctx context.Context, s *domain.Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (internal_id, token, issued_at, expires_at, request_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (internal_id) DO UPDATE
		SET token = EXCLUDED.token,
		    issued_at = EXCLUDED.issued_at,
		    expires_at = EXCLUDED.expires_at,
		    request_id = EXCLUDED.request_id`,
		s.AccountID, s.Token, s.IssuedAt, s.ExpiresAt, nullString(s.RequestID),
	)
	return err
}

// Delete removes the account's session. Deleting a missing session is not an error.
func (r *PostgresRepository) Delete(ctx context.Context, accountID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE internal_id = $1`, accountID)
	return err
}

// DeleteExpired removes sessions whose expires_at is at or before now and returns how many were removed.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
