package repository

import (
	"context"

	"github.com/noahsadir/courseman/internal/db"
	"github.com/noahsadir/courseman/internal/permission/domain"
)

type PostgresRepository struct {
	db db.Querier
}

// NewPostgresRepository returns a grant repository backed by q (a *sql.DB or *sql.Tx).
func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

// Grant inserts the grant; an existing grant is left untouched.
func (r *PostgresRepository) Grant(ctx context.Context, accountID, classID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO edit_permissions (internal_id, class_id)
		VALUES ($1, $2)
		ON CONFLICT (internal_id, class_id) DO NOTHING`, accountID, classID)
	return err
}

// Revoke deletes the grant if present.
func (r *PostgresRepository) Revoke(ctx context.Context, accountID, classID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM edit_permissions WHERE internal_id = $1 AND class_id = $2`, accountID, classID)
	return err
}

// Exists reports whether the account holds a grant for the class.
func (r *PostgresRepository) Exists(ctx context.Context, accountID, classID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM edit_permissions WHERE internal_id = $1 AND class_id = $2)`,
		accountID, classID,
	).Scan(&ok)
	return ok, err
}

// ListClassIDs returns the classes the account holds grants for, oldest grant first.
func (r *PostgresRepository) ListClassIDs(ctx context.Context, accountID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT class_id FROM edit_permissions
		WHERE internal_id = $1
		ORDER BY granted_at, class_id`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListGrants returns every grant on the class, oldest first.
func (r *PostgresRepository) ListGrants(ctx context.Context, classID string) ([]*domain.Grant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT internal_id, class_id, granted_at FROM edit_permissions
		WHERE class_id = $1
		ORDER BY granted_at, internal_id`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Grant
	for rows.Next() {
		var g domain.Grant
		if err := rows.Scan(&g.AccountID, &g.ClassID, &g.GrantedAt); err != nil {
			return nil, err
		}
		g.GrantedAt = g.GrantedAt.UTC()
		out = append(out, &g)
	}
	return out, rows.Err()
}
