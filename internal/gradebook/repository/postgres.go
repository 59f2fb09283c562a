package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noahsadir/courseman/internal/db"
	"github.com/noahsadir/courseman/internal/gradebook/domain"
)

type PostgresRepository struct {
	db db.Querier
}

// NewPostgresRepository returns a gradebook repository backed by q (a *sql.DB or *sql.Tx).
func NewPostgresRepository(q db.Querier) *PostgresRepository {
	return &PostgresRepository{db: q}
}

// GetClass returns the class, or nil if not found.
func (r *PostgresRepository) GetClass(ctx context.Context, classID string) (*domain.Class, error) {
	var c domain.Class
	err := r.db.QueryRowContext(ctx, `
		SELECT class_id, class_name, class_code, color, weight
		FROM classes WHERE class_id = $1`, classID,
	).Scan(&c.ID, &c.Name, &c.Code, &c.Color, &c.Weight)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// ListCategories returns the class's categories ordered by name.
func (r *PostgresRepository) ListCategories(ctx context.Context, classID string) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT category_id, class_id, category_name, drop_count, weight
		FROM categories WHERE class_id = $1
		ORDER BY category_name, category_id`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.ClassID, &c.Name, &c.DropCount, &c.Weight); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListGradeScale returns the class's grade bands, highest minimum first.
func (r *PostgresRepository) ListGradeScale(ctx context.Context, classID string) ([]domain.GradeBand, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT grade_id, min_score, max_score, credit
		FROM grade_scales WHERE class_id = $1
		ORDER BY min_score DESC, grade_id`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.GradeBand
	for rows.Next() {
		var g domain.GradeBand
		if err := rows.Scan(&g.GradeID, &g.MinScore, &g.MaxScore, &g.Credit); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// CreateClass inserts the class. A taken class_id surfaces as a unique violation on classes_pkey.
func (r *PostgresRepository) CreateClass(ctx context.Context, c *domain.Class) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO classes (class_id, class_name, class_code, color, weight)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.Name, c.Code, c.Color, c.Weight)
	return err
}

// UpdateClass overwrites the class's attributes in one statement. It reports false when no such class exists.
func (r *PostgresRepository) UpdateClass(ctx context.Context, c *domain.Class) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE classes SET class_name = $2, class_code = $3, color = $4, weight = $5
		WHERE class_id = $1`,
		c.ID, c.Name, c.Code, c.Color, c.Weight)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// LockClass takes a row lock on the class that lasts until the transaction ends.
// It reports false when no such class exists. Outside a transaction the lock is released immediately.
func (r *PostgresRepository) LockClass(ctx context.Context, classID string) (bool, error) {
	var id string
	err := r.db.QueryRowContext(ctx, `SELECT class_id FROM classes WHERE class_id = $1 FOR UPDATE`, classID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CreateTerm inserts the term. A taken term_id surfaces as a unique violation on terms_pkey.
func (r *PostgresRepository) CreateTerm(ctx context.Context, t *domain.Term) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO terms (term_id, internal_id, title, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.AccountID, t.Title, t.StartDate, t.EndDate)
	return err
}

// DeleteTerm deletes the term only if accountID owns it. It reports whether a row was deleted.
func (r *PostgresRepository) DeleteTerm(ctx context.Context, termID, accountID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM terms WHERE term_id = $1 AND internal_id = $2`, termID, accountID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
