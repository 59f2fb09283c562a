package identifier

import (
	"context"

	"github.com/noahsadir/courseman/internal/db"
)

// UniquenessChecker reports how many rows in scope already hold value.
type UniquenessChecker interface {
	Occurrences(ctx context.Context, scope Scope, value string) (int, error)
}

// PostgresChecker counts matching rows with a parameterized query.
type PostgresChecker struct {
	db db.Querier
}

// NewPostgresChecker returns a checker that queries q (a *sql.DB or *sql.Tx).
func NewPostgresChecker(q db.Querier) *PostgresChecker {
	return &PostgresChecker{db: q}
}

func (c *PostgresChecker) Occurrences(ctx context.Context, scope Scope, value string) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}
	query := "SELECT COUNT(*) FROM " + scope.quotedTable() + " WHERE " + scope.quotedColumn() + " = $1"
	var n int
	if err := c.db.QueryRowContext(ctx, query, value).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
