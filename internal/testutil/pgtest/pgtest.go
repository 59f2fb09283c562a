// Package pgtest gives repository tests a migrated Postgres database. Tests skip
// unless TEST_DATABASE_URL is set.
package pgtest

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/noahsadir/courseman/internal/db"
	"github.com/noahsadir/courseman/internal/db/migrate"
)

// Tx migrates the test database up and returns a transaction that is rolled back
// when the test ends, so tests never see each other's rows.
func Tx(t *testing.T) *sql.Tx {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}
	if err := migrate.Run(dsn, migrate.Up); err != nil {
		t.Fatalf("migrate up: %v", err)
	}

	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	tx, err := conn.BeginTx(context.Background(), nil)
	if err != nil {
		conn.Close()
		t.Fatalf("begin: %v", err)
	}
	t.Cleanup(func() {
		_ = tx.Rollback()
		conn.Close()
	})
	return tx
}

// Account inserts a bare account row with the given id.
func Account(t *testing.T, q db.Querier, id string) {
	t.Helper()
	_, err := q.ExecContext(context.Background(),
		`INSERT INTO accounts (internal_id, email, password_hash) VALUES ($1, $2, 'x')`,
		id, id+"@example.test")
	if err != nil {
		t.Fatalf("insert account %s: %v", id, err)
	}
}

// Class inserts a bare class row with the given id.
func Class(t *testing.T, q db.Querier, id string) {
	t.Helper()
	_, err := q.ExecContext(context.Background(),
		`INSERT INTO classes (class_id, class_name) VALUES ($1, $2)`, id, "class "+id)
	if err != nil {
		t.Fatalf("insert class %s: %v", id, err)
	}
}
