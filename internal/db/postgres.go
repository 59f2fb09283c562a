package db

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	zerologadapter "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jackc/pgx/v5/tracelog"

	"github.com/noahsadir/courseman/internal/logging"
)

// ErrEmptyDSN is returned by Open when no DSN is configured.
var ErrEmptyDSN = errors.New("db: DATABASE_URL is empty")

// Options tunes the connection opened by Open.
type Options struct {
	// QueryLogLevel is the pgx trace level for SQL statements. Zero disables query logging.
	QueryLogLevel tracelog.LogLevel
	MaxOpenConns  int
}

// Open opens a Postgres connection pool using the given DSN and pings it. Caller must call Close when done.
func Open(dsn string) (*sql.DB, error) {
	return OpenWithOptions(dsn, Options{})
}

// OpenWithOptions is Open with query tracing into the global zerolog logger.
func OpenWithOptions(dsn string, opts Options) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, ErrEmptyDSN
	}
	pgcfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if opts.QueryLogLevel != 0 {
		pgcfg.Tracer = &tracelog.TraceLog{
			Logger:   zerologadapter.NewLogger(*logging.GlobalLogger()),
			LogLevel: opts.QueryLogLevel,
		}
	}
	db := stdlib.OpenDB(*pgcfg)
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Querier is satisfied by *sql.DB and *sql.Tx so repositories can run inside a transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn in a transaction, committing on nil error and rolling back otherwise.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
