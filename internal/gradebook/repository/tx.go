package repository

import (
	"context"
	"database/sql"

	"github.com/noahsadir/courseman/internal/db"
	"github.com/noahsadir/courseman/internal/gradebook/service"
)

// Transactor returns a service.Transactor that opens a transaction on conn and hands fn
// a class repository and grant access (built by grants) bound to it.
func Transactor(conn *sql.DB, grants func(q db.Querier) service.TxGrants) service.Transactor {
	return func(ctx context.Context, fn func(service.TxScope) error) error {
		return db.WithTx(ctx, conn, func(tx *sql.Tx) error {
			return fn(service.TxScope{
				Classes: NewPostgresRepository(tx),
				Grants:  grants(tx),
			})
		})
	}
}
