package repository

import (
	"context"
	"database/sql"
)

// BeginWriteTx opens a serializable write transaction. Combined with the
// busy_timeout pragma set in internal/database, a second writer contending
// for the same session row blocks until this transaction commits rather
// than failing immediately — the row-lock behavior §4.4 depends on.
func BeginWriteTx(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
	return db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
}
