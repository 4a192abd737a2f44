package testutil

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/muid-io/tracehub/internal/db"
)

// DbTestConnector wraps every test in one outer transaction that is rolled
// back on Close, so tests never leave rows behind.
type DbTestConnector struct {
	conn    *pgx.Conn
	tx      pgx.Tx
	innerTx pgx.Tx
}

func newDbTestConnector(ctx context.Context, uri string) (*DbTestConnector, error) {
	conn, err := pgx.Connect(ctx, uri)
	if err != nil {
		return nil, err
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return nil, err
	}

	return &DbTestConnector{conn: conn, tx: tx}, nil
}

func (d *DbTestConnector) Connect(ctx context.Context) (pgx.Tx, db.CloseFunc, error) {
	innerTx, err := d.tx.Begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	d.innerTx = innerTx
	return innerTx, func(context.Context) {}, nil
}

func (d *DbTestConnector) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	if d.innerTx != nil {
		return d.innerTx.Exec(ctx, sql, args...)
	}
	return d.tx.Exec(ctx, sql, args...)
}

func (d *DbTestConnector) close(ctx context.Context) {
	_ = d.tx.Rollback(ctx)
	_ = d.conn.Close(ctx)
}
