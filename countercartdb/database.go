// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

// Package countercartdb implements the repositories declared by the domain
// packages with raw SQL over tagsql, for Postgres in production and
// SQLite3 in tests.
package countercartdb

import (
	"context"
	"database/sql"
	"strings"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/private/dbutil"
	"storj.io/private/dbutil/txutil"
	"storj.io/private/tagsql"

	// registered database drivers.
	_ "github.com/jackc/pgx/v4/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

var (
	// Error is the default countercartdb errs class.
	Error = errs.Class("countercartdb")

	mon = monkit.Package()
)

// handle is the query surface shared by a database and a transaction.
type handle interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (tagsql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// DB holds the database connection and hands out repository
// implementations.
type DB struct {
	log  *zap.Logger
	db   tagsql.DB
	impl dbutil.Implementation
}

// Open connects to the database behind the given connection string.
func Open(ctx context.Context, log *zap.Logger, connstr string) (*DB, error) {
	_, _, impl, err := dbutil.SplitConnStr(connstr)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	var driverName string
	switch impl {
	case dbutil.Postgres, dbutil.Cockroach:
		driverName = "pgx"
	case dbutil.SQLite3:
		driverName = "sqlite3"
		connstr = strings.TrimPrefix(connstr, "sqlite3://")
	default:
		return nil, Error.New("unsupported implementation: %s", connstr)
	}

	rawdb, err := tagsql.Open(ctx, driverName, connstr)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	dbutil.Configure(ctx, rawdb, "countercartdb", mon)

	log.Debug("connected", zap.String("db source", connstr))

	return &DB{log: log, db: rawdb, impl: impl}, nil
}

// Ping checks whether the connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	return Error.Wrap(db.db.PingContext(ctx))
}

// Close closes the connection.
func (db *DB) Close() error {
	return Error.Wrap(db.db.Close())
}

// rebind rewrites ? placeholders into the numbered form postgres expects.
func (db *DB) rebind(query string) string {
	if db.impl == dbutil.SQLite3 {
		return query
	}
	return rebindPostgres(query)
}

func rebindPostgres(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)

	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(itoa(n))
	}
	return b.String()
}

func itoa(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	return itoa(n/10) + string(rune('0'+n%10))
}

// withTx runs fn inside a transaction with commit and rollback handled.
func (db *DB) withTx(ctx context.Context, fn func(ctx context.Context, tx tagsql.Tx) error) error {
	return txutil.WithTx(ctx, db.db, nil, fn)
}
