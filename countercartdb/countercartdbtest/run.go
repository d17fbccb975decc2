// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

// Package countercartdbtest opens throwaway databases for repository and
// service tests.
package countercartdbtest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"storj.io/common/testcontext"
	"storj.io/common/testrand"

	"countercart.io/countercart/countercartdb"
)

// Run opens a fresh in-memory database with the schema applied and runs
// test against it.
func Run(t *testing.T, test func(ctx *testcontext.Context, t *testing.T, db *countercartdb.DB)) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	connstr := "sqlite3://file:" + testrand.UUID().String() + "?mode=memory&cache=shared"
	db, err := countercartdb.Open(ctx, zaptest.NewLogger(t), connstr)
	require.NoError(t, err)
	defer ctx.Check(db.Close)

	require.NoError(t, db.CreateTables(ctx))

	test(ctx, t, db)
}
