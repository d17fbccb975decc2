// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package console

import (
	"context"

	"countercart.io/countercart/banking"
	"countercart.io/countercart/donations"
)

// DB contains access to the repositories the console works with.
//
// architecture: Database
type DB interface {
	// Users is a getter for Users repository.
	Users() Users
	// Organizations is a getter for Organizations repository.
	Organizations() Organizations
	// OrgMembers is a getter for OrgMembers repository.
	OrgMembers() OrgMembers
	// ClubMembers is a getter for ClubMembers repository.
	ClubMembers() ClubMembers
	// Gifts is a getter for Gifts repository.
	Gifts() Gifts
	// Donations is a getter for donations repository.
	Donations() donations.DB
	// Transactions is a getter for bank transactions repository.
	Transactions() banking.Transactions
	// Accounts is a getter for bank accounts repository.
	Accounts() banking.Accounts

	// WithTx runs fn inside a database transaction. The passed DB is bound
	// to that transaction.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx DB) error) error
}
