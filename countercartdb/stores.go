// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package countercartdb

import (
	"context"

	"storj.io/private/tagsql"

	"countercart.io/countercart/banking"
	"countercart.io/countercart/banksync"
	"countercart.io/countercart/batching"
	"countercart.io/countercart/causes"
	"countercart.io/countercart/console"
	"countercart.io/countercart/donations"
	"countercart.io/countercart/grants"
	"countercart.io/countercart/matching"
	"countercart.io/countercart/webhooks"
)

// Plain repository getters, bound to the connection pool.

// Users returns the users repository.
func (db *DB) Users() console.Users { return &usersDB{db: db, h: db.db} }

// Organizations returns the organizations repository.
func (db *DB) Organizations() console.Organizations { return &organizationsDB{db: db, h: db.db} }

// OrgMembers returns the organization members repository.
func (db *DB) OrgMembers() console.OrgMembers { return &orgMembersDB{db: db, h: db.db} }

// ClubMembers returns the club members repository.
func (db *DB) ClubMembers() console.ClubMembers { return &clubMembersDB{db: db, h: db.db} }

// Gifts returns the gift subscriptions repository.
func (db *DB) Gifts() console.Gifts { return &giftsDB{db: db, h: db.db} }

// Items returns the bank connections repository.
func (db *DB) Items() banking.Items { return &itemsDB{db: db, h: db.db} }

// Accounts returns the bank accounts repository.
func (db *DB) Accounts() banking.Accounts { return &accountsDB{db: db, h: db.db} }

// Transactions returns the bank transactions repository.
func (db *DB) Transactions() banking.Transactions { return &transactionsDB{db: db, h: db.db} }

// Causes returns the causes repository.
func (db *DB) Causes() causes.Causes { return &causesDB{db: db, h: db.db} }

// UserCauses returns the user cause selections repository.
func (db *DB) UserCauses() causes.UserCauses { return &userCausesDB{db: db, h: db.db} }

// Charities returns the charities repository.
func (db *DB) Charities() causes.Charities { return &charitiesDB{db: db, h: db.db} }

// Mappings returns the merchant mappings repository.
func (db *DB) Mappings() causes.Mappings { return &mappingsDB{db: db, h: db.db} }

// Donations returns the donations repository.
func (db *DB) Donations() donations.DB { return &donationsDB{db: db, h: db.db} }

// Batches returns the donation batches repository.
func (db *DB) Batches() donations.BatchesDB { return &batchesDB{db: db, h: db.db} }

// Events returns the webhook event ledger.
func (db *DB) Events() webhooks.Events { return &eventsDB{db: db, h: db.db} }

// Per-service aggregate stores. Each one hands out repositories bound to
// the same handle, so a store rebound to a transaction keeps every
// repository inside that transaction.

// Console returns the store the console service works with.
func (db *DB) Console() console.DB { return &consoleStore{db: db, h: db.db} }

// Matching returns the store the matching service works with.
func (db *DB) Matching() matching.Store { return &matchingStore{db: db, h: db.db} }

// Banksync returns the store the bank sync service works with.
func (db *DB) Banksync() banksync.Store { return &banksyncStore{db: db, h: db.db} }

// Batching returns the store the batching service works with.
func (db *DB) Batching() batching.Store { return &batchingStore{db: db, h: db.db} }

// Grants returns the store the grants service works with.
func (db *DB) Grants() grants.Store { return &grantsStore{db: db, h: db.db} }

type consoleStore struct {
	db *DB
	h  handle
}

func (s *consoleStore) Users() console.Users                 { return &usersDB{db: s.db, h: s.h} }
func (s *consoleStore) Organizations() console.Organizations { return &organizationsDB{db: s.db, h: s.h} }
func (s *consoleStore) OrgMembers() console.OrgMembers       { return &orgMembersDB{db: s.db, h: s.h} }
func (s *consoleStore) ClubMembers() console.ClubMembers     { return &clubMembersDB{db: s.db, h: s.h} }
func (s *consoleStore) Gifts() console.Gifts                 { return &giftsDB{db: s.db, h: s.h} }
func (s *consoleStore) Donations() donations.DB              { return &donationsDB{db: s.db, h: s.h} }
func (s *consoleStore) Transactions() banking.Transactions   { return &transactionsDB{db: s.db, h: s.h} }
func (s *consoleStore) Accounts() banking.Accounts           { return &accountsDB{db: s.db, h: s.h} }

func (s *consoleStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx console.DB) error) error {
	if _, ok := s.h.(tagsql.Tx); ok {
		return fn(ctx, s)
	}
	return s.db.withTx(ctx, func(ctx context.Context, tx tagsql.Tx) error {
		return fn(ctx, &consoleStore{db: s.db, h: tx})
	})
}

type matchingStore struct {
	db *DB
	h  handle
}

func (s *matchingStore) Transactions() banking.Transactions { return &transactionsDB{db: s.db, h: s.h} }
func (s *matchingStore) Donations() donations.DB            { return &donationsDB{db: s.db, h: s.h} }
func (s *matchingStore) Users() console.Users               { return &usersDB{db: s.db, h: s.h} }
func (s *matchingStore) Mappings() causes.Mappings          { return &mappingsDB{db: s.db, h: s.h} }
func (s *matchingStore) UserCauses() causes.UserCauses      { return &userCausesDB{db: s.db, h: s.h} }
func (s *matchingStore) Charities() causes.Charities        { return &charitiesDB{db: s.db, h: s.h} }

func (s *matchingStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx matching.Store) error) error {
	if _, ok := s.h.(tagsql.Tx); ok {
		return fn(ctx, s)
	}
	return s.db.withTx(ctx, func(ctx context.Context, tx tagsql.Tx) error {
		return fn(ctx, &matchingStore{db: s.db, h: tx})
	})
}

type banksyncStore struct {
	db *DB
	h  handle
}

func (s *banksyncStore) Items() banking.Items               { return &itemsDB{db: s.db, h: s.h} }
func (s *banksyncStore) Accounts() banking.Accounts         { return &accountsDB{db: s.db, h: s.h} }
func (s *banksyncStore) Transactions() banking.Transactions { return &transactionsDB{db: s.db, h: s.h} }
func (s *banksyncStore) Donations() donations.DB            { return &donationsDB{db: s.db, h: s.h} }

func (s *banksyncStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx banksync.Store) error) error {
	if _, ok := s.h.(tagsql.Tx); ok {
		return fn(ctx, s)
	}
	return s.db.withTx(ctx, func(ctx context.Context, tx tagsql.Tx) error {
		return fn(ctx, &banksyncStore{db: s.db, h: tx})
	})
}

type batchingStore struct {
	db *DB
	h  handle
}

func (s *batchingStore) Users() console.Users               { return &usersDB{db: s.db, h: s.h} }
func (s *batchingStore) Accounts() banking.Accounts         { return &accountsDB{db: s.db, h: s.h} }
func (s *batchingStore) Transactions() banking.Transactions { return &transactionsDB{db: s.db, h: s.h} }
func (s *batchingStore) Donations() donations.DB            { return &donationsDB{db: s.db, h: s.h} }
func (s *batchingStore) Batches() donations.BatchesDB       { return &batchesDB{db: s.db, h: s.h} }

func (s *batchingStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx batching.Store) error) error {
	if _, ok := s.h.(tagsql.Tx); ok {
		return fn(ctx, s)
	}
	return s.db.withTx(ctx, func(ctx context.Context, tx tagsql.Tx) error {
		return fn(ctx, &batchingStore{db: s.db, h: tx})
	})
}

type grantsStore struct {
	db *DB
	h  handle
}

func (s *grantsStore) Users() console.Users               { return &usersDB{db: s.db, h: s.h} }
func (s *grantsStore) Transactions() banking.Transactions { return &transactionsDB{db: s.db, h: s.h} }
func (s *grantsStore) Donations() donations.DB            { return &donationsDB{db: s.db, h: s.h} }
func (s *grantsStore) Batches() donations.BatchesDB       { return &batchesDB{db: s.db, h: s.h} }
func (s *grantsStore) Causes() causes.Causes              { return &causesDB{db: s.db, h: s.h} }
func (s *grantsStore) Charities() causes.Charities        { return &charitiesDB{db: s.db, h: s.h} }

func (s *grantsStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx grants.Store) error) error {
	if _, ok := s.h.(tagsql.Tx); ok {
		return fn(ctx, s)
	}
	return s.db.withTx(ctx, func(ctx context.Context, tx tagsql.Tx) error {
		return fn(ctx, &grantsStore{db: s.db, h: tx})
	})
}
