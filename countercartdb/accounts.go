// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package countercartdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/zeebo/errs"

	"storj.io/common/uuid"

	"countercart.io/countercart/banking"
)

// accountsDB implements the banking.Accounts repository.
type accountsDB struct {
	db *DB
	h  handle
}

const accountColumns = `id, user_id, item_id, plaid_account_id, name,
	official_name, type, subtype, mask, is_active, stripe_payment_method_id,
	ach_enabled, ach_authorized_at, created_at`

func (accounts *accountsDB) Insert(ctx context.Context, account *banking.Account) (_ *banking.Account, err error) {
	defer mon.Task()(&ctx)(&err)

	if account.ID.IsZero() {
		account.ID, err = uuid.New()
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}
	account.CreatedAt = time.Now().UTC()

	_, err = accounts.h.ExecContext(ctx, accounts.db.rebind(`
		INSERT INTO bank_accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		account.ID.Bytes(), account.UserID.Bytes(), account.ItemID.Bytes(),
		account.PlaidAccountID, account.Name, account.OfficialName,
		account.Type, account.Subtype, account.Mask, account.IsActive,
		account.StripePaymentMethodID, account.ACHEnabled,
		nullTime(account.ACHAuthorizedAt), account.CreatedAt,
	)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return account, nil
}

func (accounts *accountsDB) Get(ctx context.Context, id uuid.UUID) (_ *banking.Account, err error) {
	defer mon.Task()(&ctx)(&err)

	row := accounts.h.QueryRowContext(ctx, accounts.db.rebind(`
		SELECT `+accountColumns+` FROM bank_accounts WHERE id = ?`), id.Bytes())
	return scanAccount(row)
}

func (accounts *accountsDB) GetByPlaidAccountID(ctx context.Context, itemID uuid.UUID, plaidAccountID string) (_ *banking.Account, err error) {
	defer mon.Task()(&ctx)(&err)

	row := accounts.h.QueryRowContext(ctx, accounts.db.rebind(`
		SELECT `+accountColumns+` FROM bank_accounts
		WHERE item_id = ? AND plaid_account_id = ?`),
		itemID.Bytes(), plaidAccountID)
	return scanAccount(row)
}

func (accounts *accountsDB) ListByItem(ctx context.Context, itemID uuid.UUID) (_ []banking.Account, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := accounts.h.QueryContext(ctx, accounts.db.rebind(`
		SELECT `+accountColumns+` FROM bank_accounts
		WHERE item_id = ? ORDER BY created_at`), itemID.Bytes())
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = Error.Wrap(errs.Combine(err, rows.Err(), rows.Close())) }()

	var list []banking.Account
	for rows.Next() {
		var account banking.Account
		var id, userID, accItemID []byte
		var authorizedAt sql.NullTime
		err := rows.Scan(&id, &userID, &accItemID, &account.PlaidAccountID,
			&account.Name, &account.OfficialName, &account.Type,
			&account.Subtype, &account.Mask, &account.IsActive,
			&account.StripePaymentMethodID, &account.ACHEnabled,
			&authorizedAt, &account.CreatedAt)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		if account.ID, err = uuid.FromBytes(id); err != nil {
			return nil, Error.Wrap(err)
		}
		if account.UserID, err = uuid.FromBytes(userID); err != nil {
			return nil, Error.Wrap(err)
		}
		if account.ItemID, err = uuid.FromBytes(accItemID); err != nil {
			return nil, Error.Wrap(err)
		}
		account.ACHAuthorizedAt = parseNullTime(authorizedAt)
		list = append(list, account)
	}
	return list, nil
}

func (accounts *accountsDB) GetACHAccount(ctx context.Context, userID uuid.UUID) (_ *banking.Account, err error) {
	defer mon.Task()(&ctx)(&err)

	row := accounts.h.QueryRowContext(ctx, accounts.db.rebind(`
		SELECT `+accountColumns+` FROM bank_accounts
		WHERE user_id = ? AND ach_enabled AND is_active
		ORDER BY ach_authorized_at DESC LIMIT 1`), userID.Bytes())
	return scanAccount(row)
}

func (accounts *accountsDB) EnableACH(ctx context.Context, id uuid.UUID, paymentMethodID string, authorizedAt time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = accounts.h.ExecContext(ctx, accounts.db.rebind(`
		UPDATE bank_accounts
		SET stripe_payment_method_id = ?, ach_enabled = TRUE, ach_authorized_at = ?
		WHERE id = ?`),
		paymentMethodID, authorizedAt.UTC(), id.Bytes())
	return Error.Wrap(err)
}

func (accounts *accountsDB) DisableACH(ctx context.Context, id uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = accounts.h.ExecContext(ctx, accounts.db.rebind(`
		UPDATE bank_accounts
		SET stripe_payment_method_id = '', ach_enabled = FALSE, ach_authorized_at = NULL
		WHERE id = ?`), id.Bytes())
	return Error.Wrap(err)
}

func scanAccount(row *sql.Row) (*banking.Account, error) {
	var account banking.Account
	var id, userID, itemID []byte
	var authorizedAt sql.NullTime

	err := row.Scan(&id, &userID, &itemID, &account.PlaidAccountID,
		&account.Name, &account.OfficialName, &account.Type, &account.Subtype,
		&account.Mask, &account.IsActive, &account.StripePaymentMethodID,
		&account.ACHEnabled, &authorizedAt, &account.CreatedAt)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if account.ID, err = uuid.FromBytes(id); err != nil {
		return nil, Error.Wrap(err)
	}
	if account.UserID, err = uuid.FromBytes(userID); err != nil {
		return nil, Error.Wrap(err)
	}
	if account.ItemID, err = uuid.FromBytes(itemID); err != nil {
		return nil, Error.Wrap(err)
	}
	account.ACHAuthorizedAt = parseNullTime(authorizedAt)
	account.CreatedAt = account.CreatedAt.UTC()
	return &account, nil
}
