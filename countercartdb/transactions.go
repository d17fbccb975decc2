// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package countercartdb

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"storj.io/common/uuid"

	"countercart.io/countercart/banking"
)

// transactionsDB implements the banking.Transactions repository.
type transactionsDB struct {
	db *DB
	h  handle
}

const transactionColumns = `id, user_id, account_id, plaid_transaction_id,
	merchant_name, merchant_name_norm, amount, date, category,
	matched_mapping_id, status, created_at`

func (txns *transactionsDB) Insert(ctx context.Context, tx *banking.Transaction) (_ *banking.Transaction, err error) {
	defer mon.Task()(&ctx)(&err)

	if tx.ID.IsZero() {
		tx.ID, err = uuid.New()
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}
	if tx.Status == "" {
		tx.Status = banking.TransactionPending
	}
	tx.CreatedAt = time.Now().UTC()

	category, err := encodeStrings(tx.Category)
	if err != nil {
		return nil, err
	}

	_, err = txns.h.ExecContext(ctx, txns.db.rebind(`
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		tx.ID.Bytes(), tx.UserID.Bytes(), tx.AccountID.Bytes(),
		tx.PlaidTransactionID, tx.MerchantName, tx.MerchantNameNorm,
		tx.Amount.String(), tx.Date.UTC(), category,
		nullUUID(tx.MatchedMappingID), string(tx.Status), tx.CreatedAt,
	)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return tx, nil
}

func (txns *transactionsDB) Get(ctx context.Context, id uuid.UUID) (_ *banking.Transaction, err error) {
	defer mon.Task()(&ctx)(&err)

	row := txns.h.QueryRowContext(ctx, txns.db.rebind(`
		SELECT `+transactionColumns+` FROM transactions WHERE id = ?`), id.Bytes())
	return scanTransaction(row)
}

func (txns *transactionsDB) GetByPlaidTransactionID(ctx context.Context, plaidTransactionID string) (_ *banking.Transaction, err error) {
	defer mon.Task()(&ctx)(&err)

	row := txns.h.QueryRowContext(ctx, txns.db.rebind(`
		SELECT `+transactionColumns+` FROM transactions
		WHERE plaid_transaction_id = ?`), plaidTransactionID)
	return scanTransaction(row)
}

func (txns *transactionsDB) Update(ctx context.Context, id uuid.UUID, update banking.TransactionUpdate) (err error) {
	defer mon.Task()(&ctx)(&err)

	category, err := encodeStrings(update.Category)
	if err != nil {
		return err
	}
	_, err = txns.h.ExecContext(ctx, txns.db.rebind(`
		UPDATE transactions
		SET merchant_name = ?, merchant_name_norm = ?, amount = ?, date = ?, category = ?
		WHERE id = ?`),
		update.MerchantName, update.MerchantNameNorm, update.Amount.String(),
		update.Date.UTC(), category, id.Bytes())
	return Error.Wrap(err)
}

func (txns *transactionsDB) UpdateStatus(ctx context.Context, id uuid.UUID, status banking.TransactionStatus) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = txns.h.ExecContext(ctx, txns.db.rebind(`
		UPDATE transactions SET status = ? WHERE id = ?`),
		string(status), id.Bytes())
	return Error.Wrap(err)
}

func (txns *transactionsDB) SetMatch(ctx context.Context, id uuid.UUID, mappingID *uuid.UUID, status banking.TransactionStatus) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = txns.h.ExecContext(ctx, txns.db.rebind(`
		UPDATE transactions SET matched_mapping_id = ?, status = ? WHERE id = ?`),
		nullUUID(mappingID), string(status), id.Bytes())
	return Error.Wrap(err)
}

func (txns *transactionsDB) UpdateStatusBulk(ctx context.Context, ids []uuid.UUID, status banking.TransactionStatus) (err error) {
	defer mon.Task()(&ctx)(&err)

	if len(ids) == 0 {
		return nil
	}
	args := []interface{}{string(status)}
	placeholders := make([]string, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args = append(args, id.Bytes())
	}
	_, err = txns.h.ExecContext(ctx, txns.db.rebind(`
		UPDATE transactions SET status = ?
		WHERE id IN (`+strings.Join(placeholders, ", ")+`)`), args...)
	return Error.Wrap(err)
}

func (txns *transactionsDB) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = txns.h.ExecContext(ctx, txns.db.rebind(`
		DELETE FROM transactions WHERE id = ?`), id.Bytes())
	return Error.Wrap(err)
}

func scanTransaction(row *sql.Row) (*banking.Transaction, error) {
	var tx banking.Transaction
	var id, userID, accountID, mappingID []byte
	var amount, category, status string

	err := row.Scan(&id, &userID, &accountID, &tx.PlaidTransactionID,
		&tx.MerchantName, &tx.MerchantNameNorm, &amount, &tx.Date,
		&category, &mappingID, &status, &tx.CreatedAt)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if tx.ID, err = uuid.FromBytes(id); err != nil {
		return nil, Error.Wrap(err)
	}
	if tx.UserID, err = uuid.FromBytes(userID); err != nil {
		return nil, Error.Wrap(err)
	}
	if tx.AccountID, err = uuid.FromBytes(accountID); err != nil {
		return nil, Error.Wrap(err)
	}
	if tx.Amount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	if tx.Category, err = decodeStrings(category); err != nil {
		return nil, err
	}
	if tx.MatchedMappingID, err = parseNullUUID(mappingID); err != nil {
		return nil, err
	}
	tx.Status = banking.TransactionStatus(status)
	tx.Date = tx.Date.UTC()
	tx.CreatedAt = tx.CreatedAt.UTC()
	return &tx, nil
}
