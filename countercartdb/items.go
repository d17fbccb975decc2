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

// itemsDB implements the banking.Items repository.
type itemsDB struct {
	db *DB
	h  handle
}

const itemColumns = `id, user_id, access_token, item_id, institution_id,
	institution_name, cursor, status, error_code, created_at, updated_at`

func (items *itemsDB) Insert(ctx context.Context, item *banking.Item) (_ *banking.Item, err error) {
	defer mon.Task()(&ctx)(&err)

	if item.ID.IsZero() {
		item.ID, err = uuid.New()
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}
	if item.Status == "" {
		item.Status = banking.ItemActive
	}
	now := time.Now().UTC()
	item.CreatedAt = now
	item.UpdatedAt = now

	_, err = items.h.ExecContext(ctx, items.db.rebind(`
		INSERT INTO plaid_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		item.ID.Bytes(), item.UserID.Bytes(), item.AccessToken, item.ItemID,
		item.InstitutionID, item.InstitutionName, item.Cursor,
		string(item.Status), item.ErrorCode, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return item, nil
}

func (items *itemsDB) Get(ctx context.Context, id uuid.UUID) (_ *banking.Item, err error) {
	defer mon.Task()(&ctx)(&err)

	row := items.h.QueryRowContext(ctx, items.db.rebind(`
		SELECT `+itemColumns+` FROM plaid_items WHERE id = ?`), id.Bytes())
	return scanItem(row)
}

func (items *itemsDB) GetByItemID(ctx context.Context, itemID string) (_ *banking.Item, err error) {
	defer mon.Task()(&ctx)(&err)

	row := items.h.QueryRowContext(ctx, items.db.rebind(`
		SELECT `+itemColumns+` FROM plaid_items WHERE item_id = ?`), itemID)
	return scanItem(row)
}

func (items *itemsDB) ListActive(ctx context.Context) (_ []banking.Item, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := items.h.QueryContext(ctx, items.db.rebind(`
		SELECT `+itemColumns+` FROM plaid_items WHERE status = ? ORDER BY created_at`),
		string(banking.ItemActive))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = Error.Wrap(errs.Combine(err, rows.Err(), rows.Close())) }()

	var list []banking.Item
	for rows.Next() {
		var item banking.Item
		var id, userID []byte
		var status string
		err := rows.Scan(&id, &userID, &item.AccessToken, &item.ItemID,
			&item.InstitutionID, &item.InstitutionName, &item.Cursor,
			&status, &item.ErrorCode, &item.CreatedAt, &item.UpdatedAt)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		if item.ID, err = uuid.FromBytes(id); err != nil {
			return nil, Error.Wrap(err)
		}
		if item.UserID, err = uuid.FromBytes(userID); err != nil {
			return nil, Error.Wrap(err)
		}
		item.Status = banking.ItemStatus(status)
		list = append(list, item)
	}
	return list, nil
}

func (items *itemsDB) UpdateCursor(ctx context.Context, id uuid.UUID, cursor string) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = items.h.ExecContext(ctx, items.db.rebind(`
		UPDATE plaid_items SET cursor = ?, updated_at = ? WHERE id = ?`),
		cursor, time.Now().UTC(), id.Bytes())
	return Error.Wrap(err)
}

func (items *itemsDB) UpdateStatus(ctx context.Context, id uuid.UUID, status banking.ItemStatus, errorCode string) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = items.h.ExecContext(ctx, items.db.rebind(`
		UPDATE plaid_items SET status = ?, error_code = ?, updated_at = ? WHERE id = ?`),
		string(status), errorCode, time.Now().UTC(), id.Bytes())
	return Error.Wrap(err)
}

func (items *itemsDB) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = items.h.ExecContext(ctx, items.db.rebind(`
		DELETE FROM plaid_items WHERE id = ?`), id.Bytes())
	return Error.Wrap(err)
}

func scanItem(row *sql.Row) (*banking.Item, error) {
	var item banking.Item
	var id, userID []byte
	var status string

	err := row.Scan(&id, &userID, &item.AccessToken, &item.ItemID,
		&item.InstitutionID, &item.InstitutionName, &item.Cursor,
		&status, &item.ErrorCode, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if item.ID, err = uuid.FromBytes(id); err != nil {
		return nil, Error.Wrap(err)
	}
	if item.UserID, err = uuid.FromBytes(userID); err != nil {
		return nil, Error.Wrap(err)
	}
	item.Status = banking.ItemStatus(status)
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return &item, nil
}
