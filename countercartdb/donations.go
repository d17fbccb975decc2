// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package countercartdb

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeebo/errs"

	"storj.io/common/uuid"
	"storj.io/private/tagsql"

	"countercart.io/countercart/donations"
)

// donationsDB implements the donations.DB repository.
type donationsDB struct {
	db *DB
	h  handle
}

const donationColumns = `id, user_id, batch_id, transaction_id, charity_id,
	charity_slug, charity_name, amount, status, every_org_id, grant_status,
	grant_error, receipt_url, error_message, created_at, completed_at`

func (db *donationsDB) Insert(ctx context.Context, donation *donations.Donation) (_ *donations.Donation, err error) {
	defer mon.Task()(&ctx)(&err)

	if donation.ID.IsZero() {
		donation.ID, err = uuid.New()
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}
	if donation.Status == "" {
		donation.Status = donations.StatusPending
	}
	donation.CreatedAt = time.Now().UTC()

	_, err = db.h.ExecContext(ctx, db.db.rebind(`
		INSERT INTO donations (`+donationColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		donation.ID.Bytes(), donation.UserID.Bytes(),
		nullUUID(donation.BatchID), nullUUID(donation.TransactionID),
		nullUUID(donation.CharityID), donation.CharitySlug,
		donation.CharityName, donation.Amount.String(),
		string(donation.Status), donation.EveryOrgID,
		string(donation.GrantStatus), donation.GrantError,
		donation.ReceiptURL, donation.ErrorMessage, donation.CreatedAt,
		nullTime(donation.CompletedAt),
	)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return donation, nil
}

func (db *donationsDB) Get(ctx context.Context, id uuid.UUID) (_ *donations.Donation, err error) {
	defer mon.Task()(&ctx)(&err)

	row := db.h.QueryRowContext(ctx, db.db.rebind(`
		SELECT `+donationColumns+` FROM donations WHERE id = ?`), id.Bytes())
	return scanDonation(row)
}

func (db *donationsDB) ListByUser(ctx context.Context, userID uuid.UUID, limit int) (_ []donations.Donation, err error) {
	defer mon.Task()(&ctx)(&err)

	if limit <= 0 {
		limit = 50
	}
	rows, err := db.h.QueryContext(ctx, db.db.rebind(`
		SELECT `+donationColumns+` FROM donations
		WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`),
		userID.Bytes(), limit)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return scanDonations(rows)
}

func (db *donationsDB) ListPendingUnbatched(ctx context.Context) (_ []donations.Donation, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.h.QueryContext(ctx, db.db.rebind(`
		SELECT `+donationColumns+` FROM donations
		WHERE status = ? AND batch_id IS NULL ORDER BY created_at`),
		string(donations.StatusPending))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return scanDonations(rows)
}

func (db *donationsDB) ListByBatch(ctx context.Context, batchID uuid.UUID) (_ []donations.Donation, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.h.QueryContext(ctx, db.db.rebind(`
		SELECT `+donationColumns+` FROM donations
		WHERE batch_id = ? ORDER BY created_at`), batchID.Bytes())
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return scanDonations(rows)
}

func (db *donationsDB) Update(ctx context.Context, id uuid.UUID, update donations.DonationUpdate) (err error) {
	defer mon.Task()(&ctx)(&err)

	sets, args := donationUpdateSets(update)
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id.Bytes())
	_, err = db.h.ExecContext(ctx, db.db.rebind(`
		UPDATE donations SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
	return Error.Wrap(err)
}

func (db *donationsDB) UpdateByBatch(ctx context.Context, batchID uuid.UUID, update donations.DonationUpdate) (err error) {
	defer mon.Task()(&ctx)(&err)

	sets, args := donationUpdateSets(update)
	if len(sets) == 0 {
		return nil
	}
	args = append(args, batchID.Bytes())
	_, err = db.h.ExecContext(ctx, db.db.rebind(`
		UPDATE donations SET `+strings.Join(sets, ", ")+` WHERE batch_id = ?`), args...)
	return Error.Wrap(err)
}

func (db *donationsDB) Delete(ctx context.Context, id uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = db.h.ExecContext(ctx, db.db.rebind(`
		DELETE FROM donations WHERE id = ?`), id.Bytes())
	return Error.Wrap(err)
}

func (db *donationsDB) DeleteByTransaction(ctx context.Context, transactionID uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = db.h.ExecContext(ctx, db.db.rebind(`
		DELETE FROM donations WHERE transaction_id = ?`), transactionID.Bytes())
	return Error.Wrap(err)
}

func (db *donationsDB) TotalCompleted(ctx context.Context) (count int64, sum decimal.Decimal, err error) {
	defer mon.Task()(&ctx)(&err)

	var total sql.NullString
	row := db.h.QueryRowContext(ctx, db.db.rebind(`
		SELECT COUNT(*), SUM(CAST(amount AS NUMERIC)) FROM donations WHERE status = ?`),
		string(donations.StatusCompleted))
	if err := row.Scan(&count, &total); err != nil {
		return 0, decimal.Zero, Error.Wrap(err)
	}
	if !total.Valid {
		return count, decimal.Zero, nil
	}
	sum, err = parseDecimal(total.String)
	return count, sum, err
}

func donationUpdateSets(update donations.DonationUpdate) (sets []string, args []interface{}) {
	set := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if update.Status != nil {
		set("status", string(*update.Status))
	}
	if update.BatchID != nil {
		set("batch_id", update.BatchID.Bytes())
	}
	if update.EveryOrgID != nil {
		set("every_org_id", *update.EveryOrgID)
	}
	if update.GrantStatus != nil {
		set("grant_status", string(*update.GrantStatus))
	}
	if update.GrantError != nil {
		set("grant_error", *update.GrantError)
	}
	if update.ReceiptURL != nil {
		set("receipt_url", *update.ReceiptURL)
	}
	if update.ErrorMessage != nil {
		set("error_message", *update.ErrorMessage)
	}
	if update.CompletedAt != nil {
		set("completed_at", update.CompletedAt.UTC())
	}
	return sets, args
}

func scanDonations(rows tagsql.Rows) (list []donations.Donation, err error) {
	defer func() { err = Error.Wrap(errs.Combine(err, rows.Err(), rows.Close())) }()

	for rows.Next() {
		donation, err := scanDonationRow(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *donation)
	}
	return list, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDonation(row *sql.Row) (*donations.Donation, error) {
	return scanDonationRow(row)
}

func scanDonationRow(row scanner) (*donations.Donation, error) {
	var donation donations.Donation
	var id, userID, batchID, transactionID, charityID []byte
	var amount, status, grantStatus string
	var completedAt sql.NullTime

	err := row.Scan(&id, &userID, &batchID, &transactionID, &charityID,
		&donation.CharitySlug, &donation.CharityName, &amount, &status,
		&donation.EveryOrgID, &grantStatus, &donation.GrantError,
		&donation.ReceiptURL, &donation.ErrorMessage, &donation.CreatedAt,
		&completedAt)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if donation.ID, err = uuid.FromBytes(id); err != nil {
		return nil, Error.Wrap(err)
	}
	if donation.UserID, err = uuid.FromBytes(userID); err != nil {
		return nil, Error.Wrap(err)
	}
	if donation.BatchID, err = parseNullUUID(batchID); err != nil {
		return nil, err
	}
	if donation.TransactionID, err = parseNullUUID(transactionID); err != nil {
		return nil, err
	}
	if donation.CharityID, err = parseNullUUID(charityID); err != nil {
		return nil, err
	}
	if donation.Amount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	donation.Status = donations.DonationStatus(status)
	donation.GrantStatus = donations.GrantStatus(grantStatus)
	donation.CreatedAt = donation.CreatedAt.UTC()
	donation.CompletedAt = parseNullTime(completedAt)
	return &donation, nil
}

// batchesDB implements the donations.BatchesDB repository.
type batchesDB struct {
	db *DB
	h  handle
}

const batchColumns = `id, user_id, week_of, total_amount, status,
	stripe_payment_intent_id, grant_status, grant_error,
	every_org_disbursement_id, created_at, processed_at, granted_at`

func (db *batchesDB) Insert(ctx context.Context, batch *donations.Batch) (_ *donations.Batch, err error) {
	defer mon.Task()(&ctx)(&err)

	if batch.ID.IsZero() {
		batch.ID, err = uuid.New()
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}
	if batch.Status == "" {
		batch.Status = donations.BatchPending
	}
	batch.CreatedAt = time.Now().UTC()

	_, err = db.h.ExecContext(ctx, db.db.rebind(`
		INSERT INTO donation_batches (`+batchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		batch.ID.Bytes(), batch.UserID.Bytes(), batch.WeekOf.UTC(),
		batch.TotalAmount.String(), string(batch.Status),
		batch.StripePaymentIntentID, string(batch.GrantStatus),
		batch.GrantError, batch.EveryOrgDisbursementID, batch.CreatedAt,
		nullTime(batch.ProcessedAt), nullTime(batch.GrantedAt),
	)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return batch, nil
}

func (db *batchesDB) Get(ctx context.Context, id uuid.UUID) (_ *donations.Batch, err error) {
	defer mon.Task()(&ctx)(&err)

	row := db.h.QueryRowContext(ctx, db.db.rebind(`
		SELECT `+batchColumns+` FROM donation_batches WHERE id = ?`), id.Bytes())
	return scanBatchRow(row)
}

func (db *batchesDB) GetByUserAndWeek(ctx context.Context, userID uuid.UUID, weekOf time.Time) (_ *donations.Batch, err error) {
	defer mon.Task()(&ctx)(&err)

	row := db.h.QueryRowContext(ctx, db.db.rebind(`
		SELECT `+batchColumns+` FROM donation_batches
		WHERE user_id = ? AND week_of = ?`), userID.Bytes(), weekOf.UTC())
	batch, err := scanBatchRow(row)
	if errs.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return batch, err
}

func (db *batchesDB) GetByPaymentIntent(ctx context.Context, paymentIntentID string) (_ *donations.Batch, err error) {
	defer mon.Task()(&ctx)(&err)

	row := db.h.QueryRowContext(ctx, db.db.rebind(`
		SELECT `+batchColumns+` FROM donation_batches
		WHERE stripe_payment_intent_id = ?`), paymentIntentID)
	return scanBatchRow(row)
}

func (db *batchesDB) GetByDisbursement(ctx context.Context, disbursementID string) (_ *donations.Batch, err error) {
	defer mon.Task()(&ctx)(&err)

	row := db.h.QueryRowContext(ctx, db.db.rebind(`
		SELECT `+batchColumns+` FROM donation_batches
		WHERE every_org_disbursement_id = ?`), disbursementID)
	return scanBatchRow(row)
}

func (db *batchesDB) ListByStatus(ctx context.Context, status donations.BatchStatus) (_ []donations.Batch, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.h.QueryContext(ctx, db.db.rebind(`
		SELECT `+batchColumns+` FROM donation_batches
		WHERE status = ? ORDER BY created_at`), string(status))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return scanBatches(rows)
}

func (db *batchesDB) ListGrantFailed(ctx context.Context) (_ []donations.Batch, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.h.QueryContext(ctx, db.db.rebind(`
		SELECT `+batchColumns+` FROM donation_batches
		WHERE status = ? AND grant_status = ? ORDER BY created_at`),
		string(donations.BatchCompleted), string(donations.GrantFailed))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return scanBatches(rows)
}

func (db *batchesDB) Update(ctx context.Context, id uuid.UUID, update donations.BatchUpdate) (err error) {
	defer mon.Task()(&ctx)(&err)

	var sets []string
	var args []interface{}
	set := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}
	if update.Status != nil {
		set("status", string(*update.Status))
	}
	if update.TotalAmount != nil {
		set("total_amount", update.TotalAmount.String())
	}
	if update.StripePaymentIntentID != nil {
		set("stripe_payment_intent_id", *update.StripePaymentIntentID)
	}
	if update.GrantStatus != nil {
		set("grant_status", string(*update.GrantStatus))
	}
	if update.GrantError != nil {
		set("grant_error", *update.GrantError)
	}
	if update.EveryOrgDisbursementID != nil {
		set("every_org_disbursement_id", *update.EveryOrgDisbursementID)
	}
	if update.ProcessedAt != nil {
		set("processed_at", update.ProcessedAt.UTC())
	}
	if update.GrantedAt != nil {
		set("granted_at", update.GrantedAt.UTC())
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id.Bytes())
	_, err = db.h.ExecContext(ctx, db.db.rebind(`
		UPDATE donation_batches SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
	return Error.Wrap(err)
}

func scanBatches(rows tagsql.Rows) (list []donations.Batch, err error) {
	defer func() { err = Error.Wrap(errs.Combine(err, rows.Err(), rows.Close())) }()

	for rows.Next() {
		batch, err := scanBatchRow(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *batch)
	}
	return list, nil
}

func scanBatchRow(row scanner) (*donations.Batch, error) {
	var batch donations.Batch
	var id, userID []byte
	var amount, status, grantStatus string
	var processedAt, grantedAt sql.NullTime

	err := row.Scan(&id, &userID, &batch.WeekOf, &amount, &status,
		&batch.StripePaymentIntentID, &grantStatus, &batch.GrantError,
		&batch.EveryOrgDisbursementID, &batch.CreatedAt,
		&processedAt, &grantedAt)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if batch.ID, err = uuid.FromBytes(id); err != nil {
		return nil, Error.Wrap(err)
	}
	if batch.UserID, err = uuid.FromBytes(userID); err != nil {
		return nil, Error.Wrap(err)
	}
	if batch.TotalAmount, err = parseDecimal(amount); err != nil {
		return nil, err
	}
	batch.Status = donations.BatchStatus(status)
	batch.GrantStatus = donations.GrantStatus(grantStatus)
	batch.WeekOf = batch.WeekOf.UTC()
	batch.CreatedAt = batch.CreatedAt.UTC()
	batch.ProcessedAt = parseNullTime(processedAt)
	batch.GrantedAt = parseNullTime(grantedAt)
	return &batch, nil
}
