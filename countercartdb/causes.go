// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package countercartdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/zeebo/errs"

	"storj.io/common/uuid"

	"countercart.io/countercart/causes"
)

// causesDB implements the causes.Causes repository.
type causesDB struct {
	db *DB
	h  handle
}

const causeColumns = `id, name, slug, description, is_active, created_at`

func (db *causesDB) Insert(ctx context.Context, cause *causes.Cause) (_ *causes.Cause, err error) {
	defer mon.Task()(&ctx)(&err)

	if cause.ID.IsZero() {
		cause.ID, err = uuid.New()
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}
	cause.CreatedAt = time.Now().UTC()

	_, err = db.h.ExecContext(ctx, db.db.rebind(`
		INSERT INTO causes (`+causeColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		cause.ID.Bytes(), cause.Name, cause.Slug, cause.Description,
		cause.IsActive, cause.CreatedAt,
	)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return cause, nil
}

func (db *causesDB) Get(ctx context.Context, id uuid.UUID) (_ *causes.Cause, err error) {
	defer mon.Task()(&ctx)(&err)

	row := db.h.QueryRowContext(ctx, db.db.rebind(`
		SELECT `+causeColumns+` FROM causes WHERE id = ?`), id.Bytes())
	return scanCause(row)
}

func (db *causesDB) GetBySlug(ctx context.Context, slug string) (_ *causes.Cause, err error) {
	defer mon.Task()(&ctx)(&err)

	row := db.h.QueryRowContext(ctx, db.db.rebind(`
		SELECT `+causeColumns+` FROM causes WHERE slug = ?`), slug)
	return scanCause(row)
}

func (db *causesDB) ListActive(ctx context.Context) (_ []causes.Cause, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.h.QueryContext(ctx, `
		SELECT `+causeColumns+` FROM causes WHERE is_active ORDER BY name`)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = Error.Wrap(errs.Combine(err, rows.Err(), rows.Close())) }()

	var list []causes.Cause
	for rows.Next() {
		var cause causes.Cause
		var id []byte
		err := rows.Scan(&id, &cause.Name, &cause.Slug, &cause.Description,
			&cause.IsActive, &cause.CreatedAt)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		if cause.ID, err = uuid.FromBytes(id); err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, cause)
	}
	return list, nil
}

func scanCause(row *sql.Row) (*causes.Cause, error) {
	var cause causes.Cause
	var id []byte

	err := row.Scan(&id, &cause.Name, &cause.Slug, &cause.Description,
		&cause.IsActive, &cause.CreatedAt)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if cause.ID, err = uuid.FromBytes(id); err != nil {
		return nil, Error.Wrap(err)
	}
	cause.CreatedAt = cause.CreatedAt.UTC()
	return &cause, nil
}

// userCausesDB implements the causes.UserCauses repository.
type userCausesDB struct {
	db *DB
	h  handle
}

func (db *userCausesDB) Insert(ctx context.Context, userCause *causes.UserCause) (_ *causes.UserCause, err error) {
	defer mon.Task()(&ctx)(&err)

	if userCause.ID.IsZero() {
		userCause.ID, err = uuid.New()
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}
	userCause.CreatedAt = time.Now().UTC()

	_, err = db.h.ExecContext(ctx, db.db.rebind(`
		INSERT INTO user_causes (id, user_id, cause_id, priority, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		userCause.ID.Bytes(), userCause.UserID.Bytes(),
		userCause.CauseID.Bytes(), userCause.Priority, userCause.CreatedAt,
	)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return userCause, nil
}

func (db *userCausesDB) Has(ctx context.Context, userID, causeID uuid.UUID) (has bool, err error) {
	defer mon.Task()(&ctx)(&err)

	var count int64
	row := db.h.QueryRowContext(ctx, db.db.rebind(`
		SELECT COUNT(*) FROM user_causes WHERE user_id = ? AND cause_id = ?`),
		userID.Bytes(), causeID.Bytes())
	if err := row.Scan(&count); err != nil {
		return false, Error.Wrap(err)
	}
	return count > 0, nil
}

func (db *userCausesDB) ListByUser(ctx context.Context, userID uuid.UUID) (_ []causes.UserCause, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.h.QueryContext(ctx, db.db.rebind(`
		SELECT id, user_id, cause_id, priority, created_at
		FROM user_causes WHERE user_id = ? ORDER BY priority, created_at`),
		userID.Bytes())
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = Error.Wrap(errs.Combine(err, rows.Err(), rows.Close())) }()

	var list []causes.UserCause
	for rows.Next() {
		var userCause causes.UserCause
		var id, uID, causeID []byte
		err := rows.Scan(&id, &uID, &causeID, &userCause.Priority, &userCause.CreatedAt)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		if userCause.ID, err = uuid.FromBytes(id); err != nil {
			return nil, Error.Wrap(err)
		}
		if userCause.UserID, err = uuid.FromBytes(uID); err != nil {
			return nil, Error.Wrap(err)
		}
		if userCause.CauseID, err = uuid.FromBytes(causeID); err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, userCause)
	}
	return list, nil
}

func (db *userCausesDB) Delete(ctx context.Context, userID, causeID uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = db.h.ExecContext(ctx, db.db.rebind(`
		DELETE FROM user_causes WHERE user_id = ? AND cause_id = ?`),
		userID.Bytes(), causeID.Bytes())
	return Error.Wrap(err)
}

// charitiesDB implements the causes.Charities repository.
type charitiesDB struct {
	db *DB
	h  handle
}

const charityColumns = `id, cause_id, every_org_slug, name, description, ein,
	logo_url, website_url, is_default, is_active, created_at`

func (db *charitiesDB) Insert(ctx context.Context, charity *causes.Charity) (_ *causes.Charity, err error) {
	defer mon.Task()(&ctx)(&err)

	if charity.ID.IsZero() {
		charity.ID, err = uuid.New()
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}
	charity.CreatedAt = time.Now().UTC()

	_, err = db.h.ExecContext(ctx, db.db.rebind(`
		INSERT INTO charities (`+charityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		charity.ID.Bytes(), charity.CauseID.Bytes(), charity.EveryOrgSlug,
		charity.Name, charity.Description, charity.EIN, charity.LogoURL,
		charity.WebsiteURL, charity.IsDefault, charity.IsActive,
		charity.CreatedAt,
	)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return charity, nil
}

func (db *charitiesDB) Get(ctx context.Context, id uuid.UUID) (_ *causes.Charity, err error) {
	defer mon.Task()(&ctx)(&err)

	row := db.h.QueryRowContext(ctx, db.db.rebind(`
		SELECT `+charityColumns+` FROM charities WHERE id = ?`), id.Bytes())
	return scanCharity(row)
}

func (db *charitiesDB) GetDefaultForCause(ctx context.Context, causeID uuid.UUID) (_ *causes.Charity, err error) {
	defer mon.Task()(&ctx)(&err)

	// Preferring the configured default, then any active charity.
	row := db.h.QueryRowContext(ctx, db.db.rebind(`
		SELECT `+charityColumns+` FROM charities
		WHERE cause_id = ? AND is_active
		ORDER BY is_default DESC, created_at LIMIT 1`), causeID.Bytes())
	return scanCharity(row)
}

func (db *charitiesDB) ListByCause(ctx context.Context, causeID uuid.UUID) (_ []causes.Charity, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.h.QueryContext(ctx, db.db.rebind(`
		SELECT `+charityColumns+` FROM charities
		WHERE cause_id = ? AND is_active ORDER BY name`), causeID.Bytes())
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = Error.Wrap(errs.Combine(err, rows.Err(), rows.Close())) }()

	var list []causes.Charity
	for rows.Next() {
		var charity causes.Charity
		var id, cID []byte
		err := rows.Scan(&id, &cID, &charity.EveryOrgSlug, &charity.Name,
			&charity.Description, &charity.EIN, &charity.LogoURL,
			&charity.WebsiteURL, &charity.IsDefault, &charity.IsActive,
			&charity.CreatedAt)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		if charity.ID, err = uuid.FromBytes(id); err != nil {
			return nil, Error.Wrap(err)
		}
		if charity.CauseID, err = uuid.FromBytes(cID); err != nil {
			return nil, Error.Wrap(err)
		}
		list = append(list, charity)
	}
	return list, nil
}

func scanCharity(row *sql.Row) (*causes.Charity, error) {
	var charity causes.Charity
	var id, causeID []byte

	err := row.Scan(&id, &causeID, &charity.EveryOrgSlug, &charity.Name,
		&charity.Description, &charity.EIN, &charity.LogoURL,
		&charity.WebsiteURL, &charity.IsDefault, &charity.IsActive,
		&charity.CreatedAt)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if charity.ID, err = uuid.FromBytes(id); err != nil {
		return nil, Error.Wrap(err)
	}
	if charity.CauseID, err = uuid.FromBytes(causeID); err != nil {
		return nil, Error.Wrap(err)
	}
	charity.CreatedAt = charity.CreatedAt.UTC()
	return &charity, nil
}

// mappingsDB implements the causes.Mappings repository.
type mappingsDB struct {
	db *DB
	h  handle
}

const mappingColumns = `id, merchant_pattern, merchant_name, cause_id,
	charity_slug, charity_name, reason, confidence, source, is_active,
	created_at, updated_at`

func (db *mappingsDB) Insert(ctx context.Context, mapping *causes.Mapping) (_ *causes.Mapping, err error) {
	defer mon.Task()(&ctx)(&err)

	if mapping.ID.IsZero() {
		mapping.ID, err = uuid.New()
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}
	if mapping.Source == "" {
		mapping.Source = causes.MappingSourceManual
	}
	now := time.Now().UTC()
	mapping.CreatedAt = now
	mapping.UpdatedAt = now

	_, err = db.h.ExecContext(ctx, db.db.rebind(`
		INSERT INTO business_mappings (`+mappingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		mapping.ID.Bytes(), mapping.MerchantPattern, mapping.MerchantName,
		mapping.CauseID.Bytes(), mapping.CharitySlug, mapping.CharityName,
		mapping.Reason, mapping.Confidence.String(), mapping.Source,
		mapping.IsActive, mapping.CreatedAt, mapping.UpdatedAt,
	)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return mapping, nil
}

func (db *mappingsDB) Get(ctx context.Context, id uuid.UUID) (_ *causes.Mapping, err error) {
	defer mon.Task()(&ctx)(&err)

	row := db.h.QueryRowContext(ctx, db.db.rebind(`
		SELECT `+mappingColumns+` FROM business_mappings WHERE id = ?`), id.Bytes())

	var mapping causes.Mapping
	var mID, causeID []byte
	var confidence string
	err = row.Scan(&mID, &mapping.MerchantPattern, &mapping.MerchantName,
		&causeID, &mapping.CharitySlug, &mapping.CharityName, &mapping.Reason,
		&confidence, &mapping.Source, &mapping.IsActive,
		&mapping.CreatedAt, &mapping.UpdatedAt)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if mapping.ID, err = uuid.FromBytes(mID); err != nil {
		return nil, Error.Wrap(err)
	}
	if mapping.CauseID, err = uuid.FromBytes(causeID); err != nil {
		return nil, Error.Wrap(err)
	}
	if mapping.Confidence, err = parseDecimal(confidence); err != nil {
		return nil, err
	}
	return &mapping, nil
}

func (db *mappingsDB) ListActive(ctx context.Context) (_ []causes.Mapping, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.h.QueryContext(ctx, `
		SELECT `+mappingColumns+` FROM business_mappings
		WHERE is_active ORDER BY merchant_pattern`)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = Error.Wrap(errs.Combine(err, rows.Err(), rows.Close())) }()

	var list []causes.Mapping
	for rows.Next() {
		var mapping causes.Mapping
		var id, causeID []byte
		var confidence string
		err := rows.Scan(&id, &mapping.MerchantPattern, &mapping.MerchantName,
			&causeID, &mapping.CharitySlug, &mapping.CharityName,
			&mapping.Reason, &confidence, &mapping.Source, &mapping.IsActive,
			&mapping.CreatedAt, &mapping.UpdatedAt)
		if err != nil {
			return nil, Error.Wrap(err)
		}
		if mapping.ID, err = uuid.FromBytes(id); err != nil {
			return nil, Error.Wrap(err)
		}
		if mapping.CauseID, err = uuid.FromBytes(causeID); err != nil {
			return nil, Error.Wrap(err)
		}
		if mapping.Confidence, err = parseDecimal(confidence); err != nil {
			return nil, err
		}
		list = append(list, mapping)
	}
	return list, nil
}

func (db *mappingsDB) Deactivate(ctx context.Context, id uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = db.h.ExecContext(ctx, db.db.rebind(`
		UPDATE business_mappings SET is_active = FALSE, updated_at = ? WHERE id = ?`),
		time.Now().UTC(), id.Bytes())
	return Error.Wrap(err)
}
