// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package countercartdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/zeebo/errs"

	"storj.io/common/uuid"

	"countercart.io/countercart/console"
)

// organizationsDB implements the console.Organizations repository.
type organizationsDB struct {
	db *DB
	h  handle
}

func (db *organizationsDB) Insert(ctx context.Context, org *console.Organization) (_ *console.Organization, err error) {
	defer mon.Task()(&ctx)(&err)

	if org.ID.IsZero() {
		org.ID, err = uuid.New()
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}
	org.CreatedAt = time.Now().UTC()

	_, err = db.h.ExecContext(ctx, db.db.rebind(`
		INSERT INTO organizations (id, name, owner_id, seat_limit, seat_count,
			stripe_subscription_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		org.ID.Bytes(), org.Name, org.OwnerID.Bytes(), org.SeatLimit,
		org.SeatCount, org.StripeSubscriptionID, org.CreatedAt,
	)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return org, nil
}

func (db *organizationsDB) Get(ctx context.Context, id uuid.UUID) (_ *console.Organization, err error) {
	defer mon.Task()(&ctx)(&err)

	var org console.Organization
	var orgID, ownerID []byte
	row := db.h.QueryRowContext(ctx, db.db.rebind(`
		SELECT id, name, owner_id, seat_limit, seat_count,
			stripe_subscription_id, created_at
		FROM organizations WHERE id = ?`), id.Bytes())
	err = row.Scan(&orgID, &org.Name, &ownerID, &org.SeatLimit,
		&org.SeatCount, &org.StripeSubscriptionID, &org.CreatedAt)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if org.ID, err = uuid.FromBytes(orgID); err != nil {
		return nil, Error.Wrap(err)
	}
	if org.OwnerID, err = uuid.FromBytes(ownerID); err != nil {
		return nil, Error.Wrap(err)
	}
	org.CreatedAt = org.CreatedAt.UTC()
	return &org, nil
}

func (db *organizationsDB) UpdateSeatCount(ctx context.Context, id uuid.UUID, count int) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = db.h.ExecContext(ctx, db.db.rebind(`
		UPDATE organizations SET seat_count = ? WHERE id = ?`),
		count, id.Bytes())
	return Error.Wrap(err)
}

// orgMembersDB implements the console.OrgMembers repository.
type orgMembersDB struct {
	db *DB
	h  handle
}

func (db *orgMembersDB) Insert(ctx context.Context, member *console.OrgMember) (_ *console.OrgMember, err error) {
	defer mon.Task()(&ctx)(&err)

	if member.ID.IsZero() {
		member.ID, err = uuid.New()
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}
	if member.Role == "" {
		member.Role = console.RoleMember
	}
	member.CreatedAt = time.Now().UTC()

	_, err = db.h.ExecContext(ctx, db.db.rebind(`
		INSERT INTO org_members (id, org_id, user_id, role, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		member.ID.Bytes(), member.OrgID.Bytes(), member.UserID.Bytes(),
		string(member.Role), member.CreatedAt,
	)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return member, nil
}

func (db *orgMembersDB) Get(ctx context.Context, orgID, userID uuid.UUID) (_ *console.OrgMember, err error) {
	defer mon.Task()(&ctx)(&err)

	row := db.h.QueryRowContext(ctx, db.db.rebind(`
		SELECT id, org_id, user_id, role, created_at
		FROM org_members WHERE org_id = ? AND user_id = ?`),
		orgID.Bytes(), userID.Bytes())
	return scanOrgMember(row)
}

func (db *orgMembersDB) ListByOrg(ctx context.Context, orgID uuid.UUID) (_ []console.OrgMember, err error) {
	defer mon.Task()(&ctx)(&err)

	rows, err := db.h.QueryContext(ctx, db.db.rebind(`
		SELECT id, org_id, user_id, role, created_at
		FROM org_members WHERE org_id = ? ORDER BY created_at`), orgID.Bytes())
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = Error.Wrap(errs.Combine(err, rows.Err(), rows.Close())) }()

	var list []console.OrgMember
	for rows.Next() {
		member, err := scanOrgMember(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *member)
	}
	return list, nil
}

func (db *orgMembersDB) Delete(ctx context.Context, orgID, userID uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = db.h.ExecContext(ctx, db.db.rebind(`
		DELETE FROM org_members WHERE org_id = ? AND user_id = ?`),
		orgID.Bytes(), userID.Bytes())
	return Error.Wrap(err)
}

func scanOrgMember(row scanner) (*console.OrgMember, error) {
	var member console.OrgMember
	var id, orgID, userID []byte
	var role string

	err := row.Scan(&id, &orgID, &userID, &role, &member.CreatedAt)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if member.ID, err = uuid.FromBytes(id); err != nil {
		return nil, Error.Wrap(err)
	}
	if member.OrgID, err = uuid.FromBytes(orgID); err != nil {
		return nil, Error.Wrap(err)
	}
	if member.UserID, err = uuid.FromBytes(userID); err != nil {
		return nil, Error.Wrap(err)
	}
	member.Role = console.OrgRole(role)
	member.CreatedAt = member.CreatedAt.UTC()
	return &member, nil
}

// clubMembersDB implements the console.ClubMembers repository.
type clubMembersDB struct {
	db *DB
	h  handle
}

func (db *clubMembersDB) Insert(ctx context.Context, member *console.ClubMember) (_ *console.ClubMember, err error) {
	defer mon.Task()(&ctx)(&err)

	if member.ID.IsZero() {
		member.ID, err = uuid.New()
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}
	member.CreatedAt = time.Now().UTC()

	_, err = db.h.ExecContext(ctx, db.db.rebind(`
		INSERT INTO club_members (id, club_slug, user_id, created_at)
		VALUES (?, ?, ?, ?)`),
		member.ID.Bytes(), member.ClubSlug, member.UserID.Bytes(),
		member.CreatedAt,
	)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return member, nil
}

func (db *clubMembersDB) Get(ctx context.Context, clubSlug string, userID uuid.UUID) (_ *console.ClubMember, err error) {
	defer mon.Task()(&ctx)(&err)

	var member console.ClubMember
	var id, uID []byte
	row := db.h.QueryRowContext(ctx, db.db.rebind(`
		SELECT id, club_slug, user_id, created_at
		FROM club_members WHERE club_slug = ? AND user_id = ?`),
		clubSlug, userID.Bytes())
	err = row.Scan(&id, &member.ClubSlug, &uID, &member.CreatedAt)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if member.ID, err = uuid.FromBytes(id); err != nil {
		return nil, Error.Wrap(err)
	}
	if member.UserID, err = uuid.FromBytes(uID); err != nil {
		return nil, Error.Wrap(err)
	}
	member.CreatedAt = member.CreatedAt.UTC()
	return &member, nil
}

func (db *clubMembersDB) Delete(ctx context.Context, clubSlug string, userID uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = db.h.ExecContext(ctx, db.db.rebind(`
		DELETE FROM club_members WHERE club_slug = ? AND user_id = ?`),
		clubSlug, userID.Bytes())
	return Error.Wrap(err)
}

// giftsDB implements the console.Gifts repository.
type giftsDB struct {
	db *DB
	h  handle
}

func (db *giftsDB) Insert(ctx context.Context, gift *console.GiftSubscription) (_ *console.GiftSubscription, err error) {
	defer mon.Task()(&ctx)(&err)

	if gift.ID.IsZero() {
		gift.ID, err = uuid.New()
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}
	if gift.Tier == "" {
		gift.Tier = console.TierPro
	}
	if gift.Months <= 0 {
		gift.Months = 1
	}
	gift.CreatedAt = time.Now().UTC()

	_, err = db.h.ExecContext(ctx, db.db.rebind(`
		INSERT INTO gift_subscriptions (id, purchaser_id, recipient_email,
			code, tier, months, redeemed_by, redeemed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		gift.ID.Bytes(), gift.PurchaserID.Bytes(), gift.RecipientEmail,
		gift.Code, string(gift.Tier), gift.Months, nullUUID(gift.RedeemedBy),
		nullTime(gift.RedeemedAt), gift.CreatedAt,
	)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return gift, nil
}

func (db *giftsDB) GetByCode(ctx context.Context, code string) (_ *console.GiftSubscription, err error) {
	defer mon.Task()(&ctx)(&err)

	var gift console.GiftSubscription
	var id, purchaserID, redeemedBy []byte
	var tier string
	var redeemedAt sql.NullTime

	row := db.h.QueryRowContext(ctx, db.db.rebind(`
		SELECT id, purchaser_id, recipient_email, code, tier, months,
			redeemed_by, redeemed_at, created_at
		FROM gift_subscriptions WHERE code = ?`), code)
	err = row.Scan(&id, &purchaserID, &gift.RecipientEmail, &gift.Code,
		&tier, &gift.Months, &redeemedBy, &redeemedAt, &gift.CreatedAt)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	if gift.ID, err = uuid.FromBytes(id); err != nil {
		return nil, Error.Wrap(err)
	}
	if gift.PurchaserID, err = uuid.FromBytes(purchaserID); err != nil {
		return nil, Error.Wrap(err)
	}
	if gift.RedeemedBy, err = parseNullUUID(redeemedBy); err != nil {
		return nil, err
	}
	gift.Tier = console.SubscriptionTier(tier)
	gift.RedeemedAt = parseNullTime(redeemedAt)
	gift.CreatedAt = gift.CreatedAt.UTC()
	return &gift, nil
}

func (db *giftsDB) SetRedeemed(ctx context.Context, id, redeemedBy uuid.UUID, at time.Time) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = db.h.ExecContext(ctx, db.db.rebind(`
		UPDATE gift_subscriptions SET redeemed_by = ?, redeemed_at = ?
		WHERE id = ?`),
		redeemedBy.Bytes(), at.UTC(), id.Bytes())
	return Error.Wrap(err)
}
