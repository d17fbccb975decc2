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

	"countercart.io/countercart/console"
)

// usersDB implements the console.Users repository.
type usersDB struct {
	db *DB
	h  handle
}

const userColumns = `id, email, name, stripe_customer_id, subscription_tier,
	subscription_status, donation_multiplier, monthly_limit,
	current_month_total, auto_donate_enabled, email_notifications,
	public_profile, show_badge, onboarding_complete, created_at, updated_at`

func (users *usersDB) Insert(ctx context.Context, user *console.User) (_ *console.User, err error) {
	defer mon.Task()(&ctx)(&err)

	if user.ID.IsZero() {
		user.ID, err = uuid.New()
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err = users.h.ExecContext(ctx, users.db.rebind(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		user.ID.Bytes(), user.Email, user.Name, user.StripeCustomerID,
		string(user.SubscriptionTier), user.SubscriptionStatus,
		user.DonationMultiplier.String(), nullDecimal(user.MonthlyLimit),
		user.CurrentMonthTotal.String(), user.AutoDonateEnabled,
		user.EmailNotifications, user.PublicProfile, user.ShowBadge,
		user.OnboardingComplete, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return user, nil
}

func (users *usersDB) Get(ctx context.Context, id uuid.UUID) (_ *console.User, err error) {
	defer mon.Task()(&ctx)(&err)

	row := users.h.QueryRowContext(ctx, users.db.rebind(`
		SELECT `+userColumns+` FROM users WHERE id = ?`), id.Bytes())
	return scanUser(row)
}

func (users *usersDB) GetByEmail(ctx context.Context, email string) (_ *console.User, err error) {
	defer mon.Task()(&ctx)(&err)

	row := users.h.QueryRowContext(ctx, users.db.rebind(`
		SELECT `+userColumns+` FROM users WHERE email = ?`), email)
	return scanUser(row)
}

func (users *usersDB) Update(ctx context.Context, id uuid.UUID, request console.UpdateUserRequest) (err error) {
	defer mon.Task()(&ctx)(&err)

	var sets []string
	var args []interface{}
	set := func(column string, value interface{}) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if request.Name != nil {
		set("name", *request.Name)
	}
	if request.StripeCustomerID != nil {
		set("stripe_customer_id", *request.StripeCustomerID)
	}
	if request.SubscriptionTier != nil {
		set("subscription_tier", string(*request.SubscriptionTier))
	}
	if request.SubscriptionStatus != nil {
		set("subscription_status", *request.SubscriptionStatus)
	}
	if request.DonationMultiplier != nil {
		set("donation_multiplier", request.DonationMultiplier.String())
	}
	if request.MonthlyLimit != nil {
		set("monthly_limit", nullDecimal(*request.MonthlyLimit))
	}
	if request.CurrentMonthTotal != nil {
		set("current_month_total", request.CurrentMonthTotal.String())
	}
	if request.AutoDonateEnabled != nil {
		set("auto_donate_enabled", *request.AutoDonateEnabled)
	}
	if request.EmailNotifications != nil {
		set("email_notifications", *request.EmailNotifications)
	}
	if request.PublicProfile != nil {
		set("public_profile", *request.PublicProfile)
	}
	if request.ShowBadge != nil {
		set("show_badge", *request.ShowBadge)
	}
	if request.OnboardingComplete != nil {
		set("onboarding_complete", *request.OnboardingComplete)
	}
	if len(sets) == 0 {
		return nil
	}
	set("updated_at", time.Now().UTC())
	args = append(args, id.Bytes())

	_, err = users.h.ExecContext(ctx, users.db.rebind(`
		UPDATE users SET `+strings.Join(sets, ", ")+` WHERE id = ?`), args...)
	return Error.Wrap(err)
}

func (users *usersDB) IncrementMonthTotal(ctx context.Context, id uuid.UUID, delta decimal.Decimal) (err error) {
	defer mon.Task()(&ctx)(&err)

	_, err = users.h.ExecContext(ctx, users.db.rebind(`
		UPDATE users
		SET current_month_total = CAST(CAST(current_month_total AS NUMERIC) + CAST(? AS NUMERIC) AS TEXT),
			updated_at = ?
		WHERE id = ?`),
		delta.String(), time.Now().UTC(), id.Bytes())
	return Error.Wrap(err)
}

func (users *usersDB) ResetMonthTotals(ctx context.Context) (affected int64, err error) {
	defer mon.Task()(&ctx)(&err)

	result, err := users.h.ExecContext(ctx, users.db.rebind(`
		UPDATE users SET current_month_total = '0', updated_at = ?
		WHERE current_month_total <> '0'`), time.Now().UTC())
	if err != nil {
		return 0, Error.Wrap(err)
	}
	affected, err = result.RowsAffected()
	return affected, Error.Wrap(err)
}

func (users *usersDB) CountActive(ctx context.Context) (count int64, err error) {
	defer mon.Task()(&ctx)(&err)

	row := users.h.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT user_id) FROM donations WHERE status = 'COMPLETED'`)
	err = row.Scan(&count)
	return count, Error.Wrap(err)
}

func (users *usersDB) Leaderboard(ctx context.Context, limit int) (_ []console.LeaderboardEntry, err error) {
	defer mon.Task()(&ctx)(&err)

	if limit <= 0 {
		limit = 10
	}
	rows, err := users.h.QueryContext(ctx, users.db.rebind(`
		SELECT u.name, COUNT(d.id), SUM(CAST(d.amount AS NUMERIC))
		FROM users u
		JOIN donations d ON d.user_id = u.id
		WHERE u.public_profile AND d.status = 'COMPLETED'
		GROUP BY u.id, u.name
		ORDER BY SUM(CAST(d.amount AS NUMERIC)) DESC
		LIMIT ?`), limit)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() { err = Error.Wrap(errs.Combine(err, rows.Err(), rows.Close())) }()

	var entries []console.LeaderboardEntry
	for rows.Next() {
		var entry console.LeaderboardEntry
		var total string
		if err := rows.Scan(&entry.Name, &entry.Donations, &total); err != nil {
			return nil, Error.Wrap(err)
		}
		entry.TotalAmount, err = parseDecimal(total)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func scanUser(row *sql.Row) (*console.User, error) {
	var user console.User
	var id []byte
	var tier, multiplier, monthTotal string
	var limit sql.NullString

	err := row.Scan(&id, &user.Email, &user.Name, &user.StripeCustomerID,
		&tier, &user.SubscriptionStatus, &multiplier, &limit, &monthTotal,
		&user.AutoDonateEnabled, &user.EmailNotifications, &user.PublicProfile,
		&user.ShowBadge, &user.OnboardingComplete, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	user.ID, err = uuid.FromBytes(id)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	user.SubscriptionTier = console.SubscriptionTier(tier)
	user.DonationMultiplier, err = parseDecimal(multiplier)
	if err != nil {
		return nil, err
	}
	user.MonthlyLimit, err = parseNullDecimal(limit)
	if err != nil {
		return nil, err
	}
	user.CurrentMonthTotal, err = parseDecimal(monthTotal)
	if err != nil {
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return &user, nil
}
