// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package console

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/uuid"

	"countercart.io/countercart/banking"
	"countercart.io/countercart/console/consoleauth"
	"countercart.io/countercart/donations"
)

var (
	// Error describes internal console error.
	Error = errs.Class("console service")

	// ErrUnauthorized is error class for authorization related errors.
	ErrUnauthorized = errs.Class("unauthorized")

	// ErrValidation is error class for invalid user input.
	ErrValidation = errs.Class("validation")

	// ErrNotFound is error class for missing entities.
	ErrNotFound = errs.Class("not found")

	// ErrForbidden is error class for operations the user may not perform.
	ErrForbidden = errs.Class("forbidden")

	mon = monkit.Package()
)

var (
	minMultiplier = decimal.NewFromFloat(0.5)
	maxMultiplier = decimal.NewFromInt(10)
	minLimit      = decimal.NewFromInt(5)
	maxLimit      = decimal.NewFromInt(10000)
)

// Config contains configuration for console service.
type Config struct {
	TokenExpiration time.Duration `help:"how long session tokens stay valid" default:"168h"`
	DefaultSeats    int           `help:"seat limit for new organizations" default:"10"`
}

// Service is handling accounts related logic.
//
// architecture: Service
type Service struct {
	log    *zap.Logger
	signer consoleauth.Signer
	store  DB
	config Config

	nowFn func() time.Time
}

// NewService returns new instance of Service.
func NewService(log *zap.Logger, signer consoleauth.Signer, store DB, config Config) (*Service, error) {
	if log == nil {
		return nil, errs.New("log can't be nil")
	}
	if signer == nil {
		return nil, errs.New("signer can't be nil")
	}
	if store == nil {
		return nil, errs.New("store can't be nil")
	}

	return &Service{
		log:    log,
		signer: signer,
		store:  store,
		config: config,
		nowFn:  time.Now,
	}, nil
}

// TestSetNow allows tests to have the service act as if the current time is
// whatever they want.
func (s *Service) TestSetNow(nowFn func() time.Time) {
	s.nowFn = nowFn
}

// CreateUser creates a new user with default giving settings.
func (s *Service) CreateUser(ctx context.Context, email, name string) (u *User, err error) {
	defer mon.Task()(&ctx)(&err)

	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, ErrValidation.New("email is required")
	}

	existing, err := s.store.Users().GetByEmail(ctx, email)
	if err == nil && existing != nil {
		return nil, ErrValidation.New("%s is already in use", email)
	}

	return s.store.Users().Insert(ctx, &User{
		Email:              email,
		Name:               name,
		SubscriptionTier:   TierFree,
		DonationMultiplier: decimal.NewFromInt(1),
		CurrentMonthTotal:  decimal.Zero,
		AutoDonateEnabled:  true,
		EmailNotifications: true,
	})
}

// GenerateSessionToken issues a signed session token for the given user.
func (s *Service) GenerateSessionToken(ctx context.Context, userID uuid.UUID, email string) (_ string, err error) {
	defer mon.Task()(&ctx)(&err)

	claims := consoleauth.Claims{
		ID:         userID,
		Email:      email,
		Expiration: s.nowFn().Add(s.config.TokenExpiration),
	}

	json, err := claims.JSON()
	if err != nil {
		return "", Error.Wrap(err)
	}

	token := consoleauth.Token{Payload: json}
	signature, err := s.signer.Sign(token.Payload)
	if err != nil {
		return "", Error.Wrap(err)
	}
	token.Signature = signature

	return token.String(), nil
}

// Authorize validates the session token from context and returns an
// authorized Authorization.
func (s *Service) Authorize(ctx context.Context) (a Authorization, err error) {
	defer mon.Task()(&ctx)(&err)

	tokenS, ok := GetSessionToken(ctx)
	if !ok {
		return Authorization{}, ErrUnauthorized.New("no session token was provided")
	}

	token, err := consoleauth.FromBase64URLString(tokenS)
	if err != nil {
		return Authorization{}, ErrUnauthorized.Wrap(err)
	}

	claims, err := s.authenticate(token)
	if err != nil {
		return Authorization{}, ErrUnauthorized.Wrap(err)
	}

	user, err := s.authorize(ctx, claims)
	if err != nil {
		return Authorization{}, ErrUnauthorized.Wrap(err)
	}

	return Authorization{User: *user, Claims: *claims}, nil
}

// authenticate validates token signature and returns the claims it carries.
func (s *Service) authenticate(token consoleauth.Token) (*consoleauth.Claims, error) {
	signature := token.Signature

	expected, err := s.signer.Sign(token.Payload)
	if err != nil {
		return nil, err
	}

	if subtle.ConstantTimeCompare(signature, expected) != 1 {
		return nil, errs.New("incorrect signature")
	}

	return consoleauth.FromJSON(token.Payload)
}

// authorize checks claims and returns authorized User.
func (s *Service) authorize(ctx context.Context, claims *consoleauth.Claims) (*User, error) {
	if !claims.Expiration.IsZero() && claims.Expiration.Before(s.nowFn()) {
		return nil, errs.New("token is outdated")
	}

	user, err := s.store.Users().Get(ctx, claims.ID)
	if err != nil {
		return nil, errs.New("authorization failed. no user with id: %s", claims.ID)
	}
	return user, nil
}

// Settings is the user-facing view of giving settings.
type Settings struct {
	DonationMultiplier decimal.Decimal  `json:"donationMultiplier"`
	MonthlyLimit       *decimal.Decimal `json:"monthlyLimit"`
	CurrentMonthTotal  decimal.Decimal  `json:"currentMonthTotal"`
	AutoDonateEnabled  bool             `json:"autoDonateEnabled"`
	EmailNotifications bool             `json:"emailNotifications"`
	PublicProfile      bool             `json:"publicProfile"`
	ShowBadge          bool             `json:"showBadge"`
}

// UpdateSettingsRequest holds the settings fields a user may change. Nil
// fields are left untouched.
type UpdateSettingsRequest struct {
	DonationMultiplier *decimal.Decimal  `json:"donationMultiplier"`
	MonthlyLimit       **decimal.Decimal `json:"-"`
	AutoDonateEnabled  *bool             `json:"autoDonateEnabled"`
	EmailNotifications *bool             `json:"emailNotifications"`
	PublicProfile      *bool             `json:"publicProfile"`
	ShowBadge          *bool             `json:"showBadge"`
}

// GetSettings returns the giving settings of the authorized user.
func (s *Service) GetSettings(ctx context.Context) (_ *Settings, err error) {
	defer mon.Task()(&ctx)(&err)

	auth, err := GetAuth(ctx)
	if err != nil {
		return nil, err
	}

	user, err := s.store.Users().Get(ctx, auth.User.ID)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	return &Settings{
		DonationMultiplier: user.DonationMultiplier,
		MonthlyLimit:       user.MonthlyLimit,
		CurrentMonthTotal:  user.CurrentMonthTotal,
		AutoDonateEnabled:  user.AutoDonateEnabled,
		EmailNotifications: user.EmailNotifications,
		PublicProfile:      user.PublicProfile,
		ShowBadge:          user.ShowBadge,
	}, nil
}

// UpdateSettings validates and applies settings changes for the authorized
// user.
func (s *Service) UpdateSettings(ctx context.Context, request UpdateSettingsRequest) (err error) {
	defer mon.Task()(&ctx)(&err)

	auth, err := GetAuth(ctx)
	if err != nil {
		return err
	}

	if request.DonationMultiplier != nil {
		m := *request.DonationMultiplier
		if m.LessThan(minMultiplier) || m.GreaterThan(maxMultiplier) {
			return ErrValidation.New("donationMultiplier must be between %s and %s, got %s", minMultiplier, maxMultiplier, m)
		}
	}
	if request.MonthlyLimit != nil && *request.MonthlyLimit != nil {
		limit := **request.MonthlyLimit
		if limit.LessThan(minLimit) || limit.GreaterThan(maxLimit) {
			return ErrValidation.New("monthlyLimit must be between %s and %s, got %s", minLimit, maxLimit, limit)
		}
	}

	return Error.Wrap(s.store.Users().Update(ctx, auth.User.ID, UpdateUserRequest{
		DonationMultiplier: request.DonationMultiplier,
		MonthlyLimit:       request.MonthlyLimit,
		AutoDonateEnabled:  request.AutoDonateEnabled,
		EmailNotifications: request.EmailNotifications,
		PublicProfile:      request.PublicProfile,
		ShowBadge:          request.ShowBadge,
	}))
}

// MandateConsent records the two acknowledgements required to authorize
// recurring ACH debits.
type MandateConsent struct {
	TermsAccepted   bool `json:"termsAccepted"`
	DebitAuthorized bool `json:"debitAuthorized"`
}

// EnableACH turns on ACH collection for the given bank account after both
// mandate acknowledgements were given. paymentMethodID is the processor-side
// us_bank_account payment method to debit.
func (s *Service) EnableACH(ctx context.Context, accountID uuid.UUID, paymentMethodID string, consent MandateConsent) (err error) {
	defer mon.Task()(&ctx)(&err)

	auth, err := GetAuth(ctx)
	if err != nil {
		return err
	}

	if !consent.TermsAccepted || !consent.DebitAuthorized {
		return ErrValidation.New("both mandate acknowledgements are required")
	}
	if paymentMethodID == "" {
		return ErrValidation.New("payment method is required")
	}

	account, err := s.store.Accounts().Get(ctx, accountID)
	if err != nil {
		return ErrNotFound.New("bank account not found")
	}
	if account.UserID != auth.User.ID {
		return ErrForbidden.New("bank account belongs to another user")
	}

	return Error.Wrap(s.store.Accounts().EnableACH(ctx, accountID, paymentMethodID, s.nowFn()))
}

// DisableACH turns off ACH collection for the given bank account.
func (s *Service) DisableACH(ctx context.Context, accountID uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	auth, err := GetAuth(ctx)
	if err != nil {
		return err
	}

	account, err := s.store.Accounts().Get(ctx, accountID)
	if err != nil {
		return ErrNotFound.New("bank account not found")
	}
	if account.UserID != auth.User.ID {
		return ErrForbidden.New("bank account belongs to another user")
	}

	return Error.Wrap(s.store.Accounts().DisableACH(ctx, accountID))
}

// ListDonations returns the newest donations of the authorized user.
func (s *Service) ListDonations(ctx context.Context, limit int) (_ []donations.Donation, err error) {
	defer mon.Task()(&ctx)(&err)

	auth, err := GetAuth(ctx)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.store.Donations().ListByUser(ctx, auth.User.ID, limit)
}

// ApproveDonation moves a pending donation of the authorized user to
// processing.
func (s *Service) ApproveDonation(ctx context.Context, donationID uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	auth, err := GetAuth(ctx)
	if err != nil {
		return err
	}

	donation, err := s.store.Donations().Get(ctx, donationID)
	if err != nil {
		return ErrNotFound.New("donation not found")
	}
	if donation.UserID != auth.User.ID {
		return ErrForbidden.New("donation belongs to another user")
	}
	if donation.Status != donations.StatusPending {
		return donations.ErrNotPending.New("status is %s", donation.Status)
	}

	status := donations.StatusProcessing
	return Error.Wrap(s.store.Donations().Update(ctx, donationID, donations.DonationUpdate{Status: &status}))
}

// CancelDonation deletes a pending donation, reverts its transaction to
// skipped and gives the amount back to the user's monthly headroom.
func (s *Service) CancelDonation(ctx context.Context, donationID uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	auth, err := GetAuth(ctx)
	if err != nil {
		return err
	}

	return s.store.WithTx(ctx, func(ctx context.Context, tx DB) error {
		donation, err := tx.Donations().Get(ctx, donationID)
		if err != nil {
			return ErrNotFound.New("donation not found")
		}
		if donation.UserID != auth.User.ID {
			return ErrForbidden.New("donation belongs to another user")
		}
		if donation.Status != donations.StatusPending {
			return donations.ErrNotPending.New("status is %s", donation.Status)
		}

		if err := tx.Donations().Delete(ctx, donationID); err != nil {
			return Error.Wrap(err)
		}

		if donation.TransactionID != nil {
			err = tx.Transactions().UpdateStatus(ctx, *donation.TransactionID, banking.TransactionSkipped)
			if err != nil {
				return Error.Wrap(err)
			}
		}

		return Error.Wrap(tx.Users().IncrementMonthTotal(ctx, auth.User.ID, donation.Amount.Neg()))
	})
}

// CreateOrganization creates an organization, makes the authorized user its
// owner and upgrades them to the pro tier.
func (s *Service) CreateOrganization(ctx context.Context, name string, seatLimit int) (org *Organization, err error) {
	defer mon.Task()(&ctx)(&err)

	auth, err := GetAuth(ctx)
	if err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrValidation.New("organization name is required")
	}
	if seatLimit <= 0 {
		seatLimit = s.config.DefaultSeats
	}

	err = s.store.WithTx(ctx, func(ctx context.Context, tx DB) error {
		org, err = tx.Organizations().Insert(ctx, &Organization{
			Name:      name,
			OwnerID:   auth.User.ID,
			SeatLimit: seatLimit,
			SeatCount: 1,
		})
		if err != nil {
			return Error.Wrap(err)
		}

		_, err = tx.OrgMembers().Insert(ctx, &OrgMember{
			OrgID:  org.ID,
			UserID: auth.User.ID,
			Role:   RoleOwner,
		})
		if err != nil {
			return Error.Wrap(err)
		}

		tier := TierPro
		return Error.Wrap(tx.Users().Update(ctx, auth.User.ID, UpdateUserRequest{SubscriptionTier: &tier}))
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

// JoinOrganization adds the authorized user to an organization and takes one
// of its seats.
func (s *Service) JoinOrganization(ctx context.Context, orgID uuid.UUID) (err error) {
	defer mon.Task()(&ctx)(&err)

	auth, err := GetAuth(ctx)
	if err != nil {
		return err
	}

	return s.store.WithTx(ctx, func(ctx context.Context, tx DB) error {
		org, err := tx.Organizations().Get(ctx, orgID)
		if err != nil {
			return ErrNotFound.New("organization not found")
		}

		if existing, err := tx.OrgMembers().Get(ctx, orgID, auth.User.ID); err == nil && existing != nil {
			return ErrValidation.New("already a member")
		}

		if org.SeatCount >= org.SeatLimit {
			return ErrForbidden.New("organization has no free seats")
		}

		_, err = tx.OrgMembers().Insert(ctx, &OrgMember{
			OrgID:  orgID,
			UserID: auth.User.ID,
			Role:   RoleMember,
		})
		if err != nil {
			return Error.Wrap(err)
		}

		if err := tx.Organizations().UpdateSeatCount(ctx, orgID, org.SeatCount+1); err != nil {
			return Error.Wrap(err)
		}

		tier := TierPro
		return Error.Wrap(tx.Users().Update(ctx, auth.User.ID, UpdateUserRequest{SubscriptionTier: &tier}))
	})
}

// JoinClub adds the authorized user to a giving club.
func (s *Service) JoinClub(ctx context.Context, clubSlug string) (err error) {
	defer mon.Task()(&ctx)(&err)

	auth, err := GetAuth(ctx)
	if err != nil {
		return err
	}

	clubSlug = strings.ToLower(strings.TrimSpace(clubSlug))
	if clubSlug == "" {
		return ErrValidation.New("club slug is required")
	}

	if existing, err := s.store.ClubMembers().Get(ctx, clubSlug, auth.User.ID); err == nil && existing != nil {
		return ErrValidation.New("already a member")
	}

	_, err = s.store.ClubMembers().Insert(ctx, &ClubMember{
		ClubSlug: clubSlug,
		UserID:   auth.User.ID,
	})
	return Error.Wrap(err)
}

// LeaveClub removes the authorized user from a giving club.
func (s *Service) LeaveClub(ctx context.Context, clubSlug string) (err error) {
	defer mon.Task()(&ctx)(&err)

	auth, err := GetAuth(ctx)
	if err != nil {
		return err
	}

	return Error.Wrap(s.store.ClubMembers().Delete(ctx, clubSlug, auth.User.ID))
}

// CreateGift creates a prepaid pro subscription redeemable by code.
func (s *Service) CreateGift(ctx context.Context, recipientEmail string, months int) (gift *GiftSubscription, err error) {
	defer mon.Task()(&ctx)(&err)

	auth, err := GetAuth(ctx)
	if err != nil {
		return nil, err
	}

	recipientEmail = strings.ToLower(strings.TrimSpace(recipientEmail))
	if recipientEmail == "" {
		return nil, ErrValidation.New("recipient email is required")
	}
	if months <= 0 {
		return nil, ErrValidation.New("months must be positive")
	}

	code, err := generateGiftCode()
	if err != nil {
		return nil, Error.Wrap(err)
	}

	return s.store.Gifts().Insert(ctx, &GiftSubscription{
		PurchaserID:    auth.User.ID,
		RecipientEmail: recipientEmail,
		Code:           code,
		Tier:           TierPro,
		Months:         months,
	})
}

// RedeemGift redeems a gift code for the authorized user and upgrades their
// tier.
func (s *Service) RedeemGift(ctx context.Context, code string) (err error) {
	defer mon.Task()(&ctx)(&err)

	auth, err := GetAuth(ctx)
	if err != nil {
		return err
	}

	return s.store.WithTx(ctx, func(ctx context.Context, tx DB) error {
		gift, err := tx.Gifts().GetByCode(ctx, strings.TrimSpace(code))
		if err != nil {
			return ErrNotFound.New("gift code not found")
		}
		if gift.RedeemedBy != nil {
			return ErrValidation.New("gift code already redeemed")
		}

		if err := tx.Gifts().SetRedeemed(ctx, gift.ID, auth.User.ID, s.nowFn()); err != nil {
			return Error.Wrap(err)
		}

		tier := gift.Tier
		return Error.Wrap(tx.Users().Update(ctx, auth.User.ID, UpdateUserRequest{SubscriptionTier: &tier}))
	})
}

// PublicStats is the aggregate shown on the public site.
type PublicStats struct {
	TotalDonations int64              `json:"totalDonations"`
	TotalAmount    decimal.Decimal    `json:"totalAmount"`
	ActiveUsers    int64              `json:"activeUsers"`
	Leaderboard    []LeaderboardEntry `json:"leaderboard"`
}

// GetPublicStats returns sitewide donation totals and the leaderboard.
func (s *Service) GetPublicStats(ctx context.Context) (_ *PublicStats, err error) {
	defer mon.Task()(&ctx)(&err)

	count, sum, err := s.store.Donations().TotalCompleted(ctx)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	active, err := s.store.Users().CountActive(ctx)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	leaderboard, err := s.store.Users().Leaderboard(ctx, 10)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	return &PublicStats{
		TotalDonations: count,
		TotalAmount:    sum,
		ActiveUsers:    active,
		Leaderboard:    leaderboard,
	}, nil
}

func generateGiftCode() (string, error) {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return "GIFT-" + strings.ToUpper(hex.EncodeToString(buf[:])), nil
}
