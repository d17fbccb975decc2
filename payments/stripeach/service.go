// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package stripeach

import (
	"context"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/stripe/stripe-go/v72"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

var (
	// Error describes internal stripeach error.
	Error = errs.Class("stripeach")

	mon = monkit.Package()
)

// Service initiates ACH debits through the payment processor.
//
// architecture: Service
type Service struct {
	log    *zap.Logger
	stripe StripeClient
}

// NewService creates a new ACH collection service.
func NewService(log *zap.Logger, stripe StripeClient) *Service {
	return &Service{log: log, stripe: stripe}
}

// EnsureCustomer returns the processor customer id for the user, creating
// one when none exists yet.
func (service *Service) EnsureCustomer(ctx context.Context, customerID, email, name string) (_ string, err error) {
	defer mon.Task()(&ctx)(&err)

	if customerID != "" {
		return customerID, nil
	}

	customer, err := service.stripe.Customers().New(&stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Email:  stripe.String(email),
		Name:   stripe.String(name),
	})
	if err != nil {
		return "", Error.Wrap(err)
	}
	return customer.ID, nil
}

// DebitACH creates and confirms one ACH debit payment intent against the
// given bank payment method. amountCents is the total in cents.
func (service *Service) DebitACH(ctx context.Context, customerID, paymentMethodID string, amountCents int64, metadata map[string]string) (_ *stripe.PaymentIntent, err error) {
	defer mon.Task()(&ctx)(&err)

	params := &stripe.PaymentIntentParams{
		Params:             stripe.Params{Context: ctx},
		Amount:             stripe.Int64(amountCents),
		Currency:           stripe.String(string(stripe.CurrencyUSD)),
		Customer:           stripe.String(customerID),
		PaymentMethod:      stripe.String(paymentMethodID),
		PaymentMethodTypes: stripe.StringSlice([]string{"us_bank_account"}),
		Confirm:            stripe.Bool(true),
		MandateData: &stripe.PaymentIntentMandateDataParams{
			CustomerAcceptance: &stripe.PaymentIntentMandateDataCustomerAcceptanceParams{
				Type: stripe.MandateCustomerAcceptanceTypeOnline,
				Online: &stripe.PaymentIntentMandateDataCustomerAcceptanceOnlineParams{
					IPAddress: stripe.String("0.0.0.0"),
					UserAgent: stripe.String("CounterCart/1.0"),
				},
			},
		},
	}
	for key, value := range metadata {
		params.AddMetadata(key, value)
	}

	intent, err := service.stripe.PaymentIntents().New(params)
	if err != nil {
		return nil, Error.Wrap(err)
	}

	service.log.Info("ACH debit initiated",
		zap.String("paymentIntentID", intent.ID),
		zap.String("customerID", customerID),
		zap.Int64("amountCents", amountCents),
		zap.String("status", string(intent.Status)))

	return intent, nil
}

// GetPaymentIntent returns the payment intent by id.
func (service *Service) GetPaymentIntent(ctx context.Context, id string) (_ *stripe.PaymentIntent, err error) {
	defer mon.Task()(&ctx)(&err)

	intent, err := service.stripe.PaymentIntents().Get(id, &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: ctx},
	})
	return intent, Error.Wrap(err)
}
