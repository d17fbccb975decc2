// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

// Package stripeach wraps the payment processor calls used to pull weekly
// donation totals from users' bank accounts over ACH.
package stripeach

import (
	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/client"
	"go.uber.org/zap"
)

// StripeClient is the slice of the processor API the collection flow uses.
type StripeClient interface {
	Customers() StripeCustomers
	PaymentIntents() StripePaymentIntents
	PaymentMethods() StripePaymentMethods
}

// StripeCustomers Stripe Customers interface.
type StripeCustomers interface {
	New(params *stripe.CustomerParams) (*stripe.Customer, error)
	Get(id string, params *stripe.CustomerParams) (*stripe.Customer, error)
}

// StripePaymentIntents Stripe PaymentIntents interface.
type StripePaymentIntents interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripePaymentMethods Stripe PaymentMethods interface.
type StripePaymentMethods interface {
	Attach(id string, params *stripe.PaymentMethodAttachParams) (*stripe.PaymentMethod, error)
	Detach(id string, params *stripe.PaymentMethodDetachParams) (*stripe.PaymentMethod, error)
}

type stripeClient struct {
	client *client.API
}

func (s *stripeClient) Customers() StripeCustomers { return s.client.Customers }

func (s *stripeClient) PaymentIntents() StripePaymentIntents { return s.client.PaymentIntents }

func (s *stripeClient) PaymentMethods() StripePaymentMethods { return s.client.PaymentMethods }

// Config contains configuration for the processor client.
type Config struct {
	SecretKey string `help:"processor secret key" default:""`
}

// NewStripeClient creates Stripe client from configuration.
func NewStripeClient(log *zap.Logger, config Config) StripeClient {
	backendConfig := &stripe.BackendConfig{
		LeveledLogger: log.Sugar(),
	}
	sClient := client.New(config.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendConfig),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendConfig),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendConfig),
	})
	return &stripeClient{client: sClient}
}
