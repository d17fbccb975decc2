// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

// Package countercart wires the round-up donation platform together: bank
// connections are synced through the aggregator, transactions are matched
// to cause mappings, round-ups are batched into weekly ACH debits and the
// collected funds are disbursed to nonprofits through the giving partner.
package countercart

import (
	"context"
	"net"

	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/common/uuid"

	"countercart.io/countercart/banksync"
	"countercart.io/countercart/batching"
	"countercart.io/countercart/console"
	"countercart.io/countercart/console/consoleauth"
	"countercart.io/countercart/console/consoleweb"
	"countercart.io/countercart/donations"
	"countercart.io/countercart/everyorg"
	"countercart.io/countercart/grants"
	"countercart.io/countercart/kms"
	"countercart.io/countercart/mailservice"
	"countercart.io/countercart/matching"
	"countercart.io/countercart/payments/stripeach"
	"countercart.io/countercart/plaid"
	"countercart.io/countercart/ratelimit"
	"countercart.io/countercart/webhooks"
)

var (
	// Error is the countercart peer error class.
	Error = errs.Class("countercart")

	mon = monkit.Package()
)

// Config is the global configuration of the CounterCart peer.
type Config struct {
	AuthTokenSecret string `help:"secret for signing console session tokens" default:""`

	Console  consoleweb.Config
	Account  console.Config
	KMS      kms.Config
	Plaid    plaid.Config
	Stripe   stripeach.Config
	EveryOrg everyorg.Config
	Mail     mailservice.Config

	Matching   matching.Config
	Banksync   banksync.Config
	Webhooks   webhooks.Config
	Dispatcher webhooks.DispatcherConfig

	BanksyncChore  banksync.ChoreConfig
	BatchingChore  batching.ChoreConfig
	DonationsChore donations.ChoreConfig
}

// Peer is the CounterCart process. It owns every service and chore and
// runs them until canceled.
//
// architecture: Peer
type Peer struct {
	Log *zap.Logger
	DB  DB

	Mail struct {
		Service *mailservice.Service
	}

	KMS struct {
		Service *kms.Service
	}

	Plaid struct {
		Client   *plaid.Client
		Verifier *plaid.Verifier
	}

	EveryOrg struct {
		Client *everyorg.Client
	}

	Payments struct {
		Client stripeach.StripeClient
		ACH    *stripeach.Service
	}

	Console struct {
		Service  *console.Service
		Listener net.Listener
		Endpoint *consoleweb.Server
	}

	Matching struct {
		Service *matching.Service
	}

	Banksync struct {
		Service        *banksync.Service
		WebhookHandler *banksync.WebhookHandler
		Chore          *banksync.Chore
	}

	Batching struct {
		Service *batching.Service
		Chore   *batching.Chore
	}

	Grants struct {
		Service *grants.Service
	}

	Donations struct {
		Chore *donations.Chore
	}

	Webhooks struct {
		Service    *webhooks.Service
		Dispatcher *webhooks.Dispatcher
	}

	RateLimit struct {
		Limiter *ratelimit.Limiter
	}
}

// New creates a new CounterCart peer from configuration.
func New(log *zap.Logger, db DB, config Config) (peer *Peer, err error) {
	peer = &Peer{
		Log: log,
		DB:  db,
	}

	{ // mail
		sender := mailservice.NewSender(log.Named("mail:sender"), config.Mail)
		peer.Mail.Service = mailservice.New(log.Named("mail:service"), sender)
	}

	{ // kms
		peer.KMS.Service, err = kms.NewService(config.KMS)
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}

	{ // external clients
		peer.Plaid.Client = plaid.NewClient(config.Plaid)
		peer.Plaid.Verifier = plaid.NewVerifier(peer.Plaid.Client)

		peer.EveryOrg.Client = everyorg.NewClient(config.EveryOrg)

		peer.Payments.Client = stripeach.NewStripeClient(log.Named("stripe"), config.Stripe)
		peer.Payments.ACH = stripeach.NewService(log.Named("payments:ach"), peer.Payments.Client)
	}

	{ // console
		signer := &consoleauth.Hmac{Secret: []byte(config.AuthTokenSecret)}
		peer.Console.Service, err = console.NewService(log.Named("console:service"), signer, db.Console(), config.Account)
		if err != nil {
			return nil, Error.Wrap(err)
		}
	}

	{ // matching
		peer.Matching.Service = matching.NewService(log.Named("matching"), db.Matching(), config.Matching)
	}

	{ // bank sync
		peer.Banksync.Service = banksync.NewService(log.Named("banksync"),
			db.Banksync(), peer.Plaid.Client, peer.KMS.Service,
			peer.Matching.Service, config.Banksync)

		notifier := &itemNotifier{users: db.Users(), mail: peer.Mail.Service}
		peer.Banksync.WebhookHandler = banksync.NewWebhookHandler(log.Named("banksync:webhook"),
			peer.Banksync.Service, db.Banksync(), notifier)

		peer.Banksync.Chore = banksync.NewChore(log.Named("banksync:chore"),
			peer.Banksync.Service, config.BanksyncChore)
	}

	{ // batching
		peer.Batching.Service = batching.NewService(log.Named("batching"),
			db.Batching(), peer.Payments.ACH, peer.Mail.Service)
		peer.Batching.Chore = batching.NewChore(log.Named("batching:chore"),
			peer.Batching.Service, config.BatchingChore)
	}

	{ // grants
		peer.Grants.Service = grants.NewService(log.Named("grants"),
			db.Grants(), peer.EveryOrg.Client, peer.Mail.Service)
	}

	{ // donations
		peer.Donations.Chore = donations.NewChore(log.Named("donations:chore"),
			db.Users(), config.DonationsChore)
	}

	{ // webhook ledger
		peer.Webhooks.Service = webhooks.NewService(log.Named("webhooks"), db.Events(), config.Webhooks)
		peer.Webhooks.Dispatcher = webhooks.NewDispatcher(log.Named("webhooks:dispatcher"), config.Dispatcher)

		peer.Webhooks.Service.RegisterHandler(webhooks.SourcePlaid, peer.Banksync.WebhookHandler)
		peer.Webhooks.Service.RegisterHandler(webhooks.SourceEveryOrg,
			grants.NewDisbursementWebhookHandler(log.Named("grants:webhook"), peer.Grants.Service))
		peer.Webhooks.Service.RegisterHandler(webhooks.SourceStripe,
			grants.NewStripeWebhookHandler(log.Named("grants:stripe"), db.Grants(), peer.Grants.Service))
	}

	{ // rate limiting
		var store ratelimit.Store
		if config.Console.RateLimit.RedisURL != "" {
			store, err = ratelimit.NewRedisStore(config.Console.RateLimit.RedisURL)
			if err != nil {
				return nil, Error.Wrap(err)
			}
		} else {
			store = ratelimit.NewMemoryStore()
		}
		peer.RateLimit.Limiter = ratelimit.NewLimiter(log.Named("ratelimit"), store, config.Console.RateLimit)
	}

	{ // console endpoint
		peer.Console.Listener, err = net.Listen("tcp", config.Console.Address)
		if err != nil {
			return nil, Error.Wrap(err)
		}

		peer.Console.Endpoint = consoleweb.NewServer(log.Named("console:endpoint"),
			config.Console, peer.Console.Listener, consoleweb.Services{
				Console:      peer.Console.Service,
				Webhooks:     peer.Webhooks.Service,
				Banksync:     peer.Banksync.Service,
				Batching:     peer.Batching.Service,
				Grants:       peer.Grants.Service,
				Dispatcher:   peer.Webhooks.Dispatcher,
				Verifier:     peer.Plaid.Verifier,
				Partner:      peer.EveryOrg.Client,
				PlaidHandler: peer.Banksync.WebhookHandler,
				Users:        db.Users(),
				DB:           db,
			}, peer.RateLimit.Limiter)
	}

	return peer, nil
}

// Run runs the peer until it's either closed or it errors.
func (peer *Peer) Run(ctx context.Context) (err error) {
	defer mon.Task()(&ctx)(&err)

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return peer.Console.Endpoint.Run(ctx)
	})
	group.Go(func() error {
		return peer.Banksync.Chore.Run(ctx)
	})
	group.Go(func() error {
		return peer.Batching.Chore.Run(ctx)
	})
	group.Go(func() error {
		return peer.Donations.Chore.Run(ctx)
	})

	return group.Wait()
}

// Close closes all the resources.
func (peer *Peer) Close() error {
	var group errs.Group

	if peer.Console.Endpoint != nil {
		group.Add(peer.Console.Endpoint.Close())
	} else if peer.Console.Listener != nil {
		group.Add(peer.Console.Listener.Close())
	}
	if peer.Banksync.Chore != nil {
		group.Add(peer.Banksync.Chore.Close())
	}
	if peer.Batching.Chore != nil {
		group.Add(peer.Batching.Chore.Close())
	}
	if peer.Donations.Chore != nil {
		group.Add(peer.Donations.Chore.Close())
	}

	return Error.Wrap(group.Err())
}

// itemNotifier resolves the owner of a bank connection and mails them
// about a connection that needs attention.
type itemNotifier struct {
	users console.Users
	mail  *mailservice.Service
}

func (notifier *itemNotifier) SendItemAttention(ctx context.Context, userID uuid.UUID, institution, reason string) {
	user, err := notifier.users.Get(ctx, userID)
	if err != nil {
		return
	}
	notifier.mail.SendItemAttention(ctx, user.Email, institution, reason)
}
