// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

// Package consoleweb implements the HTTP server of CounterCart.
package consoleweb

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/spacemonkeygo/monkit/v3"
	"github.com/zeebo/errs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"storj.io/common/errs2"

	"countercart.io/countercart/banksync"
	"countercart.io/countercart/batching"
	"countercart.io/countercart/console"
	"countercart.io/countercart/console/consoleweb/consoleapi"
	"countercart.io/countercart/everyorg"
	"countercart.io/countercart/grants"
	"countercart.io/countercart/plaid"
	"countercart.io/countercart/ratelimit"
	"countercart.io/countercart/webhooks"
)

var (
	// Error is the consoleweb error class.
	Error = errs.Class("consoleweb")

	mon = monkit.Package()
)

// Config contains configuration for console web server.
type Config struct {
	Address       string        `help:"server address of the http api gateway" default:":10100"`
	InternalToken string        `help:"shared secret for the internal jobs api" default:""`
	StatsCacheTTL time.Duration `help:"how long public stats stay cached" default:"5m"`

	RateLimit ratelimit.Config
}

// Services groups everything the server routes requests to.
type Services struct {
	Console  *console.Service
	Webhooks *webhooks.Service
	Banksync *banksync.Service
	Batching *batching.Service
	Grants   *grants.Service

	Dispatcher   *webhooks.Dispatcher
	Verifier     *plaid.Verifier
	Partner      *everyorg.Client
	PlaidHandler *banksync.WebhookHandler
	Users        console.Users
	DB           consoleapi.Pinger
}

// Server represents console web server.
//
// architecture: Endpoint
type Server struct {
	log      *zap.Logger
	config   Config
	listener net.Listener
	server   http.Server

	services Services
	limiter  *ratelimit.Limiter
}

// NewServer creates new instance of console server.
func NewServer(log *zap.Logger, config Config, listener net.Listener, services Services, limiter *ratelimit.Limiter) *Server {
	server := &Server{
		log:      log,
		config:   config,
		listener: listener,
		services: services,
		limiter:  limiter,
	}

	router := mux.NewRouter()
	router.Use(server.limiter.Middleware)

	health := consoleapi.NewHealth(log.Named("health"), services.DB)
	router.HandleFunc("/health", health.Status).Methods(http.MethodGet)
	router.HandleFunc("/health/live", health.Live).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", health.Ready).Methods(http.MethodGet)

	stats := consoleapi.NewPublicStats(log.Named("stats"), services.Console, config.StatsCacheTTL)
	router.HandleFunc("/api/public/stats", stats.GetStats).Methods(http.MethodGet, http.MethodOptions)

	settings := consoleapi.NewUserSettings(log.Named("settings"), services.Console)
	userRouter := router.PathPrefix("/api/user").Subrouter()
	userRouter.Use(server.withAuth)
	userRouter.HandleFunc("/settings", settings.GetSettings).Methods(http.MethodGet)
	userRouter.HandleFunc("/settings", settings.UpdateSettings).Methods(http.MethodPatch)
	userRouter.HandleFunc("/donations", settings.ListDonations).Methods(http.MethodGet)
	userRouter.HandleFunc("/donations/{id}/approve", settings.ApproveDonation).Methods(http.MethodPost)
	userRouter.HandleFunc("/donations/{id}/cancel", settings.CancelDonation).Methods(http.MethodPost)

	hooks := consoleapi.NewWebhooks(log.Named("webhooks"), services.Webhooks, services.Dispatcher, services.Verifier, services.Partner)
	router.HandleFunc("/api/webhooks/plaid", hooks.HandlePlaid).Methods(http.MethodPost)
	router.HandleFunc("/api/webhooks/everyorg/disbursement", hooks.HandleDisbursement).Methods(http.MethodPost)

	jobs := consoleapi.NewJobs(log.Named("jobs"), services.Webhooks, services.Banksync, services.Batching, services.Grants, services.Users, services.PlaidHandler)
	jobsRouter := router.PathPrefix("/jobs").Subrouter()
	jobsRouter.Use(server.withInternalToken)
	jobsRouter.HandleFunc("/handle-plaid-webhook", jobs.HandlePlaidWebhook).Methods(http.MethodPost)
	jobsRouter.HandleFunc("/sync-plaid-item", jobs.SyncPlaidItem).Methods(http.MethodPost)
	jobsRouter.HandleFunc("/complete-donation", jobs.CompleteDonation).Methods(http.MethodPost)
	jobsRouter.HandleFunc("/retry-failed-webhooks", jobs.RetryFailedWebhooks).Methods(http.MethodPost)
	jobsRouter.HandleFunc("/weekly-donation-processing", jobs.WeeklyDonationProcessing).Methods(http.MethodPost)
	jobsRouter.HandleFunc("/daily-transaction-sync", jobs.DailyTransactionSync).Methods(http.MethodPost)
	jobsRouter.HandleFunc("/reset-monthly-totals", jobs.ResetMonthlyTotals).Methods(http.MethodPost)
	jobsRouter.HandleFunc("/webhook-events", jobs.ListWebhookEvents).Methods(http.MethodGet)

	server.server = http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return server
}

// Run starts the server that hosts the http api.
func (server *Server) Run(ctx context.Context) error {
	if server.listener == nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	var group errgroup.Group
	group.Go(func() error {
		<-ctx.Done()
		return Error.Wrap(server.server.Shutdown(context.Background()))
	})
	group.Go(func() error {
		defer cancel()
		err := server.server.Serve(server.listener)
		if errs2.IsCanceled(err) || errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		return Error.Wrap(err)
	})
	return group.Wait()
}

// Close closes server and underlying listener.
func (server *Server) Close() error {
	return Error.Wrap(server.server.Close())
}

// withAuth authenticates the session token and stores the authorization
// in the request context. Failures are stored too, so the service layer
// returns ErrUnauthorized consistently.
func (server *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token := ""
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		} else if cookie, err := r.Cookie("countercart_session"); err == nil {
			token = cookie.Value
		}
		ctx = console.WithSessionToken(ctx, token)

		auth, err := server.services.Console.Authorize(ctx)
		if err != nil {
			ctx = console.WithAuthFailure(ctx, err)
		} else {
			ctx = console.WithAuth(ctx, auth)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withInternalToken guards the jobs api with the shared internal token.
func (server *Server) withInternalToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if server.config.InternalToken == "" {
			http.Error(w, "internal api disabled", http.StatusForbidden)
			return
		}
		token := r.Header.Get("X-Internal-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(server.config.InternalToken)) != 1 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
