// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package consoleapi

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/uuid"

	"countercart.io/countercart/banksync"
	"countercart.io/countercart/batching"
	"countercart.io/countercart/console"
	"countercart.io/countercart/grants"
	"countercart.io/countercart/webhooks"
)

// ErrJobsAPI is the internal jobs api error class.
var ErrJobsAPI = errs.Class("consoleapi jobs")

// Jobs is the internal api controller that runs background work on
// demand. It sits behind the internal token middleware, never behind
// user auth.
type Jobs struct {
	log      *zap.Logger
	webhooks *webhooks.Service
	banksync *banksync.Service
	batching *batching.Service
	grants   *grants.Service
	users    console.Users
	plaid    *banksync.WebhookHandler
}

// NewJobs is a constructor for jobs controller.
func NewJobs(log *zap.Logger, webhookService *webhooks.Service, syncService *banksync.Service, batchService *batching.Service, grantService *grants.Service, users console.Users, plaidHandler *banksync.WebhookHandler) *Jobs {
	return &Jobs{
		log:      log,
		webhooks: webhookService,
		banksync: syncService,
		batching: batchService,
		grants:   grantService,
		users:    users,
		plaid:    plaidHandler,
	}
}

// HandlePlaidWebhook processes a previously verified aggregator webhook
// payload handed off by the ingress controller.
func (jobs *Jobs) HandlePlaidWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		serveJSONError(jobs.log, w, http.StatusBadRequest, ErrJobsAPI.Wrap(err))
		return
	}

	if err = jobs.plaid.Handle(ctx, webhooks.Event{Source: webhooks.SourcePlaid, Payload: body}); err != nil {
		serveJSONError(jobs.log, w, http.StatusInternalServerError, err)
		return
	}
	serveJSON(jobs.log, w, http.StatusOK, map[string]string{"status": "ok"})
}

// SyncPlaidItem syncs a single bank connection.
func (jobs *Jobs) SyncPlaidItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	var payload struct {
		ItemID string `json:"item_id"`
	}
	if err = json.NewDecoder(r.Body).Decode(&payload); err != nil {
		serveJSONError(jobs.log, w, http.StatusBadRequest, ErrJobsAPI.Wrap(err))
		return
	}
	itemID, err := uuid.FromString(payload.ItemID)
	if err != nil {
		serveJSONError(jobs.log, w, http.StatusBadRequest, ErrJobsAPI.Wrap(err))
		return
	}

	stats, err := jobs.banksync.SyncItem(ctx, itemID)
	if err != nil {
		serveJSONError(jobs.log, w, http.StatusInternalServerError, err)
		return
	}
	serveJSON(jobs.log, w, http.StatusOK, stats)
}

// CompleteDonation marks a single donation as delivered to the charity.
func (jobs *Jobs) CompleteDonation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	var payload struct {
		DonationID string `json:"donation_id"`
		EveryOrgID string `json:"every_org_id"`
	}
	if err = json.NewDecoder(r.Body).Decode(&payload); err != nil {
		serveJSONError(jobs.log, w, http.StatusBadRequest, ErrJobsAPI.Wrap(err))
		return
	}
	donationID, err := uuid.FromString(payload.DonationID)
	if err != nil {
		serveJSONError(jobs.log, w, http.StatusBadRequest, ErrJobsAPI.Wrap(err))
		return
	}

	if err = jobs.grants.CompleteDonation(ctx, donationID, payload.EveryOrgID); err != nil {
		serveJSONError(jobs.log, w, http.StatusInternalServerError, err)
		return
	}
	serveJSON(jobs.log, w, http.StatusOK, map[string]string{"status": "ok"})
}

// RetryFailedWebhooks re-runs handlers for failed ledger events.
func (jobs *Jobs) RetryFailedWebhooks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	retried, err := jobs.webhooks.RetryFailed(ctx)
	if err != nil {
		serveJSONError(jobs.log, w, http.StatusInternalServerError, err)
		return
	}
	serveJSON(jobs.log, w, http.StatusOK, map[string]int{"retried": retried})
}

// WeeklyDonationProcessing creates the weekly batches and collects them.
func (jobs *Jobs) WeeklyDonationProcessing(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	if err = jobs.batching.RunWeekly(ctx); err != nil {
		serveJSONError(jobs.log, w, http.StatusInternalServerError, err)
		return
	}
	serveJSON(jobs.log, w, http.StatusOK, map[string]string{"status": "ok"})
}

// DailyTransactionSync syncs every active bank connection.
func (jobs *Jobs) DailyTransactionSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	stats, err := jobs.banksync.SyncAll(ctx)
	if err != nil {
		serveJSONError(jobs.log, w, http.StatusInternalServerError, err)
		return
	}
	serveJSON(jobs.log, w, http.StatusOK, stats)
}

// ResetMonthlyTotals zeroes the running month total of every user.
func (jobs *Jobs) ResetMonthlyTotals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	affected, err := jobs.users.ResetMonthTotals(ctx)
	if err != nil {
		serveJSONError(jobs.log, w, http.StatusInternalServerError, err)
		return
	}
	serveJSON(jobs.log, w, http.StatusOK, map[string]int64{"reset": affected})
}

// ListWebhookEvents returns the newest ledger entries for monitoring.
func (jobs *Jobs) ListWebhookEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := jobs.webhooks.ListRecent(ctx, limit)
	if err != nil {
		serveJSONError(jobs.log, w, http.StatusInternalServerError, err)
		return
	}
	serveJSON(jobs.log, w, http.StatusOK, events)
}
