// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package consoleapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"countercart.io/countercart/everyorg"
	"countercart.io/countercart/plaid"
	"countercart.io/countercart/webhooks"
)

// ErrWebhooksAPI is the webhook ingress api error class.
var ErrWebhooksAPI = errs.Class("consoleapi webhooks")

const maxWebhookBody = 1 << 20

// Webhooks is the ingress controller for upstream webhook deliveries.
// Every accepted delivery is written to the durable ledger before any
// side effect runs.
type Webhooks struct {
	log        *zap.Logger
	service    *webhooks.Service
	dispatcher *webhooks.Dispatcher
	verifier   *plaid.Verifier
	partner    *everyorg.Client
}

// NewWebhooks is a constructor for webhook ingress controller.
func NewWebhooks(log *zap.Logger, service *webhooks.Service, dispatcher *webhooks.Dispatcher, verifier *plaid.Verifier, partner *everyorg.Client) *Webhooks {
	return &Webhooks{
		log:        log,
		service:    service,
		dispatcher: dispatcher,
		verifier:   verifier,
		partner:    partner,
	}
}

// HandlePlaid ingests a bank aggregator webhook. The delivery is
// authenticated with the verification JWT before anything is stored.
func (controller *Webhooks) HandlePlaid(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		serveJSONError(controller.log, w, http.StatusBadRequest, ErrWebhooksAPI.Wrap(err))
		return
	}

	token := r.Header.Get("Plaid-Verification")
	if err = controller.verifier.Verify(ctx, token, body); err != nil {
		controller.log.Warn("webhook verification failed", zap.Error(err))
		serveJSONError(controller.log, w, http.StatusUnauthorized, ErrWebhooksAPI.New("invalid webhook signature"))
		return
	}

	var payload struct {
		WebhookType string `json:"webhook_type"`
		WebhookCode string `json:"webhook_code"`
		ItemID      string `json:"item_id"`
	}
	if err = json.Unmarshal(body, &payload); err != nil {
		serveJSONError(controller.log, w, http.StatusBadRequest, ErrWebhooksAPI.Wrap(err))
		return
	}

	eventID := fmt.Sprintf("%s:%s", payload.ItemID, payload.WebhookCode)
	event, err := controller.service.Record(ctx, webhooks.SourcePlaid, payload.WebhookType, eventID, body, token)
	if err != nil {
		if webhooks.ErrDuplicate.Has(err) {
			serveReceived(controller.log, w)
			return
		}
		serveJSONError(controller.log, w, http.StatusInternalServerError, err)
		return
	}

	err = controller.dispatcher.Dispatch(ctx, "handle-plaid-webhook", json.RawMessage(body), func(ctx context.Context) error {
		return controller.service.Process(ctx, event)
	})
	if err != nil {
		controller.log.Error("plaid webhook processing failed", zap.Error(err))
	}

	serveReceived(controller.log, w)
}

// HandleDisbursement ingests a disbursement outcome notification from the
// giving partner. The body is authenticated with a shared-secret HMAC; a
// bad signature leaves no trace in the ledger.
func (controller *Webhooks) HandleDisbursement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		serveJSONError(controller.log, w, http.StatusBadRequest, ErrWebhooksAPI.Wrap(err))
		return
	}

	signature := r.Header.Get("X-Everyorg-Signature")
	if !controller.partner.VerifySignature(body, signature) {
		controller.log.Warn("disbursement webhook signature mismatch")
		serveJSONError(controller.log, w, http.StatusUnauthorized, ErrWebhooksAPI.New("invalid webhook signature"))
		return
	}

	var payload struct {
		ID             string `json:"id"`
		DisbursementID string `json:"disbursement_id"`
		Status         string `json:"status"`
	}
	if err = json.Unmarshal(body, &payload); err != nil {
		serveJSONError(controller.log, w, http.StatusBadRequest, ErrWebhooksAPI.Wrap(err))
		return
	}
	disbursementID := payload.ID
	if disbursementID == "" {
		disbursementID = payload.DisbursementID
	}

	event, err := controller.service.Record(ctx, webhooks.SourceEveryOrg, payload.Status, disbursementID, body, signature)
	if err != nil {
		if webhooks.ErrDuplicate.Has(err) {
			serveReceived(controller.log, w)
			return
		}
		serveJSONError(controller.log, w, http.StatusInternalServerError, err)
		return
	}

	if err = controller.service.Process(ctx, event); err != nil {
		controller.log.Error("disbursement webhook processing failed", zap.Error(err))
	}

	serveReceived(controller.log, w)
}

func serveReceived(log *zap.Logger, w http.ResponseWriter) {
	serveJSON(log, w, http.StatusOK, map[string]bool{"received": true})
}
