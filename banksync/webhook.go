// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package banksync

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"storj.io/common/uuid"

	"countercart.io/countercart/banking"
	"countercart.io/countercart/webhooks"
)

// Webhook codes that mean new transaction deltas are waiting.
var syncCodes = map[string]bool{
	"INITIAL_UPDATE":         true,
	"HISTORICAL_UPDATE":      true,
	"DEFAULT_UPDATE":         true,
	"TRANSACTIONS_REMOVED":   true,
	"SYNC_UPDATES_AVAILABLE": true,
}

// Notifier lets the handler tell the user their bank connection needs
// attention.
type Notifier interface {
	// SendItemAttention notifies the owner of a broken bank connection.
	SendItemAttention(ctx context.Context, userID uuid.UUID, institution, reason string)
}

// WebhookHandler applies aggregator webhook events: transaction updates
// trigger a sync, connection updates adjust the item status.
type WebhookHandler struct {
	log      *zap.Logger
	service  *Service
	store    Store
	notifier Notifier
}

// NewWebhookHandler creates a handler for aggregator webhook events.
func NewWebhookHandler(log *zap.Logger, service *Service, store Store, notifier Notifier) *WebhookHandler {
	return &WebhookHandler{
		log:      log,
		service:  service,
		store:    store,
		notifier: notifier,
	}
}

type webhookPayload struct {
	WebhookType string `json:"webhook_type"`
	WebhookCode string `json:"webhook_code"`
	ItemID      string `json:"item_id"`
	Error       *struct {
		ErrorCode    string `json:"error_code"`
		ErrorMessage string `json:"error_message"`
	} `json:"error"`
}

// Handle implements webhooks.Handler.
func (handler *WebhookHandler) Handle(ctx context.Context, event webhooks.Event) (err error) {
	defer mon.Task()(&ctx)(&err)

	var payload webhookPayload
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return Error.Wrap(err)
	}

	item, err := handler.store.Items().GetByItemID(ctx, payload.ItemID)
	if err != nil {
		return Error.New("no bank connection for item %q", payload.ItemID)
	}

	switch payload.WebhookType {
	case "TRANSACTIONS":
		return handler.handleTransactions(ctx, item, payload)
	case "ITEM":
		return handler.handleItem(ctx, item, payload)
	default:
		handler.log.Debug("unhandled webhook type",
			zap.String("webhookType", payload.WebhookType),
			zap.String("webhookCode", payload.WebhookCode))
		return nil
	}
}

func (handler *WebhookHandler) handleTransactions(ctx context.Context, item *banking.Item, payload webhookPayload) error {
	if !syncCodes[payload.WebhookCode] {
		handler.log.Debug("unhandled transactions webhook code", zap.String("webhookCode", payload.WebhookCode))
		return nil
	}
	_, err := handler.service.SyncItem(ctx, item.ID)
	return err
}

func (handler *WebhookHandler) handleItem(ctx context.Context, item *banking.Item, payload webhookPayload) error {
	switch payload.WebhookCode {
	case "ERROR":
		errorCode := ""
		if payload.Error != nil {
			errorCode = payload.Error.ErrorCode
		}
		if err := handler.store.Items().UpdateStatus(ctx, item.ID, banking.ItemError, errorCode); err != nil {
			return Error.Wrap(err)
		}
		handler.notify(ctx, item, "connection error")
		return nil

	case "LOGIN_REPAIRED":
		if err := handler.store.Items().UpdateStatus(ctx, item.ID, banking.ItemActive, ""); err != nil {
			return Error.Wrap(err)
		}
		// access is back, catch up right away
		_, err := handler.service.SyncItem(ctx, item.ID)
		return err

	case "PENDING_EXPIRATION":
		if err := handler.store.Items().UpdateStatus(ctx, item.ID, banking.ItemLoginRequired, ""); err != nil {
			return Error.Wrap(err)
		}
		handler.notify(ctx, item, "access expiring soon")
		return nil

	case "USER_PERMISSION_REVOKED":
		return Error.Wrap(handler.store.Items().UpdateStatus(ctx, item.ID, banking.ItemDisconnected, ""))

	case "WEBHOOK_UPDATE_ACKNOWLEDGED":
		return nil

	default:
		handler.log.Debug("unhandled item webhook code", zap.String("webhookCode", payload.WebhookCode))
		return nil
	}
}

func (handler *WebhookHandler) notify(ctx context.Context, item *banking.Item, reason string) {
	if handler.notifier == nil {
		return
	}
	handler.notifier.SendItemAttention(ctx, item.UserID, item.InstitutionName, reason)
}
