// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package grants

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"storj.io/common/uuid"

	"countercart.io/countercart/banking"
	"countercart.io/countercart/donations"
	"countercart.io/countercart/webhooks"
)

// DisbursementWebhookHandler applies the partner's disbursement outcome
// notifications.
type DisbursementWebhookHandler struct {
	log     *zap.Logger
	service *Service
}

// NewDisbursementWebhookHandler creates a handler for partner webhook
// events.
func NewDisbursementWebhookHandler(log *zap.Logger, service *Service) *DisbursementWebhookHandler {
	return &DisbursementWebhookHandler{log: log, service: service}
}

// Handle implements webhooks.Handler.
func (handler *DisbursementWebhookHandler) Handle(ctx context.Context, event webhooks.Event) (err error) {
	defer mon.Task()(&ctx)(&err)

	var payload struct {
		ID             string `json:"id"`
		DisbursementID string `json:"disbursement_id"`
		Status         string `json:"status"`
		Reason         string `json:"reason"`
	}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return Error.Wrap(err)
	}

	disbursementID := payload.DisbursementID
	if disbursementID == "" {
		disbursementID = payload.ID
	}
	if disbursementID == "" {
		return Error.New("event without disbursement id")
	}

	return handler.service.ReconcileDisbursement(ctx, disbursementID, payload.Status, payload.Reason)
}

// StripeWebhookHandler applies the processor's debit outcome
// notifications: a settled payment completes the batch and hands it to
// grant distribution, a failed one marks everything failed.
type StripeWebhookHandler struct {
	log     *zap.Logger
	store   Store
	service *Service
}

// NewStripeWebhookHandler creates a handler for processor webhook events.
func NewStripeWebhookHandler(log *zap.Logger, store Store, service *Service) *StripeWebhookHandler {
	return &StripeWebhookHandler{log: log, store: store, service: service}
}

// Handle implements webhooks.Handler.
func (handler *StripeWebhookHandler) Handle(ctx context.Context, event webhooks.Event) (err error) {
	defer mon.Task()(&ctx)(&err)

	var payload struct {
		Type string `json:"type"`
		Data struct {
			Object struct {
				ID string `json:"id"`
			} `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		return Error.Wrap(err)
	}

	batch, err := handler.store.Batches().GetByPaymentIntent(ctx, payload.Data.Object.ID)
	if err != nil {
		handler.log.Debug("no batch for payment intent", zap.String("paymentIntentID", payload.Data.Object.ID))
		return nil
	}

	switch payload.Type {
	case "payment_intent.succeeded":
		if err := handler.completeBatch(ctx, batch); err != nil {
			return err
		}
		return handler.service.DistributeBatch(ctx, batch.ID)

	case "payment_intent.payment_failed":
		failed := donations.BatchFailed
		status := donations.StatusFailed
		message := "ACH debit failed"
		err = handler.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
			err := tx.Batches().Update(ctx, batch.ID, donations.BatchUpdate{Status: &failed})
			if err != nil {
				return err
			}
			return tx.Donations().UpdateByBatch(ctx, batch.ID, donations.DonationUpdate{
				Status:       &status,
				ErrorMessage: &message,
			})
		})
		return Error.Wrap(err)

	default:
		return nil
	}
}

func (handler *StripeWebhookHandler) completeBatch(ctx context.Context, batch *donations.Batch) error {
	now := handler.service.nowFn()
	completed := donations.BatchCompleted
	status := donations.StatusCompleted

	return Error.Wrap(handler.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		err := tx.Batches().Update(ctx, batch.ID, donations.BatchUpdate{
			Status:      &completed,
			ProcessedAt: &now,
		})
		if err != nil {
			return err
		}
		return tx.Donations().UpdateByBatch(ctx, batch.ID, donations.DonationUpdate{
			Status:      &status,
			CompletedAt: &now,
		})
	}))
}

// CompleteDonation marks one donation completed after the partner reported
// it, updates its transaction and closes the batch when it was the last
// open donation.
func (service *Service) CompleteDonation(ctx context.Context, donationID uuid.UUID, everyOrgID string) (err error) {
	defer mon.Task()(&ctx)(&err)

	return Error.Wrap(service.store.WithTx(ctx, func(ctx context.Context, tx Store) error {
		donation, err := tx.Donations().Get(ctx, donationID)
		if err != nil {
			return err
		}

		now := service.nowFn()
		completed := donations.StatusCompleted
		err = tx.Donations().Update(ctx, donationID, donations.DonationUpdate{
			Status:      &completed,
			EveryOrgID:  &everyOrgID,
			CompletedAt: &now,
		})
		if err != nil {
			return err
		}

		if donation.TransactionID != nil {
			err = tx.Transactions().UpdateStatus(ctx, *donation.TransactionID, banking.TransactionDonated)
			if err != nil {
				return err
			}
		}

		if donation.BatchID == nil {
			return nil
		}

		batchDonations, err := tx.Donations().ListByBatch(ctx, *donation.BatchID)
		if err != nil {
			return err
		}
		for _, other := range batchDonations {
			if other.ID == donationID {
				continue
			}
			if other.Status == donations.StatusPending || other.Status == donations.StatusProcessing {
				return nil
			}
		}

		batchCompleted := donations.BatchCompleted
		return tx.Batches().Update(ctx, *donation.BatchID, donations.BatchUpdate{
			Status:      &batchCompleted,
			ProcessedAt: &now,
		})
	}))
}
