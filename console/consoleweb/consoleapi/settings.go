// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package consoleapi

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/zeebo/errs"
	"go.uber.org/zap"

	"storj.io/common/uuid"

	"countercart.io/countercart/console"
)

// ErrSettingsAPI is the settings api error class.
var ErrSettingsAPI = errs.Class("consoleapi settings")

// UserSettings is an api controller that exposes user settings and
// donation management functionality.
type UserSettings struct {
	log     *zap.Logger
	service *console.Service
}

// NewUserSettings is a constructor for user settings controller.
func NewUserSettings(log *zap.Logger, service *console.Service) *UserSettings {
	return &UserSettings{
		log:     log,
		service: service,
	}
}

// GetSettings returns donation settings of the authorized user.
func (settings *UserSettings) GetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	result, err := settings.service.GetSettings(ctx)
	if err != nil {
		settings.serveError(w, err)
		return
	}
	serveJSON(settings.log, w, http.StatusOK, result)
}

// UpdateSettings applies a partial settings update. monthlyLimit is
// tri-state: absent leaves the limit alone, null clears it, a number
// sets it.
func (settings *UserSettings) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	var payload struct {
		DonationMultiplier *decimal.Decimal `json:"donationMultiplier"`
		MonthlyLimit       json.RawMessage  `json:"monthlyLimit"`
		AutoDonateEnabled  *bool            `json:"autoDonateEnabled"`
		EmailNotifications *bool            `json:"emailNotifications"`
		PublicProfile      *bool            `json:"publicProfile"`
		ShowBadge          *bool            `json:"showBadge"`
	}
	if err = json.NewDecoder(r.Body).Decode(&payload); err != nil {
		serveJSONError(settings.log, w, http.StatusBadRequest, ErrSettingsAPI.Wrap(err))
		return
	}

	request := console.UpdateSettingsRequest{
		DonationMultiplier: payload.DonationMultiplier,
		AutoDonateEnabled:  payload.AutoDonateEnabled,
		EmailNotifications: payload.EmailNotifications,
		PublicProfile:      payload.PublicProfile,
		ShowBadge:          payload.ShowBadge,
	}
	if len(payload.MonthlyLimit) > 0 {
		if bytes.Equal(payload.MonthlyLimit, []byte("null")) {
			var cleared *decimal.Decimal
			request.MonthlyLimit = &cleared
		} else {
			var limit decimal.Decimal
			if err = json.Unmarshal(payload.MonthlyLimit, &limit); err != nil {
				serveJSONError(settings.log, w, http.StatusBadRequest, ErrSettingsAPI.Wrap(err))
				return
			}
			value := &limit
			request.MonthlyLimit = &value
		}
	}

	if err = settings.service.UpdateSettings(ctx, request); err != nil {
		settings.serveError(w, err)
		return
	}

	result, err := settings.service.GetSettings(ctx)
	if err != nil {
		settings.serveError(w, err)
		return
	}
	serveJSON(settings.log, w, http.StatusOK, result)
}

// ListDonations returns recent donations of the authorized user.
func (settings *UserSettings) ListDonations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	list, err := settings.service.ListDonations(ctx, 0)
	if err != nil {
		settings.serveError(w, err)
		return
	}
	serveJSON(settings.log, w, http.StatusOK, list)
}

// ApproveDonation moves a suggested donation into processing.
func (settings *UserSettings) ApproveDonation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	id, err := uuid.FromString(mux.Vars(r)["id"])
	if err != nil {
		serveJSONError(settings.log, w, http.StatusBadRequest, ErrSettingsAPI.Wrap(err))
		return
	}
	if err = settings.service.ApproveDonation(ctx, id); err != nil {
		settings.serveError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CancelDonation removes a suggested donation and releases its
// transaction.
func (settings *UserSettings) CancelDonation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var err error
	defer mon.Task()(&ctx)(&err)

	id, err := uuid.FromString(mux.Vars(r)["id"])
	if err != nil {
		serveJSONError(settings.log, w, http.StatusBadRequest, ErrSettingsAPI.Wrap(err))
		return
	}
	if err = settings.service.CancelDonation(ctx, id); err != nil {
		settings.serveError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (settings *UserSettings) serveError(w http.ResponseWriter, err error) {
	switch {
	case console.ErrUnauthorized.Has(err):
		serveJSONError(settings.log, w, http.StatusUnauthorized, err)
	case console.ErrValidation.Has(err):
		serveJSONError(settings.log, w, http.StatusBadRequest, err)
	case console.ErrForbidden.Has(err):
		serveJSONError(settings.log, w, http.StatusForbidden, err)
	case console.ErrNotFound.Has(err):
		serveJSONError(settings.log, w, http.StatusNotFound, err)
	default:
		settings.log.Error("settings api error", zap.Error(err))
		serveJSONError(settings.log, w, http.StatusInternalServerError, err)
	}
}
