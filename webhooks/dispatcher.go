// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/zeebo/errs"
	"go.uber.org/zap"
)

// DispatcherConfig contains configuration for job dispatch.
type DispatcherConfig struct {
	JobServiceURL string        `help:"base url of the background job service, empty means inline processing" default:""`
	InternalToken string        `help:"shared token for internal job requests" default:""`
	Timeout       time.Duration `help:"timeout for job dispatch requests" default:"10s"`
}

// Dispatcher hands webhook processing off to the background job service.
// When no job service is configured, or the handoff fails, the work runs
// inline so that events are never dropped.
type Dispatcher struct {
	log    *zap.Logger
	config DispatcherConfig
	client *http.Client
}

// NewDispatcher creates a new job dispatcher.
func NewDispatcher(log *zap.Logger, config DispatcherConfig) *Dispatcher {
	return &Dispatcher{
		log:    log,
		config: config,
		client: &http.Client{Timeout: config.Timeout},
	}
}

// Dispatch posts the job to the job service and falls back to running
// inline on configuration absence or handoff failure.
func (d *Dispatcher) Dispatch(ctx context.Context, job string, payload interface{}, inline func(ctx context.Context) error) error {
	if d.config.JobServiceURL == "" {
		return inline(ctx)
	}

	if err := d.post(ctx, job, payload); err != nil {
		d.log.Warn("job dispatch failed, processing inline",
			zap.String("job", job),
			zap.Error(err))
		return inline(ctx)
	}
	return nil
}

func (d *Dispatcher) post(ctx context.Context, job string, payload interface{}) (err error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Error.Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.config.JobServiceURL+"/jobs/"+job, bytes.NewReader(body))
	if err != nil {
		return Error.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-Token", d.config.InternalToken)

	resp, err := d.client.Do(req)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() {
		err = errs.Combine(err, resp.Body.Close())
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		return Error.New("job service returned %s", resp.Status)
	}
	return nil
}
