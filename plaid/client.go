// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

// Package plaid implements the small slice of the bank aggregator API the
// pipeline needs: transaction sync and webhook verification.
package plaid

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeebo/errs"
)

// Error is error class for plaid client errors.
var Error = errs.Class("plaid client")

var environments = map[string]string{
	"sandbox":     "https://sandbox.plaid.com",
	"development": "https://development.plaid.com",
	"production":  "https://production.plaid.com",
}

// Config contains configuration for the aggregator client.
type Config struct {
	ClientID    string        `help:"aggregator client id" default:""`
	Secret      string        `help:"aggregator secret" default:""`
	Environment string        `help:"aggregator environment: sandbox, development or production" default:"sandbox"`
	Timeout     time.Duration `help:"timeout for aggregator requests" default:"30s"`
}

// Client handles base API processing.
type Client struct {
	config  Config
	baseURL string
	http    http.Client
}

// NewClient creates new instance of client with provided credentials.
func NewClient(config Config) *Client {
	baseURL, ok := environments[config.Environment]
	if !ok {
		baseURL = environments["sandbox"]
	}
	return &Client{
		config:  config,
		baseURL: baseURL,
		http:    http.Client{Timeout: config.Timeout},
	}
}

// Transaction is one bank transaction as reported by the aggregator.
type Transaction struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Amount        decimal.Decimal `json:"amount"`
	Date          string          `json:"date"`
	Name          string          `json:"name"`
	MerchantName  string          `json:"merchant_name"`
	Category      []string        `json:"category"`
	Pending       bool            `json:"pending"`
}

// RemovedTransaction identifies a transaction deleted upstream.
type RemovedTransaction struct {
	TransactionID string `json:"transaction_id"`
}

// SyncResponse is one page of the transactions/sync endpoint.
type SyncResponse struct {
	Added      []Transaction        `json:"added"`
	Modified   []Transaction        `json:"modified"`
	Removed    []RemovedTransaction `json:"removed"`
	NextCursor string               `json:"next_cursor"`
	HasMore    bool                 `json:"has_more"`
}

// TransactionsSync fetches one page of transaction deltas for the given
// access token. An empty cursor starts from the beginning of history.
func (c *Client) TransactionsSync(ctx context.Context, accessToken, cursor string, count int) (_ *SyncResponse, err error) {
	body := map[string]interface{}{
		"access_token": accessToken,
		"count":        count,
	}
	if cursor != "" {
		body["cursor"] = cursor
	}

	var response SyncResponse
	if err := c.do(ctx, "/transactions/sync", body, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// do handles base API request routines.
func (c *Client) do(ctx context.Context, path string, body map[string]interface{}, out interface{}) (err error) {
	body["client_id"] = c.config.ClientID
	body["secret"] = c.config.Secret

	encoded, err := json.Marshal(body)
	if err != nil {
		return Error.Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return Error.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Error.Wrap(err)
	}
	defer func() {
		err = errs.Combine(err, Error.Wrap(resp.Body.Close()))
	}()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			ErrorType    string `json:"error_type"`
			ErrorCode    string `json:"error_code"`
			ErrorMessage string `json:"error_message"`
		}
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.ErrorCode != "" {
			return Error.New("%s: %s (%s)", apiErr.ErrorType, apiErr.ErrorMessage, apiErr.ErrorCode)
		}
		return Error.New("unexpected status %s", resp.Status)
	}

	return Error.Wrap(json.NewDecoder(resp.Body).Decode(out))
}
