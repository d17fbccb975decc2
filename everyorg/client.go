// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

// Package everyorg implements the Every.org Partner Disbursement API used
// to move collected funds to nonprofits.
package everyorg

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/zeebo/errs"
)

// Error is error class for partner API errors.
var Error = errs.Class("everyorg client")

const partnerAPIURL = "https://partners.every.org/v1"

// Config contains configuration for the partner API client.
type Config struct {
	PartnerID     string        `help:"partner id" default:""`
	PartnerSecret string        `help:"partner secret, used as bearer token" default:""`
	WebhookSecret string        `help:"shared secret for webhook signatures" default:""`
	WebhookURL    string        `help:"url the partner notifies about disbursement outcomes" default:""`
	Timeout       time.Duration `help:"timeout for partner API requests" default:"30s"`
}

// Client handles partner API processing.
type Client struct {
	config  Config
	baseURL string
	http    http.Client
}

// NewClient creates new instance of client with provided credentials.
func NewClient(config Config) *Client {
	return &Client{
		config:  config,
		baseURL: partnerAPIURL,
		http:    http.Client{Timeout: config.Timeout},
	}
}

// TestSetBaseURL points the client at a test server.
func (c *Client) TestSetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// Configured reports whether partner credentials are present.
func (c *Client) Configured() bool {
	return c.config.PartnerID != "" && c.config.PartnerSecret != ""
}

// Grant is one disbursement line item addressed to a nonprofit.
type Grant struct {
	NonprofitID string            `json:"nonprofit_id"`
	AmountCents int64             `json:"amount"`
	Memo        string            `json:"memo"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Disbursement is the partner API response for a created disbursement.
type Disbursement struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// CreateDisbursement submits one disbursement batch moving funds to the
// listed nonprofits.
func (c *Client) CreateDisbursement(ctx context.Context, grants []Grant) (_ *Disbursement, err error) {
	if !c.Configured() {
		return nil, Error.New("partner API credentials are not configured")
	}
	if len(grants) == 0 {
		return nil, Error.New("no grants to disburse")
	}

	body, err := json.Marshal(map[string]interface{}{
		"partner_id":    c.config.PartnerID,
		"disbursements": grants,
		"webhook_url":   c.config.WebhookURL,
	})
	if err != nil {
		return nil, Error.Wrap(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/disbursements", bytes.NewReader(body))
	if err != nil {
		return nil, Error.Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.PartnerSecret)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, Error.Wrap(err)
	}
	defer func() {
		err = errs.Combine(err, Error.Wrap(resp.Body.Close()))
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		return nil, Error.New("partner API error: %s - %s", resp.Status, buf.String())
	}

	var disbursement Disbursement
	if err := json.NewDecoder(resp.Body).Decode(&disbursement); err != nil {
		return nil, Error.Wrap(err)
	}
	return &disbursement, nil
}

// VerifySignature checks the hex HMAC-SHA256 signature of a webhook body
// in constant time.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	if c.config.WebhookSecret == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(c.config.WebhookSecret))
	_, _ = mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
