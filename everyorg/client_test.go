// Copyright (C) 2024 CounterCart, Inc.
// See LICENSE for copying information.

package everyorg_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"storj.io/common/testcontext"

	"countercart.io/countercart/everyorg"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	client := everyorg.NewClient(everyorg.Config{WebhookSecret: "hook-secret"})

	body := []byte(`{"id":"disb_1","status":"completed"}`)
	require.True(t, client.VerifySignature(body, sign("hook-secret", body)))

	// tampered body
	require.False(t, client.VerifySignature([]byte(`{"id":"disb_2"}`), sign("hook-secret", body)))

	// wrong secret
	require.False(t, client.VerifySignature(body, sign("other-secret", body)))

	// no secret configured means nothing verifies
	unconfigured := everyorg.NewClient(everyorg.Config{})
	require.False(t, unconfigured.VerifySignature(body, sign("", body)))
}

func TestCreateDisbursement(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/disbursements", r.URL.Path)
		require.Equal(t, "Bearer partner-secret", r.Header.Get("Authorization"))

		var request struct {
			PartnerID     string           `json:"partner_id"`
			Disbursements []everyorg.Grant `json:"disbursements"`
			WebhookURL    string           `json:"webhook_url"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&request))
		require.Equal(t, "partner-1", request.PartnerID)
		require.Len(t, request.Disbursements, 1)
		require.Equal(t, int64(150), request.Disbursements[0].AmountCents)

		require.NoError(t, json.NewEncoder(w).Encode(everyorg.Disbursement{ID: "disb_1", Status: "pending"}))
	}))
	defer server.Close()

	client := everyorg.NewClient(everyorg.Config{
		PartnerID:     "partner-1",
		PartnerSecret: "partner-secret",
		WebhookURL:    "https://countercart.example/api/webhooks/everyorg/disbursement",
	})
	client.TestSetBaseURL(server.URL)

	disbursement, err := client.CreateDisbursement(ctx, []everyorg.Grant{
		{NonprofitID: "rainforest-trust", AmountCents: 150, Memo: "CounterCart grant - Climate"},
	})
	require.NoError(t, err)
	require.Equal(t, "disb_1", disbursement.ID)
	require.Equal(t, "pending", disbursement.Status)
}

func TestCreateDisbursementErrors(t *testing.T) {
	ctx := testcontext.New(t)
	defer ctx.Cleanup()

	unconfigured := everyorg.NewClient(everyorg.Config{})
	_, err := unconfigured.CreateDisbursement(ctx, []everyorg.Grant{{NonprofitID: "x", AmountCents: 1}})
	require.Error(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient balance", http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	client := everyorg.NewClient(everyorg.Config{PartnerID: "partner-1", PartnerSecret: "partner-secret"})
	client.TestSetBaseURL(server.URL)

	_, err = client.CreateDisbursement(ctx, nil)
	require.Error(t, err)

	_, err = client.CreateDisbursement(ctx, []everyorg.Grant{{NonprofitID: "x", AmountCents: 1}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "insufficient balance")
}
