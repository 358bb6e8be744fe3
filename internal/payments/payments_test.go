// SPDX-License-Identifier: AGPL-3.0-or-later
// accessbroker - subscription entitlement lifecycle engine
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package payments_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sbs-poc/accessbroker/internal/config"
	"github.com/sbs-poc/accessbroker/internal/payments"
	"github.com/stretchr/testify/require"
)

func testConfig(baseURL string) config.Payments {
	return config.Payments{
		BaseURL:    baseURL,
		MerchantID: "merchant-1",
		Secret:     "s3cr3t",
	}
}

func TestCreateTransactionReturnsRedirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transaction/process", r.URL.Path)
		require.Equal(t, "merchant-1", r.Header.Get("X-MerchantId"))
		require.Equal(t, "s3cr3t", r.Header.Get("X-Secret"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "pay for it", body["description"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"transactionId": "tx-123",
			"redirect":      "https://pay.example/tx-123",
			"status":        "PENDING",
		})
	}))
	defer srv.Close()

	client := payments.New(testConfig(srv.URL))
	result, err := client.CreateTransaction(context.Background(), 1, 100000, "RUB", "pay for it", "https://ok", "https://fail", "payload-1")
	require.NoError(t, err)
	require.Equal(t, "tx-123", result.TransactionID)
	require.Equal(t, "https://pay.example/tx-123", result.RedirectURL)
	require.Equal(t, "PENDING", result.Status)
}

func TestCreateTransactionMissingFieldsFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "PENDING"})
	}))
	defer srv.Close()

	client := payments.New(testConfig(srv.URL))
	_, err := client.CreateTransaction(context.Background(), 1, 100000, "RUB", "d", "r", "f", "p")
	require.ErrorIs(t, err, payments.ErrGatewayFailure)
}

func TestCreateTransactionHTTPErrorStatusFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad merchant"}`))
	}))
	defer srv.Close()

	client := payments.New(testConfig(srv.URL))
	_, err := client.CreateTransaction(context.Background(), 1, 100000, "RUB", "d", "r", "f", "p")
	require.ErrorIs(t, err, payments.ErrGatewayFailure)
	require.Contains(t, err.Error(), "bad merchant")
}

func TestCreateTransactionMalformedJSONSurfacesRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("not json at all"))
	}))
	defer srv.Close()

	client := payments.New(testConfig(srv.URL))
	_, err := client.CreateTransaction(context.Background(), 1, 100000, "RUB", "d", "r", "f", "p")
	require.ErrorIs(t, err, payments.ErrGatewayFailure)
	require.Contains(t, err.Error(), "not json at all")
}

func TestGetTransactionStatusParsesAmountAndCurrency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/transaction/tx-123", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "tx-123",
			"status": "SUCCESS",
			"paymentDetails": map[string]any{
				"amount":   100000,
				"currency": "RUB",
			},
			"payload": "payload-1",
		})
	}))
	defer srv.Close()

	client := payments.New(testConfig(srv.URL))
	result, err := client.GetTransactionStatus(context.Background(), "tx-123")
	require.NoError(t, err)
	require.Equal(t, "tx-123", result.TransactionID)
	require.Equal(t, "SUCCESS", result.Status)
	require.EqualValues(t, 100000, result.AmountMinor)
	require.Equal(t, "RUB", result.Currency)
	require.Equal(t, "payload-1", result.Payload)
}

func TestGetTransactionStatusFallsBackToRequestedID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "UNKNOWN"})
	}))
	defer srv.Close()

	client := payments.New(testConfig(srv.URL))
	result, err := client.GetTransactionStatus(context.Background(), "tx-fallback")
	require.NoError(t, err)
	require.Equal(t, "tx-fallback", result.TransactionID)
}

func TestDoPropagatesTransportError(t *testing.T) {
	client := payments.New(testConfig("http://127.0.0.1:1"))
	_, err := client.CreateTransaction(context.Background(), 1, 100, "RUB", "d", "r", "f", "p")
	require.Error(t, err)
	require.ErrorIs(t, err, payments.ErrGatewayFailure)
}
