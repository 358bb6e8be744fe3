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

// Package payments is a minimal client for the Platega-like payment
// gateway: create a transaction, redirect the user, poll its status.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sbs-poc/accessbroker/internal/config"
)

const defaultTimeout = 20 * time.Second

// ErrGatewayFailure is returned whenever the gateway responds with an
// HTTP status >= 400 or an unexpected/incomplete payload.
var ErrGatewayFailure = errors.New("payments: gateway request failed")

// CreateResult is the outcome of creating a transaction: where to redirect
// the payer and the gateway's own id for later status polling.
type CreateResult struct {
	TransactionID string
	RedirectURL   string
	Status        string
}

// StatusResult is the outcome of polling a transaction's status.
type StatusResult struct {
	TransactionID string
	Status        string
	AmountMinor   int64
	Currency      string
	Payload       string
}

// Client talks to the configured gateway over HTTP.
type Client struct {
	baseURL    string
	merchantID string
	secret     string
	httpClient *http.Client
}

func New(cfg config.Payments) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		merchantID: cfg.MerchantID,
		secret:     cfg.Secret,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

func (c *Client) headers(req *http.Request) {
	req.Header.Set("X-MerchantId", c.merchantID)
	req.Header.Set("X-Secret", c.secret)
	req.Header.Set("Content-Type", "application/json")
}

// CreateTransaction opens a new payment on the gateway and returns the
// URL the payer must be redirected to.
func (c *Client) CreateTransaction(ctx context.Context, paymentMethod int, amountMinor int64, currency, description, returnURL, failedURL, payload string) (CreateResult, error) {
	body := map[string]any{
		"paymentMethod": paymentMethod,
		"paymentDetails": map[string]any{
			"amount":   amountMinor,
			"currency": currency,
		},
		"description": description,
		"return":      returnURL,
		"failedUrl":   failedURL,
		"payload":     payload,
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return CreateResult{}, fmt.Errorf("payments: encoding create request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transaction/process", bytes.NewReader(encoded))
	if err != nil {
		return CreateResult{}, fmt.Errorf("payments: building create request: %w", err)
	}
	c.headers(req)

	data, err := c.do(req)
	if err != nil {
		return CreateResult{}, err
	}

	txID := firstNonEmptyString(data, "transactionId", "id")
	redirect := stringField(data, "redirect")
	status := stringField(data, "status")
	if txID == "" || redirect == "" {
		return CreateResult{}, fmt.Errorf("%w: create_transaction: unexpected response %v", ErrGatewayFailure, data)
	}
	if status == "" {
		status = "PENDING"
	}
	return CreateResult{TransactionID: txID, RedirectURL: redirect, Status: status}, nil
}

// GetTransactionStatus polls the gateway for a transaction's current
// status, amount, currency, and the payload it was created with.
func (c *Client) GetTransactionStatus(ctx context.Context, transactionID string) (StatusResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/transaction/"+transactionID, nil)
	if err != nil {
		return StatusResult{}, fmt.Errorf("payments: building status request: %w", err)
	}
	c.headers(req)

	data, err := c.do(req)
	if err != nil {
		return StatusResult{}, err
	}

	status := stringField(data, "status")
	if status == "" {
		status = "UNKNOWN"
	}
	result := StatusResult{
		TransactionID: stringOrDefault(data, "id", transactionID),
		Status:        status,
		Payload:       stringField(data, "payload"),
	}
	if pd, ok := data["paymentDetails"].(map[string]any); ok {
		if amount, ok := pd["amount"].(float64); ok {
			result.AmountMinor = int64(amount)
		}
		result.Currency = stringField(pd, "currency")
	}
	return result, nil
}

// do executes req, decoding the response body as best-effort JSON (falling
// back to a raw-text "_raw" key when the body does not parse as JSON) and
// returning ErrGatewayFailure for any HTTP status >= 400.
func (c *Client) do(req *http.Request) (map[string]any, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayFailure, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", ErrGatewayFailure, err)
	}

	data := readJSONBestEffort(raw)
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: HTTP %d: %v", ErrGatewayFailure, resp.StatusCode, data)
	}
	return data, nil
}

// readJSONBestEffort mirrors the gateway's own leniency about content
// type: a body that doesn't parse as JSON is carried through as the raw
// text under "_raw" rather than discarded.
func readJSONBestEffort(raw []byte) map[string]any {
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err == nil {
		return data
	}
	return map[string]any{"_raw": string(raw)}
}

func stringField(data map[string]any, key string) string {
	v, _ := data[key].(string)
	return strings.TrimSpace(v)
}

func stringOrDefault(data map[string]any, key, fallback string) string {
	if v := stringField(data, key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmptyString(data map[string]any, keys ...string) string {
	for _, key := range keys {
		if v := stringField(data, key); v != "" {
			return v
		}
	}
	return ""
}
