// Package shipping wraps the external label purchase service. The result is
// deliberately ternary: success, blocked (another process already owns the
// purchase), or failed. Blocked is not an error.
package shipping

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/harvestline/storefront/internal/config"
)

var ErrNotConfigured = errors.New("shipping_service_not_configured")

// Result is the outcome of a label purchase attempt.
type Result struct {
	Success             bool
	BlockedByConcurrent bool
	TrackingNumber      string
	LabelURL            string
	Err                 error
}

// Purchaser is the collaborator surface the reconciliation engine uses.
type Purchaser interface {
	Purchase(ctx context.Context, orderID string, rateID string) Result
}

type purchaseRequest struct {
	OrderID string `json:"order_id"`
	RateID  string `json:"rate_id"`
}

type purchaseResponse struct {
	Success             bool   `json:"success"`
	BlockedByConcurrent bool   `json:"blocked_by_concurrent"`
	TrackingNumber      string `json:"tracking_number"`
	LabelURL            string `json:"label_url"`
	Error               string `json:"error"`
}

type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.Shipping.BaseURL, "/"),
		apiKey:  cfg.Shipping.APIKey,
		client:  &http.Client{Timeout: 20 * time.Second},
	}
}

func (c *Client) Purchase(ctx context.Context, orderID string, rateID string) Result {
	if c.baseURL == "" {
		return Result{Err: ErrNotConfigured}
	}

	body, err := json.Marshal(purchaseRequest{OrderID: orderID, RateID: rateID})
	if err != nil {
		return Result{Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/labels", bytes.NewReader(body))
	if err != nil {
		return Result{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{Err: err}
	}
	defer resp.Body.Close()

	var parsed purchaseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Result{Err: err}
	}
	if resp.StatusCode >= http.StatusBadRequest && parsed.Error == "" {
		parsed.Error = fmt.Sprintf("label service status %d", resp.StatusCode)
	}

	result := Result{
		Success:             parsed.Success,
		BlockedByConcurrent: parsed.BlockedByConcurrent,
		TrackingNumber:      parsed.TrackingNumber,
		LabelURL:            parsed.LabelURL,
	}
	if parsed.Error != "" {
		result.Err = errors.New(parsed.Error)
	}
	return result
}
