package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/harvestline/storefront/internal/config"
)

var (
	ErrOrderNotFound = errors.New("square_order_not_found")
	ErrMissingToken  = errors.New("square_access_token_missing")
)

// OrderFetcher is the lookup surface the backfill path depends on.
type OrderFetcher interface {
	RetrieveOrder(ctx context.Context, orderID string) (*Order, error)
}

type retrieveOrderResponse struct {
	Order *Order `json:"order"`
}

type apiErrorResponse struct {
	Errors []struct {
		Category string `json:"category"`
		Code     string `json:"code"`
		Detail   string `json:"detail"`
	} `json:"errors"`
}

// Client talks to the Square connect API.
type Client struct {
	baseURL     string
	accessToken string
	client      *http.Client
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.Square.APIBaseURL, "/"),
		accessToken: cfg.Square.AccessToken,
		client:      &http.Client{Timeout: 12 * time.Second},
	}
}

// RetrieveOrder fetches the authoritative order from Square. Returns
// ErrOrderNotFound when Square does not know the ID.
func (c *Client) RetrieveOrder(ctx context.Context, orderID string) (*Order, error) {
	if strings.TrimSpace(c.accessToken) == "" {
		return nil, ErrMissingToken
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, ErrOrderNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v2/orders/"+orderID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrOrderNotFound
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr apiErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && len(apiErr.Errors) > 0 {
			return nil, fmt.Errorf("square api %s: %s", apiErr.Errors[0].Code, apiErr.Errors[0].Detail)
		}
		return nil, fmt.Errorf("square api status %d", resp.StatusCode)
	}

	var body retrieveOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if body.Order == nil {
		return nil, ErrOrderNotFound
	}
	return body.Order, nil
}
