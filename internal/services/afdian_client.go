package services

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"license-api/internal/apperrors"
	"license-api/internal/config"
	"license-api/pkg/logging"

	"github.com/cenkalti/backoff/v4"
)

// AfdianOrderData represents one order in Afdian's wire format
type AfdianOrderData struct {
	OutTradeNo  string          `json:"out_trade_no"`
	UserID      string          `json:"user_id"`
	PlanID      string          `json:"plan_id"`
	Month       int             `json:"month"`
	TotalAmount string          `json:"total_amount"`
	ShowAmount  string          `json:"show_amount"`
	Status      int             `json:"status"`
	Remark      string          `json:"remark"`
	RedeemID    string          `json:"redeem_id"`
	ProductType int             `json:"product_type"`
	Discount    string          `json:"discount"`
	SkuDetail   json.RawMessage `json:"sku_detail"`
}

// AfdianWebhookPayload represents the inbound webhook envelope
type AfdianWebhookPayload struct {
	EC   int    `json:"ec"`
	EM   string `json:"em"`
	Data struct {
		Type  string          `json:"type"`
		Order AfdianOrderData `json:"order"`
	} `json:"data"`
}

// afdianQueryResponse is the query-order API response
type afdianQueryResponse struct {
	EC   int    `json:"ec"`
	EM   string `json:"em"`
	Data struct {
		List      []AfdianOrderData `json:"list"`
		TotalPage int               `json:"total_page"`
	} `json:"data"`
}

// AfdianClient calls the Afdian open API. Every call is bounded by the
// configured timeout and retried with capped exponential backoff;
// a non-success API envelope is not retried.
type AfdianClient struct {
	httpClient *http.Client
	userID     string
	token      string
	apiURL     string
	maxRetries int
}

// NewAfdianClient creates a client from the provider credentials in
// config. Missing credentials fail with ErrConfiguration.
func NewAfdianClient() (*AfdianClient, error) {
	cfg := config.AppConfig
	if cfg.AfdianUserID == "" || cfg.AfdianToken == "" {
		return nil, fmt.Errorf("%w: afdian credentials not configured", apperrors.ErrConfiguration)
	}

	return &AfdianClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.ProviderTimeoutSeconds) * time.Second,
		},
		userID:     cfg.AfdianUserID,
		token:      cfg.AfdianToken,
		apiURL:     cfg.AfdianAPIURL,
		maxRetries: cfg.ProviderMaxRetries,
	}, nil
}

// QueryOrders fetches one page of orders from Afdian
func (c *AfdianClient) QueryOrders(ctx context.Context, page int) ([]AfdianOrderData, error) {
	params, err := json.Marshal(map[string]interface{}{
		"user_id": c.userID,
		"page":    page,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	var orders []AfdianOrderData
	operation := func() error {
		// The request signature covers token, params and timestamp,
		// per Afdian's open API contract
		ts := time.Now().Unix()
		sum := md5.Sum([]byte(fmt.Sprintf("%s%s%d", c.token, params, ts)))

		body, err := json.Marshal(map[string]interface{}{
			"user_id": c.userID,
			"params":  string(params),
			"ts":      ts,
			"sign":    hex.EncodeToString(sum[:]),
		})
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to marshal request: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to query orders: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		if resp.StatusCode >= 500 {
			return fmt.Errorf("afdian API returned status %d", resp.StatusCode)
		}

		var queryResp afdianQueryResponse
		if err := json.Unmarshal(respBody, &queryResp); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to parse response: %w", err))
		}
		if queryResp.EC != 200 {
			return backoff.Permanent(fmt.Errorf("%w: afdian query failed: %s", apperrors.ErrValidation, queryResp.EM))
		}

		orders = queryResp.Data.List
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		logging.Errorf("Failed to query Afdian orders (page %d): %v", page, err)
		return nil, err
	}

	return orders, nil
}

// VerifyCredentials checks the configured credentials against the API
func (c *AfdianClient) VerifyCredentials(ctx context.Context) error {
	_, err := c.QueryOrders(ctx, 1)
	return err
}
