package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/SalahElkadim/alc/internal/config"
	"github.com/SalahElkadim/alc/internal/logger"
	"github.com/SalahElkadim/alc/pkg/errors"
)

type TransactionSource struct {
	Type           string `json:"type"`
	Company        string `json:"company,omitempty"`
	Name           string `json:"name,omitempty"`
	Number         string `json:"number,omitempty"`
	Message        string `json:"message,omitempty"`
	TransactionURL string `json:"transaction_url,omitempty"`
}

// Transaction is a payment as reported by the gateway. Amounts are in
// minor units.
type Transaction struct {
	ID          string                 `json:"id"`
	Status      string                 `json:"status"`
	Amount      int64                  `json:"amount"`
	Fee         int64                  `json:"fee"`
	Currency    string                 `json:"currency"`
	Refunded    int64                  `json:"refunded"`
	Description string                 `json:"description"`
	CallbackURL string                 `json:"callback_url,omitempty"`
	CreatedAt   string                 `json:"created_at"`
	UpdatedAt   string                 `json:"updated_at"`
	Metadata    map[string]interface{} `json:"metadata"`
	Source      TransactionSource      `json:"source"`
}

type CreateRequest struct {
	GivenID     string                 `json:"given_id,omitempty"`
	Amount      int64                  `json:"amount"`
	Currency    string                 `json:"currency"`
	Description string                 `json:"description"`
	CallbackURL string                 `json:"callback_url"`
	Metadata    map[string]string      `json:"metadata,omitempty"`
	Source      map[string]interface{} `json:"source"`
}

// APIError is a non-retryable rejection from the gateway.
type APIError struct {
	StatusCode int
	Type       string `json:"type"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s %s", e.StatusCode, e.Type, e.Message)
}

type Client struct {
	cfg        config.GatewayConfig
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		cfg: cfg.Gateway,
		httpClient: &http.Client{
			Timeout: cfg.Gateway.Timeout,
		},
		log: logger.Get(),
	}
}

func (c *Client) CreatePayment(ctx context.Context, req CreateRequest) (*Transaction, error) {
	if req.CallbackURL == "" {
		req.CallbackURL = c.cfg.CallbackURL
	}
	if req.Currency == "" {
		req.Currency = c.cfg.Currency
	}

	var tx Transaction
	if err := c.withRetry(ctx, func() error {
		return c.do(ctx, http.MethodPost, "/payments", req, &tx)
	}); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (c *Client) FetchPayment(ctx context.Context, id string) (*Transaction, error) {
	var tx Transaction
	if err := c.withRetry(ctx, func() error {
		return c.do(ctx, http.MethodGet, "/payments/"+url.PathEscape(id), nil, &tx)
	}); err != nil {
		return nil, err
	}
	return &tx, nil
}

// RefundPayment refunds amount minor units, or the whole payment when amount is zero.
func (c *Client) RefundPayment(ctx context.Context, id string, amount int64) (*Transaction, error) {
	body := map[string]int64{}
	if amount > 0 {
		body["amount"] = amount
	}

	var tx Transaction
	if err := c.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(id)+"/refund", body, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (c *Client) ListPayments(ctx context.Context, page int) ([]Transaction, error) {
	var resp struct {
		Payments []Transaction `json:"payments"`
	}
	path := "/payments?page=" + strconv.Itoa(page)
	if err := c.withRetry(ctx, func() error {
		return c.do(ctx, http.MethodGet, path, nil, &resp)
	}); err != nil {
		return nil, err
	}
	return resp.Payments, nil
}

func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	attempts := c.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !errors.IsRetryable(err) {
			return err
		}
		if i == attempts-1 {
			break
		}

		c.log.Warn().Err(err).Int("attempt", i+1).Msg("Gateway request failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.RetryDelay):
		}
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.cfg.SecretKey, "")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug().Str("method", method).Str("path", path).Msg("Calling payment gateway")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.NewRetryableError(err, "HTTP request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.NewRetryableError(err, "failed to read response")
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		return errors.NewRetryableError(&APIError{StatusCode: resp.StatusCode}, "payment gateway unavailable")
	default:
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		return apiErr
	}
}
