package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"

	"assetmarket/internal/models"
)

const defaultRequestTimeout = 10 * time.Second

// ClientConfig configures the hosted-checkout HTTP client.
type ClientConfig struct {
	// BaseURL is the provider API root, e.g. https://app.sandbox.midtrans.com.
	BaseURL string
	// ServerKey authenticates requests via HTTP basic auth.
	ServerKey string
	// RequestTimeout bounds each provider call.
	RequestTimeout time.Duration
	// HTTPClient may be injected by tests; a default client is used otherwise.
	HTTPClient *http.Client
}

// Client implements Gateway against a Snap-style hosted-checkout API. All
// calls run through a circuit breaker so a failing provider sheds load fast
// instead of tying up request handlers.
type Client struct {
	baseURL    *url.URL
	authHeader string
	httpClient *http.Client
	createCB   *gobreaker.CircuitBreaker[CreateTransactionResponse]
	statusCB   *gobreaker.CircuitBreaker[StatusResponse]
}

// NewClient validates the configuration and builds the client.
func NewClient(cfg ClientConfig) (*Client, error) {
	trimmed := strings.TrimSpace(cfg.BaseURL)
	if trimmed == "" {
		return nil, fmt.Errorf("payment gateway base url required")
	}
	base, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse gateway base url: %w", err)
	}
	if strings.TrimSpace(cfg.ServerKey) == "" {
		return nil, fmt.Errorf("payment gateway server key required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	settings := gobreaker.Settings{
		Name:    "payment-gateway",
		Timeout: 30 * time.Second,
	}
	return &Client{
		baseURL:    base,
		authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(cfg.ServerKey+":")),
		httpClient: httpClient,
		createCB:   gobreaker.NewCircuitBreaker[CreateTransactionResponse](settings),
		statusCB:   gobreaker.NewCircuitBreaker[StatusResponse](settings),
	}, nil
}

type createTransactionPayload struct {
	TransactionDetails struct {
		OrderID     string `json:"order_id"`
		GrossAmount int64  `json:"gross_amount"`
	} `json:"transaction_details"`
	CustomerDetails struct {
		FullName string `json:"full_name"`
		Email    string `json:"email"`
		Phone    string `json:"phone"`
	} `json:"customer_details"`
	ItemDetails []LineItem `json:"item_details"`
}

// CreateTransaction asks the provider for a hosted-checkout token. The gross
// amount is submitted in whole minor units.
func (c *Client) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (CreateTransactionResponse, error) {
	payload := createTransactionPayload{ItemDetails: req.Items}
	payload.TransactionDetails.OrderID = req.OrderID
	payload.TransactionDetails.GrossAmount = req.GrossAmount.MinorUnits()
	payload.CustomerDetails.FullName = req.CustomerDetails.Name
	payload.CustomerDetails.Email = req.CustomerDetails.Email
	payload.CustomerDetails.Phone = req.CustomerDetails.Phone

	return c.createCB.Execute(func() (CreateTransactionResponse, error) {
		var resp CreateTransactionResponse
		if err := c.post(ctx, "/snap/v1/transactions", payload, &resp); err != nil {
			return CreateTransactionResponse{}, err
		}
		if strings.TrimSpace(resp.Token) == "" {
			return CreateTransactionResponse{}, fmt.Errorf("%w: empty payment token for order %s", ErrGateway, req.OrderID)
		}
		return resp, nil
	})
}

// TransactionStatus fetches the provider's current state for an order.
func (c *Client) TransactionStatus(ctx context.Context, orderID string) (StatusResponse, error) {
	trimmed := strings.TrimSpace(orderID)
	if trimmed == "" {
		return StatusResponse{}, fmt.Errorf("order id required")
	}
	return c.statusCB.Execute(func() (StatusResponse, error) {
		var resp StatusResponse
		if err := c.get(ctx, "/v2/"+url.PathEscape(trimmed)+"/status", &resp); err != nil {
			return StatusResponse{}, err
		}
		return resp, nil
	})
}

func (c *Client) post(ctx context.Context, path string, body, dest any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode gateway request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return fmt.Errorf("build gateway request: %w", err)
	}
	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.authHeader)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrGateway, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrGateway, resp.StatusCode)
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrGateway, err)
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	ref := *c.baseURL
	ref.Path = strings.TrimRight(ref.Path, "/") + path
	return ref.String()
}

var _ Gateway = (*Client)(nil)

// NewLineItem converts a priced order line into the provider wire shape.
func NewLineItem(id, name string, price models.Money, quantity int64) LineItem {
	return LineItem{ID: id, Name: name, Price: price.MinorUnits(), Quantity: quantity}
}
