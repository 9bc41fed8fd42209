// Package ledger talks to the remote system of record over its HTTP contract.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/pos-engine/pkg/errors"
)

const (
	defaultTimeout              = 10 * time.Second
	responseBodyReadLimit int64 = 1024

	headerIdempotencyKey = "Idempotency-Key"
	headerRegisterID     = "X-Register-ID"
)

var errBaseURLRequired = errors.New("ledger base url is required")

// ErrTransport marks requests that never produced an HTTP response.
var ErrTransport = errors.New("ledger transport failure")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Status, e.Body)
}

// Client calls the remote ledger.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	registerID string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAPIKey sends the key as a bearer token.
func WithAPIKey(key string) Option {
	return func(c *Client) {
		c.apiKey = strings.TrimSpace(key)
	}
}

// WithRegisterID tags every request with the originating register.
func WithRegisterID(id string) Option {
	return func(c *Client) {
		c.registerID = strings.TrimSpace(id)
	}
}

// WithTimeout bounds each request when the default HTTP client is used.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient = &http.Client{Timeout: timeout}
		}
	}
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errBaseURLRequired
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("parse ledger base url: %w", err)
	}

	client := &Client{
		baseURL:    trimmed,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// CreateTransaction records a sale. A repeated id answers AlreadySynced.
func (c *Client) CreateTransaction(ctx context.Context, req TransactionRequest) (Response, error) {
	if strings.TrimSpace(req.ID) == "" {
		return Response{}, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	return c.post(ctx, "transactions", req.ID, req)
}

// VoidTransaction reverses a recorded sale.
func (c *Client) VoidTransaction(ctx context.Context, transactionID string, req VoidRequest) (Response, error) {
	if strings.TrimSpace(transactionID) == "" {
		return Response{}, pkgerrors.New(pkgerrors.CodeValidation, "transaction id is required")
	}
	path := fmt.Sprintf("transactions/%s/void", url.PathEscape(transactionID))
	return c.post(ctx, path, "void:"+transactionID, req)
}

// AdjustInventory applies a stock delta at a location.
func (c *Client) AdjustInventory(ctx context.Context, req InventoryAdjustmentRequest) (Response, error) {
	if strings.TrimSpace(req.ID) == "" {
		return Response{}, pkgerrors.New(pkgerrors.CodeValidation, "adjustment id is required")
	}
	return c.post(ctx, "inventory-adjustments", req.ID, req)
}

// UpsertCustomer creates or updates a customer keyed by the local id.
func (c *Client) UpsertCustomer(ctx context.Context, req CustomerRequest) (Response, error) {
	if strings.TrimSpace(req.ID) == "" {
		return Response{}, pkgerrors.New(pkgerrors.CodeValidation, "customer id is required")
	}
	return c.post(ctx, "customers", req.ID, req)
}

// Ping checks reachability through GET /health.
func (c *Client) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL("health"), nil)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build ledger health request")
	}
	c.decorate(httpReq, "")
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("%w: %w", ErrTransport, err), "ledger health request")
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, statusError(resp), "ledger unhealthy")
	}
	return nil
}

func (c *Client) post(ctx context.Context, path, idempotencyKey string, body any) (Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "marshal ledger request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(path), bytes.NewReader(payload))
	if err != nil {
		return Response{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build ledger request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	c.decorate(httpReq, idempotencyKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Response{}, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("%w: %w", ErrTransport, err), "execute ledger request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return Response{}, pkgerrors.Wrap(pkgerrors.CodeDependency, statusError(resp), "ledger request failed")
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Response{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode ledger response")
	}
	return out, nil
}

func (c *Client) decorate(req *http.Request, idempotencyKey string) {
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if c.registerID != "" {
		req.Header.Set(headerRegisterID, c.registerID)
	}
	if idempotencyKey != "" {
		req.Header.Set(headerIdempotencyKey, idempotencyKey)
	}
}

func statusError(resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", c.baseURL, strings.TrimLeft(path, "/"))
}
