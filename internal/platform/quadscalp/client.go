// Package quadscalp talks to the trading backend: a REST pull API for
// snapshots and order entry, and a push channel of JSON frames.
package quadscalp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

// Client is the REST client for the backend pull API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithAPIKey sends key in the X-API-Key header on every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// NewClient creates a pull API client.
//
// baseURL is the backend origin, e.g. "http://localhost:8000".
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the origin the client was created with.
func (c *Client) BaseURL() string { return c.baseURL }

// GetQuote fetches the last price and book for symbol.
func (c *Client) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/market/"+url.PathEscape(symbol), nil, nil)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("quadscalp: get quote %s: %w", symbol, err)
	}

	var q APIQuote
	if err := json.Unmarshal(body, &q); err != nil {
		return domain.Quote{}, fmt.Errorf("quadscalp: decode quote: %w", err)
	}
	out, err := q.ToDomainQuote(symbol)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("quadscalp: quote %s: %w", symbol, err)
	}
	return out, nil
}

// GetAccount fetches the account snapshot.
func (c *Client) GetAccount(ctx context.Context) (domain.Account, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/account", nil, nil)
	if err != nil {
		return domain.Account{}, fmt.Errorf("quadscalp: get account: %w", err)
	}

	var a APIAccount
	if err := json.Unmarshal(body, &a); err != nil {
		return domain.Account{}, fmt.Errorf("quadscalp: decode account: %w", err)
	}
	return a.ToDomainAccount(), nil
}

// GetPositions fetches every open position.
func (c *Client) GetPositions(ctx context.Context) ([]domain.Position, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/positions", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("quadscalp: get positions: %w", err)
	}

	var list []APIPosition
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("quadscalp: decode positions: %w", err)
	}
	out := make([]domain.Position, 0, len(list))
	for i := range list {
		out = append(out, list[i].ToDomainPosition())
	}
	return out, nil
}

// GetTrades fetches closed trades, newest first.
func (c *Client) GetTrades(ctx context.Context) ([]domain.Trade, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/trades", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("quadscalp: get trades: %w", err)
	}

	var list []APITrade
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("quadscalp: decode trades: %w", err)
	}
	return convertTrades(list), nil
}

// GetBars fetches up to count bars of timeframe tf for symbol. Zero count
// and empty tf fall back to the server defaults.
func (c *Client) GetBars(ctx context.Context, symbol string, count int, tf string) ([]domain.Bar, error) {
	q := url.Values{}
	if count > 0 {
		q.Set("count", strconv.Itoa(count))
	}
	if tf != "" {
		q.Set("tf", tf)
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/api/bars/"+url.PathEscape(symbol), q, nil)
	if err != nil {
		return nil, fmt.Errorf("quadscalp: get bars %s: %w", symbol, err)
	}

	var list []APIBar
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("quadscalp: decode bars: %w", err)
	}
	out := make([]domain.Bar, 0, len(list))
	for i := range list {
		b := list[i].ToDomainBar(symbol)
		if b.Timeframe == "" {
			b.Timeframe = tf
		}
		out = append(out, b)
	}
	return out, nil
}

// GetOrders fetches pending orders.
func (c *Client) GetOrders(ctx context.Context) ([]domain.OrderRecord, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/orders", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("quadscalp: get orders: %w", err)
	}

	var list []APIOrder
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("quadscalp: decode orders: %w", err)
	}
	out := make([]domain.OrderRecord, 0, len(list))
	for i := range list {
		out = append(out, list[i].ToDomainOrder())
	}
	return out, nil
}

// Health probes the backend.
func (c *Client) Health(ctx context.Context) (domain.HealthStatus, error) {
	body, err := c.doRequest(ctx, http.MethodGet, "/api/health", nil, nil)
	if err != nil {
		return domain.HealthStatus{}, fmt.Errorf("quadscalp: health: %w", err)
	}

	var h domain.HealthStatus
	if err := json.Unmarshal(body, &h); err != nil {
		return domain.HealthStatus{}, fmt.Errorf("quadscalp: decode health: %w", err)
	}
	return h, nil
}

// PlaceOrder submits a validated intent. The returned record is whatever the
// backend reports; position changes arrive later through the feeds.
func (c *Client) PlaceOrder(ctx context.Context, in domain.OrderIntent) (domain.OrderRecord, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/api/orders", nil, OrderRequestFromIntent(in))
	if err != nil {
		return domain.OrderRecord{}, fmt.Errorf("quadscalp: place order: %w", err)
	}

	var o APIOrder
	if err := json.Unmarshal(body, &o); err != nil {
		return domain.OrderRecord{}, fmt.Errorf("quadscalp: decode order: %w", err)
	}
	return o.ToDomainOrder(), nil
}

// CancelOrder cancels a pending order by id.
func (c *Client) CancelOrder(ctx context.Context, id int64) error {
	path := "/api/orders/" + strconv.FormatInt(id, 10)
	if _, err := c.doRequest(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("quadscalp: cancel order %d: %w", id, err)
	}
	return nil
}

// Flatten closes every open position at market.
func (c *Client) Flatten(ctx context.Context) (domain.FlattenResult, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/api/orders/flatten", nil, nil)
	if err != nil {
		return domain.FlattenResult{}, fmt.Errorf("quadscalp: flatten: %w", err)
	}

	var r APIFlattenResult
	if err := json.Unmarshal(body, &r); err != nil {
		return domain.FlattenResult{}, fmt.Errorf("quadscalp: decode flatten result: %w", err)
	}
	return domain.FlattenResult{Closed: r.Closed, Trades: convertTrades(r.Trades)}, nil
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// doRequest performs an HTTP request, tagging it with a fresh request id,
// and returns the body of a 2xx response.
func (c *Client) doRequest(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUpstream, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	detail := errorDetail(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, detail)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, detail)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, detail)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %s", domain.ErrInvalidOrder, detail)
	default:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrUpstream, statusCode, detail)
	}
}

// errorDetail extracts the "detail" field of an error body when present.
func errorDetail(body []byte) string {
	var e struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err == nil && e.Detail != nil {
		if s, ok := e.Detail.(string); ok {
			return s
		}
		if b, err := json.Marshal(e.Detail); err == nil {
			return string(b)
		}
	}
	return strings.TrimSpace(string(body))
}
