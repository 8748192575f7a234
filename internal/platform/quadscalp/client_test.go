package quadscalp

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL+"/", WithTimeout(5*time.Second))
}

func TestClient_GetQuote(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/market/ES", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		_, _ = io.WriteString(w, `{"symbol":"ES","price":5890.25,"tick_size":0.25,"point_value":50,
			"dom":{"bids":[[5890.0,12],[5889.75,4]],"asks":[[5890.25,7]]}}`)
	})

	q, err := c.GetQuote(context.Background(), "ES")
	require.NoError(t, err)
	assert.Equal(t, 5890.25, q.Price)
	assert.Equal(t, 50.0, q.PointValue)
	require.NotNil(t, q.Depth)
	assert.Equal(t, []domain.DepthLevel{{Price: 5890.0, Size: 12}, {Price: 5889.75, Size: 4}}, q.Depth.Bids)
	assert.Equal(t, []domain.DepthLevel{{Price: 5890.25, Size: 7}}, q.Depth.Asks)
}

func TestClient_GetQuoteMalformedDepth(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"symbol":"ES","price":1,"dom":{"bids":[[1]],"asks":[]}}`)
	})

	_, err := c.GetQuote(context.Background(), "ES")
	assert.ErrorIs(t, err, domain.ErrMalformedData)
}

func TestClient_GetTradesKeepsServerOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[
			{"id":9,"symbol":"ES","side":"LONG","qty":1,"entry_price":10,"exit_price":12,"pnl":100,
			 "entry_time":"2026-01-01T12:00:00.123456","exit_time":"2026-01-01T12:05:00","exit_type":"MANUAL"},
			{"id":3,"symbol":"NQ","side":"SHORT","qty":2,"entry_price":20,"exit_price":21,"pnl":-40,
			 "entry_time":"not a time","exit_time":"","exit_type":"STOP"}
		]`)
	})

	trades, err := c.GetTrades(context.Background())
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, int64(9), trades[0].ID)
	assert.Equal(t, int64(3), trades[1].ID)
	assert.Equal(t, domain.PositionLong, trades[0].Side)
	assert.Equal(t, time.Date(2026, 1, 1, 12, 0, 0, 123456000, time.UTC), trades[0].EntryTime)
	assert.True(t, trades[1].EntryTime.IsZero())
}

func TestClient_GetBarsQuery(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/bars/NQ", r.URL.Path)
		assert.Equal(t, "300", r.URL.Query().Get("count"))
		assert.Equal(t, "5s", r.URL.Query().Get("tf"))
		_, _ = io.WriteString(w, `[{"o":1,"h":2,"l":0.5,"c":1.5,"v":10,"t":1767268800.5}]`)
	})

	bars, err := c.GetBars(context.Background(), "NQ", 300, "5s")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, "NQ", bars[0].Symbol)
	assert.Equal(t, "5s", bars[0].Timeframe)
	assert.Equal(t, int64(10), bars[0].Volume)
	assert.Equal(t, time.Unix(1767268800, 500000000).UTC(), bars[0].Start)
}

func TestClient_PlaceOrder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req APIOrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ES", req.Symbol)
		assert.Equal(t, "BUY", req.Side)
		assert.Equal(t, "LMT", req.OrderType)
		require.NotNil(t, req.Price)
		assert.Equal(t, 5880.0, *req.Price)

		_, _ = io.WriteString(w, `{"id":42,"symbol":"ES","side":"BUY","qty":2,"order_type":"LMT",
			"price":5880.0,"status":"pending","created_at":"2026-01-01T12:00:00"}`)
	})

	price := 5880.0
	rec, err := c.PlaceOrder(context.Background(), domain.OrderIntent{
		Symbol: "es", Side: domain.OrderSideBuy, Qty: 2, Type: domain.OrderTypeLimit, Price: &price,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(42), rec.ID)
	assert.Equal(t, domain.OrderStatusPending, rec.Status)
}

func TestClient_MarketOrderOmitsPrice(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var raw map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, hasPrice := raw["price"]
		assert.False(t, hasPrice)
		assert.Equal(t, "MKT", raw["order_type"])
		_, _ = io.WriteString(w, `{"id":1,"symbol":"ES","side":"SELL","qty":1,"order_type":"MKT","price":null,"status":"filled"}`)
	})

	price := 1.0
	_, err := c.PlaceOrder(context.Background(), domain.OrderIntent{
		Symbol: "ES", Side: domain.OrderSideSell, Qty: 1, Type: domain.OrderTypeMarket, Price: &price,
	})
	require.NoError(t, err)
}

func TestClient_Flatten(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/orders/flatten", r.URL.Path)
		_, _ = io.WriteString(w, `{"closed":2,"trades":[{"id":1,"pnl":5},{"id":2,"pnl":-1}]}`)
	})

	res, err := c.Flatten(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Closed)
	assert.Len(t, res.Trades, 2)
}

func TestClient_StatusMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusUnauthorized, domain.ErrUnauthorized},
		{http.StatusForbidden, domain.ErrUnauthorized},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusBadRequest, domain.ErrInvalidOrder},
		{http.StatusInternalServerError, domain.ErrUpstream},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, `{"detail":"nope"}`)
			})
			err := c.CancelOrder(context.Background(), 7)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestClient_APIKeyHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-API-Key"))
		_, _ = io.WriteString(w, `{"status":"ok","demo_mode":true,"version":"1.0.0"}`)
	}))
	defer srv.Close()

	h, err := NewClient(srv.URL, WithAPIKey("secret")).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.HealthStatus{Status: "ok", DemoMode: true, Version: "1.0.0"}, h)
}

func TestParseTimestamp(t *testing.T) {
	assert.Equal(t, time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC), parseTimestamp("2026-03-04T05:06:07"))
	assert.Equal(t, time.Date(2026, 3, 4, 3, 6, 7, 0, time.UTC), parseTimestamp("2026-03-04T05:06:07+02:00"))
	assert.True(t, parseTimestamp("").IsZero())
	assert.True(t, parseTimestamp("yesterday").IsZero())
}
