package quadscalp

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

// ---------------------------------------------------------------------------
// Pull API wire types
// ---------------------------------------------------------------------------

// APIQuote is the response of GET /api/market/{symbol}.
type APIQuote struct {
	Symbol     string    `json:"symbol"`
	Price      float64   `json:"price"`
	TickSize   float64   `json:"tick_size"`
	PointValue float64   `json:"point_value"`
	DOM        *APIDepth `json:"dom,omitempty"`
}

// APIDepth carries both book sides as [price, size] pairs.
type APIDepth struct {
	Symbol string      `json:"symbol,omitempty"`
	Bids   [][]float64 `json:"bids"`
	Asks   [][]float64 `json:"asks"`
}

// APIAccount is the response of GET /api/account.
type APIAccount struct {
	Balance       float64 `json:"balance"`
	Equity        float64 `json:"equity"`
	DailyPnL      float64 `json:"daily_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	MarginUsed    float64 `json:"margin_used"`
}

// APIPosition is one element of GET /api/positions.
type APIPosition struct {
	Symbol        string   `json:"symbol"`
	Side          string   `json:"side"`
	Qty           int64    `json:"qty"`
	AvgPrice      float64  `json:"avg_price"`
	EntryTime     string   `json:"entry_time"`
	CurrentPrice  *float64 `json:"current_price,omitempty"`
	UnrealizedPnL *float64 `json:"unrealized_pnl,omitempty"`
}

// APITrade is one element of GET /api/trades.
type APITrade struct {
	ID         int64   `json:"id"`
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Qty        int64   `json:"qty"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	PnL        float64 `json:"pnl"`
	EntryTime  string  `json:"entry_time"`
	ExitTime   string  `json:"exit_time"`
	ExitType   string  `json:"exit_type"`
}

// APIBar is one element of GET /api/bars/{symbol} and the body of a bar frame.
type APIBar struct {
	Symbol    string  `json:"symbol"`
	Timeframe string  `json:"tf"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
	Time      float64 `json:"t"`
}

// APIOrder is an order as returned by GET/POST /api/orders.
type APIOrder struct {
	ID        int64    `json:"id"`
	Symbol    string   `json:"symbol"`
	Side      string   `json:"side"`
	Qty       int64    `json:"qty"`
	OrderType string   `json:"order_type"`
	Price     *float64 `json:"price"`
	Status    string   `json:"status"`
	CreatedAt string   `json:"created_at"`
}

// APIOrderRequest is the body of POST /api/orders.
type APIOrderRequest struct {
	Symbol    string   `json:"symbol"`
	Side      string   `json:"side"`
	Qty       int64    `json:"qty"`
	OrderType string   `json:"order_type"`
	Price     *float64 `json:"price,omitempty"`
}

// APIFlattenResult is the response of POST /api/orders/flatten.
type APIFlattenResult struct {
	Closed int        `json:"closed"`
	Trades []APITrade `json:"trades"`
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

// ToDomainQuote converts the wire quote. A malformed depth payload is an error.
func (q APIQuote) ToDomainQuote(symbol string) (domain.Quote, error) {
	out := domain.Quote{
		Symbol:     q.Symbol,
		Price:      q.Price,
		TickSize:   q.TickSize,
		PointValue: q.PointValue,
	}
	if out.Symbol == "" {
		out.Symbol = symbol
	}
	if q.DOM != nil {
		d, err := q.DOM.ToDomainDepth()
		if err != nil {
			return domain.Quote{}, err
		}
		out.Depth = &d
	}
	return out, nil
}

// ToDomainDepth converts [price, size] pairs into depth levels.
func (d APIDepth) ToDomainDepth() (domain.Depth, error) {
	bids, err := levelsToDomain(d.Bids)
	if err != nil {
		return domain.Depth{}, fmt.Errorf("bids: %w", err)
	}
	asks, err := levelsToDomain(d.Asks)
	if err != nil {
		return domain.Depth{}, fmt.Errorf("asks: %w", err)
	}
	return domain.Depth{Bids: bids, Asks: asks}, nil
}

func levelsToDomain(pairs [][]float64) ([]domain.DepthLevel, error) {
	out := make([]domain.DepthLevel, 0, len(pairs))
	for i, p := range pairs {
		if len(p) < 2 {
			return nil, fmt.Errorf("%w: level %d has %d elements", domain.ErrMalformedData, i, len(p))
		}
		if p[1] < 0 {
			return nil, fmt.Errorf("%w: level %d has negative size", domain.ErrMalformedData, i)
		}
		out = append(out, domain.DepthLevel{Price: p[0], Size: int64(math.Round(p[1]))})
	}
	return out, nil
}

// ToDomainAccount converts the wire account.
func (a APIAccount) ToDomainAccount() domain.Account {
	return domain.Account{
		Balance:       a.Balance,
		Equity:        a.Equity,
		DailyPnL:      a.DailyPnL,
		UnrealizedPnL: a.UnrealizedPnL,
		MarginUsed:    a.MarginUsed,
	}
}

// ToDomainPosition converts the wire position.
func (p APIPosition) ToDomainPosition() domain.Position {
	return domain.Position{
		Symbol:        p.Symbol,
		Side:          domain.PositionSide(strings.ToUpper(p.Side)),
		Qty:           p.Qty,
		AvgPrice:      p.AvgPrice,
		EntryTime:     parseTimestamp(p.EntryTime),
		CurrentPrice:  p.CurrentPrice,
		UnrealizedPnL: p.UnrealizedPnL,
	}
}

// ToDomainTrade converts the wire trade.
func (t APITrade) ToDomainTrade() domain.Trade {
	return domain.Trade{
		ID:         t.ID,
		Symbol:     t.Symbol,
		Side:       domain.PositionSide(strings.ToUpper(t.Side)),
		Qty:        t.Qty,
		EntryPrice: t.EntryPrice,
		ExitPrice:  t.ExitPrice,
		PnL:        t.PnL,
		EntryTime:  parseTimestamp(t.EntryTime),
		ExitTime:   parseTimestamp(t.ExitTime),
		ExitType:   t.ExitType,
	}
}

// ToDomainBar converts the wire bar. fallbackSymbol fills a missing symbol.
func (b APIBar) ToDomainBar(fallbackSymbol string) domain.Bar {
	sym := b.Symbol
	if sym == "" {
		sym = fallbackSymbol
	}
	return domain.Bar{
		Symbol:    sym,
		Timeframe: b.Timeframe,
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    int64(math.Round(b.Volume)),
		Start:     epochSeconds(b.Time),
	}
}

// ToDomainOrder converts the wire order.
func (o APIOrder) ToDomainOrder() domain.OrderRecord {
	rec := domain.OrderRecord{
		ID:        o.ID,
		Symbol:    o.Symbol,
		Side:      domain.OrderSide(strings.ToUpper(o.Side)),
		Qty:       o.Qty,
		OrderType: o.OrderType,
		Status:    domain.OrderStatus(o.Status),
		CreatedAt: parseTimestamp(o.CreatedAt),
	}
	if o.Price != nil {
		rec.Price = *o.Price
	}
	return rec
}

// OrderRequestFromIntent builds the wire body for a validated intent.
func OrderRequestFromIntent(in domain.OrderIntent) APIOrderRequest {
	req := APIOrderRequest{
		Symbol:    strings.ToUpper(in.Symbol),
		Side:      string(in.Side),
		Qty:       in.Qty,
		OrderType: in.Type.Wire(),
	}
	if in.Type.RequiresPrice() {
		req.Price = in.Price
	}
	return req
}

func convertTrades(in []APITrade) []domain.Trade {
	out := make([]domain.Trade, 0, len(in))
	for i := range in {
		out = append(out, in[i].ToDomainTrade())
	}
	return out
}

// ---------------------------------------------------------------------------
// Time helpers
// ---------------------------------------------------------------------------

// epochSeconds converts fractional Unix seconds to a UTC time.
func epochSeconds(f float64) time.Time {
	if f <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(math.Round(frac*1e9))).UTC()
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// parseTimestamp accepts ISO-8601 with or without a zone (zone-less values
// are UTC). Blank or unparseable input yields the zero time.
func parseTimestamp(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
