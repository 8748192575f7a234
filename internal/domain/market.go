package domain

import "time"

// DefaultBarRetention caps the number of bars kept per symbol.
const DefaultBarRetention = 2000

// DefaultStartingBalance seeds the account until the first snapshot arrives.
const DefaultStartingBalance = 50000.0

// Tick is the latest observed price for a symbol together with its delta
// against the previous tick.
type Tick struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Size      int64     `json:"size"`
	Time      time.Time `json:"time"`
	Change    float64   `json:"change"`
	ChangePct float64   `json:"change_pct"`
}

// Bar is an OHLCV aggregate over one timeframe bucket.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"tf"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    int64     `json:"v"`
	Start     time.Time `json:"t"`
}

// DepthLevel is a single resting price level.
type DepthLevel struct {
	Price float64 `json:"price"`
	Size  int64   `json:"size"`
}

// Depth holds both sides of the book for a symbol. Bids are ordered by
// descending price and asks by ascending price; upstream guarantees no
// duplicate prices on one side.
type Depth struct {
	Bids []DepthLevel `json:"bids"`
	Asks []DepthLevel `json:"asks"`
}

// PositionSide is the direction of an open position.
type PositionSide string

const (
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

// Position is an open position. At most one exists per symbol.
type Position struct {
	Symbol        string       `json:"symbol"`
	Side          PositionSide `json:"side"`
	Qty           int64        `json:"qty"`
	AvgPrice      float64      `json:"avg_price"`
	EntryTime     time.Time    `json:"entry_time"`
	CurrentPrice  *float64     `json:"current_price,omitempty"`
	UnrealizedPnL *float64     `json:"unrealized_pnl,omitempty"`
}

// Trade is a closed round trip. Trades are immutable once received.
type Trade struct {
	ID         int64        `json:"id"`
	Symbol     string       `json:"symbol"`
	Side       PositionSide `json:"side"`
	Qty        int64        `json:"qty"`
	EntryPrice float64      `json:"entry_price"`
	ExitPrice  float64      `json:"exit_price"`
	PnL        float64      `json:"pnl"`
	EntryTime  time.Time    `json:"entry_time"`
	ExitTime   time.Time    `json:"exit_time"`
	ExitType   string       `json:"exit_type"`
}

// Account is the single account snapshot.
type Account struct {
	Balance       float64 `json:"balance"`
	Equity        float64 `json:"equity"`
	DailyPnL      float64 `json:"daily_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	MarginUsed    float64 `json:"margin_used"`
}

// AccountUpdate is a partial account change. Nil fields are left untouched.
type AccountUpdate struct {
	Balance       *float64
	Equity        *float64
	DailyPnL      *float64
	UnrealizedPnL *float64
	MarginUsed    *float64
}

// FullAccountUpdate builds an update that overwrites every account field.
func FullAccountUpdate(a Account) AccountUpdate {
	return AccountUpdate{
		Balance:       &a.Balance,
		Equity:        &a.Equity,
		DailyPnL:      &a.DailyPnL,
		UnrealizedPnL: &a.UnrealizedPnL,
		MarginUsed:    &a.MarginUsed,
	}
}

// ConnectionState is process-wide and only changed by transport lifecycle events.
type ConnectionState struct {
	Connected bool `json:"connected"`
	DemoMode  bool `json:"demo_mode"`
}

// SymbolInfo is the per-symbol metadata announced by the upstream on connect.
type SymbolInfo struct {
	Price    float64 `json:"price"`
	TickSize float64 `json:"tick"`
}

// Quote is the pull-API view of one symbol: last price plus optional depth.
type Quote struct {
	Symbol     string
	Price      float64
	TickSize   float64
	PointValue float64
	Depth      *Depth
}

// HealthStatus is the upstream health probe result.
type HealthStatus struct {
	Status   string `json:"status"`
	DemoMode bool   `json:"demo_mode"`
	Version  string `json:"version"`
}

// MarketSnapshot is a consistent copy of the whole synchronized state.
type MarketSnapshot struct {
	Connection   ConnectionState       `json:"connection"`
	ActiveSymbol string                `json:"active_symbol"`
	Symbols      map[string]SymbolInfo `json:"symbols"`
	Ticks        map[string]Tick       `json:"ticks"`
	Bars         map[string][]Bar      `json:"bars"`
	Depth        map[string]Depth      `json:"depth"`
	Account      Account               `json:"account"`
	Positions    []Position            `json:"positions"`
	Trades       []Trade               `json:"trades"`
	Orders       []OrderRecord         `json:"orders"`
}
