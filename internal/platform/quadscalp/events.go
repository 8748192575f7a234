package quadscalp

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

// Frame type tags on the push channel.
const (
	FrameInit     = "init"
	FrameTick     = "tick"
	FrameBar      = "bar"
	FrameDepth    = "dom"
	FrameFill     = "fill"
	FramePosition = "position"
	FrameAccount  = "account"
	FramePong     = "pong"
	FramePing     = "ping"
)

// Event is a decoded push frame. The set of implementations is closed:
// InitEvent, TickEvent, BarEvent, DepthEvent, FillEvent, PositionEvent,
// AccountEvent, PongEvent and UnknownEvent.
type Event interface {
	// Tag returns the frame's type discriminator.
	Tag() string
	isEvent()
}

// InitEvent is sent once per connection.
type InitEvent struct {
	DemoMode bool
	Symbols  map[string]domain.SymbolInfo
	// Account is nil when the frame carried no account payload. Only
	// Balance and DailyPnL are ever set.
	Account *domain.AccountUpdate
}

// TickEvent is a single trade print.
type TickEvent struct{ Tick domain.Tick }

// BarEvent announces a newly closed bar.
type BarEvent struct{ Bar domain.Bar }

// DepthEvent replaces the book for one symbol.
type DepthEvent struct {
	Symbol string
	Bids   []domain.DepthLevel
	Asks   []domain.DepthLevel
}

// FillEvent signals that an order filled. It carries no authoritative
// position or P&L; consumers re-pull those.
type FillEvent struct {
	OrderID int64            `json:"order_id"`
	Symbol  string           `json:"symbol"`
	Side    domain.OrderSide `json:"side"`
	Price   float64          `json:"price"`
	Qty     int64            `json:"qty"`
}

// PositionEvent is an incremental position update. EntryTime is never set.
type PositionEvent struct{ Position domain.Position }

// AccountEvent carries a partial account update (balance and daily P&L).
type AccountEvent struct{ Update domain.AccountUpdate }

// PongEvent answers a client ping.
type PongEvent struct{}

// UnknownEvent is a well-formed frame with a tag this client does not know.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (InitEvent) Tag() string      { return FrameInit }
func (TickEvent) Tag() string      { return FrameTick }
func (BarEvent) Tag() string       { return FrameBar }
func (DepthEvent) Tag() string     { return FrameDepth }
func (FillEvent) Tag() string      { return FrameFill }
func (PositionEvent) Tag() string  { return FramePosition }
func (AccountEvent) Tag() string   { return FrameAccount }
func (PongEvent) Tag() string      { return FramePong }
func (e UnknownEvent) Tag() string { return e.Type }

func (InitEvent) isEvent()     {}
func (TickEvent) isEvent()     {}
func (BarEvent) isEvent()      {}
func (DepthEvent) isEvent()    {}
func (FillEvent) isEvent()     {}
func (PositionEvent) isEvent() {}
func (AccountEvent) isEvent()  {}
func (PongEvent) isEvent()     {}
func (UnknownEvent) isEvent()  {}

// ---------------------------------------------------------------------------
// Frame bodies
// ---------------------------------------------------------------------------

type frameEnvelope struct {
	Type string `json:"type"`
	// Bar broadcasts are sent without a type tag; these detect them.
	Timeframe *string  `json:"tf"`
	Open      *float64 `json:"o"`
}

type initFrame struct {
	DemoMode bool                         `json:"demo_mode"`
	Symbols  map[string]domain.SymbolInfo `json:"symbols"`
	Account  *accountFrame                `json:"account"`
}

type accountFrame struct {
	Balance  *float64 `json:"balance"`
	DailyPnL *float64 `json:"daily_pnl"`
}

func (a accountFrame) update() domain.AccountUpdate {
	return domain.AccountUpdate{Balance: a.Balance, DailyPnL: a.DailyPnL}
}

type tickFrame struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	Size   int64   `json:"size"`
	Time   float64 `json:"time"`
}

type positionFrame struct {
	Symbol        string   `json:"symbol"`
	Side          string   `json:"side"`
	Qty           int64    `json:"qty"`
	AvgPrice      float64  `json:"avg_price"`
	CurrentPrice  *float64 `json:"current_price"`
	UnrealizedPnL *float64 `json:"unrealized_pnl"`
}

// ---------------------------------------------------------------------------
// Decoding
// ---------------------------------------------------------------------------

// DecodeEvent decodes one push frame. Malformed frames return an error
// wrapping domain.ErrMalformedData; well-formed frames with an unknown tag
// decode to UnknownEvent.
func DecodeEvent(raw []byte) (Event, error) {
	var env frameEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, malformed("envelope", err)
	}

	tag := env.Type
	if tag == "" && env.Timeframe != nil && env.Open != nil {
		tag = FrameBar
	}

	switch tag {
	case FrameInit:
		var f initFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, malformed(tag, err)
		}
		ev := InitEvent{DemoMode: f.DemoMode, Symbols: f.Symbols}
		if f.Account != nil {
			u := f.Account.update()
			ev.Account = &u
		}
		return ev, nil

	case FrameTick:
		var f tickFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, malformed(tag, err)
		}
		if f.Symbol == "" || f.Price <= 0 || f.Size < 0 {
			return nil, fmt.Errorf("%w: tick: symbol=%q price=%v size=%d", domain.ErrMalformedData, f.Symbol, f.Price, f.Size)
		}
		return TickEvent{Tick: domain.Tick{
			Symbol: f.Symbol,
			Price:  f.Price,
			Size:   f.Size,
			Time:   epochSeconds(f.Time),
		}}, nil

	case FrameBar:
		var f APIBar
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, malformed(tag, err)
		}
		if f.Symbol == "" {
			return nil, fmt.Errorf("%w: bar without symbol", domain.ErrMalformedData)
		}
		return BarEvent{Bar: f.ToDomainBar("")}, nil

	case FrameDepth:
		var f APIDepth
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, malformed(tag, err)
		}
		if f.Symbol == "" {
			return nil, fmt.Errorf("%w: dom without symbol", domain.ErrMalformedData)
		}
		d, err := f.ToDomainDepth()
		if err != nil {
			return nil, malformed(tag, err)
		}
		return DepthEvent{Symbol: f.Symbol, Bids: d.Bids, Asks: d.Asks}, nil

	case FrameFill:
		var f FillEvent
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, malformed(tag, err)
		}
		f.Side = domain.OrderSide(strings.ToUpper(string(f.Side)))
		return f, nil

	case FramePosition:
		var f positionFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, malformed(tag, err)
		}
		side := domain.PositionSide(strings.ToUpper(f.Side))
		if f.Symbol == "" || (side != domain.PositionLong && side != domain.PositionShort) {
			return nil, fmt.Errorf("%w: position: symbol=%q side=%q", domain.ErrMalformedData, f.Symbol, f.Side)
		}
		return PositionEvent{Position: domain.Position{
			Symbol:        f.Symbol,
			Side:          side,
			Qty:           f.Qty,
			AvgPrice:      f.AvgPrice,
			CurrentPrice:  f.CurrentPrice,
			UnrealizedPnL: f.UnrealizedPnL,
		}}, nil

	case FrameAccount:
		var f accountFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, malformed(tag, err)
		}
		return AccountEvent{Update: f.update()}, nil

	case FramePong:
		return PongEvent{}, nil

	default:
		return UnknownEvent{Type: env.Type, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

func malformed(tag string, err error) error {
	return fmt.Errorf("%w: %s: %v", domain.ErrMalformedData, tag, err)
}
