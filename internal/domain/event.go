package domain

// StateEventKind names the kind of store mutation that just completed.
type StateEventKind string

const (
	EventTick         StateEventKind = "tick"
	EventBar          StateEventKind = "bar"
	EventBarsReplaced StateEventKind = "bars"
	EventDepth        StateEventKind = "dom"
	EventAccount      StateEventKind = "account"
	EventPositions    StateEventKind = "positions"
	EventTrades       StateEventKind = "trades"
	EventOrders       StateEventKind = "orders"
	EventConnection   StateEventKind = "status"
	EventActiveSymbol StateEventKind = "active_symbol"
	EventSymbols      StateEventKind = "symbols"
)

// StateEvent is delivered to store observers after a mutation is visible.
// Symbol is empty for account-wide events.
type StateEvent struct {
	Kind   StateEventKind `json:"kind"`
	Symbol string         `json:"symbol,omitempty"`
}

// Channel returns the signal-bus channel this event is published on.
func (e StateEvent) Channel() string {
	return "ch:" + string(e.Kind)
}
