package domain

import (
	"fmt"
	"strings"
	"time"
)

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType is the execution style requested by the operator.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeStop   OrderType = "STOP"
)

// Wire returns the upstream code for the order type (MKT, LMT, STP).
func (t OrderType) Wire() string {
	switch t {
	case OrderTypeMarket:
		return "MKT"
	case OrderTypeLimit:
		return "LMT"
	case OrderTypeStop:
		return "STP"
	default:
		return string(t)
	}
}

// RequiresPrice reports whether orders of this type must carry a price.
func (t OrderType) RequiresPrice() bool {
	return t == OrderTypeLimit || t == OrderTypeStop
}

// ParseOrderType accepts both the long names and the wire codes.
func ParseOrderType(s string) (OrderType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MARKET", "MKT":
		return OrderTypeMarket, nil
	case "LIMIT", "LMT":
		return OrderTypeLimit, nil
	case "STOP", "STP":
		return OrderTypeStop, nil
	default:
		return "", fmt.Errorf("%w: unknown order type %q", ErrInvalidOrder, s)
	}
}

// OrderStatus tracks the upstream order lifecycle.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderIntent is what the operator asked for, before validation.
type OrderIntent struct {
	Symbol string
	Side   OrderSide
	Qty    int64
	Type   OrderType
	Price  *float64
}

// Validate rejects intents that must never reach the upstream.
func (o OrderIntent) Validate() error {
	if strings.TrimSpace(o.Symbol) == "" {
		return fmt.Errorf("%w: symbol is required", ErrInvalidOrder)
	}
	if o.Side != OrderSideBuy && o.Side != OrderSideSell {
		return fmt.Errorf("%w: side must be BUY or SELL, got %q", ErrInvalidOrder, o.Side)
	}
	if o.Qty <= 0 {
		return fmt.Errorf("%w: qty must be positive, got %d", ErrInvalidOrder, o.Qty)
	}
	switch o.Type {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeStop:
	default:
		return fmt.Errorf("%w: unknown order type %q", ErrInvalidOrder, o.Type)
	}
	if o.Type.RequiresPrice() {
		if o.Price == nil {
			return fmt.Errorf("%w: price required for %s orders", ErrInvalidOrder, o.Type)
		}
		if *o.Price <= 0 {
			return fmt.Errorf("%w: price must be positive, got %v", ErrInvalidOrder, *o.Price)
		}
	}
	return nil
}

// OrderRecord is an order as reported by the upstream.
type OrderRecord struct {
	ID        int64       `json:"id"`
	Symbol    string      `json:"symbol"`
	Side      OrderSide   `json:"side"`
	Qty       int64       `json:"qty"`
	OrderType string      `json:"order_type"`
	Price     float64     `json:"price"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

// FlattenResult is the upstream response to a flatten-all request.
type FlattenResult struct {
	Closed int     `json:"closed"`
	Trades []Trade `json:"trades"`
}

// OrderAuditEntry records one outbound order action and its outcome.
type OrderAuditEntry struct {
	ID        string
	Action    string // "submit", "flatten", "cancel"
	Symbol    string
	Side      OrderSide
	Qty       int64
	OrderType OrderType
	Price     *float64
	OrderID   *int64
	Outcome   string // "accepted", "rejected", "error"
	Error     string
	CreatedAt time.Time
}
