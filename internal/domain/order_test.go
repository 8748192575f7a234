package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderType(t *testing.T) {
	cases := map[string]OrderType{
		"MARKET": OrderTypeMarket,
		"mkt":    OrderTypeMarket,
		" LMT ":  OrderTypeLimit,
		"limit":  OrderTypeLimit,
		"STP":    OrderTypeStop,
		"Stop":   OrderTypeStop,
	}
	for in, want := range cases {
		got, err := ParseOrderType(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseOrderType("TRAIL")
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestOrderType_Wire(t *testing.T) {
	assert.Equal(t, "MKT", OrderTypeMarket.Wire())
	assert.Equal(t, "LMT", OrderTypeLimit.Wire())
	assert.Equal(t, "STP", OrderTypeStop.Wire())
}

func TestOrderIntent_Validate(t *testing.T) {
	price := func(v float64) *float64 { return &v }

	tests := []struct {
		name string
		in   OrderIntent
		ok   bool
	}{
		{"market buy", OrderIntent{Symbol: "ES", Side: OrderSideBuy, Qty: 1, Type: OrderTypeMarket}, true},
		{"market ignores price", OrderIntent{Symbol: "ES", Side: OrderSideSell, Qty: 2, Type: OrderTypeMarket, Price: price(-1)}, true},
		{"limit with price", OrderIntent{Symbol: "NQ", Side: OrderSideBuy, Qty: 1, Type: OrderTypeLimit, Price: price(18000.25)}, true},
		{"stop with price", OrderIntent{Symbol: "CL", Side: OrderSideSell, Qty: 3, Type: OrderTypeStop, Price: price(71.5)}, true},
		{"empty symbol", OrderIntent{Symbol: " ", Side: OrderSideBuy, Qty: 1, Type: OrderTypeMarket}, false},
		{"bad side", OrderIntent{Symbol: "ES", Side: "HOLD", Qty: 1, Type: OrderTypeMarket}, false},
		{"zero qty", OrderIntent{Symbol: "ES", Side: OrderSideBuy, Qty: 0, Type: OrderTypeMarket}, false},
		{"negative qty", OrderIntent{Symbol: "ES", Side: OrderSideBuy, Qty: -1, Type: OrderTypeMarket}, false},
		{"unknown type", OrderIntent{Symbol: "ES", Side: OrderSideBuy, Qty: 1, Type: "TRAIL"}, false},
		{"limit without price", OrderIntent{Symbol: "ES", Side: OrderSideBuy, Qty: 1, Type: OrderTypeLimit}, false},
		{"stop zero price", OrderIntent{Symbol: "ES", Side: OrderSideBuy, Qty: 1, Type: OrderTypeStop, Price: price(0)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidOrder)
		})
	}
}

func TestStateEvent_Channel(t *testing.T) {
	assert.Equal(t, "ch:tick", StateEvent{Kind: EventTick, Symbol: "ES"}.Channel())
	assert.Equal(t, "ch:dom", StateEvent{Kind: EventDepth}.Channel())
}
