package quadscalp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

func TestDecodeEvent_Init(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"init","demo_mode":true,
		"symbols":{"ES":{"price":5890.25,"tick":0.25}},
		"account":{"balance":50250,"daily_pnl":250}}`))
	require.NoError(t, err)

	ie, ok := ev.(InitEvent)
	require.True(t, ok)
	assert.True(t, ie.DemoMode)
	assert.Equal(t, domain.SymbolInfo{Price: 5890.25, TickSize: 0.25}, ie.Symbols["ES"])
	require.NotNil(t, ie.Account)
	assert.Equal(t, 50250.0, *ie.Account.Balance)
	assert.Equal(t, 250.0, *ie.Account.DailyPnL)
	assert.Nil(t, ie.Account.Equity)
}

func TestDecodeEvent_InitWithoutAccount(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"init","demo_mode":false}`))
	require.NoError(t, err)
	assert.Nil(t, ev.(InitEvent).Account)
}

func TestDecodeEvent_Tick(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"tick","symbol":"ES","price":100.5,"size":3,"time":1767268800.25}`))
	require.NoError(t, err)
	tick := ev.(TickEvent).Tick
	assert.Equal(t, "ES", tick.Symbol)
	assert.Equal(t, 100.5, tick.Price)
	assert.Equal(t, int64(3), tick.Size)
	assert.Equal(t, time.Unix(1767268800, 250000000).UTC(), tick.Time)
}

func TestDecodeEvent_TickRejectsBadValues(t *testing.T) {
	for _, raw := range []string{
		`{"type":"tick","symbol":"","price":1,"size":1}`,
		`{"type":"tick","symbol":"ES","price":0,"size":1}`,
		`{"type":"tick","symbol":"ES","price":1,"size":-1}`,
		`{"type":"tick","symbol":"ES","price":"abc"}`,
	} {
		_, err := DecodeEvent([]byte(raw))
		assert.ErrorIs(t, err, domain.ErrMalformedData, raw)
	}
}

func TestDecodeEvent_UntypedBar(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"symbol":"NQ","tf":"5s","o":1,"h":2,"l":0.5,"c":1.5,"v":9,"t":1767268800}`))
	require.NoError(t, err)
	bar := ev.(BarEvent).Bar
	assert.Equal(t, "NQ", bar.Symbol)
	assert.Equal(t, "5s", bar.Timeframe)
	assert.Equal(t, int64(9), bar.Volume)
	assert.Equal(t, FrameBar, ev.Tag())
}

func TestDecodeEvent_Depth(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"dom","symbol":"ES","bids":[[10,1]],"asks":[[10.25,2],[10.5,3]]}`))
	require.NoError(t, err)
	d := ev.(DepthEvent)
	assert.Equal(t, "ES", d.Symbol)
	assert.Len(t, d.Bids, 1)
	assert.Len(t, d.Asks, 2)

	_, err = DecodeEvent([]byte(`{"type":"dom","symbol":"ES","bids":[[10]],"asks":[]}`))
	assert.ErrorIs(t, err, domain.ErrMalformedData)
}

func TestDecodeEvent_PositionHasNoEntryTime(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"position","symbol":"ES","side":"long","qty":2,"avg_price":5890,"unrealized_pnl":125}`))
	require.NoError(t, err)
	p := ev.(PositionEvent).Position
	assert.Equal(t, domain.PositionLong, p.Side)
	assert.True(t, p.EntryTime.IsZero())
	require.NotNil(t, p.UnrealizedPnL)
	assert.Equal(t, 125.0, *p.UnrealizedPnL)

	_, err = DecodeEvent([]byte(`{"type":"position","symbol":"ES","side":"FLAT"}`))
	assert.ErrorIs(t, err, domain.ErrMalformedData)
}

func TestDecodeEvent_FillAndAccount(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"fill","order_id":7,"symbol":"ES","side":"buy","price":10,"qty":1}`))
	require.NoError(t, err)
	assert.Equal(t, FillEvent{OrderID: 7, Symbol: "ES", Side: domain.OrderSideBuy, Price: 10, Qty: 1}, ev)

	ev, err = DecodeEvent([]byte(`{"type":"account","balance":49000}`))
	require.NoError(t, err)
	u := ev.(AccountEvent).Update
	require.NotNil(t, u.Balance)
	assert.Nil(t, u.DailyPnL)
}

func TestDecodeEvent_UnknownAndGarbage(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"heartbeat","seq":1}`))
	require.NoError(t, err)
	u, ok := ev.(UnknownEvent)
	require.True(t, ok)
	assert.Equal(t, "heartbeat", u.Type)

	_, err = DecodeEvent([]byte(`{not json`))
	assert.ErrorIs(t, err, domain.ErrMalformedData)

	ev, err = DecodeEvent([]byte(`{"type":"pong"}`))
	require.NoError(t, err)
	assert.IsType(t, PongEvent{}, ev)
}
