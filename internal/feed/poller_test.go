package feed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/quadscalp/internal/domain"
	"github.com/alanyoungcy/quadscalp/internal/state"
)

func newTestPoller(f Fetcher, store *state.Store, ownsConn bool) *Poller {
	p := NewPoller(f, store, PollerConfig{
		Symbols:        []string{"ES", "NQ"},
		OwnsConnection: ownsConn,
	}, discardLogger())
	p.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return p
}

func expectFastCycle(f *MockFetcher) {
	f.On("GetQuote", mock.Anything, "ES").Return(domain.Quote{
		Symbol: "ES", Price: 5890.25,
		Depth: &domain.Depth{
			Bids: []domain.DepthLevel{{Price: 5890, Size: 3}},
			Asks: []domain.DepthLevel{{Price: 5890.25, Size: 5}},
		},
	}, nil)
	f.On("GetQuote", mock.Anything, "NQ").Return(domain.Quote{Symbol: "NQ", Price: 21000}, nil)
	f.On("GetAccount", mock.Anything).Return(domain.Account{Balance: 51000, Equity: 51100, DailyPnL: 1000}, nil)
	f.On("GetPositions", mock.Anything).Return([]domain.Position{{Symbol: "ES", Side: domain.PositionLong, Qty: 1}}, nil)
	f.On("GetTrades", mock.Anything).Return([]domain.Trade{{ID: 2}, {ID: 1}}, nil)
	f.On("GetOrders", mock.Anything).Return([]domain.OrderRecord{{ID: 9, Status: domain.OrderStatusPending}}, nil)
}

func TestPoller_FastCycleAppliesEverything(t *testing.T) {
	f := new(MockFetcher)
	expectFastCycle(f)
	store := state.New()
	p := newTestPoller(f, store, true)

	require.NoError(t, p.FastCycle(context.Background()))

	tick, ok := store.Tick("ES")
	require.True(t, ok)
	assert.Equal(t, 5890.25, tick.Price)
	assert.Equal(t, int64(0), tick.Size)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), tick.Time)

	d, ok := store.Depth("ES")
	require.True(t, ok)
	assert.Len(t, d.Bids, 1)
	_, ok = store.Depth("NQ")
	assert.False(t, ok, "quote without depth leaves depth untouched")

	assert.Equal(t, 51000.0, store.Account().Balance)
	assert.Len(t, store.Positions(), 1)
	assert.Equal(t, int64(2), store.Trades()[0].ID)
	assert.Len(t, store.Orders(), 1)
	assert.True(t, store.Connection().Connected)
	f.AssertExpectations(t)
}

func TestPoller_FailedRefreshIsSkippedIndependently(t *testing.T) {
	f := new(MockFetcher)
	f.On("GetQuote", mock.Anything, "ES").Return(domain.Quote{Symbol: "ES", Price: 100}, nil)
	f.On("GetQuote", mock.Anything, "NQ").Return(domain.Quote{}, domain.ErrUpstream)
	f.On("GetAccount", mock.Anything).Return(domain.Account{}, errors.New("timeout"))
	f.On("GetPositions", mock.Anything).Return([]domain.Position{{Symbol: "CL", Side: domain.PositionShort, Qty: 2}}, nil)
	f.On("GetTrades", mock.Anything).Return([]domain.Trade{}, nil)
	f.On("GetOrders", mock.Anything).Return([]domain.OrderRecord{}, nil)

	store := state.New()
	store.SetConnected(true)
	p := newTestPoller(f, store, true)

	err := p.FastCycle(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpstream)

	_, ok := store.Tick("ES")
	assert.True(t, ok)
	_, ok = store.Tick("NQ")
	assert.False(t, ok)
	assert.Equal(t, domain.DefaultStartingBalance, store.Account().Balance, "stale, not wrong")
	assert.Len(t, store.Positions(), 1)
	assert.False(t, store.Connection().Connected)
}

func TestPoller_DoesNotTouchConnectionUnlessOwner(t *testing.T) {
	f := new(MockFetcher)
	f.On("GetQuote", mock.Anything, mock.Anything).Return(domain.Quote{}, domain.ErrUpstream)
	f.On("GetAccount", mock.Anything).Return(domain.Account{}, domain.ErrUpstream)
	f.On("GetPositions", mock.Anything).Return([]domain.Position(nil), domain.ErrUpstream)
	f.On("GetTrades", mock.Anything).Return([]domain.Trade(nil), domain.ErrUpstream)
	f.On("GetOrders", mock.Anything).Return([]domain.OrderRecord(nil), domain.ErrUpstream)

	store := state.New()
	store.SetConnected(true)
	p := newTestPoller(f, store, false)

	require.Error(t, p.FastCycle(context.Background()))
	assert.True(t, store.Connection().Connected)
}

func TestPoller_SlowCycleReplacesActiveSymbolBars(t *testing.T) {
	f := new(MockFetcher)
	bars := []domain.Bar{
		{Symbol: "NQ", Timeframe: "5s", Open: 1, High: 2, Low: 1, Close: 2, Start: time.Unix(0, 0)},
		{Symbol: "NQ", Timeframe: "5s", Open: 2, High: 3, Low: 2, Close: 3, Start: time.Unix(5, 0)},
	}
	f.On("GetBars", mock.Anything, "NQ", 500, "5s").Return(bars, nil).Once()

	store := state.New(state.WithActiveSymbol("NQ"))
	p := newTestPoller(f, store, false)

	require.NoError(t, p.SlowCycle(context.Background()))
	assert.Equal(t, bars, store.Bars("NQ"))
	assert.Empty(t, store.Bars("ES"))
	f.AssertExpectations(t)
}

func TestPoller_RejectsNonPositiveQuote(t *testing.T) {
	f := new(MockFetcher)
	f.On("GetQuote", mock.Anything, "ES").Return(domain.Quote{Symbol: "ES", Price: 0}, nil)

	store := state.New()
	p := newTestPoller(f, store, false)

	assert.ErrorIs(t, p.RefreshQuote(context.Background(), "ES"), domain.ErrMalformedData)
	_, ok := store.Tick("ES")
	assert.False(t, ok)
}

func TestPoller_RunStopsOnCancel(t *testing.T) {
	f := new(MockFetcher)
	expectFastCycle(f)
	f.On("GetBars", mock.Anything, "ES", 500, "5s").Return([]domain.Bar{}, nil)

	store := state.New()
	p := NewPoller(f, store, PollerConfig{
		Symbols:      []string{"ES", "NQ"},
		FastInterval: 10 * time.Millisecond,
		SlowInterval: 10 * time.Millisecond,
	}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := store.Tick("NQ")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}
