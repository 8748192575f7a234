package state

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

func f64(v float64) *float64 { return &v }

func TestStore_ApplyTick_ComputesDelta(t *testing.T) {
	s := New()
	t0 := time.Unix(1_700_000_000, 0)

	s.ApplyTick(domain.Tick{Symbol: "ES", Price: 100, Time: t0})
	first, ok := s.Tick("ES")
	require.True(t, ok)
	assert.Equal(t, 0.0, first.Change)
	assert.Equal(t, 0.0, first.ChangePct)

	s.ApplyTick(domain.Tick{Symbol: "ES", Price: 102, Time: t0.Add(time.Second)})
	second, _ := s.Tick("ES")
	assert.Equal(t, 2.0, second.Change)
	assert.InDelta(t, 2.0, second.ChangePct, 1e-9)
	assert.Equal(t, 102.0, second.Price)
}

func TestStore_ApplyTick_SequenceChangeMatchesDifference(t *testing.T) {
	s := New()
	prices := []float64{5890, 5890.25, 5889.5, 5889.5, 5891}
	for i, p := range prices {
		s.ApplyTick(domain.Tick{Symbol: "ES", Price: p})
		got, _ := s.Tick("ES")
		if i == 0 {
			assert.Equal(t, 0.0, got.Change)
			continue
		}
		assert.InDelta(t, p-prices[i-1], got.Change, 1e-9)
	}
}

func TestStore_ApplyTick_ZeroPreviousPrice(t *testing.T) {
	s := New()
	s.ApplyTick(domain.Tick{Symbol: "CL", Price: 0})
	s.ApplyTick(domain.Tick{Symbol: "CL", Price: 71.5})

	got, _ := s.Tick("CL")
	assert.Equal(t, 71.5, got.Change)
	assert.Equal(t, 0.0, got.ChangePct)
}

func TestStore_ApplyTick_SymbolsAreIndependent(t *testing.T) {
	s := New()
	s.ApplyTick(domain.Tick{Symbol: "ES", Price: 100})
	s.ApplyTick(domain.Tick{Symbol: "NQ", Price: 200})

	nq, _ := s.Tick("NQ")
	assert.Equal(t, 0.0, nq.Change)
	assert.Len(t, s.Ticks(), 2)
}

func TestStore_AppendBar_EnforcesRetention(t *testing.T) {
	s := New(WithBarRetention(5))
	base := time.Unix(0, 0)
	for i := 0; i < 12; i++ {
		s.AppendBar(domain.Bar{Symbol: "ES", Close: float64(i), Start: base.Add(time.Duration(i) * 5 * time.Second)})
	}

	bars := s.Bars("ES")
	require.Len(t, bars, 5)
	for i, b := range bars {
		assert.Equal(t, float64(7+i), b.Close, "most recent bars kept in order")
	}
}

func TestStore_AppendBar_DefaultRetention(t *testing.T) {
	s := New()
	for i := 0; i < domain.DefaultBarRetention+10; i++ {
		s.AppendBar(domain.Bar{Symbol: "ES", Close: float64(i)})
	}
	bars := s.Bars("ES")
	require.Len(t, bars, domain.DefaultBarRetention)
	assert.Equal(t, 10.0, bars[0].Close)
	assert.Equal(t, float64(domain.DefaultBarRetention+9), bars[len(bars)-1].Close)
}

func TestStore_ReplaceBars_DiscardsPrior(t *testing.T) {
	s := New()
	s.AppendBar(domain.Bar{Symbol: "ES", Close: 1})
	s.AppendBar(domain.Bar{Symbol: "ES", Close: 2})

	in := []domain.Bar{{Symbol: "ES", Close: 9}}
	s.ReplaceBars("ES", in)
	in[0].Close = 42

	bars := s.Bars("ES")
	require.Len(t, bars, 1)
	assert.Equal(t, 9.0, bars[0].Close, "store must not alias caller slice")
}

func TestStore_UpdateDepth_ReplacesBothSides(t *testing.T) {
	s := New()
	s.UpdateDepth("ES", []domain.DepthLevel{{Price: 10, Size: 1}, {Price: 9, Size: 2}}, []domain.DepthLevel{{Price: 11, Size: 3}})
	s.UpdateDepth("ES", []domain.DepthLevel{{Price: 8, Size: 5}}, nil)

	d, ok := s.Depth("ES")
	require.True(t, ok)
	assert.Equal(t, []domain.DepthLevel{{Price: 8, Size: 5}}, d.Bids)
	assert.Empty(t, d.Asks)
}

func TestStore_UpdateAccount_PartialMerge(t *testing.T) {
	s := New()
	s.UpdateAccount(domain.FullAccountUpdate(domain.Account{
		Balance: 50000, Equity: 50100, DailyPnL: 10, UnrealizedPnL: 100, MarginUsed: 6930,
	}))
	s.UpdateAccount(domain.AccountUpdate{Balance: f64(50250), DailyPnL: f64(260)})

	acc := s.Account()
	assert.Equal(t, 50250.0, acc.Balance)
	assert.Equal(t, 260.0, acc.DailyPnL)
	assert.Equal(t, 50100.0, acc.Equity)
	assert.Equal(t, 100.0, acc.UnrealizedPnL)
	assert.Equal(t, 6930.0, acc.MarginUsed)
}

func TestStore_DefaultAccountBalance(t *testing.T) {
	acc := New().Account()
	assert.Equal(t, domain.DefaultStartingBalance, acc.Balance)
	assert.Equal(t, domain.DefaultStartingBalance, acc.Equity)
}

func TestStore_UpsertPosition_Idempotent(t *testing.T) {
	s := New()
	s.SetPositions([]domain.Position{
		{Symbol: "ES", Side: domain.PositionLong, Qty: 1, AvgPrice: 5890},
		{Symbol: "NQ", Side: domain.PositionShort, Qty: 2, AvgPrice: 21150},
	})

	p := domain.Position{Symbol: "ES", Side: domain.PositionLong, Qty: 3, AvgPrice: 5891, UnrealizedPnL: f64(75)}
	s.UpsertPosition(p)
	s.UpsertPosition(p)

	got := s.Positions()
	require.Len(t, got, 2)
	assert.Equal(t, "ES", got[0].Symbol, "order preserved")
	assert.Equal(t, int64(3), got[0].Qty)
	assert.Equal(t, "NQ", got[1].Symbol)

	s.UpsertPosition(domain.Position{Symbol: "CL", Side: domain.PositionLong, Qty: 1})
	got = s.Positions()
	require.Len(t, got, 3)
	assert.Equal(t, "CL", got[2].Symbol)
}

func TestStore_SetPositions_Idempotent(t *testing.T) {
	s := New()
	list := []domain.Position{{Symbol: "ES", Qty: 1}}
	s.SetPositions(list)
	s.SetPositions(list)
	assert.Len(t, s.Positions(), 1)
}

func TestStore_AddTrade_DedupesByID(t *testing.T) {
	s := New()
	s.SetTrades([]domain.Trade{{ID: 2, Symbol: "ES"}, {ID: 1, Symbol: "ES"}})

	assert.True(t, s.AddTrade(domain.Trade{ID: 3, Symbol: "NQ"}))
	assert.False(t, s.AddTrade(domain.Trade{ID: 2, Symbol: "ES"}))

	trades := s.Trades()
	require.Len(t, trades, 3)
	assert.Equal(t, int64(3), trades[0].ID, "newest first")
}

func TestStore_SetTrades_PreservesServerOrder(t *testing.T) {
	s := New()
	s.SetTrades([]domain.Trade{{ID: 1}, {ID: 5}, {ID: 3}})

	ids := []int64{}
	for _, tr := range s.Trades() {
		ids = append(ids, tr.ID)
	}
	assert.Equal(t, []int64{1, 5, 3}, ids)
}

func TestStore_Orders(t *testing.T) {
	s := New()
	s.SetOrders([]domain.OrderRecord{{ID: 1}, {ID: 2}})
	assert.True(t, s.AddOrder(domain.OrderRecord{ID: 3}))
	assert.False(t, s.AddOrder(domain.OrderRecord{ID: 1}))
	assert.True(t, s.RemoveOrder(2))
	assert.False(t, s.RemoveOrder(99))

	ids := []int64{}
	for _, o := range s.Orders() {
		ids = append(ids, o.ID)
	}
	assert.Equal(t, []int64{3, 1}, ids)
}

func TestStore_ConnectionFlags(t *testing.T) {
	s := New()
	var events []domain.StateEvent
	s.Subscribe(func(ev domain.StateEvent) { events = append(events, ev) })

	s.SetConnected(true)
	s.SetConnected(true)
	s.SetDemoMode(true)

	conn := s.Connection()
	assert.True(t, conn.Connected)
	assert.True(t, conn.DemoMode)
	assert.Len(t, events, 2, "unchanged flags do not emit")
}

func TestStore_SubscribeReceivesEvents(t *testing.T) {
	s := New()
	var got []domain.StateEvent
	s.Subscribe(func(ev domain.StateEvent) {
		// Listener runs after the lock is released, so reads must not deadlock.
		_ = s.Snapshot()
		got = append(got, ev)
	})

	s.ApplyTick(domain.Tick{Symbol: "ES", Price: 1})
	s.AppendBar(domain.Bar{Symbol: "ES"})
	s.UpdateAccount(domain.AccountUpdate{})

	require.Len(t, got, 3)
	assert.Equal(t, domain.StateEvent{Kind: domain.EventTick, Symbol: "ES"}, got[0])
	assert.Equal(t, domain.EventBar, got[1].Kind)
	assert.Equal(t, domain.EventAccount, got[2].Kind)
}

func TestStore_SnapshotIsDeepCopy(t *testing.T) {
	s := New(WithActiveSymbol("NQ"))
	s.AppendBar(domain.Bar{Symbol: "NQ", Close: 1})
	s.UpdateDepth("NQ", []domain.DepthLevel{{Price: 1, Size: 1}}, nil)

	snap := s.Snapshot()
	snap.Bars["NQ"][0].Close = 99
	snap.Depth["NQ"].Bids[0].Size = 99

	assert.Equal(t, "NQ", snap.ActiveSymbol)
	assert.Equal(t, 1.0, s.Bars("NQ")[0].Close)
	d, _ := s.Depth("NQ")
	assert.Equal(t, int64(1), d.Bids[0].Size)
}

func TestStore_ConcurrentMutations(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				s.ApplyTick(domain.Tick{Symbol: "ES", Price: float64(j)})
				s.AppendBar(domain.Bar{Symbol: "ES"})
				s.AddTrade(domain.Trade{ID: int64(i*1000 + j)})
				_ = s.Snapshot()
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Trades(), 1600)
	assert.Len(t, s.Bars("ES"), 1600)
}
