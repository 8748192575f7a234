// Package analytics derives read-side aggregates from synchronized state.
// Everything here is a pure function of its inputs and is recomputed on
// demand rather than cached.
package analytics

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

// TradeStats summarizes a list of closed trades.
type TradeStats struct {
	Total        int     `json:"total"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	NetPnL       float64 `json:"net_pnl"`
	GrossProfit  float64 `json:"gross_profit"`
	GrossLoss    float64 `json:"gross_loss"`
	WinRate      float64 `json:"win_rate"`
	ProfitFactor float64 `json:"profit_factor"`
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
}

// ComputeTradeStats aggregates trades. A win is pnl > 0 and a loss pnl < 0;
// scratch trades count toward Total only. WinRate is wins/total×100 and 0
// for an empty list. ProfitFactor is gross profit over absolute gross loss,
// 0 when there are no losses.
func ComputeTradeStats(trades []domain.Trade) TradeStats {
	var (
		stats  TradeStats
		net    = decimal.Zero
		profit = decimal.Zero
		loss   = decimal.Zero
	)

	stats.Total = len(trades)
	for _, t := range trades {
		pnl := decimal.NewFromFloat(t.PnL)
		net = net.Add(pnl)
		switch pnl.Sign() {
		case 1:
			stats.Wins++
			profit = profit.Add(pnl)
		case -1:
			stats.Losses++
			loss = loss.Add(pnl)
		}
	}

	stats.NetPnL = net.InexactFloat64()
	stats.GrossProfit = profit.InexactFloat64()
	stats.GrossLoss = loss.InexactFloat64()

	if stats.Total > 0 {
		stats.WinRate = decimal.NewFromInt(int64(stats.Wins)).
			Mul(decimal.NewFromInt(100)).
			Div(decimal.NewFromInt(int64(stats.Total))).
			InexactFloat64()
	}
	if !loss.IsZero() {
		stats.ProfitFactor = profit.Div(loss.Abs()).InexactFloat64()
	}
	if stats.Wins > 0 {
		stats.AvgWin = profit.Div(decimal.NewFromInt(int64(stats.Wins))).InexactFloat64()
	}
	if stats.Losses > 0 {
		stats.AvgLoss = loss.Div(decimal.NewFromInt(int64(stats.Losses))).InexactFloat64()
	}
	return stats
}

// TotalPnL is the sum of realized P&L over trades.
func TotalPnL(trades []domain.Trade) float64 {
	sum := decimal.Zero
	for _, t := range trades {
		sum = sum.Add(decimal.NewFromFloat(t.PnL))
	}
	return sum.InexactFloat64()
}

// TotalUnrealized sums the unrealized P&L of positions that report one.
func TotalUnrealized(positions []domain.Position) float64 {
	sum := decimal.Zero
	for _, p := range positions {
		if p.UnrealizedPnL != nil {
			sum = sum.Add(decimal.NewFromFloat(*p.UnrealizedPnL))
		}
	}
	return sum.InexactFloat64()
}

// Spread returns best ask minus best bid. ok is false when either side is empty.
func Spread(d domain.Depth) (spread float64, ok bool) {
	if len(d.Bids) == 0 || len(d.Asks) == 0 {
		return 0, false
	}
	ask := decimal.NewFromFloat(d.Asks[0].Price)
	bid := decimal.NewFromFloat(d.Bids[0].Price)
	return ask.Sub(bid).InexactFloat64(), true
}

// MidPrice returns the midpoint of the best bid and ask.
func MidPrice(d domain.Depth) (mid float64, ok bool) {
	if len(d.Bids) == 0 || len(d.Asks) == 0 {
		return 0, false
	}
	sum := decimal.NewFromFloat(d.Asks[0].Price).Add(decimal.NewFromFloat(d.Bids[0].Price))
	return sum.Div(decimal.NewFromInt(2)).InexactFloat64(), true
}

// Summary bundles every derived figure shown alongside the live view.
type Summary struct {
	Trades          TradeStats         `json:"trades"`
	TotalUnrealized float64            `json:"total_unrealized"`
	Spreads         map[string]float64 `json:"spreads"`
}

// Summarize computes a Summary from a state snapshot.
func Summarize(snap domain.MarketSnapshot) Summary {
	out := Summary{
		Trades:          ComputeTradeStats(snap.Trades),
		TotalUnrealized: TotalUnrealized(snap.Positions),
		Spreads:         make(map[string]float64, len(snap.Depth)),
	}
	for sym, d := range snap.Depth {
		if s, ok := Spread(d); ok {
			out.Spreads[sym] = s
		}
	}
	return out
}
