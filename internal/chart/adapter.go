// Package chart turns store bar sequences and ticks into the minimal
// incremental updates a candlestick renderer needs.
package chart

import (
	"math"
	"sync"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

// Candle is the renderer's view of one bar. Time is the bar start in Unix seconds.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume int64   `json:"volume"`
}

// Renderer receives chart updates.
type Renderer interface {
	// SetData replaces every candle on the surface.
	SetData(candles []Candle)
	// Update replaces the last candle, matched by Time.
	Update(c Candle)
}

// CandleFromBar maps a bar onto a candle.
func CandleFromBar(b domain.Bar) Candle {
	return Candle{
		Time:   b.Start.Unix(),
		Open:   b.Open,
		High:   b.High,
		Low:    b.Low,
		Close:  b.Close,
		Volume: b.Volume,
	}
}

// Adapter tracks the last bar it handed to the renderer for one symbol.
type Adapter struct {
	mu       sync.Mutex
	symbol   string
	renderer Renderer

	length int
	first  int64
	last   *domain.Bar
}

// NewAdapter creates an Adapter feeding r with updates for symbol.
func NewAdapter(symbol string, r Renderer) *Adapter {
	return &Adapter{symbol: symbol, renderer: r}
}

// Symbol returns the symbol the adapter follows.
func (a *Adapter) Symbol() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.symbol
}

// SetSymbol switches to another symbol and forgets the cached bar, so the
// next Sync performs a full replace.
func (a *Adapter) SetSymbol(symbol string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if symbol == a.symbol {
		return
	}
	a.symbol = symbol
	a.reset()
}

// Reset forces the next Sync to do a full replace.
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reset()
}

func (a *Adapter) reset() {
	a.length = 0
	a.first = 0
	a.last = nil
}

// Sync brings the renderer up to date with bars after an append. When the
// only change is one newer bar following the cached last bar, it emits a
// single Update; an unchanged sequence emits nothing; anything else is a
// full replace. It reports whether the renderer was updated. Bars is never
// modified.
func (a *Adapter) Sync(bars []domain.Bar) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(bars) == 0 {
		if a.last != nil {
			a.reset()
			a.renderer.SetData(nil)
			return true
		}
		return false
	}

	tail := bars[len(bars)-1]
	switch {
	case a.last == nil:
		a.replace(bars)
	case a.appendedOne(bars):
		a.remember(bars)
		a.renderer.Update(CandleFromBar(tail))
	case len(bars) == a.length && bars[0].Start.Unix() == a.first && tail.Start.Equal(a.last.Start):
		return false
	default:
		a.replace(bars)
	}
	return true
}

// Replace hands the renderer the whole of bars regardless of what was shown
// before. History resyncs go through Replace: the server may have corrected
// bars whose starts did not move.
func (a *Adapter) Replace(bars []domain.Bar) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(bars) == 0 {
		a.reset()
		a.renderer.SetData(nil)
		return
	}
	a.replace(bars)
}

// appendedOne reports whether bars is the rendered sequence plus one newer
// bar, allowing for retention dropping the oldest entry.
func (a *Adapter) appendedOne(bars []domain.Bar) bool {
	n := len(bars)
	if n < 2 {
		return false
	}
	grew := n == a.length+1
	shifted := n == a.length && bars[0].Start.Unix() != a.first
	return (grew || shifted) &&
		bars[n-2].Start.Equal(a.last.Start) &&
		bars[n-1].Start.After(a.last.Start)
}

func (a *Adapter) replace(bars []domain.Bar) {
	candles := make([]Candle, len(bars))
	for i, b := range bars {
		candles[i] = CandleFromBar(b)
	}
	a.remember(bars)
	a.renderer.SetData(candles)
}

func (a *Adapter) remember(bars []domain.Bar) {
	last := bars[len(bars)-1]
	a.last = &last
	a.length = len(bars)
	a.first = bars[0].Start.Unix()
}

// ApplyTick extends the cached last bar with tick: high and low widen to
// include the price and close becomes the price; open and start stay put.
// It is a no-op when no bar has been synced or the tick is for another
// symbol. It reports whether the renderer was updated.
func (a *Adapter) ApplyTick(tick domain.Tick) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.last == nil || tick.Symbol != a.symbol {
		return false
	}

	merged := MergeTick(*a.last, tick.Price)
	a.last = &merged
	a.renderer.Update(CandleFromBar(merged))
	return true
}

// LastBar returns the cached last bar, if any.
func (a *Adapter) LastBar() (domain.Bar, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.last == nil {
		return domain.Bar{}, false
	}
	return *a.last, true
}

// MergeTick returns b extended by a trade at price.
func MergeTick(b domain.Bar, price float64) domain.Bar {
	b.High = math.Max(b.High, price)
	b.Low = math.Min(b.Low, price)
	b.Close = price
	return b
}
