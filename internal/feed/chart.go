package feed

import (
	"encoding/json"
	"log/slog"

	"github.com/alanyoungcy/quadscalp/internal/chart"
	"github.com/alanyoungcy/quadscalp/internal/domain"
	"github.com/alanyoungcy/quadscalp/internal/state"
)

// ChartChannel is the broadcast channel carrying chart updates.
const ChartChannel = "ch:chart"

// ChartFeed keeps a chart adapter in step with the store's active symbol.
type ChartFeed struct {
	store   *state.Store
	adapter *chart.Adapter
}

// NewChartFeed creates a ChartFeed rendering into r and subscribes it to store.
func NewChartFeed(store *state.Store, r chart.Renderer) *ChartFeed {
	c := &ChartFeed{
		store:   store,
		adapter: chart.NewAdapter(store.ActiveSymbol(), r),
	}
	c.adapter.Sync(store.Bars(c.adapter.Symbol()))
	store.Subscribe(c.handle)
	return c
}

// Adapter exposes the underlying adapter.
func (c *ChartFeed) Adapter() *chart.Adapter { return c.adapter }

func (c *ChartFeed) handle(ev domain.StateEvent) {
	switch ev.Kind {
	case domain.EventActiveSymbol:
		sym := c.store.ActiveSymbol()
		c.adapter.SetSymbol(sym)
		c.adapter.Sync(c.store.Bars(sym))

	case domain.EventBar:
		if ev.Symbol == c.adapter.Symbol() {
			c.adapter.Sync(c.store.Bars(ev.Symbol))
		}

	case domain.EventBarsReplaced:
		if ev.Symbol == c.adapter.Symbol() {
			c.adapter.Replace(c.store.Bars(ev.Symbol))
		}

	case domain.EventTick:
		if ev.Symbol != c.adapter.Symbol() {
			return
		}
		if t, ok := c.store.Tick(ev.Symbol); ok {
			c.adapter.ApplyTick(t)
		}
	}
}

// Broadcaster fans a payload out to subscribers of channel.
type Broadcaster interface {
	Broadcast(channel string, data []byte)
}

// chartMessage is the JSON shape of a chart update.
type chartMessage struct {
	Type    string         `json:"type"`
	Action  string         `json:"action"`
	Symbol  string         `json:"symbol"`
	Candles []chart.Candle `json:"candles,omitempty"`
	Candle  *chart.Candle  `json:"candle,omitempty"`
}

// BroadcastRenderer is a chart.Renderer that publishes every update as JSON.
type BroadcastRenderer struct {
	out    Broadcaster
	symbol func() string
	logger *slog.Logger
}

// NewBroadcastRenderer creates a renderer publishing on ChartChannel.
// symbol reports the symbol currently charted.
func NewBroadcastRenderer(out Broadcaster, symbol func() string, logger *slog.Logger) *BroadcastRenderer {
	return &BroadcastRenderer{
		out:    out,
		symbol: symbol,
		logger: logger.With(slog.String("component", "chart_renderer")),
	}
}

// SetData publishes a full replace.
func (r *BroadcastRenderer) SetData(candles []chart.Candle) {
	r.publish(chartMessage{Type: "chart", Action: "set", Symbol: r.symbol(), Candles: candles})
}

// Update publishes a last-candle update.
func (r *BroadcastRenderer) Update(c chart.Candle) {
	r.publish(chartMessage{Type: "chart", Action: "update", Symbol: r.symbol(), Candle: &c})
}

func (r *BroadcastRenderer) publish(msg chartMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.Warn("encode chart update failed", slog.String("error", err.Error()))
		return
	}
	r.out.Broadcast(ChartChannel, data)
}
