package feed

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/quadscalp/internal/chart"
	"github.com/alanyoungcy/quadscalp/internal/domain"
	"github.com/alanyoungcy/quadscalp/internal/state"
)

func TestChartFeed_FollowsActiveSymbol(t *testing.T) {
	store := state.New()
	r := &recordingRenderer{}
	cf := NewChartFeed(store, r)

	store.ReplaceBars("ES", []domain.Bar{
		{Symbol: "ES", Open: 10, High: 12, Low: 9, Close: 11, Start: time.Unix(100, 0)},
	})
	require.Len(t, r.sets, 1)

	store.ApplyTick(domain.Tick{Symbol: "ES", Price: 13})
	require.Len(t, r.updates, 1)
	assert.Equal(t, chart.Candle{Time: 100, Open: 10, High: 13, Low: 9, Close: 13}, r.updates[0])

	store.ApplyTick(domain.Tick{Symbol: "NQ", Price: 1})
	store.ReplaceBars("NQ", []domain.Bar{{Symbol: "NQ", Start: time.Unix(1, 0)}})
	assert.Len(t, r.updates, 1)
	assert.Len(t, r.sets, 1)

	store.SetActiveSymbol("NQ")
	assert.Equal(t, "NQ", cf.Adapter().Symbol())
	assert.Len(t, r.sets, 2)
}

func TestChartFeed_ResyncRedrawsCorrectedBars(t *testing.T) {
	store := state.New()
	r := &recordingRenderer{}
	NewChartFeed(store, r)

	store.ReplaceBars("ES", []domain.Bar{
		{Symbol: "ES", Open: 10, High: 12, Low: 9, Close: 11, Start: time.Unix(0, 0)},
	})
	store.ReplaceBars("ES", []domain.Bar{
		{Symbol: "ES", Open: 10, High: 20, Low: 5, Close: 18, Start: time.Unix(0, 0)},
	})
	require.Len(t, r.sets, 2)
	assert.Equal(t, []chart.Candle{{Time: 0, Open: 10, High: 20, Low: 5, Close: 18}}, r.sets[1])

	store.ApplyTick(domain.Tick{Symbol: "ES", Price: 13})
	require.Len(t, r.updates, 1)
	assert.Equal(t, chart.Candle{Time: 0, Open: 10, High: 20, Low: 5, Close: 13}, r.updates[0])
}

func TestChartFeed_AppendedBarIsUpdate(t *testing.T) {
	store := state.New()
	r := &recordingRenderer{}
	NewChartFeed(store, r)

	store.ReplaceBars("ES", []domain.Bar{{Symbol: "ES", Close: 1, Start: time.Unix(0, 0)}})
	store.AppendBar(domain.Bar{Symbol: "ES", Open: 2, High: 2, Low: 2, Close: 2, Start: time.Unix(5, 0)})

	assert.Len(t, r.sets, 1)
	require.Len(t, r.updates, 1)
	assert.Equal(t, int64(5), r.updates[0].Time)
}

func TestBroadcastRenderer(t *testing.T) {
	b := &captureBroadcaster{}
	r := NewBroadcastRenderer(b, func() string { return "ES" }, discardLogger())

	r.SetData([]chart.Candle{{Time: 1, Close: 2}})
	r.Update(chart.Candle{Time: 1, Close: 3})
	require.Equal(t, 2, b.count(ChartChannel))

	var msg map[string]any
	require.NoError(t, json.Unmarshal(b.msgs[ChartChannel][1], &msg))
	assert.Equal(t, "update", msg["action"])
	assert.Equal(t, "ES", msg["symbol"])
}
