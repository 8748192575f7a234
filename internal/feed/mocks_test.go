package feed

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/alanyoungcy/quadscalp/internal/chart"
	"github.com/alanyoungcy/quadscalp/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockFetcher struct{ mock.Mock }

func (m *MockFetcher) GetQuote(ctx context.Context, symbol string) (domain.Quote, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(domain.Quote), args.Error(1)
}

func (m *MockFetcher) GetAccount(ctx context.Context) (domain.Account, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.Account), args.Error(1)
}

func (m *MockFetcher) GetPositions(ctx context.Context) ([]domain.Position, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Position), args.Error(1)
}

func (m *MockFetcher) GetTrades(ctx context.Context) ([]domain.Trade, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.Trade), args.Error(1)
}

func (m *MockFetcher) GetOrders(ctx context.Context) ([]domain.OrderRecord, error) {
	args := m.Called(ctx)
	return args.Get(0).([]domain.OrderRecord), args.Error(1)
}

func (m *MockFetcher) GetBars(ctx context.Context, symbol string, count int, tf string) ([]domain.Bar, error) {
	args := m.Called(ctx, symbol, count, tf)
	return args.Get(0).([]domain.Bar), args.Error(1)
}

type MockRefresher struct{ mock.Mock }

func (m *MockRefresher) RefreshPositions(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockRefresher) RefreshTrades(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

type MockAlerter struct{ mock.Mock }

func (m *MockAlerter) Notify(ctx context.Context, event, title, message string) error {
	return m.Called(ctx, event, title, message).Error(0)
}

type captureBroadcaster struct {
	mu   sync.Mutex
	msgs map[string][][]byte
}

func (c *captureBroadcaster) Broadcast(channel string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.msgs == nil {
		c.msgs = make(map[string][][]byte)
	}
	c.msgs[channel] = append(c.msgs[channel], data)
}

func (c *captureBroadcaster) count(channel string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs[channel])
}

type recordingRenderer struct {
	sets    [][]chart.Candle
	updates []chart.Candle
}

func (r *recordingRenderer) SetData(c []chart.Candle) { r.sets = append(r.sets, c) }
func (r *recordingRenderer) Update(c chart.Candle)    { r.updates = append(r.updates, c) }
