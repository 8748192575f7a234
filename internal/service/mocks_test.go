package service

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockGateway struct{ mock.Mock }

func (m *MockGateway) PlaceOrder(ctx context.Context, in domain.OrderIntent) (domain.OrderRecord, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(domain.OrderRecord), args.Error(1)
}

func (m *MockGateway) CancelOrder(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockGateway) Flatten(ctx context.Context) (domain.FlattenResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(domain.FlattenResult), args.Error(1)
}

type MockRateLimiter struct{ mock.Mock }

func (m *MockRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

type MockOrderAudit struct{ mock.Mock }

func (m *MockOrderAudit) Record(ctx context.Context, entry domain.OrderAuditEntry) error {
	return m.Called(ctx, entry).Error(0)
}

func (m *MockOrderAudit) List(ctx context.Context, opts domain.ListOpts) ([]domain.OrderAuditEntry, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).([]domain.OrderAuditEntry), args.Error(1)
}

type MockSignalBus struct{ mock.Mock }

func (m *MockSignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return m.Called(ctx, channel, payload).Error(0)
}

func (m *MockSignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	args := m.Called(ctx, channel)
	return args.Get(0).(<-chan []byte), args.Error(1)
}

func (m *MockSignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	return m.Called(ctx, stream, payload).Error(0)
}

func (m *MockSignalBus) StreamRead(ctx context.Context, stream, lastID string, count int) ([]domain.StreamMessage, error) {
	args := m.Called(ctx, stream, lastID, count)
	return args.Get(0).([]domain.StreamMessage), args.Error(1)
}

type MockPriceCache struct{ mock.Mock }

func (m *MockPriceCache) SetTick(ctx context.Context, tick domain.Tick) error {
	return m.Called(ctx, tick).Error(0)
}

func (m *MockPriceCache) GetTick(ctx context.Context, symbol string) (domain.Tick, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(domain.Tick), args.Error(1)
}

func (m *MockPriceCache) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	args := m.Called(ctx, symbols)
	return args.Get(0).(map[string]float64), args.Error(1)
}

type MockTradeJournal struct{ mock.Mock }

func (m *MockTradeJournal) InsertBatch(ctx context.Context, trades []domain.Trade) error {
	return m.Called(ctx, trades).Error(0)
}

func (m *MockTradeJournal) List(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).([]domain.Trade), args.Error(1)
}

func (m *MockTradeJournal) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	args := m.Called(ctx, before)
	return args.Get(0).([]domain.Trade), args.Error(1)
}

type MockBarStore struct{ mock.Mock }

func (m *MockBarStore) UpsertBatch(ctx context.Context, bars []domain.Bar) error {
	return m.Called(ctx, bars).Error(0)
}

func (m *MockBarStore) ListRange(ctx context.Context, symbol, timeframe string, opts domain.ListOpts) ([]domain.Bar, error) {
	args := m.Called(ctx, symbol, timeframe, opts)
	return args.Get(0).([]domain.Bar), args.Error(1)
}

func (m *MockBarStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Bar, error) {
	args := m.Called(ctx, before)
	return args.Get(0).([]domain.Bar), args.Error(1)
}

type MockArchiver struct{ mock.Mock }

func (m *MockArchiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockArchiver) ArchiveBars(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

type MockAlerter struct{ mock.Mock }

func (m *MockAlerter) Notify(ctx context.Context, event, title, message string) error {
	return m.Called(ctx, event, title, message).Error(0)
}

type MockLockManager struct{ mock.Mock }

func (m *MockLockManager) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	args := m.Called(ctx, key, ttl)
	if fn, ok := args.Get(0).(func()); ok {
		return fn, args.Error(1)
	}
	return nil, args.Error(1)
}
