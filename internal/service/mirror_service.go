package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/quadscalp/internal/domain"
	"github.com/alanyoungcy/quadscalp/internal/platform/quadscalp"
	"github.com/alanyoungcy/quadscalp/internal/state"
)

// FillStream is the durable stream every fill is appended to.
const FillStream = "stream:fills"

// MirrorService republishes store events to Redis: the latest tick per
// symbol goes to the price cache and every event is published on its
// ch:{kind} channel.
type MirrorService struct {
	store  *state.Store
	prices domain.PriceCache
	bus    domain.SignalBus
	queue  *eventQueue
	logger *slog.Logger
}

// NewMirrorService creates a MirrorService and subscribes it to store.
func NewMirrorService(store *state.Store, prices domain.PriceCache, bus domain.SignalBus, logger *slog.Logger) *MirrorService {
	m := &MirrorService{
		store:  store,
		prices: prices,
		bus:    bus,
		queue:  newEventQueue(defaultQueueSize),
		logger: logger.With(slog.String("component", "mirror")),
	}
	store.Subscribe(m.queue.push)
	return m
}

// Run drains queued events until ctx is cancelled.
func (m *MirrorService) Run(ctx context.Context) error {
	m.logger.Info("mirror started")
	defer m.logger.Info("mirror stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-m.queue.ch:
			if err := m.Mirror(ctx, ev); err != nil {
				m.logger.Debug("mirror failed",
					slog.String("kind", string(ev.Kind)),
					slog.String("error", err.Error()),
				)
			}
			if n := m.queue.dropped.Swap(0); n > 0 {
				m.logger.Warn("mirror queue overflowed", slog.Int64("dropped", n))
			}
		}
	}
}

// Mirror pushes the state touched by ev to Redis.
func (m *MirrorService) Mirror(ctx context.Context, ev domain.StateEvent) error {
	if ev.Kind == domain.EventTick && m.prices != nil {
		if t, ok := m.store.Tick(ev.Symbol); ok {
			if err := m.prices.SetTick(ctx, t); err != nil {
				return fmt.Errorf("mirror: set tick %s: %w", ev.Symbol, err)
			}
		}
	}

	if m.bus == nil {
		return nil
	}
	data, err := m.store.EncodeMessage(ev)
	if err != nil {
		return err
	}
	if err := m.bus.Publish(ctx, ev.Channel(), data); err != nil {
		return fmt.Errorf("mirror: publish %s: %w", ev.Channel(), err)
	}
	return nil
}

// RecordFill appends a fill to the durable fill stream.
func (m *MirrorService) RecordFill(ctx context.Context, fill quadscalp.FillEvent) {
	if m.bus == nil {
		return
	}
	data, err := json.Marshal(map[string]any{
		"order_id": fill.OrderID,
		"symbol":   fill.Symbol,
		"side":     fill.Side,
		"price":    fill.Price,
		"qty":      fill.Qty,
		"time":     time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}
	if err := m.bus.StreamAppend(ctx, FillStream, data); err != nil {
		m.logger.Warn("fill stream append failed",
			slog.Int64("order_id", fill.OrderID),
			slog.String("error", err.Error()),
		)
	}
}

// RecentFills reads up to count fills after lastID ("0" for the beginning).
func (m *MirrorService) RecentFills(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error) {
	if m.bus == nil {
		return nil, nil
	}
	msgs, err := m.bus.StreamRead(ctx, FillStream, lastID, count)
	if err != nil {
		return nil, fmt.Errorf("mirror: read fills: %w", err)
	}
	return msgs, nil
}
