package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/alanyoungcy/quadscalp/internal/domain"
	"github.com/alanyoungcy/quadscalp/internal/state"
)

const defaultQueueSize = 1024

// eventQueue decouples store listeners, which must not block, from slow
// writers. Events are dropped when the queue is full.
type eventQueue struct {
	ch      chan domain.StateEvent
	dropped atomic.Int64
}

func newEventQueue(size int) *eventQueue {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &eventQueue{ch: make(chan domain.StateEvent, size)}
}

func (q *eventQueue) push(ev domain.StateEvent) {
	select {
	case q.ch <- ev:
	default:
		q.dropped.Add(1)
	}
}

// JournalService persists closed trades and bar history to Postgres as the
// store receives them.
type JournalService struct {
	store  *state.Store
	trades domain.TradeJournal
	bars   domain.BarStore
	queue  *eventQueue
	logger *slog.Logger
}

// NewJournalService creates a JournalService and subscribes it to store.
// Either writer may be nil.
func NewJournalService(store *state.Store, trades domain.TradeJournal, bars domain.BarStore, logger *slog.Logger) *JournalService {
	j := &JournalService{
		store:  store,
		trades: trades,
		bars:   bars,
		queue:  newEventQueue(defaultQueueSize),
		logger: logger.With(slog.String("component", "journal")),
	}
	store.Subscribe(j.enqueue)
	return j
}

func (j *JournalService) enqueue(ev domain.StateEvent) {
	switch ev.Kind {
	case domain.EventTrades:
		if j.trades != nil {
			j.queue.push(ev)
		}
	case domain.EventBar, domain.EventBarsReplaced:
		if j.bars != nil {
			j.queue.push(ev)
		}
	}
}

// Run drains queued events until ctx is cancelled.
func (j *JournalService) Run(ctx context.Context) error {
	j.logger.Info("journal started")
	defer j.logger.Info("journal stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-j.queue.ch:
			if err := j.Persist(ctx, ev); err != nil {
				j.logger.Warn("journal write failed",
					slog.String("kind", string(ev.Kind)),
					slog.String("symbol", ev.Symbol),
					slog.String("error", err.Error()),
				)
			}
			if n := j.queue.dropped.Swap(0); n > 0 {
				j.logger.Warn("journal queue overflowed", slog.Int64("dropped", n))
			}
		}
	}
}

// Persist writes the state touched by ev.
func (j *JournalService) Persist(ctx context.Context, ev domain.StateEvent) error {
	switch ev.Kind {
	case domain.EventTrades:
		trades := j.store.Trades()
		if len(trades) == 0 || j.trades == nil {
			return nil
		}
		if err := j.trades.InsertBatch(ctx, trades); err != nil {
			return fmt.Errorf("journal: insert trades: %w", err)
		}

	case domain.EventBar:
		bars := j.store.Bars(ev.Symbol)
		if len(bars) == 0 || j.bars == nil {
			return nil
		}
		if err := j.bars.UpsertBatch(ctx, bars[len(bars)-1:]); err != nil {
			return fmt.Errorf("journal: upsert bar: %w", err)
		}

	case domain.EventBarsReplaced:
		bars := j.store.Bars(ev.Symbol)
		if len(bars) == 0 || j.bars == nil {
			return nil
		}
		if err := j.bars.UpsertBatch(ctx, bars); err != nil {
			return fmt.Errorf("journal: upsert bars: %w", err)
		}
	}
	return nil
}
