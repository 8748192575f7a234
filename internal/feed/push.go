// Package feed moves upstream data into the state store: a push feed driven
// by the backend's event stream and a pull poller on fixed cadences.
package feed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/quadscalp/internal/platform/quadscalp"
	"github.com/alanyoungcy/quadscalp/internal/state"
)

// Refresher re-pulls authoritative state after a fill. *Poller satisfies it.
type Refresher interface {
	RefreshPositions(ctx context.Context) error
	RefreshTrades(ctx context.Context) error
}

// Alerter sends operator notifications. *notify.Notifier satisfies it.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// FillHook observes every fill frame, e.g. to append it to a durable stream.
type FillHook func(ctx context.Context, fill quadscalp.FillEvent)

// PushOption configures a PushFeed.
type PushOption func(*PushFeed)

// WithAlerter sends fill and disconnect notifications through a.
func WithAlerter(a Alerter) PushOption {
	return func(f *PushFeed) { f.alerter = a }
}

// WithFillHook registers h to observe fills.
func WithFillHook(h FillHook) PushOption {
	return func(f *PushFeed) { f.onFill = h }
}

// WithWSOptions passes options through to the underlying WSClient.
func WithWSOptions(opts ...quadscalp.WSOption) PushOption {
	return func(f *PushFeed) { f.wsOpts = append(f.wsOpts, opts...) }
}

// PushFeed applies push channel events to the store. The connected flag
// follows the transport state.
type PushFeed struct {
	store     *state.Store
	refresher Refresher
	alerter   Alerter
	onFill    FillHook
	wsOpts    []quadscalp.WSOption
	client    *quadscalp.WSClient
	logger    *slog.Logger

	mu        sync.Mutex
	runCtx    context.Context
	wasOnline bool
	closing   atomic.Bool
	wg        sync.WaitGroup
}

// NewPushFeed creates a feed reading from wsURL.
func NewPushFeed(wsURL string, store *state.Store, refresher Refresher, logger *slog.Logger, opts ...PushOption) *PushFeed {
	f := &PushFeed{
		store:     store,
		refresher: refresher,
		runCtx:    context.Background(),
		logger:    logger.With(slog.String("component", "push_feed")),
	}
	for _, opt := range opts {
		opt(f)
	}
	wsOpts := append([]quadscalp.WSOption{quadscalp.WithStateHandler(f.HandleState)}, f.wsOpts...)
	f.client = quadscalp.NewWSClient(wsURL, f.HandleEvent, logger, wsOpts...)
	return f
}

// Run connects and applies events until ctx is cancelled or Close is called.
// Outstanding fill refreshes finish before Run returns.
func (f *PushFeed) Run(ctx context.Context) error {
	f.mu.Lock()
	f.runCtx = ctx
	f.mu.Unlock()

	f.logger.Info("push feed started")
	defer f.logger.Info("push feed stopped")
	defer f.wg.Wait()

	return f.client.Run(ctx)
}

// Close tears down the transport. It never triggers a reconnect.
func (f *PushFeed) Close() error {
	f.closing.Store(true)
	return f.client.Close()
}

// State returns the transport's connection state.
func (f *PushFeed) State() quadscalp.ConnState {
	return f.client.State()
}

// HandleState mirrors transport transitions into the connected flag.
func (f *PushFeed) HandleState(s quadscalp.ConnState) {
	if s == quadscalp.StateConnecting {
		return
	}
	online := s == quadscalp.StateConnected
	f.store.SetConnected(online)

	f.mu.Lock()
	lost := f.wasOnline && !online
	f.wasOnline = online
	ctx := f.runCtx
	f.mu.Unlock()

	if lost {
		f.alert(ctx, "disconnected", "Push channel lost",
			"Connection to the trading backend dropped; reconnecting.")
	}
}

// HandleEvent applies one decoded event to the store.
func (f *PushFeed) HandleEvent(ev quadscalp.Event) {
	switch e := ev.(type) {
	case quadscalp.InitEvent:
		f.store.SetDemoMode(e.DemoMode)
		if len(e.Symbols) > 0 {
			f.store.SetSymbols(e.Symbols)
		}
		if e.Account != nil {
			f.store.UpdateAccount(*e.Account)
		}

	case quadscalp.TickEvent:
		f.store.ApplyTick(e.Tick)

	case quadscalp.BarEvent:
		f.store.AppendBar(e.Bar)

	case quadscalp.DepthEvent:
		f.store.UpdateDepth(e.Symbol, e.Bids, e.Asks)

	case quadscalp.FillEvent:
		f.handleFill(e)

	case quadscalp.PositionEvent:
		f.store.UpsertPosition(e.Position)

	case quadscalp.AccountEvent:
		f.store.UpdateAccount(e.Update)

	case quadscalp.PongEvent:

	case quadscalp.UnknownEvent:
		f.logger.Debug("ignoring unknown event", slog.String("type", e.Type))

	default:
		f.logger.Warn("unhandled event", slog.String("type", fmt.Sprintf("%T", ev)))
	}
}

// handleFill re-pulls positions and trades without blocking the read loop.
func (f *PushFeed) handleFill(e quadscalp.FillEvent) {
	f.mu.Lock()
	ctx := f.runCtx
	f.mu.Unlock()

	f.logger.Info("fill received",
		slog.Int64("order_id", e.OrderID),
		slog.String("symbol", e.Symbol),
		slog.String("side", string(e.Side)),
		slog.Int64("qty", e.Qty),
		slog.Float64("price", e.Price),
	)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()

		if f.refresher != nil {
			if err := f.refresher.RefreshPositions(ctx); err != nil {
				f.logger.Warn("post-fill positions refresh failed", slog.String("error", err.Error()))
			}
			if err := f.refresher.RefreshTrades(ctx); err != nil {
				f.logger.Warn("post-fill trades refresh failed", slog.String("error", err.Error()))
			}
		}
		if f.onFill != nil {
			f.onFill(ctx, e)
		}
		f.alert(ctx, "fill", fmt.Sprintf("Fill %s %s", e.Side, e.Symbol),
			fmt.Sprintf("%d @ %.2f (order %d)", e.Qty, e.Price, e.OrderID))
	}()
}

// alert delivers a notification off the caller's goroutine.
func (f *PushFeed) alert(ctx context.Context, event, title, message string) {
	if f.alerter == nil || ctx.Err() != nil || f.closing.Load() {
		return
	}
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		if err := f.alerter.Notify(ctx, event, title, message); err != nil {
			f.logger.Warn("notification failed", slog.String("event", event), slog.String("error", err.Error()))
		}
	}()
}

// Wait blocks until outstanding fill refreshes finish.
func (f *PushFeed) Wait() { f.wg.Wait() }
