package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/quadscalp/internal/domain"
	"github.com/alanyoungcy/quadscalp/internal/state"
)

// Fetcher is the pull API surface the poller needs.
// *quadscalp.Client satisfies it.
type Fetcher interface {
	GetQuote(ctx context.Context, symbol string) (domain.Quote, error)
	GetAccount(ctx context.Context) (domain.Account, error)
	GetPositions(ctx context.Context) ([]domain.Position, error)
	GetTrades(ctx context.Context) ([]domain.Trade, error)
	GetOrders(ctx context.Context) ([]domain.OrderRecord, error)
	GetBars(ctx context.Context, symbol string, count int, tf string) ([]domain.Bar, error)
}

// PollerConfig controls the pull cadences.
type PollerConfig struct {
	Symbols      []string
	FastInterval time.Duration
	SlowInterval time.Duration
	BarCount     int
	BarTimeframe string
	// OwnsConnection makes the poller drive the connected flag: false on any
	// failed fetch in a fast cycle, true when every fetch succeeds.
	OwnsConnection bool
}

// DefaultPollerConfig returns the standard 2s/5s cadences for ES, NQ and CL.
func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Symbols:      []string{"ES", "NQ", "CL"},
		FastInterval: 2 * time.Second,
		SlowInterval: 5 * time.Second,
		BarCount:     500,
		BarTimeframe: "5s",
	}
}

// Poller refreshes the store from the pull API on two independent timers.
// A failed fetch skips only that refresh; the next tick retries it.
type Poller struct {
	fetcher Fetcher
	store   *state.Store
	cfg     PollerConfig
	now     func() time.Time
	logger  *slog.Logger
}

// NewPoller creates a Poller. Zero fields in cfg take the defaults.
func NewPoller(fetcher Fetcher, store *state.Store, cfg PollerConfig, logger *slog.Logger) *Poller {
	def := DefaultPollerConfig()
	if len(cfg.Symbols) == 0 {
		cfg.Symbols = def.Symbols
	}
	if cfg.FastInterval <= 0 {
		cfg.FastInterval = def.FastInterval
	}
	if cfg.SlowInterval <= 0 {
		cfg.SlowInterval = def.SlowInterval
	}
	if cfg.BarCount <= 0 {
		cfg.BarCount = def.BarCount
	}
	if cfg.BarTimeframe == "" {
		cfg.BarTimeframe = def.BarTimeframe
	}
	return &Poller{
		fetcher: fetcher,
		store:   store,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "poller")),
	}
}

// Run runs the fast and slow cycles until ctx is cancelled. Each cycle runs
// once immediately.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info("poller started",
		slog.Duration("fast_interval", p.cfg.FastInterval),
		slog.Duration("slow_interval", p.cfg.SlowInterval),
		slog.Any("symbols", p.cfg.Symbols),
	)
	defer p.logger.Info("poller stopped")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.loop(gctx, "fast", p.cfg.FastInterval, p.FastCycle) })
	g.Go(func() error { return p.loop(gctx, "slow", p.cfg.SlowInterval, p.SlowCycle) })
	return g.Wait()
}

func (p *Poller) loop(ctx context.Context, name string, interval time.Duration, cycle func(context.Context) error) error {
	if err := cycle(ctx); err != nil && ctx.Err() == nil {
		p.logger.Warn("pull cycle incomplete", slog.String("cycle", name), slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := cycle(ctx); err != nil && ctx.Err() == nil {
				p.logger.Warn("pull cycle incomplete", slog.String("cycle", name), slog.String("error", err.Error()))
			}
		}
	}
}

// FastCycle refreshes quotes for every symbol plus account, positions,
// trades and pending orders. Refreshes run concurrently and fail
// independently; the joined error lists every skipped refresh.
func (p *Poller) FastCycle(ctx context.Context) error {
	var g errgroup.Group
	errs := make([]error, len(p.cfg.Symbols)+4)

	for i, sym := range p.cfg.Symbols {
		g.Go(func() error {
			errs[i] = p.RefreshQuote(ctx, sym)
			return nil
		})
	}
	n := len(p.cfg.Symbols)
	g.Go(func() error { errs[n] = p.RefreshAccount(ctx); return nil })
	g.Go(func() error { errs[n+1] = p.RefreshPositions(ctx); return nil })
	g.Go(func() error { errs[n+2] = p.RefreshTrades(ctx); return nil })
	g.Go(func() error { errs[n+3] = p.RefreshOrders(ctx); return nil })
	_ = g.Wait()

	err := errors.Join(errs...)
	if p.cfg.OwnsConnection {
		p.store.SetConnected(err == nil)
	}
	return err
}

// SlowCycle refreshes the bar history of the active symbol.
func (p *Poller) SlowCycle(ctx context.Context) error {
	err := p.RefreshBars(ctx, p.store.ActiveSymbol())
	if err != nil && p.cfg.OwnsConnection {
		p.store.SetConnected(false)
	}
	return err
}

// RefreshQuote pulls one symbol's quote and applies it as a zero-size tick
// stamped with the local clock, plus its depth when present.
func (p *Poller) RefreshQuote(ctx context.Context, symbol string) error {
	q, err := p.fetcher.GetQuote(ctx, symbol)
	if err != nil {
		return fmt.Errorf("quote %s: %w", symbol, err)
	}
	if q.Price <= 0 {
		return fmt.Errorf("quote %s: %w: price %v", symbol, domain.ErrMalformedData, q.Price)
	}

	p.store.ApplyTick(domain.Tick{
		Symbol: symbol,
		Price:  q.Price,
		Size:   0,
		Time:   p.now(),
	})
	if q.Depth != nil {
		p.store.UpdateDepth(symbol, q.Depth.Bids, q.Depth.Asks)
	}
	return nil
}

// RefreshAccount replaces the whole account snapshot.
func (p *Poller) RefreshAccount(ctx context.Context) error {
	a, err := p.fetcher.GetAccount(ctx)
	if err != nil {
		return fmt.Errorf("account: %w", err)
	}
	p.store.UpdateAccount(domain.FullAccountUpdate(a))
	return nil
}

// RefreshPositions replaces the position list.
func (p *Poller) RefreshPositions(ctx context.Context) error {
	list, err := p.fetcher.GetPositions(ctx)
	if err != nil {
		return fmt.Errorf("positions: %w", err)
	}
	p.store.SetPositions(list)
	return nil
}

// RefreshTrades replaces the trade list, keeping the server's order.
func (p *Poller) RefreshTrades(ctx context.Context) error {
	list, err := p.fetcher.GetTrades(ctx)
	if err != nil {
		return fmt.Errorf("trades: %w", err)
	}
	p.store.SetTrades(list)
	return nil
}

// RefreshOrders replaces the pending order list.
func (p *Poller) RefreshOrders(ctx context.Context) error {
	list, err := p.fetcher.GetOrders(ctx)
	if err != nil {
		return fmt.Errorf("orders: %w", err)
	}
	p.store.SetOrders(list)
	return nil
}

// RefreshBars replaces symbol's bar history.
func (p *Poller) RefreshBars(ctx context.Context, symbol string) error {
	bars, err := p.fetcher.GetBars(ctx, symbol, p.cfg.BarCount, p.cfg.BarTimeframe)
	if err != nil {
		return fmt.Errorf("bars %s: %w", symbol, err)
	}
	p.store.ReplaceBars(symbol, bars)
	return nil
}
