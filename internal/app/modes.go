package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/quadscalp/internal/domain"
	"github.com/alanyoungcy/quadscalp/internal/feed"
	"github.com/alanyoungcy/quadscalp/internal/platform/quadscalp"
	"github.com/alanyoungcy/quadscalp/internal/server"
	"github.com/alanyoungcy/quadscalp/internal/server/handler"
	"github.com/alanyoungcy/quadscalp/internal/server/ws"
	"github.com/alanyoungcy/quadscalp/internal/service"
)

// archiveLockTTL bounds how long one archive run may hold the shared lock.
const archiveLockTTL = 15 * time.Minute

// StreamMode keeps the store in sync from the push channel and the pull API
// together: the push feed applies events as they arrive while the poller's
// fast and slow cycles reconcile quotes, account, positions, trades, orders
// and the active symbol's bars. The push feed owns the connected flag.
func (a *App) StreamMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting stream mode", slog.String("push_url", deps.PushURL))

	g, ctx := errgroup.WithContext(ctx)

	poller := a.newPoller(deps, false)
	mirror := a.startServices(ctx, g, deps)

	if a.cfg.Sync.Backfill {
		a.backfill(ctx, poller)
	}

	opts := []feed.PushOption{
		feed.WithWSOptions(
			quadscalp.WithReconnectDelay(a.cfg.Sync.ReconnectDelay.Duration),
			quadscalp.WithPingInterval(a.cfg.Sync.PingInterval.Duration),
		),
	}
	if deps.Notifier != nil {
		opts = append(opts, feed.WithAlerter(deps.Notifier))
	}
	if mirror != nil {
		opts = append(opts, feed.WithFillHook(mirror.RecordFill))
	}
	push := feed.NewPushFeed(deps.PushURL, deps.Store, poller, a.logger, opts...)

	g.Go(func() error {
		return push.Run(ctx)
	})
	g.Go(func() error {
		return poller.Run(ctx)
	})

	return g.Wait()
}

// PollMode keeps the store in sync from the pull API alone. The poller owns
// the connected flag.
func (a *App) PollMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting poll mode",
		slog.Duration("fast_interval", a.cfg.Sync.FastInterval.Duration),
		slog.Duration("slow_interval", a.cfg.Sync.SlowInterval.Duration),
	)

	g, ctx := errgroup.WithContext(ctx)

	poller := a.newPoller(deps, true)
	a.startServices(ctx, g, deps)

	g.Go(func() error {
		return poller.Run(ctx)
	})

	return g.Wait()
}

func (a *App) newPoller(deps *Dependencies, ownsConnection bool) *feed.Poller {
	return feed.NewPoller(deps.Upstream, deps.Store, feed.PollerConfig{
		Symbols:        a.cfg.Sync.Symbols,
		FastInterval:   a.cfg.Sync.FastInterval.Duration,
		SlowInterval:   a.cfg.Sync.SlowInterval.Duration,
		BarCount:       a.cfg.Sync.BarCount,
		BarTimeframe:   a.cfg.Sync.BarTimeframe,
		OwnsConnection: ownsConnection,
	}, a.logger)
}

// backfill runs one fast and one slow pull cycle so the store is populated
// before the first push frame. Failures are logged and the push feed starts
// regardless.
func (a *App) backfill(ctx context.Context, poller *feed.Poller) {
	start := time.Now()
	err := errors.Join(poller.FastCycle(ctx), poller.SlowCycle(ctx))
	if err != nil {
		a.logger.WarnContext(ctx, "backfill incomplete", slog.String("error", err.Error()))
		return
	}
	a.logger.InfoContext(ctx, "backfill complete", slog.Duration("took", time.Since(start)))
}

// probeUpstream logs the backend's health once at startup. A failed probe is
// not fatal; the feeds keep retrying on their own.
func (a *App) probeUpstream(ctx context.Context, deps *Dependencies) {
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	hs, err := deps.Upstream.Health(pctx)
	if err != nil {
		a.logger.WarnContext(ctx, "upstream health probe failed",
			slog.String("base_url", deps.Upstream.BaseURL()),
			slog.String("error", err.Error()),
		)
		return
	}
	deps.Store.SetDemoMode(hs.DemoMode)
	a.logger.InfoContext(ctx, "upstream healthy",
		slog.String("status", hs.Status),
		slog.Bool("demo_mode", hs.DemoMode),
		slog.String("version", hs.Version),
	)
}

// startServices launches everything both modes share: the journal, the
// Redis mirror, the archiver and the view server. It must run before the
// store receives data so every listener sees the first events. The returned
// mirror is nil without Redis.
func (a *App) startServices(ctx context.Context, g *errgroup.Group, deps *Dependencies) *service.MirrorService {
	if deps.TradeJournal != nil {
		journal := service.NewJournalService(deps.Store, deps.TradeJournal, deps.BarStore, a.logger)
		g.Go(func() error {
			return journal.Run(ctx)
		})
	}

	var mirror *service.MirrorService
	if deps.PriceCache != nil && deps.SignalBus != nil {
		mirror = service.NewMirrorService(deps.Store, deps.PriceCache, deps.SignalBus, a.logger)
		g.Go(func() error {
			return mirror.Run(ctx)
		})
	}

	if deps.Archiver != nil {
		archive := service.NewArchiveService(deps.Archiver, a.cfg.S3.ArchiveAfter.Duration, a.logger)
		if deps.LockManager != nil {
			archive.WithLock(deps.LockManager, archiveLockTTL)
		}
		g.Go(func() error {
			return archive.RunLoop(ctx, a.cfg.S3.ArchiveInterval.Duration)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, mirror)
	}
	return mirror
}

// startHTTPServer adds the hub and the view server to g. Store events reach
// the hub over the Redis bus when it is configured and directly from the
// store otherwise.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, mirror *service.MirrorService) {
	store := deps.Store

	hub := ws.NewHub(ws.Config{
		Bus:      deps.SignalBus,
		Snapshot: func() any { return store.Snapshot() },
	}, a.logger)
	if deps.SignalBus == nil {
		store.Subscribe(func(ev domain.StateEvent) {
			data, err := store.EncodeMessage(ev)
			if err != nil {
				a.logger.Warn("encode store event failed", slog.String("error", err.Error()))
				return
			}
			hub.Broadcast(ev.Channel(), data)
		})
	}
	// The renderer must read the symbol from the store: the adapter holds its
	// own lock while rendering.
	feed.NewChartFeed(store, feed.NewBroadcastRenderer(hub, store.ActiveSymbol, a.logger))

	orders := service.NewOrderService(deps.Upstream, a.logger).
		WithRateLimiter(deps.RateLimiter, service.OrderLimit{
			Max:    a.cfg.Orders.RateLimit,
			Window: a.cfg.Orders.RateWindow.Duration,
		}).
		WithAudit(deps.OrderAudit).
		WithBus(deps.SignalBus)
	if deps.Notifier != nil {
		orders.WithAlerter(deps.Notifier)
	}

	var fills handler.FillReader
	if mirror != nil {
		fills = mirror
	}

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(store, deps.Upstream, a.logger),
		State:  handler.NewStateHandler(store, a.cfg.Sync.Symbols, a.logger),
		Orders: handler.NewOrderHandler(orders, a.logger),
		Journal: handler.NewJournalHandler(
			deps.TradeJournal, deps.BarStore, deps.OrderAudit, fills,
			a.cfg.Sync.BarTimeframe, a.logger,
		),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		Limiter:     deps.RateLimiter,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	a.logger.InfoContext(ctx, "HTTP server configured",
		slog.Int("port", a.cfg.Server.Port),
		slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
	)
}
