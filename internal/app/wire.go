package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/alanyoungcy/quadscalp/internal/blob/s3"
	"github.com/alanyoungcy/quadscalp/internal/cache/redis"
	"github.com/alanyoungcy/quadscalp/internal/config"
	"github.com/alanyoungcy/quadscalp/internal/domain"
	"github.com/alanyoungcy/quadscalp/internal/notify"
	"github.com/alanyoungcy/quadscalp/internal/platform/quadscalp"
	"github.com/alanyoungcy/quadscalp/internal/state"
	"github.com/alanyoungcy/quadscalp/internal/store/postgres"
)

// Dependencies bundles everything the run modes need. Infrastructure fields
// are nil when their section is disabled.
type Dependencies struct {
	Store    *state.Store
	Upstream *quadscalp.Client
	PushURL  string

	// Postgres
	TradeJournal domain.TradeJournal
	BarStore     domain.BarStore
	OrderAudit   domain.OrderAudit

	// Redis
	PriceCache  domain.PriceCache
	SignalBus   domain.SignalBus
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager

	// S3
	Archiver domain.Archiver

	Notifier *notify.Notifier
}

// Wire builds every dependency the configuration enables and returns a
// cleanup func releasing them in reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	pushURL := cfg.Upstream.WSURL
	if pushURL == "" {
		var err error
		if pushURL, err = quadscalp.PushURL(cfg.Upstream.BaseURL, "/ws"); err != nil {
			return nil, nil, fmt.Errorf("wire: push url: %w", err)
		}
	}

	deps := &Dependencies{
		Store: state.New(
			state.WithBarRetention(cfg.Sync.BarRetention),
			state.WithActiveSymbol(cfg.Sync.ActiveSymbol),
		),
		Upstream: quadscalp.NewClient(cfg.Upstream.BaseURL,
			quadscalp.WithTimeout(cfg.Upstream.Timeout.Duration),
			quadscalp.WithAPIKey(cfg.Upstream.APIKey),
		),
		PushURL: pushURL,
	}

	// --- PostgreSQL ---
	var trades *postgres.TradeStore
	var bars *postgres.BarStore
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		trades = postgres.NewTradeStore(pool)
		bars = postgres.NewBarStore(pool)
		deps.TradeJournal = trades
		deps.BarStore = bars
		deps.OrderAudit = postgres.NewOrderAuditStore(pool)
		logger.Info("postgres journal enabled")
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		logger.Info("redis mirror enabled", slog.String("addr", cfg.Redis.Addr))
	}

	// --- S3 archive (validated to require Postgres) ---
	if cfg.S3.Enabled && trades != nil && bars != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), trades, bars)
		logger.Info("s3 archive enabled", slog.String("bucket", cfg.S3.Bucket))
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger).
			WithCooldown(cfg.Notify.Cooldown.Duration)
	}

	return deps, cleanup, nil
}
