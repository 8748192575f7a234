// Package config defines the quadscalp configuration and its validation.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Modes select how the store is kept in sync with the backend.
const (
	ModeStream = "stream"
	ModePoll   = "poll"
)

// Config is the root configuration. Fields come from a TOML file and may be
// overridden by QUADSCALP_* environment variables.
type Config struct {
	Upstream UpstreamConfig `toml:"upstream"`
	Sync     SyncConfig     `toml:"sync"`
	Orders   OrdersConfig   `toml:"orders"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// UpstreamConfig locates the trading backend.
type UpstreamConfig struct {
	BaseURL string `toml:"base_url"`
	// WSURL overrides the push endpoint derived from BaseURL.
	WSURL   string   `toml:"ws_url"`
	APIKey  string   `toml:"api_key"`
	Timeout duration `toml:"timeout"`
}

// SyncConfig tunes the push feed and the poller.
type SyncConfig struct {
	Symbols        []string `toml:"symbols"`
	ActiveSymbol   string   `toml:"active_symbol"`
	FastInterval   duration `toml:"fast_interval"`
	SlowInterval   duration `toml:"slow_interval"`
	BarCount       int      `toml:"bar_count"`
	BarTimeframe   string   `toml:"bar_timeframe"`
	BarRetention   int      `toml:"bar_retention"`
	ReconnectDelay duration `toml:"reconnect_delay"`
	PingInterval   duration `toml:"ping_interval"`
	// Backfill runs one pull cycle in stream mode before the push feed starts.
	Backfill bool `toml:"backfill"`
}

// OrdersConfig bounds outbound order traffic. It only takes effect with Redis.
type OrdersConfig struct {
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled"`
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds journal database parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds archive bucket parameters.
type S3Config struct {
	Enabled         bool     `toml:"enabled"`
	Endpoint        string   `toml:"endpoint"`
	Region          string   `toml:"region"`
	Bucket          string   `toml:"bucket"`
	AccessKey       string   `toml:"access_key"`
	SecretKey       string   `toml:"secret_key"`
	UseSSL          bool     `toml:"use_ssl"`
	ForcePathStyle  bool     `toml:"force_path_style"`
	ArchiveInterval duration `toml:"archive_interval"`
	ArchiveAfter    duration `toml:"archive_after"`
}

// ServerConfig holds the local view server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit caps requests per client IP per RateWindow. It needs Redis;
	// 0 disables it.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	Cooldown          duration `toml:"cooldown"`
}

// duration lets TOML carry values like "2s" or "720h".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config with every field set to its default.
func Defaults() Config {
	return Config{
		Upstream: UpstreamConfig{
			BaseURL: "http://localhost:8000",
			Timeout: duration{30 * time.Second},
		},
		Sync: SyncConfig{
			Symbols:        []string{"ES", "NQ", "CL"},
			ActiveSymbol:   "ES",
			FastInterval:   duration{2 * time.Second},
			SlowInterval:   duration{5 * time.Second},
			BarCount:       500,
			BarTimeframe:   "5s",
			BarRetention:   2000,
			ReconnectDelay: duration{3 * time.Second},
			PingInterval:   duration{30 * time.Second},
		},
		Orders: OrdersConfig{
			RateLimit:  10,
			RateWindow: duration{time.Second},
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "quadscalp",
			User:          "quadscalp",
			SSLMode:       "disable",
			PoolMaxConns:  5,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		S3: S3Config{
			Region:          "us-east-1",
			ForcePathStyle:  true,
			ArchiveInterval: duration{24 * time.Hour},
			ArchiveAfter:    duration{30 * 24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8090,
			CORSOrigins: []string{"http://localhost:3000"},
			RateLimit:   100,
			RateWindow:  duration{time.Second},
		},
		Notify: NotifyConfig{
			Events:   []string{"fill", "disconnected", "order_rejected", "flatten"},
			Cooldown: duration{time.Minute},
		},
		Mode:     ModeStream,
		LogLevel: "info",
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	switch c.Mode {
	case ModeStream, ModePoll:
	default:
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: stream, poll)", c.Mode))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if u, err := url.Parse(c.Upstream.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("upstream: base_url must be an http(s) URL, got %q", c.Upstream.BaseURL))
	}
	if c.Upstream.WSURL != "" {
		if u, err := url.Parse(c.Upstream.WSURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
			errs = append(errs, fmt.Sprintf("upstream: ws_url must be a ws(s) URL, got %q", c.Upstream.WSURL))
		}
	}
	if c.Upstream.Timeout.Duration <= 0 {
		errs = append(errs, "upstream: timeout must be > 0")
	}

	if len(c.Sync.Symbols) == 0 {
		errs = append(errs, "sync: symbols must not be empty")
	}
	if c.Sync.ActiveSymbol == "" {
		errs = append(errs, "sync: active_symbol must not be empty")
	}
	if c.Sync.FastInterval.Duration <= 0 || c.Sync.SlowInterval.Duration <= 0 {
		errs = append(errs, "sync: fast_interval and slow_interval must be > 0")
	}
	if c.Sync.BarCount < 1 {
		errs = append(errs, "sync: bar_count must be >= 1")
	}
	if c.Sync.BarTimeframe == "" {
		errs = append(errs, "sync: bar_timeframe must not be empty")
	}
	if c.Sync.BarRetention < 1 {
		errs = append(errs, "sync: bar_retention must be >= 1")
	}
	if c.Sync.ReconnectDelay.Duration <= 0 {
		errs = append(errs, "sync: reconnect_delay must be > 0")
	}

	if c.Orders.RateLimit < 0 || c.Orders.RateWindow.Duration < 0 {
		errs = append(errs, "orders: rate_limit and rate_window must not be negative")
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.Postgres.Enabled && strings.TrimSpace(c.Postgres.DSN) == "" {
		if c.Postgres.Host == "" {
			errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
		}
		if c.Postgres.Port < 1 || c.Postgres.Port > 65535 {
			errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
		}
		if c.Postgres.Database == "" {
			errs = append(errs, "postgres: database must not be empty")
		}
	}
	if c.Postgres.Enabled && c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
		errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
	}

	if c.S3.Enabled {
		if !c.Postgres.Enabled {
			errs = append(errs, "s3: archiving requires postgres.enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.S3.ArchiveInterval.Duration <= 0 || c.S3.ArchiveAfter.Duration <= 0 {
			errs = append(errs, "s3: archive_interval and archive_after must be > 0")
		}
	}

	if c.Server.Enabled && (c.Server.Port < 1 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.RateLimit < 0 || (c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0) {
		errs = append(errs, "server: rate_limit must not be negative and needs a positive rate_window")
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
