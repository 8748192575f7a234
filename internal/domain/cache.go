package domain

import (
	"context"
	"time"
)

// PriceCache mirrors the latest price per symbol for out-of-process readers.
type PriceCache interface {
	SetTick(ctx context.Context, tick Tick) error
	GetTick(ctx context.Context, symbol string) (Tick, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// StreamMessage is a single entry read from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// RateLimiter enforces request rate limits.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides short-lived distributed locks.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}
