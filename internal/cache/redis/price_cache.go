package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

// PriceCache implements domain.PriceCache with one hash per symbol at
// "price:{symbol}" holding price, size, change, change_pct and ts (Unix nanos).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(symbol string) string {
	return "price:" + symbol
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SetTick stores the latest tick for its symbol.
func (pc *PriceCache) SetTick(ctx context.Context, tick domain.Tick) error {
	fields := map[string]interface{}{
		"price":      formatFloat(tick.Price),
		"size":       strconv.FormatInt(tick.Size, 10),
		"change":     formatFloat(tick.Change),
		"change_pct": formatFloat(tick.ChangePct),
		"ts":         strconv.FormatInt(tick.Time.UnixNano(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(tick.Symbol), fields).Err(); err != nil {
		return fmt.Errorf("redis: set tick %s: %w", tick.Symbol, err)
	}
	return nil
}

// GetTick returns the cached tick for symbol, or domain.ErrNotFound.
func (pc *PriceCache) GetTick(ctx context.Context, symbol string) (domain.Tick, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(symbol)).Result()
	if err != nil {
		return domain.Tick{}, fmt.Errorf("redis: get tick %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return domain.Tick{}, domain.ErrNotFound
	}
	return parseTick(symbol, vals)
}

func parseTick(symbol string, vals map[string]string) (domain.Tick, error) {
	t := domain.Tick{Symbol: symbol}

	priceStr, ok := vals["price"]
	if !ok {
		return domain.Tick{}, domain.ErrNotFound
	}
	var err error
	if t.Price, err = strconv.ParseFloat(priceStr, 64); err != nil {
		return domain.Tick{}, fmt.Errorf("redis: parse price %s: %w", symbol, err)
	}

	// The remaining fields are informational; a bad value leaves the zero value.
	if v, ok := vals["size"]; ok {
		t.Size, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := vals["change"]; ok {
		t.Change, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := vals["change_pct"]; ok {
		t.ChangePct, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := vals["ts"]; ok {
		if ns, err := strconv.ParseInt(v, 10, 64); err == nil {
			t.Time = time.Unix(0, ns).UTC()
		}
	}
	return t, nil
}

// GetPrices retrieves the latest prices for several symbols in one pipeline.
// Symbols without a cached tick are omitted from the result.
func (pc *PriceCache) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(symbols))
	for _, sym := range symbols {
		cmds[sym] = pipe.HGet(ctx, priceKey(sym), "price")
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices pipeline: %w", err)
	}

	result := make(map[string]float64, len(symbols))
	for sym, cmd := range cmds {
		price, err := cmd.Float64()
		if err != nil {
			continue
		}
		result[sym] = price
	}
	return result, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
