package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

// BarStore implements domain.BarStore. A bar is identified by its symbol,
// timeframe and bucket start; later writes of the same bucket win.
type BarStore struct {
	pool *pgxpool.Pool
}

// NewBarStore creates a BarStore backed by pool.
func NewBarStore(pool *pgxpool.Pool) *BarStore {
	return &BarStore{pool: pool}
}

const barSelectCols = `symbol, timeframe, start, open, high, low, close, volume`

func scanBarRows(rows pgx.Rows) ([]domain.Bar, error) {
	var bars []domain.Bar
	for rows.Next() {
		var b domain.Bar
		if err := rows.Scan(
			&b.Symbol, &b.Timeframe, &b.Start, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume,
		); err != nil {
			return nil, err
		}
		b.Start = b.Start.UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// UpsertBatch writes bars in one batch.
func (s *BarStore) UpsertBatch(ctx context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	const query = `
		INSERT INTO bars (symbol, timeframe, start, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, timeframe, start) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume`

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(query, b.Symbol, b.Timeframe, b.Start, b.Open, b.High, b.Low, b.Close, b.Volume)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range bars {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert bar batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListRange returns bars for one symbol and timeframe in ascending time order.
func (s *BarStore) ListRange(ctx context.Context, symbol, timeframe string, opts domain.ListOpts) ([]domain.Bar, error) {
	var q listQuery
	q.sql.WriteString(`SELECT ` + barSelectCols + ` FROM bars WHERE symbol = ` + q.arg(symbol))
	q.sql.WriteString(` AND timeframe = ` + q.arg(timeframe))
	q.timeRange("start", opts)
	q.sql.WriteString(" ORDER BY start")
	q.page(opts)

	rows, err := s.pool.Query(ctx, q.sql.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bars %s/%s: %w", symbol, timeframe, err)
	}
	defer rows.Close()

	bars, err := scanBarRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan bars: %w", err)
	}
	return bars, nil
}

// ListBefore returns every bar that started strictly before the cutoff.
func (s *BarStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Bar, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+barSelectCols+` FROM bars WHERE start < $1 ORDER BY symbol, timeframe, start`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bars before %v: %w", before, err)
	}
	defer rows.Close()

	bars, err := scanBarRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan bars before: %w", err)
	}
	return bars, nil
}

var _ domain.BarStore = (*BarStore)(nil)
