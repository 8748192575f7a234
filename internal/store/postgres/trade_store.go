package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

// TradeStore implements domain.TradeJournal.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, symbol, side, qty, entry_price, exit_price, pnl,
	entry_time, exit_time, exit_type`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var (
			t     domain.Trade
			side  string
			entry *time.Time
		)
		if err := rows.Scan(
			&t.ID, &t.Symbol, &side, &t.Qty, &t.EntryPrice, &t.ExitPrice, &t.PnL,
			&entry, &t.ExitTime, &t.ExitType,
		); err != nil {
			return nil, err
		}
		t.Side = domain.PositionSide(side)
		if entry != nil {
			t.EntryTime = entry.UTC()
		}
		t.ExitTime = t.ExitTime.UTC()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// InsertBatch journals trades in one batch. Trades are immutable upstream,
// so a repeated id is skipped.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	const query = `
		INSERT INTO trades (
			id, symbol, side, qty, entry_price, exit_price, pnl,
			entry_time, exit_time, exit_type
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(query,
			t.ID, t.Symbol, string(t.Side), t.Qty, t.EntryPrice, t.ExitPrice, t.PnL,
			nullableTime(t.EntryTime), t.ExitTime, t.ExitType,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade batch item %d: %w", i, err)
		}
	}
	return nil
}

// List returns journaled trades, newest exit first.
func (s *TradeStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Trade, error) {
	var q listQuery
	q.sql.WriteString(`SELECT ` + tradeSelectCols + ` FROM trades WHERE 1=1`)
	q.timeRange("exit_time", opts)
	q.sql.WriteString(" ORDER BY exit_time DESC, id DESC")
	q.page(opts)

	rows, err := s.pool.Query(ctx, q.sql.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}

// ListBefore returns every trade that exited strictly before the cutoff, oldest first.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades WHERE exit_time < $1 ORDER BY exit_time, id`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before %v: %w", before, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades before: %w", err)
	}
	return trades, nil
}

// listQuery accumulates a SELECT with positional arguments.
type listQuery struct {
	sql  strings.Builder
	args []any
}

func (q *listQuery) arg(v any) string {
	q.args = append(q.args, v)
	return fmt.Sprintf("$%d", len(q.args))
}

func (q *listQuery) timeRange(col string, opts domain.ListOpts) {
	if opts.Since != nil {
		q.sql.WriteString(" AND " + col + " >= " + q.arg(*opts.Since))
	}
	if opts.Until != nil {
		q.sql.WriteString(" AND " + col + " <= " + q.arg(*opts.Until))
	}
}

func (q *listQuery) page(opts domain.ListOpts) {
	if opts.Limit > 0 {
		q.sql.WriteString(" LIMIT " + q.arg(opts.Limit))
	}
	if opts.Offset > 0 {
		q.sql.WriteString(" OFFSET " + q.arg(opts.Offset))
	}
}

var _ domain.TradeJournal = (*TradeStore)(nil)
