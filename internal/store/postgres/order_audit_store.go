package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

// OrderAuditStore implements domain.OrderAudit as an append-only table.
type OrderAuditStore struct {
	pool *pgxpool.Pool
}

// NewOrderAuditStore creates an OrderAuditStore backed by pool.
func NewOrderAuditStore(pool *pgxpool.Pool) *OrderAuditStore {
	return &OrderAuditStore{pool: pool}
}

// Record appends one entry.
func (s *OrderAuditStore) Record(ctx context.Context, e domain.OrderAuditEntry) error {
	const query = `
		INSERT INTO order_audit (
			id, action, symbol, side, qty, order_type, price, order_id, outcome, error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, query,
		e.ID, e.Action, e.Symbol, string(e.Side), e.Qty, string(e.OrderType),
		e.Price, e.OrderID, e.Outcome, e.Error, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: record order audit %s: %w", e.Action, err)
	}
	return nil
}

// List returns entries newest first.
func (s *OrderAuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.OrderAuditEntry, error) {
	var q listQuery
	q.sql.WriteString(`SELECT id, action, symbol, side, qty, order_type, price, order_id,
		outcome, error, created_at FROM order_audit WHERE 1=1`)
	q.timeRange("created_at", opts)
	q.sql.WriteString(" ORDER BY created_at DESC")
	q.page(opts)

	rows, err := s.pool.Query(ctx, q.sql.String(), q.args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list order audit: %w", err)
	}
	defer rows.Close()

	var entries []domain.OrderAuditEntry
	for rows.Next() {
		var (
			e         domain.OrderAuditEntry
			side, typ string
		)
		if err := rows.Scan(
			&e.ID, &e.Action, &e.Symbol, &side, &e.Qty, &typ, &e.Price, &e.OrderID,
			&e.Outcome, &e.Error, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan order audit: %w", err)
		}
		e.Side = domain.OrderSide(side)
		e.OrderType = domain.OrderType(typ)
		e.CreatedAt = e.CreatedAt.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list order audit rows: %w", err)
	}
	return entries, nil
}

var _ domain.OrderAudit = (*OrderAuditStore)(nil)
