package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TradeJournal persists closed trades received from the upstream.
type TradeJournal interface {
	InsertBatch(ctx context.Context, trades []Trade) error
	List(ctx context.Context, opts ListOpts) ([]Trade, error)
	ListBefore(ctx context.Context, before time.Time) ([]Trade, error)
}

// BarStore persists bar history.
type BarStore interface {
	UpsertBatch(ctx context.Context, bars []Bar) error
	ListRange(ctx context.Context, symbol, timeframe string, opts ListOpts) ([]Bar, error)
	ListBefore(ctx context.Context, before time.Time) ([]Bar, error)
}

// OrderAudit is an append-only log of outbound order actions.
type OrderAudit interface {
	Record(ctx context.Context, entry OrderAuditEntry) error
	List(ctx context.Context, opts ListOpts) ([]OrderAuditEntry, error)
}
