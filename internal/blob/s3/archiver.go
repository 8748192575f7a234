package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// multipartThreshold switches uploads to the multipart manager.
const multipartThreshold = 16 * 1024 * 1024

// TradeSource lists journaled trades for archival.
type TradeSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error)
}

// BarSource lists journaled bars for archival.
type BarSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.Bar, error)
}

// Archiver implements domain.Archiver. Rows are grouped by the calendar
// month (UTC) they belong to and each month is written to
// archive/{kind}/YYYY-MM.jsonl. Months that ended before the cutoff month
// are complete and skipped once their object exists; the cutoff month is
// rewritten on every run as it fills up. Journal rows are never deleted here.
type Archiver struct {
	writer domain.BlobWriter
	trades TradeSource
	bars   BarSource
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, trades TradeSource, bars BarSource) *Archiver {
	return &Archiver{writer: writer, trades: trades, bars: bars}
}

// ArchiveTrades exports trades that exited before the cutoff and returns how
// many rows were uploaded.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	months := groupByMonth(trades, func(t domain.Trade) time.Time { return t.ExitTime })
	n, err := writeMonths(ctx, a.writer, "trades", before, months)
	if err != nil {
		return n, fmt.Errorf("s3blob: archive trades: %w", err)
	}
	return n, nil
}

// ArchiveBars exports bars that started before the cutoff and returns how
// many rows were uploaded.
func (a *Archiver) ArchiveBars(ctx context.Context, before time.Time) (int64, error) {
	bars, err := a.bars.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive bars query: %w", err)
	}
	months := groupByMonth(bars, func(b domain.Bar) time.Time { return b.Start })
	n, err := writeMonths(ctx, a.writer, "bars", before, months)
	if err != nil {
		return n, fmt.Errorf("s3blob: archive bars: %w", err)
	}
	return n, nil
}

func groupByMonth[T any](records []T, at func(T) time.Time) map[string][]T {
	out := make(map[string][]T)
	for _, r := range records {
		key := at(r).UTC().Format("2006-01")
		out[key] = append(out[key], r)
	}
	return out
}

func writeMonths[T any](ctx context.Context, w domain.BlobWriter, kind string, before time.Time, months map[string][]T) (int64, error) {
	keys := make([]string, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	current := before.UTC().Format("2006-01")
	var total int64
	for _, month := range keys {
		path := archivePath(kind, month)
		if month < current {
			exists, err := w.Exists(ctx, path)
			if err != nil {
				return total, err
			}
			if exists {
				continue
			}
		}

		records := months[month]
		buf, err := marshalJSONL(records)
		if err != nil {
			return total, fmt.Errorf("marshal %s: %w", path, err)
		}
		if err := upload(ctx, w, path, buf); err != nil {
			return total, err
		}
		total += int64(len(records))
	}
	return total, nil
}

func upload(ctx context.Context, w domain.BlobWriter, path string, buf []byte) error {
	if len(buf) >= multipartThreshold {
		return w.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	}
	return w.Put(ctx, path, bytes.NewReader(buf), jsonlContentType)
}

// archivePath builds the object key for one month of one kind:
//
//	archive/trades/2026-01.jsonl
//	archive/bars/2026-01.jsonl
func archivePath(kind, month string) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, month)
}

// marshalJSONL writes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.Archiver = (*Archiver)(nil)
