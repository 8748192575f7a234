package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

// FillReader reads the durable fill stream.
type FillReader interface {
	RecentFills(ctx context.Context, lastID string, count int) ([]domain.StreamMessage, error)
}

// JournalHandler serves history kept outside the live store. Every source is
// optional; the server only routes to the ones that are configured.
type JournalHandler struct {
	trades    domain.TradeJournal
	bars      domain.BarStore
	audit     domain.OrderAudit
	fills     FillReader
	timeframe string
	logger    *slog.Logger
}

// NewJournalHandler creates a JournalHandler. timeframe is the default for
// bar queries without ?tf=.
func NewJournalHandler(trades domain.TradeJournal, bars domain.BarStore, audit domain.OrderAudit, fills FillReader, timeframe string, logger *slog.Logger) *JournalHandler {
	return &JournalHandler{
		trades:    trades,
		bars:      bars,
		audit:     audit,
		fills:     fills,
		timeframe: timeframe,
		logger:    logHandler(logger, "journal"),
	}
}

// HasStore reports whether the Postgres-backed endpoints can be served.
func (h *JournalHandler) HasStore() bool { return h.trades != nil && h.bars != nil && h.audit != nil }

// HasFills reports whether the fill stream endpoint can be served.
func (h *JournalHandler) HasFills() bool { return h.fills != nil }

// GET /api/journal/trades?limit=50&offset=0
func (h *JournalHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := h.trades.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.fail(w, r, "list journal trades", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(trades))
}

// GET /api/journal/bars/{symbol}?tf=5s&limit=500
func (h *JournalHandler) ListBars(w http.ResponseWriter, r *http.Request) {
	tf := r.URL.Query().Get("tf")
	if tf == "" {
		tf = h.timeframe
	}
	bars, err := h.bars.ListRange(r.Context(), symbolParam(r), tf, parseListOpts(r))
	if err != nil {
		h.fail(w, r, "list journal bars", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(bars))
}

type auditEntryResponse struct {
	ID        string   `json:"id"`
	Action    string   `json:"action"`
	Symbol    string   `json:"symbol,omitempty"`
	Side      string   `json:"side,omitempty"`
	Qty       int64    `json:"qty,omitempty"`
	OrderType string   `json:"order_type,omitempty"`
	Price     *float64 `json:"price,omitempty"`
	OrderID   *int64   `json:"order_id,omitempty"`
	Outcome   string   `json:"outcome"`
	Error     string   `json:"error,omitempty"`
	CreatedAt string   `json:"created_at"`
}

// GET /api/orders/audit?limit=50&offset=0
func (h *JournalHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		h.fail(w, r, "list order audit", err)
		return
	}
	out := make([]auditEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = auditEntryResponse{
			ID:        e.ID,
			Action:    e.Action,
			Symbol:    e.Symbol,
			Side:      string(e.Side),
			Qty:       e.Qty,
			OrderType: string(e.OrderType),
			Price:     e.Price,
			OrderID:   e.OrderID,
			Outcome:   e.Outcome,
			Error:     e.Error,
			CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		}
	}
	writeJSON(w, http.StatusOK, out)
}

type fillResponse struct {
	ID   string `json:"id"`
	Fill any    `json:"fill"`
}

// ListFills pages through the fill stream. Pass the last seen id as ?after=.
// GET /api/fills?after=0&count=100
func (h *JournalHandler) ListFills(w http.ResponseWriter, r *http.Request) {
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	count := 100
	if n, err := strconv.Atoi(r.URL.Query().Get("count")); err == nil && n > 0 {
		count = min(n, 1000)
	}

	msgs, err := h.fills.RecentFills(r.Context(), after, count)
	if err != nil {
		h.fail(w, r, "list fills", err)
		return
	}
	out := make([]fillResponse, len(msgs))
	for i, m := range msgs {
		out[i] = fillResponse{ID: m.ID, Fill: rawJSON(m.Payload)}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *JournalHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.ErrorContext(r.Context(), op+" failed", slog.String("error", err.Error()))
	writeError(w, statusFor(err), "failed to "+op)
}
