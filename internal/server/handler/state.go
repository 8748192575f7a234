package handler

import (
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/alanyoungcy/quadscalp/internal/analytics"
	"github.com/alanyoungcy/quadscalp/internal/chart"
	"github.com/alanyoungcy/quadscalp/internal/domain"
	"github.com/alanyoungcy/quadscalp/internal/state"
)

// StateHandler exposes read projections of the store.
type StateHandler struct {
	store   *state.Store
	symbols []string
	logger  *slog.Logger
}

// NewStateHandler creates a StateHandler. symbols restricts which symbols may
// be made active; empty allows any.
func NewStateHandler(store *state.Store, symbols []string, logger *slog.Logger) *StateHandler {
	return &StateHandler{store: store, symbols: symbols, logger: logHandler(logger, "state")}
}

// GET /api/state
func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Snapshot())
}

// GET /api/ticks
func (h *StateHandler) ListTicks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Ticks())
}

// GET /api/bars/{symbol}
func (h *StateHandler) ListBars(w http.ResponseWriter, r *http.Request) {
	bars := h.store.Bars(symbolParam(r))
	if bars == nil {
		bars = []domain.Bar{}
	}
	writeJSON(w, http.StatusOK, bars)
}

// GET /api/depth/{symbol}
func (h *StateHandler) GetDepth(w http.ResponseWriter, r *http.Request) {
	sym := symbolParam(r)
	d, ok := h.store.Depth(sym)
	if !ok {
		writeError(w, http.StatusNotFound, "no depth for "+sym)
		return
	}

	resp := struct {
		domain.Depth
		Spread *float64 `json:"spread,omitempty"`
		Mid    *float64 `json:"mid,omitempty"`
	}{Depth: d}
	if s, ok := analytics.Spread(d); ok {
		resp.Spread = &s
	}
	if m, ok := analytics.MidPrice(d); ok {
		resp.Mid = &m
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/positions
func (h *StateHandler) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.store.Positions()
	writeJSON(w, http.StatusOK, map[string]any{
		"positions":        nonNil(positions),
		"total_unrealized": analytics.TotalUnrealized(positions),
	})
}

// GET /api/trades
func (h *StateHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(h.store.Trades()))
}

// GET /api/orders
func (h *StateHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, nonNil(h.store.Orders()))
}

// GET /api/stats
func (h *StateHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, analytics.Summarize(h.store.Snapshot()))
}

// GetChart returns the symbol's bars as renderer candles.
// GET /api/chart/{symbol}
func (h *StateHandler) GetChart(w http.ResponseWriter, r *http.Request) {
	bars := h.store.Bars(symbolParam(r))
	candles := make([]chart.Candle, len(bars))
	for i, b := range bars {
		candles[i] = chart.CandleFromBar(b)
	}
	writeJSON(w, http.StatusOK, candles)
}

type activeSymbolRequest struct {
	Symbol string `json:"symbol"`
}

// SetActiveSymbol switches the symbol the chart follows.
// POST /api/active-symbol {"symbol":"NQ"}
func (h *StateHandler) SetActiveSymbol(w http.ResponseWriter, r *http.Request) {
	var req activeSymbolRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	sym := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if sym == "" {
		writeError(w, http.StatusBadRequest, "symbol is required")
		return
	}
	if len(h.symbols) > 0 && !slices.Contains(h.symbols, sym) {
		writeError(w, http.StatusBadRequest, "unknown symbol "+sym)
		return
	}

	h.store.SetActiveSymbol(sym)
	h.logger.InfoContext(r.Context(), "active symbol changed", slog.String("symbol", sym))
	writeJSON(w, http.StatusOK, activeSymbolRequest{Symbol: sym})
}

func symbolParam(r *http.Request) string {
	return strings.ToUpper(r.PathValue("symbol"))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
