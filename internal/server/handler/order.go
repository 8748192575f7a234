package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

// OrderService is what the order endpoints need from the service layer.
type OrderService interface {
	Submit(ctx context.Context, in domain.OrderIntent) (domain.OrderRecord, error)
	Cancel(ctx context.Context, id int64) error
	Flatten(ctx context.Context) (domain.FlattenResult, error)
}

// OrderHandler forwards operator order actions to the backend. Results are
// returned to the caller only; the store learns about them from the feed.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logHandler(logger, "order")}
}

type placeOrderRequest struct {
	Symbol    string   `json:"symbol"`
	Side      string   `json:"side"`
	Qty       int64    `json:"qty"`
	OrderType string   `json:"order_type"`
	Price     *float64 `json:"price,omitempty"`
}

func (req placeOrderRequest) intent() (domain.OrderIntent, error) {
	typ := domain.OrderTypeMarket
	if req.OrderType != "" {
		var err error
		if typ, err = domain.ParseOrderType(req.OrderType); err != nil {
			return domain.OrderIntent{}, err
		}
	}
	return domain.OrderIntent{
		Symbol: strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Side:   domain.OrderSide(strings.ToUpper(strings.TrimSpace(req.Side))),
		Qty:    req.Qty,
		Type:   typ,
		Price:  req.Price,
	}, nil
}

// PlaceOrder submits one order. order_type defaults to MARKET.
// POST /api/orders {"symbol":"ES","side":"BUY","qty":1,"order_type":"LMT","price":5000.25}
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	in, err := req.intent()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.orders.Submit(r.Context(), in)
	if err != nil {
		h.fail(w, r, "place order", err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

// FlattenAll closes every open position.
// POST /api/orders/flatten
func (h *OrderHandler) FlattenAll(w http.ResponseWriter, r *http.Request) {
	res, err := h.orders.Flatten(r.Context())
	if err != nil {
		h.fail(w, r, "flatten", err)
		return
	}
	if res.Trades == nil {
		res.Trades = []domain.Trade{}
	}
	writeJSON(w, http.StatusOK, res)
}

// CancelOrder cancels a pending order by its upstream id.
// DELETE /api/orders/{id}
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "order id must be a positive integer")
		return
	}

	if err := h.orders.Cancel(r.Context(), id); err != nil {
		h.fail(w, r, "cancel order", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": domain.OrderStatusCancelled})
}

func (h *OrderHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), op+" failed", slog.String("error", err.Error()))
	}
	writeError(w, status, err.Error())
}
