package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

// OrderGateway submits orders to the backend. *quadscalp.Client satisfies it.
type OrderGateway interface {
	PlaceOrder(ctx context.Context, in domain.OrderIntent) (domain.OrderRecord, error)
	CancelOrder(ctx context.Context, id int64) error
	Flatten(ctx context.Context) (domain.FlattenResult, error)
}

// Alerter sends operator notifications. *notify.Notifier satisfies it.
type Alerter interface {
	Notify(ctx context.Context, event, title, message string) error
}

// OrderLimit is the outbound order rate limit.
type OrderLimit struct {
	Max    int
	Window time.Duration
}

// OrderService is the one-way egress for operator orders. It never reads
// or writes the state store; fills come back through the feeds.
type OrderService struct {
	gateway OrderGateway
	limiter domain.RateLimiter
	limit   OrderLimit
	audit   domain.OrderAudit
	bus     domain.SignalBus
	alerter Alerter
	now     func() time.Time
	logger  *slog.Logger
}

// NewOrderService creates an OrderService. Every optional collaborator is
// attached with the With* methods.
func NewOrderService(gateway OrderGateway, logger *slog.Logger) *OrderService {
	return &OrderService{
		gateway: gateway,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With(slog.String("component", "order_service")),
	}
}

// WithRateLimiter caps outbound actions at limit.Max per limit.Window.
func (s *OrderService) WithRateLimiter(l domain.RateLimiter, limit OrderLimit) *OrderService {
	if limit.Max > 0 && limit.Window > 0 {
		s.limiter = l
		s.limit = limit
	}
	return s
}

// WithAudit records every outbound action.
func (s *OrderService) WithAudit(a domain.OrderAudit) *OrderService {
	s.audit = a
	return s
}

// WithBus publishes accepted actions on ch:order.
func (s *OrderService) WithBus(b domain.SignalBus) *OrderService {
	s.bus = b
	return s
}

// WithAlerter notifies on rejected orders and flattens.
func (s *OrderService) WithAlerter(a Alerter) *OrderService {
	s.alerter = a
	return s
}

// Submit validates and sends one order. Invalid intents are rejected with
// domain.ErrInvalidOrder and never reach the backend.
func (s *OrderService) Submit(ctx context.Context, in domain.OrderIntent) (domain.OrderRecord, error) {
	entry := domain.OrderAuditEntry{
		Action:    "submit",
		Symbol:    in.Symbol,
		Side:      in.Side,
		Qty:       in.Qty,
		OrderType: in.Type,
		Price:     in.Price,
	}

	if err := in.Validate(); err != nil {
		s.record(ctx, entry, err)
		return domain.OrderRecord{}, fmt.Errorf("order_service: submit: %w", err)
	}
	if err := s.allow(ctx); err != nil {
		s.record(ctx, entry, err)
		return domain.OrderRecord{}, fmt.Errorf("order_service: submit: %w", err)
	}

	rec, err := s.gateway.PlaceOrder(ctx, in)
	if err != nil {
		s.record(ctx, entry, err)
		if errors.Is(err, domain.ErrInvalidOrder) {
			s.alert(ctx, "order_rejected", "Order rejected",
				fmt.Sprintf("%s %d %s %s: %v", in.Side, in.Qty, in.Symbol, in.Type, err))
		}
		return domain.OrderRecord{}, fmt.Errorf("order_service: submit: %w", err)
	}

	entry.OrderID = &rec.ID
	s.record(ctx, entry, nil)
	s.publish(ctx, "submit", rec)

	s.logger.InfoContext(ctx, "order submitted",
		slog.Int64("order_id", rec.ID),
		slog.String("symbol", rec.Symbol),
		slog.String("side", string(rec.Side)),
		slog.Int64("qty", rec.Qty),
		slog.String("type", rec.OrderType),
		slog.String("status", string(rec.Status)),
	)
	return rec, nil
}

// Cancel cancels a pending order.
func (s *OrderService) Cancel(ctx context.Context, id int64) error {
	entry := domain.OrderAuditEntry{Action: "cancel", OrderID: &id}

	if err := s.allow(ctx); err != nil {
		s.record(ctx, entry, err)
		return fmt.Errorf("order_service: cancel: %w", err)
	}
	if err := s.gateway.CancelOrder(ctx, id); err != nil {
		s.record(ctx, entry, err)
		return fmt.Errorf("order_service: cancel: %w", err)
	}

	s.record(ctx, entry, nil)
	s.publish(ctx, "cancel", map[string]int64{"id": id})
	s.logger.InfoContext(ctx, "order cancelled", slog.Int64("order_id", id))
	return nil
}

// Flatten closes every open position at market.
func (s *OrderService) Flatten(ctx context.Context) (domain.FlattenResult, error) {
	entry := domain.OrderAuditEntry{Action: "flatten"}

	if err := s.allow(ctx); err != nil {
		s.record(ctx, entry, err)
		return domain.FlattenResult{}, fmt.Errorf("order_service: flatten: %w", err)
	}
	res, err := s.gateway.Flatten(ctx)
	if err != nil {
		s.record(ctx, entry, err)
		return domain.FlattenResult{}, fmt.Errorf("order_service: flatten: %w", err)
	}

	s.record(ctx, entry, nil)
	s.publish(ctx, "flatten", res)
	s.alert(ctx, "flatten", "Flattened all positions",
		fmt.Sprintf("closed %d position(s)", res.Closed))
	s.logger.InfoContext(ctx, "flattened positions", slog.Int("closed", res.Closed))
	return res, nil
}

func (s *OrderService) allow(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, "orders:operator", s.limit.Max, s.limit.Window)
	if err != nil {
		// Fail open.
		s.logger.WarnContext(ctx, "rate limiter unavailable", slog.String("error", err.Error()))
		return nil
	}
	if !ok {
		return domain.ErrRateLimited
	}
	return nil
}

func (s *OrderService) record(ctx context.Context, entry domain.OrderAuditEntry, err error) {
	if s.audit == nil {
		return
	}
	entry.ID = uuid.NewString()
	entry.CreatedAt = s.now()
	switch {
	case err == nil:
		entry.Outcome = "accepted"
	case errors.Is(err, domain.ErrInvalidOrder), errors.Is(err, domain.ErrRateLimited):
		entry.Outcome = "rejected"
		entry.Error = err.Error()
	default:
		entry.Outcome = "error"
		entry.Error = err.Error()
	}
	if aerr := s.audit.Record(ctx, entry); aerr != nil {
		s.logger.WarnContext(ctx, "order audit write failed",
			slog.String("action", entry.Action),
			slog.String("error", aerr.Error()),
		)
	}
}

func (s *OrderService) publish(ctx context.Context, action string, payload any) {
	if s.bus == nil {
		return
	}
	data, err := json.Marshal(map[string]any{
		"type":   "order",
		"action": action,
		"data":   payload,
		"time":   s.now().Format(time.RFC3339Nano),
	})
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, "ch:order", data); err != nil {
		s.logger.WarnContext(ctx, "publish order event failed", slog.String("error", err.Error()))
	}
}

func (s *OrderService) alert(ctx context.Context, event, title, message string) {
	if s.alerter == nil {
		return
	}
	if err := s.alerter.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}
