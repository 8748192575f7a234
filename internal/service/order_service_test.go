package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/quadscalp/internal/domain"
)

func ptr(v float64) *float64 { return &v }

func TestOrderService_SubmitAccepted(t *testing.T) {
	gw := new(MockGateway)
	audit := new(MockOrderAudit)
	bus := new(MockSignalBus)

	in := domain.OrderIntent{Symbol: "ES", Side: domain.OrderSideBuy, Qty: 2, Type: domain.OrderTypeLimit, Price: ptr(5000.25)}
	rec := domain.OrderRecord{ID: 42, Symbol: "ES", Side: domain.OrderSideBuy, Qty: 2, OrderType: "LMT", Price: 5000.25, Status: domain.OrderStatusPending}

	gw.On("PlaceOrder", mock.Anything, in).Return(rec, nil).Once()
	audit.On("Record", mock.Anything, mock.MatchedBy(func(e domain.OrderAuditEntry) bool {
		return e.Action == "submit" && e.Outcome == "accepted" && e.OrderID != nil && *e.OrderID == 42 && e.ID != ""
	})).Return(nil).Once()
	bus.On("Publish", mock.Anything, "ch:order", mock.Anything).Return(nil).Once()

	svc := NewOrderService(gw, discardLogger()).WithAudit(audit).WithBus(bus)
	got, err := svc.Submit(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	gw.AssertExpectations(t)
	audit.AssertExpectations(t)
	bus.AssertExpectations(t)
}

func TestOrderService_InvalidIntentNeverReachesGateway(t *testing.T) {
	cases := []domain.OrderIntent{
		{Symbol: "", Side: domain.OrderSideBuy, Qty: 1, Type: domain.OrderTypeMarket},
		{Symbol: "ES", Side: "HOLD", Qty: 1, Type: domain.OrderTypeMarket},
		{Symbol: "ES", Side: domain.OrderSideSell, Qty: 0, Type: domain.OrderTypeMarket},
		{Symbol: "ES", Side: domain.OrderSideSell, Qty: 1, Type: domain.OrderTypeLimit},
		{Symbol: "ES", Side: domain.OrderSideSell, Qty: 1, Type: domain.OrderTypeStop, Price: ptr(-1)},
	}

	for i, in := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			gw := new(MockGateway)
			audit := new(MockOrderAudit)
			audit.On("Record", mock.Anything, mock.MatchedBy(func(e domain.OrderAuditEntry) bool {
				return e.Outcome == "rejected" && e.Error != ""
			})).Return(nil).Once()

			svc := NewOrderService(gw, discardLogger()).WithAudit(audit)
			_, err := svc.Submit(context.Background(), in)
			require.ErrorIs(t, err, domain.ErrInvalidOrder)

			gw.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
			audit.AssertExpectations(t)
		})
	}
}

func TestOrderService_RateLimited(t *testing.T) {
	gw := new(MockGateway)
	limiter := new(MockRateLimiter)
	limiter.On("Allow", mock.Anything, "orders:operator", 5, time.Second).Return(false, nil).Once()

	svc := NewOrderService(gw, discardLogger()).WithRateLimiter(limiter, OrderLimit{Max: 5, Window: time.Second})
	_, err := svc.Submit(context.Background(), domain.OrderIntent{
		Symbol: "NQ", Side: domain.OrderSideSell, Qty: 1, Type: domain.OrderTypeMarket,
	})
	require.ErrorIs(t, err, domain.ErrRateLimited)
	gw.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func TestOrderService_LimiterFailureFailsOpen(t *testing.T) {
	gw := new(MockGateway)
	limiter := new(MockRateLimiter)
	limiter.On("Allow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(false, errors.New("redis down")).Once()
	gw.On("CancelOrder", mock.Anything, int64(7)).Return(nil).Once()

	svc := NewOrderService(gw, discardLogger()).WithRateLimiter(limiter, OrderLimit{Max: 1, Window: time.Minute})
	require.NoError(t, svc.Cancel(context.Background(), 7))
	gw.AssertExpectations(t)
}

func TestOrderService_ZeroLimitDisablesLimiter(t *testing.T) {
	gw := new(MockGateway)
	limiter := new(MockRateLimiter)
	gw.On("CancelOrder", mock.Anything, int64(3)).Return(nil).Once()

	svc := NewOrderService(gw, discardLogger()).WithRateLimiter(limiter, OrderLimit{})
	require.NoError(t, svc.Cancel(context.Background(), 3))
	limiter.AssertNotCalled(t, "Allow", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOrderService_UpstreamRejectionAlerts(t *testing.T) {
	gw := new(MockGateway)
	alerter := new(MockAlerter)
	audit := new(MockOrderAudit)

	in := domain.OrderIntent{Symbol: "CL", Side: domain.OrderSideBuy, Qty: 1, Type: domain.OrderTypeMarket}
	gw.On("PlaceOrder", mock.Anything, in).
		Return(domain.OrderRecord{}, fmt.Errorf("%w: insufficient margin", domain.ErrInvalidOrder)).Once()
	alerter.On("Notify", mock.Anything, "order_rejected", "Order rejected", mock.Anything).Return(nil).Once()
	audit.On("Record", mock.Anything, mock.MatchedBy(func(e domain.OrderAuditEntry) bool {
		return e.Outcome == "rejected"
	})).Return(nil).Once()

	svc := NewOrderService(gw, discardLogger()).WithAlerter(alerter).WithAudit(audit)
	_, err := svc.Submit(context.Background(), in)
	require.ErrorIs(t, err, domain.ErrInvalidOrder)

	alerter.AssertExpectations(t)
	audit.AssertExpectations(t)
}

func TestOrderService_UpstreamFailureIsAuditedAsError(t *testing.T) {
	gw := new(MockGateway)
	audit := new(MockOrderAudit)
	gw.On("CancelOrder", mock.Anything, int64(9)).Return(domain.ErrUpstream).Once()
	audit.On("Record", mock.Anything, mock.MatchedBy(func(e domain.OrderAuditEntry) bool {
		return e.Action == "cancel" && e.Outcome == "error"
	})).Return(nil).Once()

	svc := NewOrderService(gw, discardLogger()).WithAudit(audit)
	err := svc.Cancel(context.Background(), 9)
	require.ErrorIs(t, err, domain.ErrUpstream)
	audit.AssertExpectations(t)
}

func TestOrderService_Flatten(t *testing.T) {
	gw := new(MockGateway)
	alerter := new(MockAlerter)
	res := domain.FlattenResult{Closed: 2}

	gw.On("Flatten", mock.Anything).Return(res, nil).Once()
	alerter.On("Notify", mock.Anything, "flatten", "Flattened all positions", "closed 2 position(s)").Return(nil).Once()

	svc := NewOrderService(gw, discardLogger()).WithAlerter(alerter)
	got, err := svc.Flatten(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, got.Closed)
	alerter.AssertExpectations(t)
}

func TestOrderService_AuditFailureDoesNotFailSubmit(t *testing.T) {
	gw := new(MockGateway)
	audit := new(MockOrderAudit)
	in := domain.OrderIntent{Symbol: "ES", Side: domain.OrderSideSell, Qty: 1, Type: domain.OrderTypeMarket}

	gw.On("PlaceOrder", mock.Anything, in).Return(domain.OrderRecord{ID: 1}, nil).Once()
	audit.On("Record", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

	svc := NewOrderService(gw, discardLogger()).WithAudit(audit)
	_, err := svc.Submit(context.Background(), in)
	require.NoError(t, err)
}
