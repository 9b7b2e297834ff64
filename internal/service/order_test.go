package service

import (
	"errors"
	"testing"
	"time"

	"github.com/statxchange/statxchange/internal/domain"
	"github.com/statxchange/statxchange/internal/engine"
	"github.com/statxchange/statxchange/internal/store"
)

// testEnv bundles all dependencies needed for service tests.
type testEnv struct {
	securities *store.SecurityStore
	orders     *store.OrderStore
	trades     *store.TradeStore
	books      *engine.BookManager
	breaker    *engine.CircuitBreaker
	matcher    *engine.Matcher
	expiry     *engine.ExpiryManager
	shorts     *engine.ShortEngine
	options    *engine.OptionsEngine

	orderSvc    *OrderService
	securitySvc *SecurityService
	marketSvc   *MarketDataService
	shortSvc    *ShortService
	optionsSvc  *OptionsService
}

func newTestEnv() *testEnv {
	env := &testEnv{
		securities: store.NewSecurityStore(),
		orders:     store.NewOrderStore(),
		trades:     store.NewTradeStore(),
		books:      engine.NewBookManager(),
		breaker:    engine.NewCircuitBreaker(0.10, 2*time.Minute, nil),
		shorts:     engine.NewShortEngine(engine.DefaultShortConfig()),
		options:    engine.NewOptionsEngine(engine.DefaultOptionsConfig()),
	}
	env.matcher = engine.NewMatcher(env.books, env.securities, env.orders, env.trades, env.breaker, nil)
	env.expiry = engine.NewExpiryManager(time.Second, env.books, env.matcher)

	env.orderSvc = NewOrderService(env.matcher, env.expiry, env.orders)
	env.securitySvc = NewSecurityService(env.securities, env.books, env.shorts, env.breaker)
	env.marketSvc = NewMarketDataService(env.securities, env.books, env.matcher)
	env.shortSvc = NewShortService(env.securities, env.books, env.shorts, env.breaker)
	env.optionsSvc = NewOptionsService(env.securities, env.books, env.options)
	return env
}

// createSecurity registers a security at $100 with a 10000-share float.
func (env *testEnv) createSecurity(t *testing.T, symbol string) {
	t.Helper()
	_, err := env.securitySvc.Create(CreateSecurityRequest{
		Symbol:           symbol,
		Fundamental:      100.0,
		FloatOutstanding: 10000,
	})
	if err != nil {
		t.Fatalf("failed to create security %s: %v", symbol, err)
	}
}

func futureTime() *time.Time {
	t := time.Now().Add(24 * time.Hour)
	return &t
}

func floatPtr(f float64) *float64 {
	return &f
}

func TestSubmitOrder_LimitBid_Rests(t *testing.T) {
	env := newTestEnv()
	env.createSecurity(t, "STAT")

	order, err := env.orderSvc.SubmitOrder(SubmitOrderRequest{
		Type:        domain.OrderTypeLimit,
		Participant: "alice",
		Side:        domain.OrderSideBid,
		Symbol:      "STAT",
		Price:       floatPtr(99.50),
		Quantity:    100,
		ExpiresAt:   futureTime(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.OrderID == "" {
		t.Error("expected non-empty order_id")
	}
	if order.Status != domain.OrderStatusOpen {
		t.Errorf("got status %q, want %q", order.Status, domain.OrderStatusOpen)
	}
	if order.Price != 9950 {
		t.Errorf("got price %d, want 9950", order.Price)
	}
	if order.RemainingQuantity != 100 {
		t.Errorf("got remaining_quantity %d, want 100", order.RemainingQuantity)
	}

	if env.expiry.ActiveOrderCount() != 1 {
		t.Errorf("expected 1 tracked order, got %d", env.expiry.ActiveOrderCount())
	}
}

func TestSubmitOrder_LimitCross_FilledNotTracked(t *testing.T) {
	env := newTestEnv()
	env.createSecurity(t, "STAT")

	_, err := env.orderSvc.SubmitOrder(SubmitOrderRequest{
		Type:        domain.OrderTypeLimit,
		Participant: "seller",
		Side:        domain.OrderSideAsk,
		Symbol:      "STAT",
		Price:       floatPtr(100.00),
		Quantity:    50,
		ExpiresAt:   futureTime(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order, err := env.orderSvc.SubmitOrder(SubmitOrderRequest{
		Type:        domain.OrderTypeLimit,
		Participant: "buyer",
		Side:        domain.OrderSideBid,
		Symbol:      "STAT",
		Price:       floatPtr(100.00),
		Quantity:    50,
		ExpiresAt:   futureTime(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != domain.OrderStatusFilled {
		t.Errorf("got status %q, want %q", order.Status, domain.OrderStatusFilled)
	}
	// Fully filled orders have no remainder to expire. One resting seller
	// order was tracked before the cross consumed it.
	if env.expiry.ActiveOrderCount() != 1 {
		t.Errorf("expected 1 tracked order, got %d", env.expiry.ActiveOrderCount())
	}
}

func TestSubmitOrder_Validation(t *testing.T) {
	env := newTestEnv()
	env.createSecurity(t, "STAT")

	valid := func() SubmitOrderRequest {
		return SubmitOrderRequest{
			Type:        domain.OrderTypeLimit,
			Participant: "alice",
			Side:        domain.OrderSideBid,
			Symbol:      "STAT",
			Price:       floatPtr(100.00),
			Quantity:    10,
		}
	}

	tests := []struct {
		name   string
		mutate func(*SubmitOrderRequest)
	}{
		{"unknown type", func(r *SubmitOrderRequest) { r.Type = "stop" }},
		{"empty participant", func(r *SubmitOrderRequest) { r.Participant = "" }},
		{"bad participant chars", func(r *SubmitOrderRequest) { r.Participant = "al ice" }},
		{"bad side", func(r *SubmitOrderRequest) { r.Side = "buy" }},
		{"lowercase symbol", func(r *SubmitOrderRequest) { r.Symbol = "stat" }},
		{"zero quantity", func(r *SubmitOrderRequest) { r.Quantity = 0 }},
		{"negative quantity", func(r *SubmitOrderRequest) { r.Quantity = -5 }},
		{"limit missing price", func(r *SubmitOrderRequest) { r.Price = nil }},
		{"limit zero price", func(r *SubmitOrderRequest) { r.Price = floatPtr(0) }},
		{"limit sub-cent price", func(r *SubmitOrderRequest) { r.Price = floatPtr(100.001) }},
		{"limit past expiry", func(r *SubmitOrderRequest) {
			past := time.Now().Add(-time.Minute)
			r.ExpiresAt = &past
		}},
		{"market with price", func(r *SubmitOrderRequest) {
			r.Type = domain.OrderTypeMarket
		}},
		{"market with expiry", func(r *SubmitOrderRequest) {
			r.Type = domain.OrderTypeMarket
			r.Price = nil
			r.ExpiresAt = futureTime()
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)

			_, err := env.orderSvc.SubmitOrder(req)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestSubmitOrder_UnknownSymbol(t *testing.T) {
	env := newTestEnv()

	_, err := env.orderSvc.SubmitOrder(SubmitOrderRequest{
		Type:        domain.OrderTypeLimit,
		Participant: "alice",
		Side:        domain.OrderSideBid,
		Symbol:      "NONE",
		Price:       floatPtr(100.00),
		Quantity:    10,
	})
	if !errors.Is(err, domain.ErrSecurityNotFound) {
		t.Fatalf("expected ErrSecurityNotFound, got %v", err)
	}
}

func TestCancelOrder_RemovesFromExpiry(t *testing.T) {
	env := newTestEnv()
	env.createSecurity(t, "STAT")

	order, err := env.orderSvc.SubmitOrder(SubmitOrderRequest{
		Type:        domain.OrderTypeLimit,
		Participant: "alice",
		Side:        domain.OrderSideBid,
		Symbol:      "STAT",
		Price:       floatPtr(99.00),
		Quantity:    10,
		ExpiresAt:   futureTime(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cancelled, err := env.orderSvc.CancelOrder(order.OrderID, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != domain.OrderStatusCancelled {
		t.Errorf("got status %q, want %q", cancelled.Status, domain.OrderStatusCancelled)
	}
	if env.expiry.ActiveOrderCount() != 0 {
		t.Errorf("expected 0 tracked orders, got %d", env.expiry.ActiveOrderCount())
	}
}

func TestCancelOrder_WrongParticipant(t *testing.T) {
	env := newTestEnv()
	env.createSecurity(t, "STAT")

	order, err := env.orderSvc.SubmitOrder(SubmitOrderRequest{
		Type:        domain.OrderTypeLimit,
		Participant: "alice",
		Side:        domain.OrderSideBid,
		Symbol:      "STAT",
		Price:       floatPtr(99.00),
		Quantity:    10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := env.orderSvc.CancelOrder(order.OrderID, "mallory"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := env.orderSvc.CancelOrder(order.OrderID, "not a participant!"); err == nil {
		t.Fatal("expected validation error for malformed requester")
	}
}

func TestListOrders_ClampsPagination(t *testing.T) {
	env := newTestEnv()
	env.createSecurity(t, "STAT")

	for i := 0; i < 3; i++ {
		_, err := env.orderSvc.SubmitOrder(SubmitOrderRequest{
			Type:        domain.OrderTypeLimit,
			Participant: "alice",
			Side:        domain.OrderSideBid,
			Symbol:      "STAT",
			Price:       floatPtr(99.00),
			Quantity:    10,
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// Out-of-range page and limit fall back to page 1, limit 20.
	orders, total, err := env.orderSvc.ListOrders("alice", nil, -1, 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 {
		t.Errorf("got total %d, want 3", total)
	}
	if len(orders) != 3 {
		t.Errorf("got %d orders, want 3", len(orders))
	}
}

func TestListOrders_UnknownStatus(t *testing.T) {
	env := newTestEnv()

	status := domain.OrderStatus("teleported")
	_, _, err := env.orderSvc.ListOrders("alice", &status, 1, 20)
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestListOrders_StatusFilter(t *testing.T) {
	env := newTestEnv()
	env.createSecurity(t, "STAT")

	open, err := env.orderSvc.SubmitOrder(SubmitOrderRequest{
		Type:        domain.OrderTypeLimit,
		Participant: "alice",
		Side:        domain.OrderSideBid,
		Symbol:      "STAT",
		Price:       floatPtr(99.00),
		Quantity:    10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	toCancel, err := env.orderSvc.SubmitOrder(SubmitOrderRequest{
		Type:        domain.OrderTypeLimit,
		Participant: "alice",
		Side:        domain.OrderSideBid,
		Symbol:      "STAT",
		Price:       floatPtr(98.00),
		Quantity:    10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := env.orderSvc.CancelOrder(toCancel.OrderID, "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status := domain.OrderStatusOpen
	orders, total, err := env.orderSvc.ListOrders("alice", &status, 1, 20)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(orders) != 1 || orders[0].OrderID != open.OrderID {
		t.Errorf("got %d orders (total %d), want only the open order", len(orders), total)
	}
}
