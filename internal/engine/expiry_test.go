package engine

import (
	"testing"
	"time"

	"github.com/statxchange/statxchange/internal/domain"
)

func TestExpireOrders_ExpiresDueOrders(t *testing.T) {
	m, _, _ := newTestMatcher()
	em := NewExpiryManager(time.Second, m.books, m)

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	due := newLimitOrder("p1", domain.OrderSideBid, 10000, 10)
	due.ExpiresAt = &past
	if _, err := m.MatchLimitOrder(due); err != nil {
		t.Fatal(err)
	}
	live := newLimitOrder("p2", domain.OrderSideBid, 9900, 10)
	live.ExpiresAt = &future
	if _, err := m.MatchLimitOrder(live); err != nil {
		t.Fatal(err)
	}
	em.Add(due)
	em.Add(live)

	em.ExpireOrders(time.Now())

	if due.Status != domain.OrderStatusExpired {
		t.Errorf("expected expired, got %s", due.Status)
	}
	if due.CancelledQuantity != 10 || due.RemainingQuantity != 0 {
		t.Errorf("unexpected quantities: %+v", due)
	}
	if due.ExpiredAt == nil {
		t.Error("expected expired_at to be set")
	}
	if live.Status != domain.OrderStatusOpen {
		t.Errorf("expected the future order untouched, got %s", live.Status)
	}

	book := m.books.GetOrCreate("STAT")
	if book.BidCount() != 1 {
		t.Errorf("expected only the live order on the book, got %d", book.BidCount())
	}
	if em.ActiveOrderCount() != 1 {
		t.Errorf("expected 1 tracked order, got %d", em.ActiveOrderCount())
	}
}

func TestExpireOrders_SkipsTerminalOrders(t *testing.T) {
	m, _, _ := newTestMatcher()
	em := NewExpiryManager(time.Second, m.books, m)

	past := time.Now().Add(-time.Minute)
	order := newLimitOrder("p1", domain.OrderSideAsk, 10000, 10)
	order.ExpiresAt = &past
	if _, err := m.MatchLimitOrder(order); err != nil {
		t.Fatal(err)
	}
	em.Add(order)

	// Fill it before the expiry sweep runs.
	if _, err := m.MatchLimitOrder(newLimitOrder("p2", domain.OrderSideBid, 10000, 10)); err != nil {
		t.Fatal(err)
	}

	em.ExpireOrders(time.Now())

	if order.Status != domain.OrderStatusFilled {
		t.Errorf("expiry must not touch a filled order, got %s", order.Status)
	}
}

func TestExpiryManager_AddRemove(t *testing.T) {
	m, _, _ := newTestMatcher()
	em := NewExpiryManager(time.Second, m.books, m)

	exp := time.Now().Add(time.Hour)
	o := &domain.Order{OrderID: "o1", ExpiresAt: &exp}
	em.Add(o)
	if em.ActiveOrderCount() != 1 {
		t.Fatalf("expected 1 tracked order, got %d", em.ActiveOrderCount())
	}

	// Orders without an expiration are ignored.
	em.Add(&domain.Order{OrderID: "o2"})
	if em.ActiveOrderCount() != 1 {
		t.Errorf("expected order without expires_at ignored, got %d", em.ActiveOrderCount())
	}

	em.Remove("o1")
	if em.ActiveOrderCount() != 0 {
		t.Errorf("expected 0 tracked orders, got %d", em.ActiveOrderCount())
	}
}

func TestExpireOrders_SortedSweepStopsAtFirstFuture(t *testing.T) {
	m, _, _ := newTestMatcher()
	em := NewExpiryManager(time.Second, m.books, m)

	now := time.Now()
	times := []time.Duration{-3 * time.Minute, -time.Minute, time.Minute, 3 * time.Minute}
	var orders []*domain.Order
	for i, d := range times {
		exp := now.Add(d)
		o := newLimitOrder("p", domain.OrderSideBid, 9000+int64(i), 1)
		o.ExpiresAt = &exp
		if _, err := m.MatchLimitOrder(o); err != nil {
			t.Fatal(err)
		}
		em.Add(o)
		orders = append(orders, o)
	}

	em.ExpireOrders(now)

	for i, o := range orders {
		wantExpired := times[i] < 0
		if wantExpired && o.Status != domain.OrderStatusExpired {
			t.Errorf("order %d: expected expired, got %s", i, o.Status)
		}
		if !wantExpired && o.Status != domain.OrderStatusOpen {
			t.Errorf("order %d: expected open, got %s", i, o.Status)
		}
	}
	if em.ActiveOrderCount() != 2 {
		t.Errorf("expected 2 orders still tracked, got %d", em.ActiveOrderCount())
	}
}
