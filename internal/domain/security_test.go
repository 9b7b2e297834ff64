package domain

import (
	"testing"
	"time"
)

func TestCommit_EnforcesQuoteOrdering(t *testing.T) {
	s := NewSecurity("STAT", 100.0, 10000, 0.25, 10000)
	now := time.Now()

	// A bid above last is clamped down, an ask below last clamped up.
	s.Commit(10000, 10100, 9900, now)
	if s.BidPrice != 10000 {
		t.Errorf("expected bid clamped to last, got %d", s.BidPrice)
	}
	if s.AskPrice != 10000 {
		t.Errorf("expected ask clamped to last, got %d", s.AskPrice)
	}

	s.Commit(10000, 9950, 10050, now)
	if s.BidPrice != 9950 || s.AskPrice != 10050 {
		t.Errorf("expected well-formed quote kept: bid=%d ask=%d", s.BidPrice, s.AskPrice)
	}
	if !s.UpdatedAt.Equal(now) {
		t.Error("expected updated_at set to commit time")
	}
}

func TestHistory_BoundedRingBuffer(t *testing.T) {
	s := NewSecurity("STAT", 100.0, 10000, 0.25, 10000)
	now := time.Now()

	for i := 0; i < PriceHistoryCap+50; i++ {
		s.Commit(10000+int64(i), 10000+int64(i), 10000+int64(i), now)
	}

	h := s.History()
	if len(h) != PriceHistoryCap {
		t.Fatalf("expected history capped at %d, got %d", PriceHistoryCap, len(h))
	}
	// The buffer keeps the most recent commits, oldest first.
	if h[len(h)-1] != 10000+int64(PriceHistoryCap+49) {
		t.Errorf("expected the last commit at the end, got %d", h[len(h)-1])
	}
	if h[0] >= h[len(h)-1] {
		t.Error("expected oldest-first ordering")
	}

	// History returns a copy.
	h[0] = -1
	if s.History()[0] == -1 {
		t.Error("History must return a copy")
	}
}

func TestObserveReturn_EWMA(t *testing.T) {
	s := NewSecurity("STAT", 100.0, 10000, 0.30, 10000)

	// A flat return decays volatility toward the floor.
	before := s.Volatility
	s.ObserveReturn(10000, 10000)
	if s.Volatility >= before {
		t.Errorf("expected volatility to decay on a flat return: %f >= %f", s.Volatility, before)
	}

	// A large move raises it.
	before = s.Volatility
	s.ObserveReturn(10000, 12000)
	if s.Volatility <= before {
		t.Errorf("expected volatility to rise on a large move: %f <= %f", s.Volatility, before)
	}

	// The floor holds no matter how long the price stays flat.
	for i := 0; i < 10000; i++ {
		s.ObserveReturn(10000, 10000)
	}
	if s.Volatility < VolatilityFloor {
		t.Errorf("expected volatility floored at %f, got %f", VolatilityFloor, s.Volatility)
	}

	// Degenerate inputs are ignored.
	before = s.Volatility
	s.ObserveReturn(0, 10000)
	s.ObserveReturn(10000, 0)
	if s.Volatility != before {
		t.Error("expected degenerate observations ignored")
	}
}
