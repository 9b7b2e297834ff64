package engine

import (
	"testing"
	"time"
)

func TestBreaker_ThresholdIsStrictlyGreater(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name      string
		candidate int64
		want      bool
	}{
		{"no move", 10000, true},
		{"exactly at threshold up", 11000, true},
		{"exactly at threshold down", 9000, true},
		{"just past threshold up", 11001, false},
		{"just past threshold down", 8999, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cb := NewCircuitBreaker(0.10, time.Minute, nil)
			if got := cb.Evaluate("STAT", tt.candidate, 10000, now); got != tt.want {
				t.Errorf("Evaluate(%d vs 10000) = %v, want %v", tt.candidate, got, tt.want)
			}
		})
	}
}

func TestBreaker_TripRecordsStatusAndHalts(t *testing.T) {
	cb := NewCircuitBreaker(0.10, 2*time.Minute, nil)
	now := time.Now()

	if cb.Evaluate("STAT", 12000, 10000, now) {
		t.Fatal("expected the breaker to trip on a 20% move")
	}
	if !cb.Halted("STAT") {
		t.Fatal("expected halted after trip")
	}

	st, err := cb.Status("STAT")
	if err != nil {
		t.Fatal(err)
	}
	if st.State != BreakerHalted {
		t.Errorf("expected halted state, got %s", st.State)
	}
	if st.PriceAtHalt != 10000 {
		t.Errorf("expected price at halt 10000, got %d", st.PriceAtHalt)
	}
	if !st.ResumeAt.Equal(now.Add(2 * time.Minute)) {
		t.Errorf("expected resume at halt+cooldown, got %s", st.ResumeAt)
	}
	if st.Reason == "" {
		t.Error("expected a halt reason")
	}

	// While halted every candidate is rejected, even a tiny move.
	if cb.Evaluate("STAT", 10001, 10000, now.Add(time.Second)) {
		t.Error("expected rejection while halted")
	}
}

func TestBreaker_ResumeAfterCooldown(t *testing.T) {
	cb := NewCircuitBreaker(0.10, time.Minute, nil)
	now := time.Now()

	cb.Evaluate("STAT", 12000, 10000, now)

	// Before the cooldown elapses, Tick is a no-op.
	cb.Tick("STAT", now.Add(30*time.Second))
	if !cb.Halted("STAT") {
		t.Fatal("expected still halted before cooldown")
	}

	cb.Tick("STAT", now.Add(61*time.Second))
	if cb.Halted("STAT") {
		t.Fatal("expected resumed after cooldown")
	}

	// Back to normal gating.
	if !cb.Evaluate("STAT", 10100, 10000, now.Add(62*time.Second)) {
		t.Error("expected a small move to pass after resume")
	}
}

func TestBreaker_SymbolsAreIndependent(t *testing.T) {
	cb := NewCircuitBreaker(0.10, time.Minute, nil)
	now := time.Now()

	cb.Evaluate("STAT", 12000, 10000, now)
	if cb.Halted("OTHR") {
		t.Error("halting one symbol must not halt another")
	}
	if !cb.Evaluate("OTHR", 10100, 10000, now) {
		t.Error("expected the other symbol to trade normally")
	}
}

func TestBreaker_ZeroReferenceAlwaysPasses(t *testing.T) {
	cb := NewCircuitBreaker(0.10, time.Minute, nil)
	if !cb.Evaluate("STAT", 10000, 0, time.Now()) {
		t.Error("expected candidate against zero reference to pass")
	}
}
