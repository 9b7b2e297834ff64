package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/statxchange/statxchange/internal/events"
)

// BreakerState is the circuit breaker state for one security.
type BreakerState string

const (
	BreakerNormal BreakerState = "normal"
	BreakerHalted BreakerState = "halted"
)

// BreakerStatus is the per-security circuit breaker record.
type BreakerStatus struct {
	State       BreakerState
	Reason      string
	HaltedAt    time.Time
	ResumeAt    time.Time
	PriceAtHalt int64
}

// CircuitBreaker gates every price update. A candidate move strictly
// greater than the trip threshold transitions the security to halted
// for the cooldown period; while halted every candidate is rejected and
// the registry keeps the prior price.
type CircuitBreaker struct {
	tripPct  float64
	cooldown time.Duration
	bus      *events.Bus

	mu     sync.RWMutex
	states map[string]*BreakerStatus
}

// NewCircuitBreaker creates a breaker with the given trip threshold
// (fractional, e.g. 0.10 for 10%) and halt cooldown.
func NewCircuitBreaker(tripPct float64, cooldown time.Duration, bus *events.Bus) *CircuitBreaker {
	return &CircuitBreaker{
		tripPct:  tripPct,
		cooldown: cooldown,
		bus:      bus,
		states:   make(map[string]*BreakerStatus),
	}
}

func (cb *CircuitBreaker) state(symbol string) *BreakerStatus {
	st, ok := cb.states[symbol]
	if !ok {
		st = &BreakerStatus{State: BreakerNormal}
		cb.states[symbol] = st
	}
	return st
}

// Evaluate checks a candidate price against the last committed
// reference price. It returns true if the candidate may be committed.
// A move strictly greater than the trip threshold trips the breaker,
// records the halt, and rejects the candidate for this tick. While
// halted every candidate is rejected.
func (cb *CircuitBreaker) Evaluate(symbol string, candidate, reference int64, now time.Time) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	st := cb.state(symbol)
	if st.State == BreakerHalted {
		return false
	}
	if reference <= 0 {
		return true
	}

	move := float64(candidate-reference) / float64(reference)
	if move < 0 {
		move = -move
	}
	if move <= cb.tripPct {
		return true
	}

	st.State = BreakerHalted
	st.Reason = fmt.Sprintf("price move %.2f%% exceeds %.2f%% limit", move*100, cb.tripPct*100)
	st.HaltedAt = now
	st.ResumeAt = now.Add(cb.cooldown)
	st.PriceAtHalt = reference

	if cb.bus != nil {
		cb.bus.Publish(events.TypeBreakerHalted, symbol, events.BreakerPayload{
			Reason:   st.Reason,
			HaltedAt: st.HaltedAt,
			ResumeAt: st.ResumeAt,
		})
	}
	return false
}

// Tick resumes a halted security once the cooldown has elapsed.
func (cb *CircuitBreaker) Tick(symbol string, now time.Time) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	st := cb.state(symbol)
	if st.State != BreakerHalted || now.Before(st.ResumeAt) {
		return
	}

	st.State = BreakerNormal
	st.Reason = ""

	if cb.bus != nil {
		cb.bus.Publish(events.TypeBreakerResumed, symbol, events.BreakerPayload{
			HaltedAt: st.HaltedAt,
			ResumeAt: st.ResumeAt,
		})
	}
}

// Halted reports whether trading in the symbol is currently halted.
func (cb *CircuitBreaker) Halted(symbol string) bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	st, ok := cb.states[symbol]
	return ok && st.State == BreakerHalted
}

// Status returns a copy of the breaker record for the symbol.
func (cb *CircuitBreaker) Status(symbol string) (BreakerStatus, error) {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	st, ok := cb.states[symbol]
	if !ok {
		return BreakerStatus{State: BreakerNormal}, nil
	}
	return *st, nil
}

var _ HaltGate = (*CircuitBreaker)(nil)
