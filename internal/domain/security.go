package domain

import (
	"math"
	"time"
)

// PriceHistoryCap bounds the per-security price history buffer.
const PriceHistoryCap = 256

// Security is a synthetic tradable instrument whose fundamental score
// tracks a real-world performer's statistics. The registry exclusively
// owns Security records; all mutation happens under the per-security
// lock held by the tick pipeline or the matching engine.
type Security struct {
	Symbol           string
	FundamentalScore float64 // external statistics feed, in dollars
	LastPrice        int64   // cents
	BidPrice         int64   // cents, <= LastPrice
	AskPrice         int64   // cents, >= LastPrice
	Volatility       float64 // annualized, > 0
	FloatOutstanding int64   // shares
	UpdatedAt        time.Time

	history []int64 // ring buffer of committed last prices, oldest first
}

// NewSecurity creates a security with last/bid/ask seeded from the
// initial price and the given volatility estimate.
func NewSecurity(symbol string, fundamental float64, initialPrice int64, volatility float64, float int64) *Security {
	s := &Security{
		Symbol:           symbol,
		FundamentalScore: fundamental,
		LastPrice:        initialPrice,
		BidPrice:         initialPrice,
		AskPrice:         initialPrice,
		Volatility:       volatility,
		FloatOutstanding: float,
		UpdatedAt:        time.Now(),
	}
	s.history = append(s.history, initialPrice)
	return s
}

// Commit records a new last/bid/ask, enforcing bid <= last <= ask, and
// appends the last price to the bounded history buffer.
func (s *Security) Commit(last, bid, ask int64, at time.Time) {
	if bid > last {
		bid = last
	}
	if ask < last {
		ask = last
	}
	s.LastPrice = last
	s.BidPrice = bid
	s.AskPrice = ask
	s.UpdatedAt = at

	s.history = append(s.history, last)
	if len(s.history) > PriceHistoryCap {
		s.history = s.history[len(s.history)-PriceHistoryCap:]
	}
}

// History returns a copy of the committed price history, oldest first.
func (s *Security) History() []int64 {
	out := make([]int64, len(s.history))
	copy(out, s.history)
	return out
}

// volatility EWMA parameters: decay per observation and the annualization
// factor for per-tick returns. Ticks are short, so returns are treated as
// one observation each; the floor keeps volatility strictly positive.
const (
	volDecay        = 0.94
	volAnnualize    = 16.0 // ~sqrt(252), trading days per year
	VolatilityFloor = 0.05
)

// ObserveReturn folds one committed price return into the EWMA
// volatility estimate.
func (s *Security) ObserveReturn(prev, next int64) {
	if prev <= 0 || next <= 0 {
		return
	}
	r := math.Log(float64(next) / float64(prev))
	v := s.Volatility / volAnnualize
	v = math.Sqrt(volDecay*v*v + (1-volDecay)*r*r)
	s.Volatility = v * volAnnualize
	if s.Volatility < VolatilityFloor {
		s.Volatility = VolatilityFloor
	}
}
