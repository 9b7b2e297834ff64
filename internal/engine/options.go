package engine

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/statxchange/statxchange/internal/domain"
)

// OptionsConfig shapes chain generation and premium calculation.
type OptionsConfig struct {
	RiskFreeRate       float64
	StrikesPerSide     int             // strikes above and below spot, plus the at-the-money strike
	StrikeSpacingPct   float64         // proportional spacing between adjacent strikes
	Expirations        []time.Duration // standard expirations measured from generation time
	ContractMultiplier int64           // underlying shares per contract
	MinTick            int64           // premium floor, cents
}

// DefaultOptionsConfig returns the standard chain shape.
func DefaultOptionsConfig() OptionsConfig {
	return OptionsConfig{
		RiskFreeRate:       0.045,
		StrikesPerSide:     3,
		StrikeSpacingPct:   0.05,
		Expirations:        []time.Duration{7 * 24 * time.Hour, 14 * 24 * time.Hour, 30 * 24 * time.Hour},
		ContractMultiplier: 100,
		MinTick:            1,
	}
}

// timeEpsilon floors time-to-expiration (in years) so d1/d2 stay finite
// as a contract approaches expiry.
const timeEpsilon = 1e-4

// ExerciseResult describes the underlying trade produced by exercising
// one position: calls buy the underlying at strike, puts sell it.
type ExerciseResult struct {
	Holder      string
	Symbol      string
	ContractID  string
	Type        domain.OptionType
	Side        domain.OrderSide // underlying side: bid for calls, ask for puts
	Strike      int64
	Quantity    int64 // underlying shares
	ExercisedAt time.Time
}

// OptionsEngine owns every option contract and position. Premiums and
// Greeks are derived from the registry's current price and volatility
// and recomputed every tick; the engine itself holds no pricing state
// beyond the contracts.
type OptionsEngine struct {
	cfg OptionsConfig

	mu        sync.RWMutex
	contracts map[string]*domain.OptionContract // contract_id → contract
	chains    map[string][]string               // symbol → contract ids
	positions map[string]*domain.OptionPosition // position_id → position
	holderPos map[string][]string               // holder → position ids
}

// NewOptionsEngine creates an empty OptionsEngine.
func NewOptionsEngine(cfg OptionsConfig) *OptionsEngine {
	if cfg.ContractMultiplier <= 0 {
		cfg.ContractMultiplier = 100
	}
	if cfg.MinTick <= 0 {
		cfg.MinTick = 1
	}
	return &OptionsEngine{
		cfg:       cfg,
		contracts: make(map[string]*domain.OptionContract),
		chains:    make(map[string][]string),
		positions: make(map[string]*domain.OptionPosition),
		holderPos: make(map[string][]string),
	}
}

// GenerateChain creates one call and one put per strike/expiration
// around the current spot price and prices them immediately. Strikes
// are spaced proportionally around spot and rounded to whole dollars.
func (oe *OptionsEngine) GenerateChain(symbol string, spot int64, volatility float64, now time.Time) []*domain.OptionContract {
	oe.mu.Lock()
	defer oe.mu.Unlock()

	var created []*domain.OptionContract
	for _, d := range oe.cfg.Expirations {
		expiry := now.Add(d)
		for i := -oe.cfg.StrikesPerSide; i <= oe.cfg.StrikesPerSide; i++ {
			strike := roundToDollar(domain.RoundToCents(domain.CentsToDollars(spot) * (1 + float64(i)*oe.cfg.StrikeSpacingPct)))
			for _, typ := range []domain.OptionType{domain.OptionTypeCall, domain.OptionTypePut} {
				c := &domain.OptionContract{
					ContractID: uuid.New().String(),
					Symbol:     symbol,
					Type:       typ,
					Strike:     strike,
					Expiration: expiry,
					CreatedAt:  now,
				}
				oe.reprice(c, spot, volatility, now)
				oe.contracts[c.ContractID] = c
				oe.chains[symbol] = append(oe.chains[symbol], c.ContractID)
				created = append(created, c)
			}
		}
	}
	return created
}

// Chain returns the live contracts for a symbol sorted by expiration,
// strike, then type.
func (oe *OptionsEngine) Chain(symbol string) []*domain.OptionContract {
	oe.mu.RLock()
	defer oe.mu.RUnlock()

	ids := oe.chains[symbol]
	out := make([]*domain.OptionContract, 0, len(ids))
	for _, id := range ids {
		if c, ok := oe.contracts[id]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Expiration.Equal(out[j].Expiration) {
			return out[i].Expiration.Before(out[j].Expiration)
		}
		if out[i].Strike != out[j].Strike {
			return out[i].Strike < out[j].Strike
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// Contract returns a copy of one contract.
func (oe *OptionsEngine) Contract(id string) (domain.OptionContract, error) {
	oe.mu.RLock()
	defer oe.mu.RUnlock()

	c, ok := oe.contracts[id]
	if !ok {
		return domain.OptionContract{}, domain.ErrContractNotFound
	}
	return *c, nil
}

// Recalculate reprices every live contract for the symbol from the
// current spot price and volatility. Called once per tick after the
// registry commit.
func (oe *OptionsEngine) Recalculate(symbol string, spot int64, volatility float64, now time.Time) {
	oe.mu.Lock()
	defer oe.mu.Unlock()

	for _, id := range oe.chains[symbol] {
		if c, ok := oe.contracts[id]; ok {
			oe.reprice(c, spot, volatility, now)
		}
	}
}

// reprice recomputes premium, intrinsic/time value, the in-the-money
// flag and the Greeks for one contract. Caller holds the write lock.
func (oe *OptionsEngine) reprice(c *domain.OptionContract, spot int64, volatility float64, now time.Time) {
	S := domain.CentsToDollars(spot)
	K := domain.CentsToDollars(c.Strike)
	T := yearsUntil(c.Expiration, now)
	r := oe.cfg.RiskFreeRate

	call, put := blackScholes(S, K, T, volatility, r)

	var premium float64
	var intrinsic int64
	if c.Type == domain.OptionTypeCall {
		premium = call
		if spot > c.Strike {
			intrinsic = spot - c.Strike
		}
	} else {
		premium = put
		if c.Strike > spot {
			intrinsic = c.Strike - spot
		}
	}

	c.Premium = domain.RoundToCents(premium)
	if c.Premium < oe.cfg.MinTick {
		c.Premium = oe.cfg.MinTick
	}
	c.Intrinsic = intrinsic
	c.TimeValue = c.Premium - intrinsic
	if c.TimeValue < 0 {
		c.TimeValue = 0
	}
	c.InTheMoney = intrinsic > 0
	c.Greeks = greeks(S, K, T, volatility, r, c.Type)
}

// Buy opens a long position in a contract at its current premium.
func (oe *OptionsEngine) Buy(holder, contractID string, quantity int64) (*domain.OptionPosition, error) {
	return oe.open(holder, contractID, quantity, domain.PositionSideLong)
}

// Write opens a short position: the premium is collected and the
// liability is recorded as the position itself.
func (oe *OptionsEngine) Write(holder, contractID string, quantity int64) (*domain.OptionPosition, error) {
	return oe.open(holder, contractID, quantity, domain.PositionSideShort)
}

func (oe *OptionsEngine) open(holder, contractID string, quantity int64, side domain.PositionSide) (*domain.OptionPosition, error) {
	if quantity <= 0 {
		return nil, &domain.ValidationError{Message: "quantity must be a positive integer"}
	}

	oe.mu.Lock()
	defer oe.mu.Unlock()

	c, ok := oe.contracts[contractID]
	if !ok {
		return nil, domain.ErrContractNotFound
	}

	pos := &domain.OptionPosition{
		PositionID:   uuid.New().String(),
		Holder:       holder,
		ContractID:   contractID,
		Quantity:     quantity,
		Side:         side,
		EntryPremium: c.Premium,
		OpenedAt:     time.Now(),
	}
	oe.positions[pos.PositionID] = pos
	oe.holderPos[holder] = append(oe.holderPos[holder], pos.PositionID)
	c.OpenInterest += quantity

	cp := *pos
	return &cp, nil
}

// Exercise converts an in-the-money long position into an underlying
// trade at the strike price and removes the position. Short positions
// cannot be exercised, and a position with zero intrinsic value fails
// with ErrNotInTheMoney.
func (oe *OptionsEngine) Exercise(holder, positionID string, now time.Time) (*ExerciseResult, error) {
	oe.mu.Lock()
	defer oe.mu.Unlock()

	pos, ok := oe.positions[positionID]
	if !ok || pos.Holder != holder {
		return nil, domain.ErrPositionNotFound
	}
	if pos.Side == domain.PositionSideShort {
		return nil, domain.ErrCannotExerciseShort
	}
	c, ok := oe.contracts[pos.ContractID]
	if !ok {
		return nil, domain.ErrContractNotFound
	}
	if c.Intrinsic == 0 {
		return nil, domain.ErrNotInTheMoney
	}

	res := oe.exerciseLocked(pos, c, now)
	return res, nil
}

// exerciseLocked removes the position and produces the underlying
// trade. Caller holds the write lock and has verified eligibility.
func (oe *OptionsEngine) exerciseLocked(pos *domain.OptionPosition, c *domain.OptionContract, now time.Time) *ExerciseResult {
	side := domain.OrderSideBid
	if c.Type == domain.OptionTypePut {
		side = domain.OrderSideAsk
	}
	res := &ExerciseResult{
		Holder:      pos.Holder,
		Symbol:      c.Symbol,
		ContractID:  c.ContractID,
		Type:        c.Type,
		Side:        side,
		Strike:      c.Strike,
		Quantity:    pos.Quantity * oe.cfg.ContractMultiplier,
		ExercisedAt: now,
	}
	oe.removePositionLocked(pos, c)
	return res
}

// Close removes a position at the contract's current premium and
// returns the realized P&L in cents (positive is profit).
func (oe *OptionsEngine) Close(holder, positionID string) (int64, error) {
	oe.mu.Lock()
	defer oe.mu.Unlock()

	pos, ok := oe.positions[positionID]
	if !ok || pos.Holder != holder {
		return 0, domain.ErrPositionNotFound
	}
	c, ok := oe.contracts[pos.ContractID]
	if !ok {
		return 0, domain.ErrContractNotFound
	}

	perContract := c.Premium - pos.EntryPremium
	if pos.Side == domain.PositionSideShort {
		perContract = -perContract
	}
	pnl := perContract * pos.Quantity * oe.cfg.ContractMultiplier

	oe.removePositionLocked(pos, c)
	return pnl, nil
}

// Settle handles expiration for a symbol: in-the-money long positions
// auto-exercise, then every position and contract at or past expiry is
// removed. Returns the exercise results for the tick pipeline.
func (oe *OptionsEngine) Settle(symbol string, now time.Time) []*ExerciseResult {
	oe.mu.Lock()
	defer oe.mu.Unlock()

	var results []*ExerciseResult
	var live []string
	for _, id := range oe.chains[symbol] {
		c, ok := oe.contracts[id]
		if !ok {
			continue
		}
		if c.Expiration.After(now) {
			live = append(live, id)
			continue
		}

		for _, pos := range oe.positionsOnLocked(id) {
			if pos.Side == domain.PositionSideLong && c.Intrinsic > 0 {
				results = append(results, oe.exerciseLocked(pos, c, now))
			} else {
				oe.removePositionLocked(pos, c)
			}
		}
		delete(oe.contracts, id)
	}
	oe.chains[symbol] = live
	return results
}

// PositionsByHolder returns copies of the holder's open positions.
func (oe *OptionsEngine) PositionsByHolder(holder string) []*domain.OptionPosition {
	oe.mu.RLock()
	defer oe.mu.RUnlock()

	var out []*domain.OptionPosition
	for _, id := range oe.holderPos[holder] {
		if pos, ok := oe.positions[id]; ok {
			cp := *pos
			out = append(out, &cp)
		}
	}
	return out
}

func (oe *OptionsEngine) positionsOnLocked(contractID string) []*domain.OptionPosition {
	var out []*domain.OptionPosition
	for _, pos := range oe.positions {
		if pos.ContractID == contractID {
			out = append(out, pos)
		}
	}
	return out
}

func (oe *OptionsEngine) removePositionLocked(pos *domain.OptionPosition, c *domain.OptionContract) {
	delete(oe.positions, pos.PositionID)
	ids := oe.holderPos[pos.Holder]
	for i, id := range ids {
		if id == pos.PositionID {
			oe.holderPos[pos.Holder] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	c.OpenInterest -= pos.Quantity
	if c.OpenInterest < 0 {
		c.OpenInterest = 0
	}
}

// yearsUntil converts a wall-clock span to year fractions, floored at
// timeEpsilon so pricing stays finite at expiry.
func yearsUntil(expiry, now time.Time) float64 {
	T := expiry.Sub(now).Hours() / (24 * 365)
	if T < timeEpsilon {
		T = timeEpsilon
	}
	return T
}

// blackScholes returns the closed-form call and put values:
//
//	C = S·N(d1) − K·e^(−rT)·N(d2)
//	P = K·e^(−rT)·N(−d2) − S·N(−d1)
//	d1 = [ln(S/K) + (r + σ²/2)T] / (σ√T), d2 = d1 − σ√T
func blackScholes(S, K, T, sigma, r float64) (call, put float64) {
	if S <= 0 || K <= 0 || sigma <= 0 || T <= 0 {
		return 0, 0
	}
	sqrtT := math.Sqrt(T)
	d1 := (math.Log(S/K) + (r+sigma*sigma/2)*T) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT
	disc := math.Exp(-r * T)

	call = S*normCDF(d1) - K*disc*normCDF(d2)
	put = K*disc*normCDF(-d2) - S*normCDF(-d1)

	// Deep out of the money the CDF approximation error can leave a
	// tiny negative where the true value is ~0.
	return math.Max(call, 0), math.Max(put, 0)
}

// greeks returns the analytic partials of the Black-Scholes value.
// Theta is converted from annual to daily; vega and rho are per
// percentage point.
func greeks(S, K, T, sigma, r float64, typ domain.OptionType) domain.Greeks {
	if S <= 0 || K <= 0 || sigma <= 0 || T <= 0 {
		return domain.Greeks{}
	}
	sqrtT := math.Sqrt(T)
	d1 := (math.Log(S/K) + (r+sigma*sigma/2)*T) / (sigma * sqrtT)
	d2 := d1 - sigma*sqrtT
	disc := math.Exp(-r * T)
	pdf := normPDF(d1)

	g := domain.Greeks{
		Gamma: pdf / (S * sigma * sqrtT),
		Vega:  S * pdf * sqrtT / 100,
	}
	if typ == domain.OptionTypeCall {
		g.Delta = normCDF(d1)
		g.Theta = (-S*pdf*sigma/(2*sqrtT) - r*K*disc*normCDF(d2)) / 365
		g.Rho = K * T * disc * normCDF(d2) / 100
	} else {
		g.Delta = normCDF(d1) - 1
		g.Theta = (-S*pdf*sigma/(2*sqrtT) + r*K*disc*normCDF(-d2)) / 365
		g.Rho = -K * T * disc * normCDF(-d2) / 100
	}
	return g
}

// normCDF is the standard normal CDF via the Abramowitz-Stegun 26.2.17
// rational approximation (absolute error < 7.5e-8), avoiding numeric
// integration.
func normCDF(x float64) float64 {
	if x < 0 {
		return 1 - normCDF(-x)
	}
	t := 1 / (1 + 0.2316419*x)
	poly := t * (0.319381530 + t*(-0.356563782+t*(1.781477937+t*(-1.821255978+t*1.330274429))))
	return 1 - normPDF(x)*poly
}

func normPDF(x float64) float64 {
	return math.Exp(-x*x/2) / math.Sqrt(2*math.Pi)
}

// roundToDollar snaps a cents value to the nearest whole dollar, with a
// one-dollar minimum so strikes stay positive.
func roundToDollar(cents int64) int64 {
	d := (cents + 50) / 100 * 100
	if d < 100 {
		d = 100
	}
	return d
}
