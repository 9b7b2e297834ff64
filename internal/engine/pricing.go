package engine

import (
	"math"
	"math/rand"

	"github.com/statxchange/statxchange/internal/domain"
)

// PricingPolicy selects how the candidate price blends fundamentals and
// market pressure.
type PricingPolicy string

const (
	// PolicyHybrid blends the fundamental-adjusted price with the
	// market-pressure-adjusted price by their configured weights.
	PolicyHybrid PricingPolicy = "hybrid"
	// PolicyMarket ignores fundamentals and follows market pressure only.
	PolicyMarket PricingPolicy = "market"
)

// PricingConfig holds the price formation parameters. Zero values are
// replaced by the defaults in DefaultPricingConfig.
type PricingConfig struct {
	Policy            PricingPolicy
	FundamentalWeight float64 // share of the blend given to fundamentals
	FundamentalPull   float64 // per-tick reversion toward the fundamental score
	MaxTickMovePct    float64 // hard clamp on the per-tick move
	ImbalanceWeight   float64
	VolumeWeight      float64
	SqueezeWeight     float64
	SqueezeStart      float64 // short interest where squeeze pressure begins
	SqueezeEscalate   float64 // short interest where it turns superlinear
	DepthThreshold    int64   // aggregate depth where liquidity confidence saturates
	TypicalVolume     int64   // per-tick volume considered "normal"
	NoisePct          float64 // bounded random noise on the final price
	BaseSpreadPct     float64
	VolSpreadFactor   float64 // volatility contribution to the spread
	IlliqSpreadFactor float64 // empty-book contribution to the spread
	MaxSpreadPct      float64
	PriceFloor        int64 // cents
}

// DefaultPricingConfig returns the standard parameter set.
func DefaultPricingConfig() PricingConfig {
	return PricingConfig{
		Policy:            PolicyHybrid,
		FundamentalWeight: 0.3,
		FundamentalPull:   0.1,
		MaxTickMovePct:    0.05,
		ImbalanceWeight:   0.6,
		VolumeWeight:      0.25,
		SqueezeWeight:     0.15,
		SqueezeStart:      0.3,
		SqueezeEscalate:   0.5,
		DepthThreshold:    1000,
		TypicalVolume:     500,
		NoisePct:          0.002,
		BaseSpreadPct:     0.002,
		VolSpreadFactor:   0.01,
		IlliqSpreadFactor: 0.01,
		MaxSpreadPct:      0.05,
		PriceFloor:        1,
	}
}

// PricingInputs are the per-tick inputs for one security.
type PricingInputs struct {
	LastPrice     int64   // cents
	Fundamental   float64 // dollars, external statistics feed
	BidDepth      int64
	AskDepth      int64
	Volume        int64 // shares traded since the previous tick
	ShortInterest float64
	Volatility    float64
}

// PricingResult is the candidate produced for one tick. The candidate
// still has to pass the circuit breaker before the registry commits it.
type PricingResult struct {
	Price     int64 // cents
	Bid       int64
	Ask       int64
	PctChange float64
}

// PriceFormation computes the next candidate last/bid/ask each tick
// from fundamentals, order-book imbalance, traded volume and short
// interest, under safety clamps. The random source is injected so runs
// are reproducible under test.
type PriceFormation struct {
	cfg PricingConfig
	rng *rand.Rand
}

// NewPriceFormation creates a PriceFormation engine. A nil rng yields a
// deterministic zero-seed source.
func NewPriceFormation(cfg PricingConfig, rng *rand.Rand) *PriceFormation {
	if rng == nil {
		rng = rand.New(rand.NewSource(0))
	}
	return &PriceFormation{cfg: cfg, rng: rng}
}

// Next computes the candidate price for one tick.
func (pf *PriceFormation) Next(in PricingInputs) PricingResult {
	cfg := pf.cfg
	last := domain.CentsToDollars(in.LastPrice)
	if last <= 0 {
		last = domain.CentsToDollars(cfg.PriceFloor)
	}

	// Fundamental drift: bounded reversion toward the fundamental
	// score plus a small random walk.
	pull := (in.Fundamental - last) * cfg.FundamentalPull
	pull = clamp(pull, last*cfg.MaxTickMovePct)
	walk := (pf.rng.Float64()*2 - 1) * cfg.NoisePct * last
	fundamentalAdjusted := last + pull + walk

	// Order-book pressure scaled by liquidity confidence.
	imb := imbalance(in.BidDepth, in.AskDepth)
	conf := liquidityConfidence(in.BidDepth+in.AskDepth, cfg.DepthThreshold)
	bookPressure := imb * conf * cfg.ImbalanceWeight

	// Volume pressure amplifies the sign of the book pressure.
	volPressure := volumePressure(in.Volume, cfg.TypicalVolume) * sign(bookPressure) * cfg.VolumeWeight

	// Short-covering pressure is always upward once short interest
	// passes the squeeze threshold.
	sqPressure := squeezePressure(in.ShortInterest, cfg.SqueezeStart, cfg.SqueezeEscalate) * cfg.SqueezeWeight

	total := clamp(bookPressure, cfg.MaxTickMovePct) +
		clamp(volPressure, cfg.MaxTickMovePct) +
		clamp(sqPressure, cfg.MaxTickMovePct)
	total = clamp(total, cfg.MaxTickMovePct)

	marketAdjusted := last * (1 + total)

	var price float64
	switch cfg.Policy {
	case PolicyMarket:
		price = marketAdjusted
	default:
		price = cfg.FundamentalWeight*fundamentalAdjusted + (1-cfg.FundamentalWeight)*marketAdjusted
	}
	price += (pf.rng.Float64()*2 - 1) * cfg.NoisePct * last

	// Soft cap: the final move may not exceed the per-tick clamp. This
	// is a weaker, independent check than the circuit breaker.
	maxMove := last * cfg.MaxTickMovePct
	price = last + clamp(price-last, maxMove)

	candidate := domain.RoundToCents(price)
	if candidate < cfg.PriceFloor {
		candidate = cfg.PriceFloor
	}

	// Spread: base plus volatility and illiquidity terms, capped.
	spreadPct := cfg.BaseSpreadPct + in.Volatility*cfg.VolSpreadFactor + (1-conf)*cfg.IlliqSpreadFactor
	if spreadPct > cfg.MaxSpreadPct {
		spreadPct = cfg.MaxSpreadPct
	}
	half := domain.CentsToDollars(candidate) * spreadPct / 2
	bid := domain.RoundToCents(domain.CentsToDollars(candidate) - half)
	ask := domain.RoundToCents(domain.CentsToDollars(candidate) + half)
	if bid < cfg.PriceFloor {
		bid = cfg.PriceFloor
	}
	if bid > candidate {
		bid = candidate
	}
	if ask < candidate {
		ask = candidate
	}

	return PricingResult{
		Price:     candidate,
		Bid:       bid,
		Ask:       ask,
		PctChange: (domain.CentsToDollars(candidate) - last) / last,
	}
}

// imbalance is (bidDepth − askDepth)/(bidDepth + askDepth), 0 for an
// empty book.
func imbalance(bidDepth, askDepth int64) float64 {
	total := bidDepth + askDepth
	if total == 0 {
		return 0
	}
	return float64(bidDepth-askDepth) / float64(total)
}

// liquidityConfidence rises from 0 for an empty book toward 1 as
// aggregate depth passes the threshold.
func liquidityConfidence(totalDepth, threshold int64) float64 {
	if threshold <= 0 || totalDepth <= 0 {
		return 0
	}
	c := float64(totalDepth) / float64(threshold)
	if c > 1 {
		c = 1
	}
	return c
}

// volumePressure is a logarithmic function of volume relative to the
// typical per-tick volume.
func volumePressure(volume, typical int64) float64 {
	if typical <= 0 || volume <= 0 {
		return 0
	}
	return math.Log1p(float64(volume) / float64(typical))
}

// squeezePressure is zero below the start threshold, ramps linearly
// above it, and escalates quadratically past the escalation threshold,
// modeling short-squeeze dynamics. It is strictly increasing in short
// interest above the start threshold.
func squeezePressure(shortInterest, start, escalate float64) float64 {
	if shortInterest <= start {
		return 0
	}
	p := (shortInterest - start) * 0.5
	if shortInterest > escalate {
		d := shortInterest - escalate
		p += d * d * 4
	}
	return p
}

func sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}

func clamp(x, bound float64) float64 {
	if x > bound {
		return bound
	}
	if x < -bound {
		return -bound
	}
	return x
}
