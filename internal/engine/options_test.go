package engine

import (
	"errors"
	"math"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/statxchange/statxchange/internal/domain"
)

func newTestOptionsEngine() *OptionsEngine {
	return NewOptionsEngine(DefaultOptionsConfig())
}

// Reference point: S=$100, K=$100, T=30/365, sigma=0.25, r=0.045.
// Closed-form values: call 3.0418, put 2.6726.
func TestBlackScholes_ReferenceValues(t *testing.T) {
	call, put := blackScholes(100, 100, 30.0/365.0, 0.25, 0.045)

	if math.Abs(call-3.0418) > 0.01 {
		t.Errorf("call = %.4f, want 3.0418 ± 0.01", call)
	}
	if math.Abs(put-2.6726) > 0.01 {
		t.Errorf("put = %.4f, want 2.6726 ± 0.01", put)
	}
}

func TestBlackScholes_PutCallParity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		S := rapid.Float64Range(1, 1000).Draw(t, "S")
		K := rapid.Float64Range(1, 1000).Draw(t, "K")
		T := rapid.Float64Range(0.001, 2).Draw(t, "T")
		sigma := rapid.Float64Range(0.01, 2).Draw(t, "sigma")
		r := rapid.Float64Range(0, 0.2).Draw(t, "r")

		call, put := blackScholes(S, K, T, sigma, r)

		// C − P = S − K·e^(−rT), within the CDF approximation error.
		lhs := call - put
		rhs := S - K*math.Exp(-r*T)
		if math.Abs(lhs-rhs) > 1e-3*math.Max(S, K) {
			t.Fatalf("put-call parity broken: C−P=%.6f, S−Ke^(−rT)=%.6f", lhs, rhs)
		}

		if call < 0 || put < 0 {
			t.Fatalf("negative option value: call=%.6f put=%.6f", call, put)
		}
	})
}

func TestBlackScholes_DeepOutOfTheMoneyNonNegative(t *testing.T) {
	// Far from the money the CDF approximation error dominates a true
	// value of ~0; the result must still clamp at zero, both for the
	// call side and the mirrored put side.
	cases := []struct{ S, K, T, sigma, r float64 }{
		{1.40625, 3.375, 0.75, 0.1015625, 0.2},
		{3.375, 1.40625, 0.75, 0.1015625, 0.2},
		{10, 900, 0.01, 0.05, 0},
		{900, 10, 0.01, 0.05, 0},
	}
	for _, c := range cases {
		call, put := blackScholes(c.S, c.K, c.T, c.sigma, c.r)
		if call < 0 || put < 0 {
			t.Errorf("blackScholes(%v, %v, %v, %v, %v): negative value call=%g put=%g",
				c.S, c.K, c.T, c.sigma, c.r, call, put)
		}
	}
}

func TestBlackScholes_ATMPremiumVanishesNearExpiry(t *testing.T) {
	call, put := blackScholes(100, 100, 1e-6, 0.25, 0.045)
	if call > 0.05 || put > 0.05 {
		t.Errorf("expected at-the-money premiums near zero at expiry, got call=%.4f put=%.4f", call, put)
	}
}

func TestGreeks_ReferenceValues(t *testing.T) {
	g := greeks(100, 100, 30.0/365.0, 0.25, 0.045, domain.OptionTypeCall)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"delta", g.Delta, 0.53484},
		{"gamma", g.Gamma, 0.055449},
		{"vega", g.Vega, 0.113937},
		{"theta", g.Theta, -0.053693},
		{"rho", g.Rho, 0.041459},
	}
	for _, c := range checks {
		if math.Abs(c.got-c.want) > 0.001 {
			t.Errorf("%s = %.6f, want %.6f ± 0.001", c.name, c.got, c.want)
		}
	}

	// Put delta must be call delta − 1.
	p := greeks(100, 100, 30.0/365.0, 0.25, 0.045, domain.OptionTypePut)
	if math.Abs(p.Delta-(g.Delta-1)) > 1e-9 {
		t.Errorf("put delta = %.6f, want call delta − 1 = %.6f", p.Delta, g.Delta-1)
	}
}

func TestGenerateChain_Shape(t *testing.T) {
	oe := newTestOptionsEngine()
	now := time.Now()

	contracts := oe.GenerateChain("STAT", 10000, 0.25, now)

	// (2×3+1) strikes × 2 types × 3 expirations.
	if len(contracts) != 42 {
		t.Fatalf("expected 42 contracts, got %d", len(contracts))
	}

	strikes := make(map[int64]bool)
	for _, c := range contracts {
		if c.Strike%100 != 0 {
			t.Errorf("strike %d is not a whole dollar", c.Strike)
		}
		if c.Premium < 1 {
			t.Errorf("premium %d below minimum tick", c.Premium)
		}
		strikes[c.Strike] = true
	}
	// Strikes at ±5% steps around $100: 85..115.
	for _, want := range []int64{8500, 9000, 9500, 10000, 10500, 11000, 11500} {
		if !strikes[want] {
			t.Errorf("expected strike %d in chain", want)
		}
	}

	if got := len(oe.Chain("STAT")); got != 42 {
		t.Errorf("Chain returned %d contracts, want 42", got)
	}
}

func TestReprice_IntrinsicAndTimeValue(t *testing.T) {
	oe := newTestOptionsEngine()
	now := time.Now()
	oe.GenerateChain("STAT", 10000, 0.25, now)

	// Move spot to $110: the $100 call goes 10 dollars in the money.
	oe.Recalculate("STAT", 11000, 0.25, now)

	for _, c := range oe.Chain("STAT") {
		if c.Type == domain.OptionTypeCall && c.Strike == 10000 {
			if c.Intrinsic != 1000 {
				t.Errorf("expected intrinsic 1000, got %d", c.Intrinsic)
			}
			if !c.InTheMoney {
				t.Error("expected in-the-money flag")
			}
			if c.TimeValue != c.Premium-c.Intrinsic {
				t.Errorf("time value %d != premium %d − intrinsic %d", c.TimeValue, c.Premium, c.Intrinsic)
			}
		}
		if c.Type == domain.OptionTypePut && c.Strike == 10000 {
			if c.Intrinsic != 0 || c.InTheMoney {
				t.Errorf("expected the $100 put out of the money at spot $110: %+v", c)
			}
		}
	}
}

func TestBuyWriteAndOpenInterest(t *testing.T) {
	oe := newTestOptionsEngine()
	now := time.Now()
	contracts := oe.GenerateChain("STAT", 10000, 0.25, now)
	c := contracts[0]

	long, err := oe.Buy("alice", c.ContractID, 2)
	if err != nil {
		t.Fatal(err)
	}
	if long.Side != domain.PositionSideLong || long.Quantity != 2 {
		t.Errorf("unexpected long position: %+v", long)
	}
	if long.EntryPremium != c.Premium {
		t.Errorf("entry premium %d != contract premium %d", long.EntryPremium, c.Premium)
	}

	short, err := oe.Write("bob", c.ContractID, 3)
	if err != nil {
		t.Fatal(err)
	}
	if short.Side != domain.PositionSideShort {
		t.Errorf("unexpected short position: %+v", short)
	}

	got, err := oe.Contract(c.ContractID)
	if err != nil {
		t.Fatal(err)
	}
	if got.OpenInterest != 5 {
		t.Errorf("expected open interest 5, got %d", got.OpenInterest)
	}

	if _, err := oe.Buy("alice", "missing", 1); !errors.Is(err, domain.ErrContractNotFound) {
		t.Errorf("expected ErrContractNotFound, got %v", err)
	}
	if _, err := oe.Buy("alice", c.ContractID, 0); err == nil {
		t.Error("expected validation error for zero quantity")
	}
}

func TestExercise(t *testing.T) {
	oe := newTestOptionsEngine()
	now := time.Now()
	oe.GenerateChain("STAT", 10000, 0.25, now)

	var callID, putID string
	for _, c := range oe.Chain("STAT") {
		if c.Strike == 10000 {
			if c.Type == domain.OptionTypeCall {
				callID = c.ContractID
			} else {
				putID = c.ContractID
			}
		}
	}
	// Make the $100 call in the money.
	oe.Recalculate("STAT", 11000, 0.25, now)

	long, _ := oe.Buy("alice", callID, 2)
	short, _ := oe.Write("bob", callID, 1)
	putPos, _ := oe.Buy("alice", putID, 1)

	// A short position cannot be exercised.
	if _, err := oe.Exercise("bob", short.PositionID, now); !errors.Is(err, domain.ErrCannotExerciseShort) {
		t.Errorf("expected ErrCannotExerciseShort, got %v", err)
	}
	// An out-of-the-money long cannot be exercised.
	if _, err := oe.Exercise("alice", putPos.PositionID, now); !errors.Is(err, domain.ErrNotInTheMoney) {
		t.Errorf("expected ErrNotInTheMoney, got %v", err)
	}
	// Only the holder may exercise.
	if _, err := oe.Exercise("bob", long.PositionID, now); !errors.Is(err, domain.ErrPositionNotFound) {
		t.Errorf("expected ErrPositionNotFound for wrong holder, got %v", err)
	}

	res, err := oe.Exercise("alice", long.PositionID, now)
	if err != nil {
		t.Fatal(err)
	}
	if res.Side != domain.OrderSideBid {
		t.Errorf("exercising a call buys the underlying, got side %s", res.Side)
	}
	if res.Strike != 10000 {
		t.Errorf("expected strike 10000, got %d", res.Strike)
	}
	if res.Quantity != 200 {
		t.Errorf("expected 2 contracts × 100 shares, got %d", res.Quantity)
	}

	// The position is gone.
	if _, err := oe.Exercise("alice", long.PositionID, now); !errors.Is(err, domain.ErrPositionNotFound) {
		t.Errorf("expected ErrPositionNotFound after exercise, got %v", err)
	}
	if got := len(oe.PositionsByHolder("alice")); got != 1 {
		t.Errorf("expected only the put position left, got %d", got)
	}
}

func TestClose_RealizedPnL(t *testing.T) {
	oe := newTestOptionsEngine()
	now := time.Now()
	oe.GenerateChain("STAT", 10000, 0.25, now)

	var callID string
	for _, c := range oe.Chain("STAT") {
		if c.Strike == 10000 && c.Type == domain.OptionTypeCall {
			callID = c.ContractID
		}
	}

	long, _ := oe.Buy("alice", callID, 1)
	short, _ := oe.Write("bob", callID, 1)
	entry := long.EntryPremium

	// Premium rises with spot.
	oe.Recalculate("STAT", 11000, 0.25, now)
	current, _ := oe.Contract(callID)
	if current.Premium <= entry {
		t.Fatalf("expected premium to rise with spot: entry=%d current=%d", entry, current.Premium)
	}

	longPnl, err := oe.Close("alice", long.PositionID)
	if err != nil {
		t.Fatal(err)
	}
	want := (current.Premium - entry) * 100
	if longPnl != want {
		t.Errorf("long pnl = %d, want %d", longPnl, want)
	}

	shortPnl, err := oe.Close("bob", short.PositionID)
	if err != nil {
		t.Fatal(err)
	}
	if shortPnl != -want {
		t.Errorf("short pnl = %d, want %d", shortPnl, -want)
	}
}

func TestSettle_AutoExercisesITMLongs(t *testing.T) {
	cfg := DefaultOptionsConfig()
	cfg.Expirations = []time.Duration{time.Hour}
	oe := NewOptionsEngine(cfg)
	now := time.Now()
	oe.GenerateChain("STAT", 10000, 0.25, now)

	var itmCallID, otmCallID string
	for _, c := range oe.Chain("STAT") {
		if c.Type != domain.OptionTypeCall {
			continue
		}
		switch c.Strike {
		case 9500:
			itmCallID = c.ContractID
		case 10500:
			otmCallID = c.ContractID
		}
	}

	oe.Buy("alice", itmCallID, 1)
	oe.Buy("alice", otmCallID, 1)
	oe.Write("bob", itmCallID, 1)

	// Before expiry Settle is a no-op.
	if got := oe.Settle("STAT", now.Add(30*time.Minute)); len(got) != 0 {
		t.Fatalf("expected no settlements before expiry, got %d", len(got))
	}

	results := oe.Settle("STAT", now.Add(2*time.Hour))
	if len(results) != 1 {
		t.Fatalf("expected exactly the in-the-money long auto-exercised, got %d", len(results))
	}
	if results[0].Holder != "alice" || results[0].Strike != 9500 {
		t.Errorf("unexpected settlement: %+v", results[0])
	}

	// Everything expired is gone: contracts, chain, positions.
	if got := len(oe.Chain("STAT")); got != 0 {
		t.Errorf("expected empty chain after settlement, got %d", got)
	}
	if got := len(oe.PositionsByHolder("alice")); got != 0 {
		t.Errorf("expected no alice positions, got %d", got)
	}
	if got := len(oe.PositionsByHolder("bob")); got != 0 {
		t.Errorf("expected no bob positions, got %d", got)
	}
}
