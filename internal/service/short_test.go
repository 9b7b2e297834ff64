package service

import (
	"errors"
	"testing"
	"time"

	"github.com/statxchange/statxchange/internal/domain"
)

func TestShortSell_AtCurrentPrice(t *testing.T) {
	env := newTestEnv()
	env.createSecurity(t, "STAT")

	resp, err := env.shortSvc.ShortSell("hedgie", "STAT", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Position.BorrowedQty != 100 {
		t.Errorf("got borrowed_quantity %d, want 100", resp.Position.BorrowedQty)
	}
	if resp.Position.BorrowPrice != 10000 {
		t.Errorf("got borrow_price %d, want 10000", resp.Position.BorrowPrice)
	}
	if resp.Proceeds != 100*10000 {
		t.Errorf("got proceeds %d, want 1000000", resp.Proceeds)
	}

	available, err := env.shortSvc.AvailableToBorrow("STAT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if available != 2400 {
		t.Errorf("got available %d, want 2400", available)
	}
}

func TestShortSell_RejectedWhileHalted(t *testing.T) {
	env := newTestEnv()
	env.createSecurity(t, "STAT")

	// A 20% candidate move against a 10% threshold halts the symbol.
	if env.breaker.Evaluate("STAT", 12000, 10000, time.Now()) {
		t.Fatal("expected the candidate move to be rejected")
	}

	if _, err := env.shortSvc.ShortSell("hedgie", "STAT", 10); !errors.Is(err, domain.ErrTradingHalted) {
		t.Fatalf("expected ErrTradingHalted, got %v", err)
	}
	if _, err := env.shortSvc.CoverShort("hedgie", "STAT", 10); !errors.Is(err, domain.ErrTradingHalted) {
		t.Fatalf("expected ErrTradingHalted, got %v", err)
	}
}

func TestShortSell_Validation(t *testing.T) {
	env := newTestEnv()
	env.createSecurity(t, "STAT")

	if _, err := env.shortSvc.ShortSell("bad actor!", "STAT", 10); err == nil {
		t.Error("expected validation error for malformed borrower")
	}
	if _, err := env.shortSvc.ShortSell("hedgie", "NONE", 10); !errors.Is(err, domain.ErrSecurityNotFound) {
		t.Errorf("expected ErrSecurityNotFound, got %v", err)
	}
}

func TestCoverShort_RoundTrip(t *testing.T) {
	env := newTestEnv()
	env.createSecurity(t, "STAT")

	if _, err := env.shortSvc.ShortSell("hedgie", "STAT", 100); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := env.shortSvc.CoverShort("hedgie", "STAT", 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.CoveredQty != 100 {
		t.Errorf("got covered_qty %d, want 100", result.CoveredQty)
	}
	if result.Remaining != 0 {
		t.Errorf("got remaining %d, want 0", result.Remaining)
	}
	// Same-price round trip nets out to the borrow fee.
	if result.PnL != -result.Fee {
		t.Errorf("got pnl %d, want %d", result.PnL, -result.Fee)
	}

	if positions := env.shortSvc.Positions("hedgie"); len(positions) != 0 {
		t.Errorf("got %d open positions, want 0", len(positions))
	}
	available, err := env.shortSvc.AvailableToBorrow("STAT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if available != 2500 {
		t.Errorf("got available %d, want 2500", available)
	}
}

func TestForceLiquidate_IgnoresHalt(t *testing.T) {
	env := newTestEnv()
	env.createSecurity(t, "STAT")

	if _, err := env.shortSvc.ShortSell("hedgie", "STAT", 50); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env.breaker.Evaluate("STAT", 12000, 10000, time.Now())

	result, err := env.shortSvc.ForceLiquidate("hedgie", "STAT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.CoveredQty != 50 || result.Remaining != 0 {
		t.Errorf("expected full liquidation, got %+v", result)
	}
}

func TestAvailableToBorrow_UnknownSymbol(t *testing.T) {
	env := newTestEnv()

	if _, err := env.shortSvc.AvailableToBorrow("NONE"); !errors.Is(err, domain.ErrSecurityNotFound) {
		t.Fatalf("expected ErrSecurityNotFound, got %v", err)
	}
}
