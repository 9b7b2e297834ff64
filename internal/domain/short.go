package domain

import "time"

// ShortPosition tracks shares borrowed and sold short by one
// participant in one security. Repeat short sales extend the position
// at a volume-weighted borrow price; days held run from the first open.
type ShortPosition struct {
	PositionID   string
	Borrower     string
	Symbol       string
	BorrowedQty  int64
	BorrowPrice  int64 // cents, volume-weighted across extensions
	OpenedAt     time.Time
	MarginCalled bool
}

// AccruedFee computes the borrow fee liability for qty shares held from
// OpenedAt to now: borrowPrice × qty × dailyRate × daysHeld. The fee is
// a liability computed on demand, never silently deducted.
func (p *ShortPosition) AccruedFee(qty int64, dailyRate float64, now time.Time) int64 {
	days := now.Sub(p.OpenedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	return RoundToCents(CentsToDollars(p.BorrowPrice) * float64(qty) * dailyRate * days)
}
