package engine

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/statxchange/statxchange/internal/domain"
)

// ShortConfig holds the short selling parameters.
type ShortConfig struct {
	PoolFraction    float64 // share of float seeded into the borrow pool
	DailyFeeRate    float64 // borrow fee per day on borrowed notional
	MarginCallRatio float64 // adverse move over borrow price that flags margin
}

// DefaultShortConfig returns the standard parameter set.
func DefaultShortConfig() ShortConfig {
	return ShortConfig{
		PoolFraction:    0.25,
		DailyFeeRate:    0.001,
		MarginCallRatio: 0.5,
	}
}

// borrowPool tracks lendable shares for one security.
type borrowPool struct {
	total     int64
	available int64
}

// CoverResult reports the outcome of covering part of a short position.
type CoverResult struct {
	CoveredQty int64
	Cost       int64 // cents, qty × current price
	Fee        int64 // cents, accrued fee for the covered portion
	PnL        int64 // cents, (borrowPrice − currentPrice) × qty − fee
	Remaining  int64 // borrowed shares still open
}

// ShortEngine owns the borrow pool and every short position. The
// short-interest ratio it exposes feeds price formation.
type ShortEngine struct {
	cfg ShortConfig

	mu        sync.RWMutex
	pools     map[string]*borrowPool                      // symbol → pool
	positions map[string]map[string]*domain.ShortPosition // borrower → symbol → position
}

// NewShortEngine creates an empty ShortEngine.
func NewShortEngine(cfg ShortConfig) *ShortEngine {
	return &ShortEngine{
		cfg:       cfg,
		pools:     make(map[string]*borrowPool),
		positions: make(map[string]map[string]*domain.ShortPosition),
	}
}

// InitPool seeds the borrow pool for a security from its float. Safe to
// call once per security at registration.
func (se *ShortEngine) InitPool(symbol string, floatOutstanding int64) {
	se.mu.Lock()
	defer se.mu.Unlock()

	if _, ok := se.pools[symbol]; ok {
		return
	}
	size := int64(float64(floatOutstanding) * se.cfg.PoolFraction)
	se.pools[symbol] = &borrowPool{total: size, available: size}
}

// ShortSell borrows qty shares from the pool and sells them at the
// current price. It fails with ErrInsufficientBorrow if the pool cannot
// cover the quantity. A repeat sale extends the existing position at a
// volume-weighted borrow price; days held keep running from the first
// open. Returns the position and the sale proceeds in cents.
func (se *ShortEngine) ShortSell(borrower, symbol string, qty, currentPrice int64, now time.Time) (*domain.ShortPosition, int64, error) {
	if qty <= 0 {
		return nil, 0, &domain.ValidationError{Message: "quantity must be a positive integer"}
	}
	if currentPrice <= 0 {
		return nil, 0, &domain.ValidationError{Message: "price must be greater than 0"}
	}

	se.mu.Lock()
	defer se.mu.Unlock()

	pool, ok := se.pools[symbol]
	if !ok {
		return nil, 0, domain.ErrSecurityNotFound
	}
	if qty > pool.available {
		return nil, 0, domain.ErrInsufficientBorrow
	}
	pool.available -= qty

	bySymbol := se.positions[borrower]
	if bySymbol == nil {
		bySymbol = make(map[string]*domain.ShortPosition)
		se.positions[borrower] = bySymbol
	}

	pos := bySymbol[symbol]
	if pos == nil {
		pos = &domain.ShortPosition{
			PositionID:  uuid.New().String(),
			Borrower:    borrower,
			Symbol:      symbol,
			BorrowedQty: qty,
			BorrowPrice: currentPrice,
			OpenedAt:    now,
		}
		bySymbol[symbol] = pos
	} else {
		// Volume-weighted borrow price across extensions.
		totalNotional := pos.BorrowPrice*pos.BorrowedQty + currentPrice*qty
		pos.BorrowedQty += qty
		pos.BorrowPrice = totalNotional / pos.BorrowedQty
	}

	proceeds := qty * currentPrice
	cp := *pos
	return &cp, proceeds, nil
}

// CoverShort buys back qty shares at the current price, returns them to
// the pool, and computes the realized P&L net of the accrued borrow fee
// for the covered portion. It fails with ErrOverCover if qty exceeds
// the remaining borrowed quantity. The position is removed once fully
// covered.
func (se *ShortEngine) CoverShort(borrower, symbol string, qty, currentPrice int64, now time.Time) (*CoverResult, error) {
	if qty <= 0 {
		return nil, &domain.ValidationError{Message: "quantity must be a positive integer"}
	}
	if currentPrice <= 0 {
		return nil, &domain.ValidationError{Message: "price must be greater than 0"}
	}

	se.mu.Lock()
	defer se.mu.Unlock()
	return se.coverLocked(borrower, symbol, qty, currentPrice, now)
}

// ForceLiquidate covers a margin-called position in full at the current
// price. It is a distinct operation invoked by an external risk
// collaborator, never triggered implicitly by CoverShort. The quantity
// is read and covered under one critical section so a concurrent cover
// cannot turn full liquidation into an over-cover.
func (se *ShortEngine) ForceLiquidate(borrower, symbol string, currentPrice int64, now time.Time) (*CoverResult, error) {
	if currentPrice <= 0 {
		return nil, &domain.ValidationError{Message: "price must be greater than 0"}
	}

	se.mu.Lock()
	defer se.mu.Unlock()

	pos := se.position(borrower, symbol)
	if pos == nil {
		return nil, domain.ErrPositionNotFound
	}
	return se.coverLocked(borrower, symbol, pos.BorrowedQty, currentPrice, now)
}

// coverLocked does the cover bookkeeping. Caller holds the write lock.
func (se *ShortEngine) coverLocked(borrower, symbol string, qty, currentPrice int64, now time.Time) (*CoverResult, error) {
	pos := se.position(borrower, symbol)
	if pos == nil {
		return nil, domain.ErrPositionNotFound
	}
	if qty > pos.BorrowedQty {
		return nil, domain.ErrOverCover
	}

	fee := pos.AccruedFee(qty, se.cfg.DailyFeeRate, now)
	result := &CoverResult{
		CoveredQty: qty,
		Cost:       qty * currentPrice,
		Fee:        fee,
		PnL:        (pos.BorrowPrice-currentPrice)*qty - fee,
	}

	pos.BorrowedQty -= qty
	result.Remaining = pos.BorrowedQty

	pool := se.pools[symbol]
	pool.available += qty
	if pool.available > pool.total {
		pool.available = pool.total
	}

	if pos.BorrowedQty == 0 {
		delete(se.positions[borrower], symbol)
	}
	return result, nil
}

// UpdateMarginFlags sets the margin flag on every position in the
// symbol whose borrow price has been exceeded by more than the
// configured ratio. Called once per tick after the registry commit.
func (se *ShortEngine) UpdateMarginFlags(symbol string, currentPrice int64) {
	se.mu.Lock()
	defer se.mu.Unlock()

	for _, bySymbol := range se.positions {
		pos, ok := bySymbol[symbol]
		if !ok {
			continue
		}
		threshold := float64(pos.BorrowPrice) * (1 + se.cfg.MarginCallRatio)
		pos.MarginCalled = float64(currentPrice) > threshold
	}
}

// ShortInterest returns (float − available)/float for the security's
// borrow pool: the fraction of lendable shares currently sold short.
func (se *ShortEngine) ShortInterest(symbol string) float64 {
	se.mu.RLock()
	defer se.mu.RUnlock()

	pool, ok := se.pools[symbol]
	if !ok || pool.total == 0 {
		return 0
	}
	return float64(pool.total-pool.available) / float64(pool.total)
}

// AvailableToBorrow returns the lendable shares remaining in the pool.
func (se *ShortEngine) AvailableToBorrow(symbol string) (int64, error) {
	se.mu.RLock()
	defer se.mu.RUnlock()

	pool, ok := se.pools[symbol]
	if !ok {
		return 0, domain.ErrSecurityNotFound
	}
	return pool.available, nil
}

// PositionsByBorrower returns copies of the borrower's open positions.
func (se *ShortEngine) PositionsByBorrower(borrower string) []*domain.ShortPosition {
	se.mu.RLock()
	defer se.mu.RUnlock()

	var out []*domain.ShortPosition
	for _, pos := range se.positions[borrower] {
		cp := *pos
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// position returns the live position or nil. Caller holds a lock.
func (se *ShortEngine) position(borrower, symbol string) *domain.ShortPosition {
	bySymbol := se.positions[borrower]
	if bySymbol == nil {
		return nil
	}
	return bySymbol[symbol]
}
