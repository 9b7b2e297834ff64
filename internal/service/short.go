package service

import (
	"time"

	"github.com/statxchange/statxchange/internal/domain"
	"github.com/statxchange/statxchange/internal/engine"
	"github.com/statxchange/statxchange/internal/store"
)

// ShortSellResponse reports the opened/extended position and proceeds.
type ShortSellResponse struct {
	Position *domain.ShortPosition
	Proceeds int64 // cents, credited at the current price
}

// ShortService exposes the short selling engine. Execution prices come
// from the registry's current last price; short sales and covers are
// market-style executions and are rejected while trading is halted.
type ShortService struct {
	securities *store.SecurityStore
	books      *engine.BookManager
	shorts     *engine.ShortEngine
	breaker    *engine.CircuitBreaker
}

// NewShortService creates a ShortService with the given dependencies.
func NewShortService(
	securities *store.SecurityStore,
	books *engine.BookManager,
	shorts *engine.ShortEngine,
	breaker *engine.CircuitBreaker,
) *ShortService {
	return &ShortService{
		securities: securities,
		books:      books,
		shorts:     shorts,
		breaker:    breaker,
	}
}

// currentPrice reads the registry's last price under the book lock.
func (s *ShortService) currentPrice(symbol string) (int64, error) {
	sec, err := s.securities.Get(symbol)
	if err != nil {
		return 0, err
	}
	book := s.books.GetOrCreate(symbol)
	book.RLock()
	defer book.RUnlock()
	return sec.LastPrice, nil
}

// ShortSell borrows and sells qty shares at the current price.
func (s *ShortService) ShortSell(borrower, symbol string, qty int64) (*ShortSellResponse, error) {
	if !participantRegex.MatchString(borrower) {
		return nil, &domain.ValidationError{Message: "participant must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	if s.breaker.Halted(symbol) {
		return nil, domain.ErrTradingHalted
	}

	price, err := s.currentPrice(symbol)
	if err != nil {
		return nil, err
	}
	pos, proceeds, err := s.shorts.ShortSell(borrower, symbol, qty, price, time.Now())
	if err != nil {
		return nil, err
	}
	return &ShortSellResponse{Position: pos, Proceeds: proceeds}, nil
}

// CoverShort buys back qty shares at the current price and returns them
// to the borrow pool.
func (s *ShortService) CoverShort(borrower, symbol string, qty int64) (*engine.CoverResult, error) {
	if !participantRegex.MatchString(borrower) {
		return nil, &domain.ValidationError{Message: "participant must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	if s.breaker.Halted(symbol) {
		return nil, domain.ErrTradingHalted
	}

	price, err := s.currentPrice(symbol)
	if err != nil {
		return nil, err
	}
	return s.shorts.CoverShort(borrower, symbol, qty, price, time.Now())
}

// ForceLiquidate covers a position in full at the current price. It is
// invoked by an external risk collaborator against margin-called
// positions; the core never triggers it implicitly.
func (s *ShortService) ForceLiquidate(borrower, symbol string) (*engine.CoverResult, error) {
	price, err := s.currentPrice(symbol)
	if err != nil {
		return nil, err
	}
	return s.shorts.ForceLiquidate(borrower, symbol, price, time.Now())
}

// AvailableToBorrow returns the lendable shares remaining for a symbol.
func (s *ShortService) AvailableToBorrow(symbol string) (int64, error) {
	if !s.securities.Exists(symbol) {
		return 0, domain.ErrSecurityNotFound
	}
	return s.shorts.AvailableToBorrow(symbol)
}

// Positions returns the borrower's open short positions.
func (s *ShortService) Positions(borrower string) []*domain.ShortPosition {
	return s.shorts.PositionsByBorrower(borrower)
}
