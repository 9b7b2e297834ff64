package service

import (
	"time"

	"github.com/statxchange/statxchange/internal/domain"
	"github.com/statxchange/statxchange/internal/engine"
	"github.com/statxchange/statxchange/internal/store"
)

// OptionsService exposes chain generation and the option position
// lifecycle over the options engine.
type OptionsService struct {
	securities *store.SecurityStore
	books      *engine.BookManager
	options    *engine.OptionsEngine
}

// NewOptionsService creates an OptionsService with the given dependencies.
func NewOptionsService(securities *store.SecurityStore, books *engine.BookManager, options *engine.OptionsEngine) *OptionsService {
	return &OptionsService{
		securities: securities,
		books:      books,
		options:    options,
	}
}

// GenerateChain creates a fresh chain around the security's current
// price and returns the new contracts.
func (s *OptionsService) GenerateChain(symbol string) ([]*domain.OptionContract, error) {
	sec, err := s.securities.Get(symbol)
	if err != nil {
		return nil, err
	}

	book := s.books.GetOrCreate(symbol)
	book.RLock()
	spot, vol := sec.LastPrice, sec.Volatility
	book.RUnlock()

	return s.options.GenerateChain(symbol, spot, vol, time.Now()), nil
}

// GetChain returns the live contracts for a symbol.
func (s *OptionsService) GetChain(symbol string) ([]*domain.OptionContract, error) {
	if !s.securities.Exists(symbol) {
		return nil, domain.ErrSecurityNotFound
	}
	return s.options.Chain(symbol), nil
}

// Buy opens a long position at the contract's current premium.
func (s *OptionsService) Buy(holder, contractID string, quantity int64) (*domain.OptionPosition, error) {
	if !participantRegex.MatchString(holder) {
		return nil, &domain.ValidationError{Message: "participant must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	return s.options.Buy(holder, contractID, quantity)
}

// Write opens a short position, collecting the current premium.
func (s *OptionsService) Write(holder, contractID string, quantity int64) (*domain.OptionPosition, error) {
	if !participantRegex.MatchString(holder) {
		return nil, &domain.ValidationError{Message: "participant must match ^[a-zA-Z0-9_-]{1,64}$"}
	}
	return s.options.Write(holder, contractID, quantity)
}

// Exercise converts an in-the-money long position into an underlying
// trade at the strike price.
func (s *OptionsService) Exercise(holder, positionID string) (*engine.ExerciseResult, error) {
	return s.options.Exercise(holder, positionID, time.Now())
}

// Close removes a position at the current premium and returns the
// realized P&L in cents.
func (s *OptionsService) Close(holder, positionID string) (int64, error) {
	return s.options.Close(holder, positionID)
}

// Positions returns the holder's open option positions.
func (s *OptionsService) Positions(holder string) []*domain.OptionPosition {
	return s.options.PositionsByHolder(holder)
}
