package service

import (
	"regexp"
	"time"

	"github.com/statxchange/statxchange/internal/domain"
	"github.com/statxchange/statxchange/internal/engine"
	"github.com/statxchange/statxchange/internal/store"
)

var symbolRegex = regexp.MustCompile(`^[A-Z]{1,10}$`)

// CreateSecurityRequest represents the input for security registration.
type CreateSecurityRequest struct {
	Symbol           string
	Fundamental      float64  // dollars
	InitialPrice     *float64 // dollars, defaults to the fundamental score
	Volatility       *float64 // annualized, defaults to 0.25
	FloatOutstanding int64
}

// SecurityResponse is the registry snapshot exposed over the API.
type SecurityResponse struct {
	Symbol            string
	Fundamental       float64
	LastPrice         int64
	BidPrice          int64
	AskPrice          int64
	Volatility        float64
	FloatOutstanding  int64
	ShortInterest     float64
	AvailableToBorrow int64
	Halted            bool
	UpdatedAt         time.Time
}

// SecurityService handles registration and fundamental-score updates,
// the external statistics feed's entry points.
type SecurityService struct {
	securities *store.SecurityStore
	books      *engine.BookManager
	shorts     *engine.ShortEngine
	breaker    *engine.CircuitBreaker
}

// NewSecurityService creates a SecurityService with the given dependencies.
func NewSecurityService(
	securities *store.SecurityStore,
	books *engine.BookManager,
	shorts *engine.ShortEngine,
	breaker *engine.CircuitBreaker,
) *SecurityService {
	return &SecurityService{
		securities: securities,
		books:      books,
		shorts:     shorts,
		breaker:    breaker,
	}
}

// Create validates and registers a security and seeds its borrow pool.
func (s *SecurityService) Create(req CreateSecurityRequest) (*SecurityResponse, error) {
	if !symbolRegex.MatchString(req.Symbol) {
		return nil, &domain.ValidationError{Message: "symbol must match ^[A-Z]{1,10}$"}
	}
	if req.Fundamental <= 0 {
		return nil, &domain.ValidationError{Message: "fundamental must be greater than 0"}
	}
	if req.FloatOutstanding <= 0 {
		return nil, &domain.ValidationError{Message: "float_outstanding must be a positive integer"}
	}

	initial := req.Fundamental
	if req.InitialPrice != nil {
		initial = *req.InitialPrice
	}
	initialCents, err := domain.DollarsToCents(initial)
	if err != nil || initialCents <= 0 {
		return nil, &domain.ValidationError{Message: "initial_price must be a positive dollar amount with at most 2 decimal places"}
	}

	vol := 0.25
	if req.Volatility != nil {
		vol = *req.Volatility
	}
	if vol <= 0 {
		return nil, &domain.ValidationError{Message: "volatility must be greater than 0"}
	}

	sec := domain.NewSecurity(req.Symbol, req.Fundamental, initialCents, vol, req.FloatOutstanding)
	if err := s.securities.Create(sec); err != nil {
		return nil, err
	}
	s.shorts.InitPool(req.Symbol, req.FloatOutstanding)

	return s.snapshot(sec), nil
}

// Get returns the registry snapshot for a symbol.
func (s *SecurityService) Get(symbol string) (*SecurityResponse, error) {
	sec, err := s.securities.Get(symbol)
	if err != nil {
		return nil, err
	}

	book := s.books.GetOrCreate(symbol)
	book.RLock()
	defer book.RUnlock()
	return s.snapshot(sec), nil
}

// List returns snapshots for every registered security.
func (s *SecurityService) List() []*SecurityResponse {
	out := make([]*SecurityResponse, 0)
	for _, symbol := range s.securities.Symbols() {
		if snap, err := s.Get(symbol); err == nil {
			out = append(out, snap)
		}
	}
	return out
}

// UpdateFundamental applies a fundamental-score update from the
// external statistics feed. The new score takes effect on the next tick.
func (s *SecurityService) UpdateFundamental(symbol string, score float64) error {
	if score <= 0 {
		return &domain.ValidationError{Message: "fundamental must be greater than 0"}
	}
	sec, err := s.securities.Get(symbol)
	if err != nil {
		return err
	}

	book := s.books.GetOrCreate(symbol)
	book.Lock()
	sec.FundamentalScore = score
	book.Unlock()
	return nil
}

// snapshot builds a response from a security. Caller holds at least the
// read lock for consistent price fields.
func (s *SecurityService) snapshot(sec *domain.Security) *SecurityResponse {
	available, _ := s.shorts.AvailableToBorrow(sec.Symbol)
	return &SecurityResponse{
		Symbol:            sec.Symbol,
		Fundamental:       sec.FundamentalScore,
		LastPrice:         sec.LastPrice,
		BidPrice:          sec.BidPrice,
		AskPrice:          sec.AskPrice,
		Volatility:        sec.Volatility,
		FloatOutstanding:  sec.FloatOutstanding,
		ShortInterest:     s.shorts.ShortInterest(sec.Symbol),
		AvailableToBorrow: available,
		Halted:            s.breaker.Halted(sec.Symbol),
		UpdatedAt:         sec.UpdatedAt,
	}
}
