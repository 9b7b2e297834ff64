package service

import (
	"time"

	"github.com/statxchange/statxchange/internal/domain"
	"github.com/statxchange/statxchange/internal/engine"
	"github.com/statxchange/statxchange/internal/store"
)

// BookPriceLevel represents an aggregated price level in the book response.
type BookPriceLevel struct {
	Price         int64
	TotalQuantity int64
	OrderCount    int
}

// BookResponse represents the depth snapshot exposed over the API.
type BookResponse struct {
	Symbol     string
	Bids       []BookPriceLevel
	Asks       []BookPriceLevel
	Spread     int64
	SnapshotAt time.Time
}

// QuotePriceLevel represents a single price level in the quote response.
type QuotePriceLevel struct {
	Price    int64
	Quantity int64
}

// QuoteResponse represents the result of a market order simulation.
type QuoteResponse struct {
	Symbol            string
	Side              domain.OrderSide
	QuantityRequested int64
	QuantityAvailable int64
	FullyFillable     bool
	EstimatedAvgPrice *int64 // nil when no liquidity
	EstimatedTotal    *int64 // nil when no liquidity
	PriceLevels       []QuotePriceLevel
	QuotedAt          time.Time
}

// MarketDataService serves order book depth and quote simulations.
type MarketDataService struct {
	securities *store.SecurityStore
	books      *engine.BookManager
	matcher    *engine.Matcher
}

// NewMarketDataService creates a MarketDataService with the given dependencies.
func NewMarketDataService(securities *store.SecurityStore, books *engine.BookManager, matcher *engine.Matcher) *MarketDataService {
	return &MarketDataService{
		securities: securities,
		books:      books,
		matcher:    matcher,
	}
}

// GetBook returns the top N price levels of the order book for a symbol.
func (s *MarketDataService) GetBook(symbol string, depth int) (*BookResponse, error) {
	if !s.securities.Exists(symbol) {
		return nil, domain.ErrSecurityNotFound
	}
	if depth < 1 || depth > 50 {
		return nil, &domain.ValidationError{Message: "depth must be between 1 and 50"}
	}

	book := s.books.GetOrCreate(symbol)
	book.RLock()
	snap := book.Depth(depth)
	book.RUnlock()

	bids := make([]BookPriceLevel, len(snap.Bids))
	for i, pl := range snap.Bids {
		bids[i] = BookPriceLevel{Price: pl.Price, TotalQuantity: pl.TotalQuantity, OrderCount: pl.OrderCount}
	}
	asks := make([]BookPriceLevel, len(snap.Asks))
	for i, pl := range snap.Asks {
		asks[i] = BookPriceLevel{Price: pl.Price, TotalQuantity: pl.TotalQuantity, OrderCount: pl.OrderCount}
	}

	return &BookResponse{
		Symbol:     symbol,
		Bids:       bids,
		Asks:       asks,
		Spread:     snap.Spread,
		SnapshotAt: snap.TakenAt,
	}, nil
}

// GetQuote simulates a market order against the current book and returns
// the estimated result without placing an order.
func (s *MarketDataService) GetQuote(symbol string, side domain.OrderSide, quantity int64) (*QuoteResponse, error) {
	if !s.securities.Exists(symbol) {
		return nil, domain.ErrSecurityNotFound
	}
	if side != domain.OrderSideBid && side != domain.OrderSideAsk {
		return nil, &domain.ValidationError{Message: "side must be 'bid' or 'ask'"}
	}
	if quantity <= 0 {
		return nil, &domain.ValidationError{Message: "quantity must be a positive integer"}
	}

	result := s.matcher.SimulateMarketOrder(symbol, side, quantity)

	priceLevels := make([]QuotePriceLevel, len(result.PriceLevels))
	for i, pl := range result.PriceLevels {
		priceLevels[i] = QuotePriceLevel{Price: pl.Price, Quantity: pl.Quantity}
	}

	return &QuoteResponse{
		Symbol:            symbol,
		Side:              side,
		QuantityRequested: quantity,
		QuantityAvailable: result.QuantityAvailable,
		FullyFillable:     result.FullyFillable,
		EstimatedAvgPrice: result.EstimatedAvgPrice,
		EstimatedTotal:    result.EstimatedTotal,
		PriceLevels:       priceLevels,
		QuotedAt:          time.Now(),
	}, nil
}
