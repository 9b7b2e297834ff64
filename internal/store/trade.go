package store

import (
	"sync"
	"time"

	"github.com/statxchange/statxchange/internal/domain"
)

// TradeStore is a thread-safe in-memory store for trades,
// keyed by symbol. Trades are append-only and chronological.
type TradeStore struct {
	mu     sync.RWMutex
	trades map[string][]*domain.Trade // symbol → trades (chronological)
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		trades: make(map[string][]*domain.Trade),
	}
}

// Append adds a trade to the symbol's chronological list.
func (s *TradeStore) Append(symbol string, t *domain.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades[symbol] = append(s.trades[symbol], t)
}

// GetBySymbol returns all trades for a symbol in chronological order.
// Returns an empty slice if no trades exist for the symbol.
func (s *TradeStore) GetBySymbol(symbol string) []*domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := s.trades[symbol]
	if trades == nil {
		return []*domain.Trade{}
	}

	// Return a copy to avoid callers mutating the internal slice.
	result := make([]*domain.Trade, len(trades))
	copy(result, trades)
	return result
}

// VolumeSince sums traded quantity for a symbol with executed_at at or
// after the cutoff. The price formation engine calls this once per tick
// with the previous tick's timestamp.
func (s *TradeStore) VolumeSince(symbol string, cutoff time.Time) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := s.trades[symbol]
	var vol int64
	for i := len(trades) - 1; i >= 0; i-- {
		if trades[i].ExecutedAt.Before(cutoff) {
			break
		}
		vol += trades[i].Quantity
	}
	return vol
}
