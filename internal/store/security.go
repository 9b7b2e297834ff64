package store

import (
	"sort"
	"sync"

	"github.com/statxchange/statxchange/internal/domain"
)

// SecurityStore is the registry of Security records, keyed by symbol.
// The store's lock only guards the map itself; the fields of an
// individual Security are mutated exclusively under that security's
// book lock, which serializes matching and the tick pipeline.
type SecurityStore struct {
	mu         sync.RWMutex
	securities map[string]*domain.Security
}

// NewSecurityStore creates an empty SecurityStore.
func NewSecurityStore() *SecurityStore {
	return &SecurityStore{
		securities: make(map[string]*domain.Security),
	}
}

// Create registers a security. It returns
// domain.ErrSecurityAlreadyExists if the symbol is taken.
func (s *SecurityStore) Create(sec *domain.Security) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.securities[sec.Symbol]; ok {
		return domain.ErrSecurityAlreadyExists
	}
	s.securities[sec.Symbol] = sec
	return nil
}

// Get retrieves a security by symbol. It returns
// domain.ErrSecurityNotFound if the symbol is unknown.
func (s *SecurityStore) Get(symbol string) (*domain.Security, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sec, ok := s.securities[symbol]
	if !ok {
		return nil, domain.ErrSecurityNotFound
	}
	return sec, nil
}

// Exists reports whether the symbol is registered.
func (s *SecurityStore) Exists(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.securities[symbol]
	return ok
}

// Symbols returns all registered symbols in lexical order.
func (s *SecurityStore) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.securities))
	for sym := range s.securities {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
