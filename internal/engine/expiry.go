package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/statxchange/statxchange/internal/domain"
)

// ExpiryManager tracks resting limit orders sorted by expires_at and
// periodically expires orders whose expiration time has passed. Expiry
// is idempotent: an order that was filled or cancelled since being
// scheduled is skipped.
type ExpiryManager struct {
	interval     time.Duration
	books        *BookManager
	matcher      *Matcher
	activeOrders []*domain.Order // sorted by expires_at ASC
	mu           sync.Mutex      // protects activeOrders slice
}

// NewExpiryManager creates a new ExpiryManager with the given dependencies.
func NewExpiryManager(interval time.Duration, books *BookManager, matcher *Matcher) *ExpiryManager {
	return &ExpiryManager{
		interval:     interval,
		books:        books,
		matcher:      matcher,
		activeOrders: make([]*domain.Order, 0),
	}
}

// Add inserts an order into the sorted activeOrders slice, maintaining
// expires_at ASC order. Only call this for limit orders that rest on the book.
func (e *ExpiryManager) Add(order *domain.Order) {
	if order.ExpiresAt == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	expiresAt := *order.ExpiresAt
	// Binary search for the insertion point.
	idx := sort.Search(len(e.activeOrders), func(i int) bool {
		return e.activeOrders[i].ExpiresAt.After(expiresAt)
	})
	// Insert at idx.
	e.activeOrders = append(e.activeOrders, nil)
	copy(e.activeOrders[idx+1:], e.activeOrders[idx:])
	e.activeOrders[idx] = order
}

// Remove deletes an order from the activeOrders slice by order ID.
func (e *ExpiryManager) Remove(orderID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, o := range e.activeOrders {
		if o.OrderID == orderID {
			e.activeOrders = append(e.activeOrders[:i], e.activeOrders[i+1:]...)
			return
		}
	}
}

// Start launches a background goroutine that ticks at the configured
// interval and expires orders. It stops when ctx is cancelled.
func (e *ExpiryManager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(e.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				e.ExpireOrders(t)
			}
		}
	}()
}

// ExpireOrders transitions every tracked open or partially filled order
// with expires_at <= now to expired and removes it from its book.
func (e *ExpiryManager) ExpireOrders(now time.Time) {
	// Collect orders to expire under the expiry manager lock.
	e.mu.Lock()
	var toExpire []*domain.Order
	cutoff := 0
	for cutoff < len(e.activeOrders) {
		o := e.activeOrders[cutoff]
		if o.ExpiresAt == nil || o.ExpiresAt.After(now) {
			break
		}
		toExpire = append(toExpire, o)
		cutoff++
	}
	// Remove expired orders from the front of the slice.
	if cutoff > 0 {
		e.activeOrders = e.activeOrders[cutoff:]
	}
	e.mu.Unlock()

	for _, order := range toExpire {
		e.expireOrder(order)
	}
}

// expireOrder handles the expiration of a single order: acquires the
// per-security write lock, re-checks status, transitions to expired,
// and removes the order from the book.
func (e *ExpiryManager) expireOrder(order *domain.Order) {
	book := e.books.GetOrCreate(order.Symbol)
	book.mu.Lock()
	defer book.mu.Unlock()

	// Re-check status (may have been filled/cancelled since last check).
	switch order.Status {
	case domain.OrderStatusOpen, domain.OrderStatusPartiallyFilled:
	default:
		return
	}

	order.CancelledQuantity = order.RemainingQuantity
	order.RemainingQuantity = 0
	order.Status = domain.OrderStatusExpired
	order.ExpiredAt = order.ExpiresAt

	book.Remove(order.OrderID)

	if e.matcher != nil {
		e.matcher.publishBook(book)
	}
}

// ActiveOrderCount returns the number of orders currently tracked for
// expiration. Useful for testing.
func (e *ExpiryManager) ActiveOrderCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.activeOrders)
}
