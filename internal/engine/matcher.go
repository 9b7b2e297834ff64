package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/statxchange/statxchange/internal/domain"
	"github.com/statxchange/statxchange/internal/events"
	"github.com/statxchange/statxchange/internal/store"
)

// QuotePriceLevel represents a single price level in a quote simulation.
type QuotePriceLevel struct {
	Price    int64
	Quantity int64
}

// QuoteResult holds the result of a market order simulation.
type QuoteResult struct {
	QuantityAvailable int64
	FullyFillable     bool
	EstimatedAvgPrice *int64 // nil when no liquidity
	EstimatedTotal    *int64 // nil when no liquidity
	PriceLevels       []QuotePriceLevel
}

// HaltGate is the matcher's view of the circuit breaker: it only needs
// to know whether trading in a symbol is halted.
type HaltGate interface {
	Halted(symbol string) bool
}

// Matcher implements the matching engine for limit and market orders.
// Every fill executes at the resting (maker) order's price; the
// incoming order is the taker.
type Matcher struct {
	books      *BookManager
	securities *store.SecurityStore
	orderStore *store.OrderStore
	tradeStore *store.TradeStore
	gate       HaltGate
	bus        *events.Bus
}

// NewMatcher creates a new Matcher with the given dependencies.
func NewMatcher(
	books *BookManager,
	securities *store.SecurityStore,
	orderStore *store.OrderStore,
	tradeStore *store.TradeStore,
	gate HaltGate,
	bus *events.Bus,
) *Matcher {
	return &Matcher{
		books:      books,
		securities: securities,
		orderStore: orderStore,
		tradeStore: tradeStore,
		gate:       gate,
		bus:        bus,
	}
}

// MatchLimitOrder processes an incoming limit order through the matching
// engine. It validates the order before any state mutation, runs the
// match loop against the opposite side of the book at per-level
// price-time priority, and rests any unfilled remainder on the book.
//
// While the circuit breaker is halted, limit orders that would cross the
// opposite side are rejected with ErrTradingHalted; non-crossing orders
// may still queue.
//
// The caller must provide an Order with Type, Participant, Side, Symbol,
// Price and Quantity set. The matcher assigns OrderID, CreatedAt, and
// manages all status transitions.
//
// The per-security write lock is held for the entire matching pass.
func (m *Matcher) MatchLimitOrder(order *domain.Order) ([]*domain.Trade, error) {
	if err := validateIncoming(order, true); err != nil {
		return nil, err
	}
	if !m.securities.Exists(order.Symbol) {
		return nil, domain.ErrSecurityNotFound
	}

	book := m.books.GetOrCreate(order.Symbol)

	book.mu.Lock()
	defer book.mu.Unlock()

	if m.gate != nil && m.gate.Halted(order.Symbol) && book.Crossed(order.Side, order.Price) {
		return nil, domain.ErrTradingHalted
	}

	m.initOrder(order)

	trades := m.matchLoop(book, order, false)

	// Rest any unfilled remainder.
	if order.RemainingQuantity > 0 {
		entry := OrderBookEntry{
			Price:     order.Price,
			CreatedAt: order.CreatedAt,
			OrderID:   order.OrderID,
			Order:     order,
		}
		if order.Side == domain.OrderSideBid {
			book.InsertBid(entry)
		} else {
			book.InsertAsk(entry)
		}
	}

	m.publishBook(book)
	return trades, nil
}

// MatchMarketOrder processes an incoming market order through the
// matching engine. Market orders use IOC (Immediate or Cancel)
// semantics: fill what is available at resting prices, cancel the
// remainder. They are never placed on the book and are rejected
// outright while the circuit breaker is halted.
func (m *Matcher) MatchMarketOrder(order *domain.Order) ([]*domain.Trade, error) {
	if err := validateIncoming(order, false); err != nil {
		return nil, err
	}
	if !m.securities.Exists(order.Symbol) {
		return nil, domain.ErrSecurityNotFound
	}

	book := m.books.GetOrCreate(order.Symbol)

	book.mu.Lock()
	defer book.mu.Unlock()

	if m.gate != nil && m.gate.Halted(order.Symbol) {
		return nil, domain.ErrTradingHalted
	}

	// No-liquidity check: if the opposite side is empty, reject
	// before creating the order record.
	if order.Side == domain.OrderSideBid {
		if _, ok := book.BestAsk(); !ok {
			return nil, domain.ErrNoLiquidity
		}
	} else {
		if _, ok := book.BestBid(); !ok {
			return nil, domain.ErrNoLiquidity
		}
	}

	m.initOrder(order)

	trades := m.matchLoop(book, order, true)

	// IOC cancellation, never rests on the book.
	if order.RemainingQuantity > 0 {
		order.CancelledQuantity = order.RemainingQuantity
		order.RemainingQuantity = 0
		if order.FilledQuantity == order.Quantity {
			order.Status = domain.OrderStatusFilled
		} else {
			order.Status = domain.OrderStatusCancelled
		}
	}

	m.publishBook(book)
	return trades, nil
}

// validateIncoming rejects malformed orders before any state mutation.
func validateIncoming(order *domain.Order, limit bool) error {
	if order.Quantity <= 0 {
		return &domain.ValidationError{Message: "quantity must be a positive integer"}
	}
	if limit && order.Price <= 0 {
		return &domain.ValidationError{Message: "price must be greater than 0"}
	}
	if order.Side != domain.OrderSideBid && order.Side != domain.OrderSideAsk {
		return &domain.ValidationError{Message: "side must be 'bid' or 'ask'"}
	}
	return nil
}

// initOrder assigns identity and initial state, and records the order.
func (m *Matcher) initOrder(order *domain.Order) {
	order.OrderID = uuid.New().String()
	order.CreatedAt = time.Now()
	order.RemainingQuantity = order.Quantity
	order.FilledQuantity = 0
	order.CancelledQuantity = 0
	order.Status = domain.OrderStatusOpen
	order.Trades = []*domain.Trade{}

	m.orderStore.Create(order)
}

// matchLoop repeatedly crosses the incoming order against the best
// opposite resting order until the incoming order is exhausted or no
// crossing order remains. Each fill executes min(remaining-incoming,
// remaining-resting) at the resting order's price. For market orders
// the price compatibility check is skipped.
func (m *Matcher) matchLoop(book *OrderBook, order *domain.Order, market bool) []*domain.Trade {
	executedAt := time.Now()
	var trades []*domain.Trade

	for order.RemainingQuantity > 0 {
		var bestEntry OrderBookEntry
		var found bool

		if order.Side == domain.OrderSideBid {
			bestEntry, found = book.BestAsk()
		} else {
			bestEntry, found = book.BestBid()
		}
		if !found {
			break
		}

		if !market {
			if order.Side == domain.OrderSideBid {
				if order.Price < bestEntry.Price {
					break
				}
			} else {
				if bestEntry.Price < order.Price {
					break
				}
			}
		}

		resting := bestEntry.Order

		fillQty := order.RemainingQuantity
		if resting.RemainingQuantity < fillQty {
			fillQty = resting.RemainingQuantity
		}

		// Maker sets the price: every fill executes at the resting
		// order's limit, whatever the incoming order's limit was.
		executionPrice := resting.Price

		order.RemainingQuantity -= fillQty
		order.FilledQuantity += fillQty
		resting.RemainingQuantity -= fillQty
		resting.FilledQuantity += fillQty

		if order.RemainingQuantity == 0 {
			order.Status = domain.OrderStatusFilled
		} else {
			order.Status = domain.OrderStatusPartiallyFilled
		}
		if resting.RemainingQuantity == 0 {
			resting.Status = domain.OrderStatusFilled
		} else {
			resting.Status = domain.OrderStatusPartiallyFilled
		}

		var buyID, sellID string
		if order.Side == domain.OrderSideBid {
			buyID, sellID = order.OrderID, resting.OrderID
		} else {
			buyID, sellID = resting.OrderID, order.OrderID
		}

		trade := &domain.Trade{
			TradeID:     uuid.New().String(),
			Symbol:      order.Symbol,
			BuyOrderID:  buyID,
			SellOrderID: sellID,
			Price:       executionPrice,
			Quantity:    fillQty,
			ExecutedAt:  executedAt,
		}

		order.Trades = append(order.Trades, trade)
		resting.Trades = append(resting.Trades, trade)
		trades = append(trades, trade)

		m.tradeStore.Append(order.Symbol, trade)
		if m.bus != nil {
			m.bus.Publish(events.TypeTradeExecuted, order.Symbol, events.TradeExecutedPayload{
				Price:       trade.Price,
				Quantity:    trade.Quantity,
				BuyOrderID:  trade.BuyOrderID,
				SellOrderID: trade.SellOrderID,
			})
		}

		if resting.RemainingQuantity == 0 {
			book.Remove(resting.OrderID)
		}
	}

	return trades
}

// CancelOrder cancels an open or partially filled order. It acquires
// the per-security write lock, checks ownership and status, removes the
// order from the book, and updates order fields.
//
// Returns ErrOrderNotFound if the order does not exist,
// ErrUnauthorized if the requester is not the order's owner,
// ErrAlreadyFilled if the order has fully filled, and
// ErrOrderNotCancellable for other terminal states.
func (m *Matcher) CancelOrder(orderID, requester string) (*domain.Order, error) {
	order, err := m.orderStore.Get(orderID)
	if err != nil {
		return nil, domain.ErrOrderNotFound
	}
	if order.Participant != requester {
		return nil, domain.ErrUnauthorized
	}

	book := m.books.GetOrCreate(order.Symbol)
	book.mu.Lock()
	defer book.mu.Unlock()

	// Check status under lock (a concurrent match may have filled it).
	switch order.Status {
	case domain.OrderStatusOpen, domain.OrderStatusPartiallyFilled:
	case domain.OrderStatusFilled:
		return nil, domain.ErrAlreadyFilled
	default:
		return nil, domain.ErrOrderNotCancellable
	}

	book.Remove(order.OrderID)

	now := time.Now()
	order.CancelledQuantity = order.RemainingQuantity
	order.RemainingQuantity = 0
	order.Status = domain.OrderStatusCancelled
	order.CancelledAt = &now

	m.publishBook(book)
	return order, nil
}

// SimulateMarketOrder performs a read-only walk of the opposite side of
// the book to estimate the result of a market order without placing it.
// For bid quotes it walks asks (lowest first); for ask quotes it walks
// bids (highest first).
func (m *Matcher) SimulateMarketOrder(symbol string, side domain.OrderSide, quantity int64) *QuoteResult {
	book := m.books.GetOrCreate(symbol)

	book.mu.RLock()
	defer book.mu.RUnlock()

	result := &QuoteResult{
		PriceLevels: make([]QuotePriceLevel, 0),
	}

	var remaining int64 = quantity
	var totalCost int64

	walkFn := func(entry OrderBookEntry) bool {
		if remaining <= 0 {
			return false
		}
		fillQty := entry.Order.RemainingQuantity
		if fillQty > remaining {
			fillQty = remaining
		}
		totalCost += entry.Price * fillQty
		result.QuantityAvailable += fillQty
		remaining -= fillQty

		if len(result.PriceLevels) > 0 && result.PriceLevels[len(result.PriceLevels)-1].Price == entry.Price {
			result.PriceLevels[len(result.PriceLevels)-1].Quantity += fillQty
		} else {
			result.PriceLevels = append(result.PriceLevels, QuotePriceLevel{
				Price:    entry.Price,
				Quantity: fillQty,
			})
		}
		return true
	}

	if side == domain.OrderSideBid {
		book.WalkAsks(walkFn)
	} else {
		book.WalkBids(walkFn)
	}

	if result.QuantityAvailable > 0 {
		avgPrice := totalCost / result.QuantityAvailable
		result.EstimatedAvgPrice = &avgPrice
		result.EstimatedTotal = &totalCost
	}
	result.FullyFillable = result.QuantityAvailable >= quantity

	return result
}

// publishBook emits an ORDERBOOK_UPDATE with the current top of book.
// Publish is non-blocking, so this is safe under the book lock.
func (m *Matcher) publishBook(book *OrderBook) {
	if m.bus == nil {
		return
	}
	const levels = 10
	snap := book.Depth(levels)
	m.bus.Publish(events.TypeOrderBookUpdate, book.symbol, events.OrderBookUpdatePayload{
		Bids:   toBookLevels(snap.Bids),
		Asks:   toBookLevels(snap.Asks),
		Spread: snap.Spread,
	})
}

func toBookLevels(levels []PriceLevel) []events.BookLevel {
	out := make([]events.BookLevel, len(levels))
	for i, l := range levels {
		out[i] = events.BookLevel{Price: l.Price, Quantity: l.TotalQuantity, Orders: l.OrderCount}
	}
	return out
}
