package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/statxchange/statxchange/internal/domain"
	"github.com/statxchange/statxchange/internal/events"
	"github.com/statxchange/statxchange/internal/store"
)

// TickEngine drives the per-security pipeline at a fixed interval:
// price formation → circuit breaker → registry commit → options
// recompute → order book depth recompute → event emission. The steps
// for one security run under that security's book lock and are never
// interleaved; securities are independent of one another.
type TickEngine struct {
	interval   time.Duration
	securities *store.SecurityStore
	books      *BookManager
	pricing    *PriceFormation
	breaker    *CircuitBreaker
	options    *OptionsEngine
	shorts     *ShortEngine
	trades     *store.TradeStore
	bus        *events.Bus
	logger     *slog.Logger

	mu        sync.Mutex
	lastTick  map[string]time.Time // previous tick per symbol, for volume windows
	corrupted map[string]error     // securities failed closed after an invariant violation
}

// NewTickEngine creates a TickEngine with the given collaborators.
func NewTickEngine(
	interval time.Duration,
	securities *store.SecurityStore,
	books *BookManager,
	pricing *PriceFormation,
	breaker *CircuitBreaker,
	options *OptionsEngine,
	shorts *ShortEngine,
	trades *store.TradeStore,
	bus *events.Bus,
	logger *slog.Logger,
) *TickEngine {
	if logger == nil {
		logger = slog.Default()
	}
	return &TickEngine{
		interval:   interval,
		securities: securities,
		books:      books,
		pricing:    pricing,
		breaker:    breaker,
		options:    options,
		shorts:     shorts,
		trades:     trades,
		bus:        bus,
		logger:     logger,
		lastTick:   make(map[string]time.Time),
		corrupted:  make(map[string]error),
	}
}

// Start launches a background goroutine that runs the pipeline at the
// configured interval. It stops when ctx is cancelled.
func (te *TickEngine) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(te.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				te.Tick(t)
			}
		}
	}()
}

// Tick advances price formation, circuit-breaker evaluation and options
// recalculation for every registered security.
func (te *TickEngine) Tick(now time.Time) {
	for _, symbol := range te.securities.Symbols() {
		te.tickSecurity(symbol, now)
	}
}

// Corrupted returns the invariant violation that failed the security's
// pipeline closed, or nil.
func (te *TickEngine) Corrupted(symbol string) error {
	te.mu.Lock()
	defer te.mu.Unlock()
	return te.corrupted[symbol]
}

func (te *TickEngine) tickSecurity(symbol string, now time.Time) {
	te.mu.Lock()
	if err := te.corrupted[symbol]; err != nil {
		te.mu.Unlock()
		return
	}
	since, seen := te.lastTick[symbol]
	te.lastTick[symbol] = now
	te.mu.Unlock()
	if !seen {
		since = now.Add(-te.interval)
	}

	te.breaker.Tick(symbol, now)

	sec, err := te.securities.Get(symbol)
	if err != nil {
		return
	}

	book := te.books.GetOrCreate(symbol)
	book.mu.Lock()
	defer book.mu.Unlock()

	if err := checkBookIntegrity(book); err != nil {
		te.failClosed(symbol, err)
		return
	}

	depth := book.Depth(10)
	volume := te.trades.VolumeSince(symbol, since)

	candidate := te.pricing.Next(PricingInputs{
		LastPrice:     sec.LastPrice,
		Fundamental:   sec.FundamentalScore,
		BidDepth:      depth.BidDepth,
		AskDepth:      depth.AskDepth,
		Volume:        volume,
		ShortInterest: te.shorts.ShortInterest(symbol),
		Volatility:    sec.Volatility,
	})

	// The breaker is the last gate on every price change: a rejected
	// candidate leaves the registry on the prior price.
	if te.breaker.Evaluate(symbol, candidate.Price, sec.LastPrice, now) {
		prev := sec.LastPrice
		sec.Commit(candidate.Price, candidate.Bid, candidate.Ask, now)
		sec.ObserveReturn(prev, candidate.Price)

		if te.bus != nil {
			te.bus.Publish(events.TypePriceUpdate, symbol, events.PriceUpdatePayload{
				LastPrice: sec.LastPrice,
				Bid:       sec.BidPrice,
				Ask:       sec.AskPrice,
				PctChange: candidate.PctChange,
			})
		}
	}

	te.options.Recalculate(symbol, sec.LastPrice, sec.Volatility, now)
	for _, res := range te.options.Settle(symbol, now) {
		te.logger.Info("auto-exercised expiring position",
			slog.String("symbol", res.Symbol),
			slog.String("holder", res.Holder),
			slog.String("type", string(res.Type)),
			slog.Int64("strike", res.Strike),
			slog.Int64("quantity", res.Quantity),
		)
	}

	te.shorts.UpdateMarginFlags(symbol, sec.LastPrice)

	if te.bus != nil {
		snap := book.Depth(10)
		te.bus.Publish(events.TypeOrderBookUpdate, symbol, events.OrderBookUpdatePayload{
			Bids:   toBookLevels(snap.Bids),
			Asks:   toBookLevels(snap.Asks),
			Spread: snap.Spread,
		})
	}
}

// failClosed halts all further mutation of a security's pipeline after
// a mid-tick invariant violation and surfaces it loudly.
func (te *TickEngine) failClosed(symbol string, err error) {
	te.mu.Lock()
	te.corrupted[symbol] = err
	te.mu.Unlock()
	te.logger.Error("security pipeline failed closed",
		slog.String("symbol", symbol),
		slog.String("error", err.Error()),
	)
}

// checkBookIntegrity verifies the resting-order invariants: remaining
// quantities are positive, filled never exceeds quantity, and no
// resting bid crosses a resting ask. Caller holds the book lock.
func checkBookIntegrity(book *OrderBook) error {
	var err error
	verify := func(entry OrderBookEntry) bool {
		o := entry.Order
		if o.RemainingQuantity < 0 {
			err = fmt.Errorf("%w: order %s has negative remaining quantity %d",
				domain.ErrPipelineCorrupted, o.OrderID, o.RemainingQuantity)
			return false
		}
		if o.FilledQuantity > o.Quantity {
			err = fmt.Errorf("%w: order %s filled %d exceeds quantity %d",
				domain.ErrPipelineCorrupted, o.OrderID, o.FilledQuantity, o.Quantity)
			return false
		}
		return true
	}
	book.WalkBids(verify)
	if err != nil {
		return err
	}
	book.WalkAsks(verify)
	if err != nil {
		return err
	}

	bestBid, hasBid := book.BestBid()
	bestAsk, hasAsk := book.BestAsk()
	if hasBid && hasAsk && bestBid.Price >= bestAsk.Price {
		return fmt.Errorf("%w: book crossed, best bid %d >= best ask %d",
			domain.ErrPipelineCorrupted, bestBid.Price, bestAsk.Price)
	}
	return nil
}
