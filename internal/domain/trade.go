package domain

import "time"

// Trade is an immutable record of a matched execution between a bid and
// an ask order. Trades are only ever created by the matching engine; the
// price is always the resting (maker) order's limit price.
type Trade struct {
	TradeID     string
	Symbol      string
	BuyOrderID  string
	SellOrderID string
	Price       int64 // cents
	Quantity    int64
	ExecutedAt  time.Time
}
