package events

import "time"

// Type identifies the kind of market event.
type Type string

const (
	TypePriceUpdate     Type = "PRICE_UPDATE"
	TypeTradeExecuted   Type = "TRADE_EXECUTED"
	TypeOrderBookUpdate Type = "ORDERBOOK_UPDATE"
	TypeBreakerHalted   Type = "CIRCUIT_BREAKER_HALTED"
	TypeBreakerResumed  Type = "CIRCUIT_BREAKER_RESUMED"
)

// Event is the envelope the core writes to the outbound bus. Payload is
// one of the *Payload structs below; the transport layer serializes the
// whole envelope to JSON.
type Event struct {
	Type    Type      `json:"type"`
	Symbol  string    `json:"symbol"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// PriceUpdatePayload reports a committed price change.
type PriceUpdatePayload struct {
	LastPrice int64   `json:"last_price"`
	Bid       int64   `json:"bid"`
	Ask       int64   `json:"ask"`
	PctChange float64 `json:"pct_change"`
}

// TradeExecutedPayload reports one fill produced by matching.
type TradeExecutedPayload struct {
	Price       int64  `json:"price"`
	Quantity    int64  `json:"quantity"`
	BuyOrderID  string `json:"buy_order_id"`
	SellOrderID string `json:"sell_order_id"`
}

// BookLevel is one aggregated price level of a depth snapshot.
type BookLevel struct {
	Price    int64 `json:"price"`
	Quantity int64 `json:"quantity"`
	Orders   int   `json:"orders"`
}

// OrderBookUpdatePayload carries the post-change depth snapshot.
type OrderBookUpdatePayload struct {
	Bids   []BookLevel `json:"bids"`
	Asks   []BookLevel `json:"asks"`
	Spread int64       `json:"spread"`
}

// BreakerPayload reports a circuit breaker transition.
type BreakerPayload struct {
	Reason   string    `json:"reason"`
	HaltedAt time.Time `json:"halted_at"`
	ResumeAt time.Time `json:"resume_at"`
}
