package domain

import "time"

// OrderType distinguishes limit orders from market orders.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderSide indicates whether an order is a bid (buy) or ask (sell).
type OrderSide string

const (
	OrderSideBid OrderSide = "bid"
	OrderSideAsk OrderSide = "ask"
)

// OrderStatus represents the lifecycle state of an order. Filled,
// cancelled and expired are terminal.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusExpired         OrderStatus = "expired"
)

// Terminal reports whether the status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusExpired:
		return true
	}
	return false
}

// Order represents a bid or ask instruction submitted by a participant.
// The participant identity is opaque to the core; it is only compared
// for ownership on cancellation.
type Order struct {
	OrderID           string
	Type              OrderType
	Participant       string
	Side              OrderSide
	Symbol            string
	Price             int64 // cents, 0 for market orders
	Quantity          int64
	FilledQuantity    int64
	RemainingQuantity int64
	CancelledQuantity int64
	Status            OrderStatus
	ExpiresAt         *time.Time // nil if the order never expires
	CreatedAt         time.Time
	CancelledAt       *time.Time
	ExpiredAt         *time.Time
	Trades            []*Trade
}

// AveragePrice computes the volume-weighted average execution price
// as sum(trade.price × trade.quantity) / filled_quantity using integer
// arithmetic. Returns (price, true) when trades exist, or (0, false)
// when no trades have been executed.
func (o *Order) AveragePrice() (int64, bool) {
	if len(o.Trades) == 0 || o.FilledQuantity == 0 {
		return 0, false
	}
	var total int64
	for _, t := range o.Trades {
		total += t.Price * t.Quantity
	}
	return total / o.FilledQuantity, true
}
