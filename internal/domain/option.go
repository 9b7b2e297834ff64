package domain

import "time"

// OptionType distinguishes calls from puts.
type OptionType string

const (
	OptionTypeCall OptionType = "call"
	OptionTypePut  OptionType = "put"
)

// PositionSide indicates whether an option position is long (bought)
// or short (written).
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
)

// Greeks are the analytic sensitivities of an option's value. Theta is
// per day, vega per 1% volatility point, rho per 1% rate point.
type Greeks struct {
	Delta float64
	Gamma float64
	Theta float64
	Vega  float64
	Rho   float64
}

// OptionContract is one strike/expiration leg of a generated chain.
// Premium, intrinsic/time value, the in-the-money flag and the Greeks
// are derived fields, recomputed every tick from the registry's current
// price and volatility.
type OptionContract struct {
	ContractID   string
	Symbol       string
	Type         OptionType
	Strike       int64 // cents
	Expiration   time.Time
	Premium      int64 // cents, floored at the minimum tick
	Intrinsic    int64 // cents
	TimeValue    int64 // cents
	InTheMoney   bool
	Greeks       Greeks
	OpenInterest int64
	CreatedAt    time.Time
}

// OptionPosition is a holder's stake in a contract, created on buy or
// write and destroyed on exercise, expiration or close.
type OptionPosition struct {
	PositionID   string
	Holder       string
	ContractID   string
	Quantity     int64
	Side         PositionSide
	EntryPremium int64 // cents per contract at open
	OpenedAt     time.Time
}
