package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrSecurityAlreadyExists = errors.New("security_already_exists")
	ErrSecurityNotFound      = errors.New("security_not_found")
	ErrOrderNotFound         = errors.New("order_not_found")
	ErrOrderNotCancellable   = errors.New("order_not_cancellable")
	ErrAlreadyFilled         = errors.New("order_already_filled")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrNoLiquidity           = errors.New("no_liquidity")
	ErrTradingHalted         = errors.New("trading_halted")
	ErrContractNotFound      = errors.New("contract_not_found")
	ErrPositionNotFound      = errors.New("position_not_found")
	ErrNotInTheMoney         = errors.New("not_in_the_money")
	ErrCannotExerciseShort   = errors.New("cannot_exercise_short_position")
	ErrInsufficientBorrow    = errors.New("insufficient_borrow")
	ErrOverCover             = errors.New("over_cover")
	ErrPipelineCorrupted     = errors.New("pipeline_corrupted")
)

// ValidationError represents a request validation failure. Validation
// always happens before any state mutation.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
