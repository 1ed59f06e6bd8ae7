package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes and the queue
// consumer maps them to result statuses.
var (
	ErrMarketNotFound    = errors.New("market_not_found")
	ErrMarketExists      = errors.New("market_already_exists")
	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrAmountOverflow    = errors.New("amount_overflow")
	ErrUnknownCommand    = errors.New("unknown_command")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
