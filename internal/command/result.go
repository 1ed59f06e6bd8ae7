package command

import (
	"errors"

	"github.com/efreitasn/matchcore/internal/domain"
	"github.com/google/uuid"
)

// Status summarises the outcome of a command.
type Status string

const (
	StatusOK       Status = "ok"
	StatusRejected Status = "rejected"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// Result is the typed response to a command. Only the fields relevant
// to the command's kind are set.
type Result struct {
	RequestID string              `json:"request_id"`
	Type      Kind                `json:"type"`
	Market    string              `json:"market,omitempty"`
	Status    Status              `json:"status"`
	Error     string              `json:"error,omitempty"`
	Order     *domain.Order       `json:"order,omitempty"`
	Trades    []domain.Trade      `json:"trades,omitempty"`
	Depth     *domain.Depth       `json:"depth,omitempty"`
	UserID    string              `json:"user_id,omitempty"`
	Balance   *domain.UserBalance `json:"balance,omitempty"`
}

// NewRequestID returns a correlation id for a command that arrived
// without one.
func NewRequestID() string {
	return uuid.NewString()
}

// StatusOf classifies an error returned while executing a command.
func StatusOf(err error) Status {
	var ve *domain.ValidationError
	var de *DecodeError
	switch {
	case err == nil:
		return StatusOK
	case errors.As(err, &de):
		return StatusError
	case errors.Is(err, domain.ErrMarketNotFound):
		return StatusNotFound
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrAmountOverflow),
		errors.As(err, &ve):
		return StatusRejected
	}
	return StatusError
}

// Failed builds the result for a command that could not be executed.
// cmd may be nil when the message never decoded.
func Failed(cmd Command, requestID string, err error) *Result {
	r := &Result{
		RequestID: requestID,
		Status:    StatusOf(err),
		Error:     err.Error(),
	}
	if cmd != nil {
		r.Type = cmd.Kind()
		r.Market = MarketOf(cmd)
		if r.RequestID == "" {
			r.RequestID = cmd.Request()
		}
	}
	if r.RequestID == "" {
		r.RequestID = NewRequestID()
	}
	return r
}
