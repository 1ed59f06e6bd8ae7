package domain

import "fmt"

// Side indicates whether an order buys or sells the market's base asset.
// The string values match the wire encoding used by order producers.
type Side string

const (
	SideBuy  Side = "Buy"
	SideSell Side = "Sell"
)

// Valid reports whether s is one of the known sides.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the side an order of side s matches against.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Order is a limit order. ID is assigned by the submitter and must be
// unique within a market's book. Price is in the smallest quote unit.
//
// 0 <= Filled <= Quantity holds for the whole lifetime of an order;
// Filled only ever grows.
type Order struct {
	ID       uint64 `json:"id"`
	UserID   string `json:"user_id"`
	Side     Side   `json:"side"`
	Price    uint64 `json:"price"`
	Quantity uint64 `json:"quantity"`
	Filled   uint64 `json:"filled"`
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() uint64 {
	return o.Quantity - o.Filled
}

// IsFilled reports whether the order has been fully matched.
func (o *Order) IsFilled() bool {
	return o.Filled == o.Quantity
}

// Validate checks the invariants an order must satisfy before it can be
// handed to a book.
func (o *Order) Validate() error {
	if !o.Side.Valid() {
		return &ValidationError{Message: fmt.Sprintf("side must be %q or %q", SideBuy, SideSell)}
	}
	if o.UserID == "" {
		return &ValidationError{Message: "user_id is required"}
	}
	if o.Filled > o.Quantity {
		return &ValidationError{Message: "filled must not exceed quantity"}
	}
	return nil
}
