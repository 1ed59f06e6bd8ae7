// Package command defines the closed set of operations the engine
// accepts from transports, their JSON wire encoding, and the typed
// result each one produces.
package command

import (
	"encoding/json"
	"fmt"

	"github.com/efreitasn/matchcore/internal/domain"
)

// Kind is the wire tag of a command.
type Kind string

const (
	KindPlaceOrder  Kind = "PLACE_ORDER"
	KindCancelOrder Kind = "CANCEL_ORDER"
	KindGetDepth    Kind = "GET_DEPTH"
	KindAddBalance  Kind = "ADD_BALANCE"
)

// Command is one of PlaceOrder, CancelOrder, GetDepth or AddBalance.
type Command interface {
	Kind() Kind
	// Request returns the caller-supplied correlation id, if any.
	Request() string
}

// PlaceOrder submits Order to Market. BaseAsset is the asset a sell
// order escrows.
type PlaceOrder struct {
	RequestID string
	Market    string
	BaseAsset string
	Order     domain.Order
}

// CancelOrder removes a resting order from Market.
type CancelOrder struct {
	RequestID string
	Market    string
	OrderID   uint64
}

// GetDepth queries the aggregated depth of Market.
type GetDepth struct {
	RequestID string
	Market    string
}

// AddBalance credits Amount of Asset to a user.
type AddBalance struct {
	RequestID string
	UserID    string
	Asset     string
	Amount    uint64
}

func (PlaceOrder) Kind() Kind  { return KindPlaceOrder }
func (CancelOrder) Kind() Kind { return KindCancelOrder }
func (GetDepth) Kind() Kind    { return KindGetDepth }
func (AddBalance) Kind() Kind  { return KindAddBalance }

func (c PlaceOrder) Request() string  { return c.RequestID }
func (c CancelOrder) Request() string { return c.RequestID }
func (c GetDepth) Request() string    { return c.RequestID }
func (c AddBalance) Request() string  { return c.RequestID }

// MarketOf returns the market a command targets, or "" for commands
// that are not market-scoped.
func MarketOf(c Command) string {
	switch c := c.(type) {
	case PlaceOrder:
		return c.Market
	case CancelOrder:
		return c.Market
	case GetDepth:
		return c.Market
	}
	return ""
}

// DecodeError reports a message that could not be turned into a command.
type DecodeError struct {
	Kind  Kind
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	switch {
	case e.Field != "" && e.Err != nil:
		return fmt.Sprintf("decode %s: field %q: %v", e.Kind, e.Field, e.Err)
	case e.Field != "":
		return fmt.Sprintf("decode %s: field %q is required", e.Kind, e.Field)
	case e.Kind != "":
		return fmt.Sprintf("decode %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("decode command: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// envelope is the union of every field used by any command on the
// wire. Pointers distinguish missing fields from zero values.
type envelope struct {
	Type      Kind       `json:"type"`
	RequestID string     `json:"request_id,omitempty"`
	Market    *string    `json:"market,omitempty"`
	BaseAsset *string    `json:"base_asset,omitempty"`
	Order     *WireOrder `json:"order,omitempty"`
	OrderID   *uint64    `json:"orderId,omitempty"`
	UserID    *string    `json:"userId,omitempty"`
	Asset     *string    `json:"asset,omitempty"`
	Amount    *uint64    `json:"amount,omitempty"`
}

// WireOrder is the order object carried by a PLACE_ORDER message.
// Every field except side and filled is required.
type WireOrder struct {
	ID       *uint64     `json:"id"`
	UserID   *string     `json:"user_id"`
	Side     domain.Side `json:"side"`
	Price    *uint64     `json:"price"`
	Quantity *uint64     `json:"quantity"`
	Filled   uint64      `json:"filled"`
}

// Decode parses a wire message. Unknown type tags return an error
// wrapping domain.ErrUnknownCommand; missing or ill-typed fields return
// a *DecodeError.
func Decode(data []byte) (Command, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &DecodeError{Err: err}
	}

	switch env.Type {
	case KindPlaceOrder:
		return decodePlaceOrder(&env)
	case KindCancelOrder:
		market, err := required(env.Type, "market", env.Market)
		if err != nil {
			return nil, err
		}
		if env.OrderID == nil {
			return nil, &DecodeError{Kind: env.Type, Field: "orderId"}
		}
		return CancelOrder{RequestID: env.RequestID, Market: market, OrderID: *env.OrderID}, nil
	case KindGetDepth:
		market, err := required(env.Type, "market", env.Market)
		if err != nil {
			return nil, err
		}
		return GetDepth{RequestID: env.RequestID, Market: market}, nil
	case KindAddBalance:
		userID, err := required(env.Type, "userId", env.UserID)
		if err != nil {
			return nil, err
		}
		asset, err := required(env.Type, "asset", env.Asset)
		if err != nil {
			return nil, err
		}
		if env.Amount == nil {
			return nil, &DecodeError{Kind: env.Type, Field: "amount"}
		}
		return AddBalance{RequestID: env.RequestID, UserID: userID, Asset: asset, Amount: *env.Amount}, nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrUnknownCommand, env.Type)
}

func decodePlaceOrder(env *envelope) (Command, error) {
	market, err := required(env.Type, "market", env.Market)
	if err != nil {
		return nil, err
	}
	base, err := required(env.Type, "base_asset", env.BaseAsset)
	if err != nil {
		return nil, err
	}
	if env.Order == nil {
		return nil, &DecodeError{Kind: env.Type, Field: "order"}
	}
	order, err := env.Order.ToOrder()
	if err != nil {
		return nil, err
	}
	if err := order.Validate(); err != nil {
		return nil, &DecodeError{Kind: env.Type, Field: "order", Err: err}
	}
	return PlaceOrder{RequestID: env.RequestID, Market: market, BaseAsset: base, Order: order}, nil
}

// ToOrder converts w into a domain.Order. A missing required field
// returns a *DecodeError naming it; field values are not validated.
func (w *WireOrder) ToOrder() (domain.Order, error) {
	switch {
	case w.ID == nil:
		return domain.Order{}, &DecodeError{Kind: KindPlaceOrder, Field: "order.id"}
	case w.UserID == nil || *w.UserID == "":
		return domain.Order{}, &DecodeError{Kind: KindPlaceOrder, Field: "order.user_id"}
	case w.Price == nil:
		return domain.Order{}, &DecodeError{Kind: KindPlaceOrder, Field: "order.price"}
	case w.Quantity == nil:
		return domain.Order{}, &DecodeError{Kind: KindPlaceOrder, Field: "order.quantity"}
	}
	return domain.Order{
		ID:       *w.ID,
		UserID:   *w.UserID,
		Side:     w.Side,
		Price:    *w.Price,
		Quantity: *w.Quantity,
		Filled:   w.Filled,
	}, nil
}

func required(kind Kind, field string, v *string) (string, error) {
	if v == nil || *v == "" {
		return "", &DecodeError{Kind: kind, Field: field}
	}
	return *v, nil
}

// Encode renders a command in the wire format Decode accepts.
func Encode(c Command) ([]byte, error) {
	env := envelope{Type: c.Kind(), RequestID: c.Request()}
	switch c := c.(type) {
	case PlaceOrder:
		env.Market = &c.Market
		env.BaseAsset = &c.BaseAsset
		env.Order = &WireOrder{
			ID:       &c.Order.ID,
			UserID:   &c.Order.UserID,
			Side:     c.Order.Side,
			Price:    &c.Order.Price,
			Quantity: &c.Order.Quantity,
			Filled:   c.Order.Filled,
		}
	case CancelOrder:
		env.Market = &c.Market
		env.OrderID = &c.OrderID
	case GetDepth:
		env.Market = &c.Market
	case AddBalance:
		env.UserID = &c.UserID
		env.Asset = &c.Asset
		env.Amount = &c.Amount
	default:
		return nil, fmt.Errorf("%w: %T", domain.ErrUnknownCommand, c)
	}
	return json.Marshal(env)
}
