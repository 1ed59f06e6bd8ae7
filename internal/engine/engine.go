package engine

import (
	"math/bits"
	"sort"
	"sync"

	"github.com/efreitasn/matchcore/internal/domain"
)

// DefaultQuoteAsset is the asset buy orders escrow when none is configured.
const DefaultQuoteAsset = "USDT"

// PlaceResult is the outcome of an admitted order: its state after
// matching and the trades it generated, in execution order.
type PlaceResult struct {
	Order  domain.Order
	Trades []domain.Trade
	// Rested reports whether an unfilled remainder was queued on the book.
	Rested bool
}

// CancelResult is the outcome of a cancellation. Found is false when no
// order with the requested id was resting on the book; that is a no-op,
// not an error.
type CancelResult struct {
	Order domain.Order
	Found bool
}

// Engine owns one Book per market and the shared balance Ledger. It
// admits orders by escrowing funds and routes commands to books.
//
// Lock order: an operation that escrows funds acquires and releases the
// ledger lock before it acquires the target book's lock. The two are
// never held together.
type Engine struct {
	quoteAsset string
	ledger     *Ledger

	mu    sync.RWMutex
	books map[string]*Book
}

// New creates an Engine with no markets. quoteAsset is the asset buy
// orders escrow on every market; an empty value selects DefaultQuoteAsset.
func New(quoteAsset string) *Engine {
	if quoteAsset == "" {
		quoteAsset = DefaultQuoteAsset
	}
	return &Engine{
		quoteAsset: quoteAsset,
		ledger:     NewLedger(),
		books:      make(map[string]*Book),
	}
}

// QuoteAsset returns the asset escrowed by buy orders.
func (e *Engine) QuoteAsset() string {
	return e.quoteAsset
}

// AddMarket creates an empty book for name. Adding a market twice returns
// domain.ErrMarketExists and keeps the existing book.
func (e *Engine) AddMarket(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.books[name]; ok {
		return domain.ErrMarketExists
	}
	e.books[name] = NewBook(name)
	return nil
}

// Markets returns the names of all markets in lexical order.
func (e *Engine) Markets() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.books))
	for name := range e.books {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasMarket reports whether a book exists for market.
func (e *Engine) HasMarket(market string) bool {
	_, err := e.book(market)
	return err == nil
}

func (e *Engine) book(market string) (*Book, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	b, ok := e.books[market]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	return b, nil
}

// EscrowFor returns the asset and amount an order must escrow: a buy
// locks price × quantity of the quote asset, a sell locks quantity of the
// market's base asset.
func EscrowFor(order domain.Order, quoteAsset, baseAsset string) (string, uint64, error) {
	if order.Side == domain.SideSell {
		return baseAsset, order.Quantity, nil
	}
	hi, lo := bits.Mul64(order.Price, order.Quantity)
	if hi != 0 {
		return "", 0, domain.ErrAmountOverflow
	}
	return quoteAsset, lo, nil
}

// PlaceOrder escrows the funds the order requires and, when that
// succeeds, submits it to the market's book. An unknown market or a
// failed escrow leaves both the ledger and the book untouched.
//
// Escrowed funds stay locked: they are neither transferred to the
// counterparty when trades execute nor released when the order is
// cancelled. The returned trades are the hand-off to settlement.
func (e *Engine) PlaceOrder(market string, order domain.Order, baseAsset string) (*PlaceResult, error) {
	if err := order.Validate(); err != nil {
		return nil, err
	}
	book, err := e.book(market)
	if err != nil {
		return nil, err
	}

	asset, amount, err := EscrowFor(order, e.quoteAsset, baseAsset)
	if err != nil {
		return nil, err
	}
	// The ledger lock is released before Escrow returns, so the book
	// lock below is never taken while it is held.
	if err := e.ledger.Escrow(order.UserID, asset, amount); err != nil {
		return nil, err
	}

	trades, final := book.Place(order)
	return &PlaceResult{
		Order:  final,
		Trades: trades,
		Rested: !final.IsFilled(),
	}, nil
}

// CancelOrder removes a resting order from the market's book.
func (e *Engine) CancelOrder(market string, orderID uint64) (*CancelResult, error) {
	book, err := e.book(market)
	if err != nil {
		return nil, err
	}
	order, found := book.Cancel(orderID)
	return &CancelResult{Order: order, Found: found}, nil
}

// GetDepth returns the aggregated depth of the market's book.
func (e *Engine) GetDepth(market string) (domain.Depth, error) {
	book, err := e.book(market)
	if err != nil {
		return domain.Depth{}, err
	}
	return book.Depth(), nil
}

// AddBalance credits amount of asset to the user's available balance and
// returns the updated record.
func (e *Engine) AddBalance(userID, asset string, amount uint64) (domain.UserBalance, error) {
	return e.ledger.Credit(userID, asset, amount)
}

// Balance returns a copy of the user's balance record.
func (e *Engine) Balance(userID string) (domain.UserBalance, bool) {
	return e.ledger.Balance(userID)
}
