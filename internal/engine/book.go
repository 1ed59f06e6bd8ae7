package engine

import (
	"sync"
	"time"

	"github.com/efreitasn/matchcore/internal/domain"
	"github.com/google/btree"
)

// priceLevel holds the resting orders at one price on one side of the
// book in arrival order. A level is removed from its tree as soon as its
// queue becomes empty.
type priceLevel struct {
	price  uint64
	orders []*domain.Order
}

func (l *priceLevel) remaining() uint64 {
	var total uint64
	for _, o := range l.orders {
		total += o.Remaining()
	}
	return total
}

// popFront drops the order at the head of the queue.
func (l *priceLevel) popFront() {
	l.orders[0] = nil
	l.orders = l.orders[1:]
}

// bidLess orders bid levels by price descending, so Min() returns the
// best (highest) bid.
func bidLess(a, b *priceLevel) bool {
	return a.price > b.price
}

// askLess orders ask levels by price ascending, so Min() returns the
// best (lowest) ask.
func askLess(a, b *priceLevel) bool {
	return a.price < b.price
}

// Book maintains the resting liquidity of a single market and executes
// the price-time priority crossing of incoming orders. It knows nothing
// about user funds. All methods are safe for concurrent use; a book is
// locked for the whole duration of each operation.
type Book struct {
	market string
	mu     sync.Mutex
	bids   *btree.BTreeG[*priceLevel]
	asks   *btree.BTreeG[*priceLevel]

	// nextTradeID is the id the next generated trade receives.
	nextTradeID uint64
	now         func() time.Time
}

// NewBook creates an empty book for the given market.
func NewBook(market string) *Book {
	const degree = 32
	return &Book{
		market: market,
		bids:   btree.NewG[*priceLevel](degree, bidLess),
		asks:   btree.NewG[*priceLevel](degree, askLess),
		now:    time.Now,
	}
}

// Market returns the name of the market the book serves.
func (b *Book) Market() string {
	return b.market
}

func (b *Book) side(s domain.Side) *btree.BTreeG[*priceLevel] {
	if s == domain.SideBuy {
		return b.bids
	}
	return b.asks
}

// crosses reports whether an incoming order's limit accepts the given
// resting price.
func crosses(incoming *domain.Order, restingPrice uint64) bool {
	if incoming.Side == domain.SideBuy {
		return restingPrice <= incoming.Price
	}
	return restingPrice >= incoming.Price
}

// Place crosses the order against the opposite side of the book and
// rests any unfilled remainder at the back of its own price level.
// It returns the generated trades in execution order together with the
// final state of the incoming order.
//
// Trades execute at the resting order's price. Within a level, orders
// fill strictly in arrival order: a partially filled resting order
// stays at the head of its queue.
func (b *Book) Place(order domain.Order) ([]domain.Trade, domain.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	incoming := &order
	opposite := b.side(incoming.Side.Opposite())
	executedAt := b.now()
	var trades []domain.Trade

	for !incoming.IsFilled() {
		level, ok := opposite.Min()
		if !ok || !crosses(incoming, level.price) {
			break
		}

		for len(level.orders) > 0 && !incoming.IsFilled() {
			resting := level.orders[0]
			qty := min(incoming.Remaining(), resting.Remaining())
			if qty > 0 {
				incoming.Filled += qty
				resting.Filled += qty
				trades = append(trades, domain.Trade{
					ID:           b.nextTradeID,
					Market:       b.market,
					Price:        level.price,
					Quantity:     qty,
					MakerOrderID: resting.ID,
					TakerOrderID: incoming.ID,
					MakerUserID:  resting.UserID,
					TakerUserID:  incoming.UserID,
					ExecutedAt:   executedAt,
				})
				b.nextTradeID++
			}

			if !resting.IsFilled() {
				break
			}
			level.popFront()
		}

		if len(level.orders) > 0 {
			// The head of the level still has quantity, so the incoming
			// order is exhausted.
			break
		}
		opposite.Delete(level)
	}

	if !incoming.IsFilled() {
		own := b.side(incoming.Side)
		level, ok := own.Get(&priceLevel{price: incoming.Price})
		if !ok {
			level = &priceLevel{price: incoming.Price}
			own.ReplaceOrInsert(level)
		}
		rest := *incoming
		level.orders = append(level.orders, &rest)
	}

	return trades, *incoming
}

// Cancel removes the resting order with the given id from whichever side
// and level it is queued on. It returns the removed order and true, or
// false when no such order rests on the book. The position of every other
// order is unaffected.
func (b *Book) Cancel(orderID uint64) (domain.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, tree := range []*btree.BTreeG[*priceLevel]{b.bids, b.asks} {
		var (
			found *priceLevel
			index int
		)
		tree.Ascend(func(l *priceLevel) bool {
			for i, o := range l.orders {
				if o.ID == orderID {
					found, index = l, i
					return false
				}
			}
			return true
		})
		if found == nil {
			continue
		}

		removed := *found.orders[index]
		copy(found.orders[index:], found.orders[index+1:])
		found.orders[len(found.orders)-1] = nil
		found.orders = found.orders[:len(found.orders)-1]
		if len(found.orders) == 0 {
			tree.Delete(found)
		}
		return removed, true
	}
	return domain.Order{}, false
}

// Depth returns the aggregated unfilled quantity at every price level of
// both sides, bids from the highest price and asks from the lowest.
func (b *Book) Depth() domain.Depth {
	b.mu.Lock()
	defer b.mu.Unlock()

	return domain.Depth{
		Bids: levels(b.bids),
		Asks: levels(b.asks),
	}
}

func levels(tree *btree.BTreeG[*priceLevel]) []domain.Level {
	out := make([]domain.Level, 0, tree.Len())
	tree.Ascend(func(l *priceLevel) bool {
		out = append(out, domain.Level{Price: l.price, Quantity: l.remaining()})
		return true
	})
	return out
}

// BestBid returns the highest bid level.
func (b *Book) BestBid() (domain.Level, bool) {
	return b.best(b.bids)
}

// BestAsk returns the lowest ask level.
func (b *Book) BestAsk() (domain.Level, bool) {
	return b.best(b.asks)
}

func (b *Book) best(tree *btree.BTreeG[*priceLevel]) (domain.Level, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	l, ok := tree.Min()
	if !ok {
		return domain.Level{}, false
	}
	return domain.Level{Price: l.price, Quantity: l.remaining()}, true
}

// TradeCount returns the number of trades the book has generated, which
// is also the id the next trade will receive.
func (b *Book) TradeCount() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nextTradeID
}
