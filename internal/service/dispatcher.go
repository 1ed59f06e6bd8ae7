package service

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/efreitasn/matchcore/internal/command"
	"github.com/efreitasn/matchcore/internal/domain"
	"github.com/efreitasn/matchcore/internal/engine"
	"github.com/efreitasn/matchcore/internal/store"
)

// TradePublisher receives every batch of trades a placement produces.
// Implementations must not block; the dispatcher calls them inline.
type TradePublisher interface {
	PublishTrades(market string, trades []domain.Trade)
}

// Dispatcher executes decoded commands against the engine and turns the
// outcome into a command.Result. Every transport goes through it, so a
// command behaves the same whether it arrived over HTTP or the queue.
//
// Placements on one market are serialized together with the hand-off of
// their trades, so the trade store and the publisher see each market's
// trades in execution order.
type Dispatcher struct {
	engine    *engine.Engine
	trades    *store.TradeStore
	publisher TradePublisher
	logger    *slog.Logger

	placeMu sync.Map // market → *sync.Mutex
}

// NewDispatcher creates a Dispatcher. trades and publisher may be nil.
func NewDispatcher(
	eng *engine.Engine,
	trades *store.TradeStore,
	publisher TradePublisher,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		engine:    eng,
		trades:    trades,
		publisher: publisher,
		logger:    logger,
	}
}

// Engine returns the engine commands are executed against.
func (d *Dispatcher) Engine() *engine.Engine {
	return d.engine
}

// Dispatch executes cmd. The returned error is one of the domain
// sentinels or a *domain.ValidationError; the result is nil in that case
// and callers build one with command.Failed if they need it.
func (d *Dispatcher) Dispatch(cmd command.Command) (*command.Result, error) {
	res := &command.Result{
		RequestID: cmd.Request(),
		Type:      cmd.Kind(),
		Market:    command.MarketOf(cmd),
		Status:    command.StatusOK,
	}
	if res.RequestID == "" {
		res.RequestID = command.NewRequestID()
	}

	switch c := cmd.(type) {
	case command.PlaceOrder:
		unlock := d.lockMarket(c.Market)
		placed, err := d.engine.PlaceOrder(c.Market, c.Order, c.BaseAsset)
		if err == nil {
			d.recordTrades(c.Market, placed.Trades)
		}
		unlock()
		if err != nil {
			d.logger.Info("order rejected",
				"market", c.Market,
				"order_id", c.Order.ID,
				"user_id", c.Order.UserID,
				"error", err,
			)
			return nil, err
		}
		res.Order = &placed.Order
		res.Trades = placed.Trades
		d.logger.Debug("order placed",
			"market", c.Market,
			"order_id", placed.Order.ID,
			"side", placed.Order.Side,
			"filled", placed.Order.Filled,
			"rested", placed.Rested,
			"trades", len(placed.Trades),
		)

	case command.CancelOrder:
		cancelled, err := d.engine.CancelOrder(c.Market, c.OrderID)
		if err != nil {
			return nil, err
		}
		if !cancelled.Found {
			res.Status = command.StatusNotFound
			d.logger.Debug("cancel of unknown order", "market", c.Market, "order_id", c.OrderID)
			break
		}
		res.Order = &cancelled.Order
		d.logger.Debug("order cancelled", "market", c.Market, "order_id", c.OrderID)

	case command.GetDepth:
		depth, err := d.engine.GetDepth(c.Market)
		if err != nil {
			return nil, err
		}
		res.Depth = &depth

	case command.AddBalance:
		bal, err := d.engine.AddBalance(c.UserID, c.Asset, c.Amount)
		if err != nil {
			d.logger.Warn("credit rejected", "user_id", c.UserID, "asset", c.Asset, "error", err)
			return nil, err
		}
		res.UserID = c.UserID
		res.Balance = &bal

	default:
		return nil, fmt.Errorf("%w: %T", domain.ErrUnknownCommand, cmd)
	}
	return res, nil
}

// lockMarket locks the placement mutex of market and returns its unlock
// function. Unknown markets get no mutex; the engine rejects them.
func (d *Dispatcher) lockMarket(market string) func() {
	if !d.engine.HasMarket(market) {
		return func() {}
	}
	v, _ := d.placeMu.LoadOrStore(market, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// recordTrades stores and publishes a placement's trades.
func (d *Dispatcher) recordTrades(market string, trades []domain.Trade) {
	if len(trades) == 0 {
		return
	}
	if d.trades != nil {
		d.trades.Append(market, trades...)
	}
	if d.publisher != nil {
		d.publisher.PublishTrades(market, trades)
	}
	for _, t := range trades {
		d.logger.Info("trade executed",
			"trade_id", t.GlobalID(),
			"price", t.Price,
			"quantity", t.Quantity,
			"maker_order_id", t.MakerOrderID,
			"taker_order_id", t.TakerOrderID,
		)
	}
}
