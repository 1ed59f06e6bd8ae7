package store

import (
	"sync"

	"github.com/efreitasn/matchcore/internal/domain"
)

// DefaultTradeHistory is the number of trades retained per market when
// NewTradeStore is given a non-positive limit.
const DefaultTradeHistory = 1000

// TradeStore is a thread-safe in-memory ring of recent trades, keyed by
// market. Trades are kept in execution order; once a market holds
// capacity trades the oldest are discarded.
type TradeStore struct {
	mu       sync.RWMutex
	capacity int
	trades   map[string][]domain.Trade // market → trades (chronological)
}

// NewTradeStore creates an empty TradeStore retaining up to capacity
// trades per market.
func NewTradeStore(capacity int) *TradeStore {
	if capacity <= 0 {
		capacity = DefaultTradeHistory
	}
	return &TradeStore{
		capacity: capacity,
		trades:   make(map[string][]domain.Trade),
	}
}

// Append adds trades to the market's history in the order given.
func (s *TradeStore) Append(market string, trades ...domain.Trade) {
	if len(trades) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	h := append(s.trades[market], trades...)
	if over := len(h) - s.capacity; over > 0 {
		// Copy into a fresh slice so the dropped prefix can be collected.
		h = append([]domain.Trade(nil), h[over:]...)
	}
	s.trades[market] = h
}

// Recent returns up to limit of the market's most recent trades, oldest
// first. A non-positive limit returns the whole retained history.
// Returns an empty slice if the market has no trades.
func (s *TradeStore) Recent(market string, limit int) []domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	h := s.trades[market]
	if limit > 0 && limit < len(h) {
		h = h[len(h)-limit:]
	}

	// Return a copy to avoid callers mutating the internal slice.
	result := make([]domain.Trade, len(h))
	copy(result, h)
	return result
}

// Len returns the number of trades retained for market.
func (s *TradeStore) Len(market string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trades[market])
}
