package engine

import (
	"math"
	"sync"

	"github.com/efreitasn/matchcore/internal/domain"
)

// Ledger is the balance table shared by every market. A single mutex
// guards it, since a user's quote balance is consumed by orders on all
// markets. The lock is only ever held for a bounded in-memory update and
// never while a book is locked.
type Ledger struct {
	mu       sync.Mutex
	balances map[string]*domain.UserBalance
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[string]*domain.UserBalance),
	}
}

// entry returns the user's record, creating it on first reference.
// The caller must hold l.mu.
func (l *Ledger) entry(userID string) *domain.UserBalance {
	b, ok := l.balances[userID]
	if !ok {
		b = domain.NewUserBalance()
		l.balances[userID] = b
	}
	return b
}

// Credit adds amount to the user's available balance of asset and
// returns a snapshot of the updated record. It fails with
// domain.ErrAmountOverflow, without mutating anything, when the user's
// total holding of the asset would exceed the representable range.
func (l *Ledger) Credit(userID, asset string, amount uint64) (domain.UserBalance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.entry(userID)
	if b.Total(asset) > math.MaxUint64-amount {
		return b.Clone(), domain.ErrAmountOverflow
	}
	b.Available[asset] += amount
	return b.Clone(), nil
}

// Escrow moves amount of asset from the user's available balance to the
// locked balance. It is all-or-nothing: when fewer than amount funds are
// available it returns domain.ErrInsufficientFunds and leaves the
// balance untouched.
func (l *Ledger) Escrow(userID, asset string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	b := l.entry(userID)
	if b.Available[asset] < amount {
		return domain.ErrInsufficientFunds
	}
	b.Available[asset] -= amount
	b.Locked[asset] += amount
	return nil
}

// Balance returns a copy of the user's balance record.
func (l *Ledger) Balance(userID string) (domain.UserBalance, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.balances[userID]
	if !ok {
		return domain.UserBalance{}, false
	}
	return b.Clone(), true
}
