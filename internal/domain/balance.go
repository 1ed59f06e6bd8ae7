package domain

// UserBalance holds a user's funds per asset. Available funds can be
// escrowed by new orders; Locked funds are escrowed against orders that
// were admitted to a book. Amounts are unsigned, so neither side can go
// negative.
type UserBalance struct {
	Available map[string]uint64 `json:"available"`
	Locked    map[string]uint64 `json:"locked"`
}

// NewUserBalance returns an empty balance record.
func NewUserBalance() *UserBalance {
	return &UserBalance{
		Available: make(map[string]uint64),
		Locked:    make(map[string]uint64),
	}
}

// Clone returns a deep copy of the balance.
func (b *UserBalance) Clone() UserBalance {
	out := UserBalance{
		Available: make(map[string]uint64, len(b.Available)),
		Locked:    make(map[string]uint64, len(b.Locked)),
	}
	for k, v := range b.Available {
		out.Available[k] = v
	}
	for k, v := range b.Locked {
		out.Locked[k] = v
	}
	return out
}

// Total returns available plus locked funds for asset.
func (b *UserBalance) Total(asset string) uint64 {
	return b.Available[asset] + b.Locked[asset]
}
