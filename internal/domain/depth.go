package domain

// Level is an aggregated price level: the total unfilled quantity of
// all orders resting at Price on one side of a book.
type Level struct {
	Price    uint64 `json:"price"`
	Quantity uint64 `json:"quantity"`
}

// Depth is a snapshot of both sides of a book. Bids are ordered from
// the highest price, asks from the lowest.
type Depth struct {
	Bids []Level `json:"bids"`
	Asks []Level `json:"asks"`
}
