package domain

import (
	"strconv"
	"time"
)

// Trade represents a match between a resting (maker) order and an
// incoming (taker) order. ID is book-local: every market numbers its
// trades from 0, so IDs repeat across markets.
type Trade struct {
	ID           uint64    `json:"id"`
	Market       string    `json:"market"`
	Price        uint64    `json:"price"`
	Quantity     uint64    `json:"quantity"`
	MakerOrderID uint64    `json:"maker_order_id"`
	TakerOrderID uint64    `json:"taker_order_id"`
	MakerUserID  string    `json:"maker_user_id"`
	TakerUserID  string    `json:"taker_user_id"`
	ExecutedAt   time.Time `json:"executed_at"`
}

// GlobalID returns an identifier that is unique across markets.
func (t *Trade) GlobalID() string {
	return t.Market + "/" + strconv.FormatUint(t.ID, 10)
}
