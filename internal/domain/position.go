package domain

import "time"

// Position is one user's cumulative stake on one option of one market.
type Position struct {
	MarketID    uint64    `json:"market_id"`
	User        Identity  `json:"user"`
	OptionIndex int       `json:"option_index"`
	Amount      Amount    `json:"amount"`
	Claimed     bool      `json:"claimed"`
	BetCount    uint32    `json:"bet_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// PositionRef addresses a position by its (market, user) key.
type PositionRef struct {
	MarketID uint64   `json:"market_id"`
	User     Identity `json:"user"`
}

// RefundEntry pairs a position with the identity that should receive its
// refund in a batch force-close.
type RefundEntry struct {
	Position  PositionRef `json:"position"`
	Recipient Identity    `json:"recipient"`
}
