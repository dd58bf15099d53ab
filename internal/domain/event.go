package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventKind names the operation an Event records.
type EventKind string

const (
	EventFeeScheduleInitialized EventKind = "fee_schedule_initialized"
	EventFeeScheduleUpdated     EventKind = "fee_schedule_updated"
	EventAdminChanged           EventKind = "admin_changed"
	EventMarketCreated          EventKind = "market_created"
	EventBetPlaced              EventKind = "bet_placed"
	EventOutcomeProposed        EventKind = "outcome_proposed"
	EventOutcomeChallenged      EventKind = "outcome_challenged"
	EventMarketSettled          EventKind = "market_settled"
	EventPrizeClaimed           EventKind = "prize_claimed"
	EventBetRefunded            EventKind = "bet_refunded"
	EventMarketCancelled        EventKind = "market_cancelled"
	EventMarketClosed           EventKind = "market_closed"
)

// Refund reasons carried on EventBetRefunded.
const (
	RefundReasonTimeout    = "timeout"
	RefundReasonCancelled  = "cancelled"
	RefundReasonForceClose = "force_close"
)

// Event is emitted after every committed mutation. It is meant for indexing
// and notification; nothing in the engine reads it back.
type Event struct {
	ID              string       `json:"id"`
	Kind            EventKind    `json:"kind"`
	MarketID        uint64       `json:"market_id,omitempty"`
	Actor           Identity     `json:"actor"`
	At              time.Time    `json:"at"`
	Status          MarketStatus `json:"status,omitempty"`
	User            *Identity    `json:"user,omitempty"`
	Option          *int         `json:"option,omitempty"`
	Amount          Amount       `json:"amount,omitempty"`
	Fee             Amount       `json:"fee,omitempty"`
	TotalPool       Amount       `json:"total_pool,omitempty"`
	Price           *uint64      `json:"price,omitempty"`
	AdminResolution bool         `json:"admin_resolution,omitempty"`
	Reason          string       `json:"reason,omitempty"`
}

// NewEvent stamps a fresh event id.
func NewEvent(kind EventKind, marketID uint64, actor Identity, at time.Time) Event {
	return Event{
		ID:       uuid.NewString(),
		Kind:     kind,
		MarketID: marketID,
		Actor:    actor,
		At:       at.UTC(),
	}
}

// Detail flattens the event for the audit log.
func (e Event) Detail() map[string]any {
	d := map[string]any{
		"id":        e.ID,
		"market_id": e.MarketID,
		"actor":     e.Actor.Hex(),
		"at":        e.At.Unix(),
	}
	if e.Status != "" {
		d["status"] = string(e.Status)
	}
	if e.User != nil {
		d["user"] = e.User.Hex()
	}
	if e.Option != nil {
		d["option"] = *e.Option
	}
	if e.Amount > 0 {
		d["amount"] = e.Amount.String()
	}
	if e.Fee > 0 {
		d["fee"] = e.Fee.String()
	}
	if e.TotalPool > 0 {
		d["total_pool"] = e.TotalPool.String()
	}
	if e.Price != nil {
		d["price"] = *e.Price
	}
	if e.AdminResolution {
		d["admin_resolution"] = true
	}
	if e.Reason != "" {
		d["reason"] = e.Reason
	}
	return d
}
