package domain

import (
	"slices"
	"time"
)

// Market limits.
const (
	MaxOptions     = 10
	MinOptions     = 2
	MaxQuestionLen = 256
	MaxOptionLen   = 64
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen      MarketStatus = "open"
	MarketStatusClosed    MarketStatus = "closed"
	MarketStatusProposed  MarketStatus = "proposed"
	MarketStatusDisputed  MarketStatus = "disputed"
	MarketStatusSettled   MarketStatus = "settled"
	MarketStatusCancelled MarketStatus = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s MarketStatus) Terminal() bool {
	return s == MarketStatusSettled || s == MarketStatusCancelled
}

// Valid reports whether s is a known status.
func (s MarketStatus) Valid() bool {
	switch s {
	case MarketStatusOpen, MarketStatusClosed, MarketStatusProposed,
		MarketStatusDisputed, MarketStatusSettled, MarketStatusCancelled:
		return true
	}
	return false
}

// ResolutionMode selects the resolver that decides a market's outcome.
type ResolutionMode string

const (
	ResolutionOptimistic ResolutionMode = "optimistic"
	ResolutionOracle     ResolutionMode = "oracle"
)

// Comparator is how an oracle price is compared to the target.
type Comparator string

const (
	ComparatorAbove Comparator = "above" // option 0 wins when price > target
	ComparatorBelow Comparator = "below" // option 0 wins when price < target
)

// OracleTerms configures an oracle-resolved market. Option 0 means the
// condition held, option 1 that it did not.
type OracleTerms struct {
	Oracle      Identity   `json:"oracle"`
	TargetPrice uint64     `json:"target_price"`
	Comparator  Comparator `json:"comparator"`
}

// Holds reports whether price satisfies the terms.
func (o OracleTerms) Holds(price uint64) bool {
	if o.Comparator == ComparatorBelow {
		return price < o.TargetPrice
	}
	return price > o.TargetPrice
}

// Market is one prediction question with its escrowed pool.
type Market struct {
	ID                 uint64         `json:"id"`
	Creator            Identity       `json:"creator"`
	Question           string         `json:"question"`
	Options            []string       `json:"options"`
	OptionTotals       []Amount       `json:"option_totals"`
	OptionParticipants []uint32       `json:"option_participants"`
	StakeAmount        Amount         `json:"stake_amount"`
	BetDeadline        time.Time      `json:"bet_deadline"`
	ResolveTime        time.Time      `json:"resolve_time"`
	ChallengeWindow    time.Duration  `json:"challenge_window"`
	Resolution         ResolutionMode `json:"resolution"`
	Oracle             *OracleTerms   `json:"oracle,omitempty"`
	Status             MarketStatus   `json:"status"`
	ProposedOutcome    *int           `json:"proposed_outcome,omitempty"`
	Proposer           *Identity      `json:"proposer,omitempty"`
	ChallengeEndTime   *time.Time     `json:"challenge_end_time,omitempty"`
	FinalOutcome       *int           `json:"final_outcome,omitempty"`
	SettlePrice        *uint64        `json:"settle_price,omitempty"`
	SettledBy          *Identity      `json:"settled_by,omitempty"`
	ResolvedByAdmin    bool           `json:"resolved_by_admin"`
	TotalPool          Amount         `json:"total_pool"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// FixedStake reports whether every bet must stake exactly StakeAmount.
func (m Market) FixedStake() bool { return m.StakeAmount > 0 }

// EffectiveStatus returns the status as observed at now: an Open market whose
// bet deadline has passed reads as Closed even if not yet persisted.
func (m Market) EffectiveStatus(now time.Time) MarketStatus {
	if m.Status == MarketStatusOpen && !now.Before(m.BetDeadline) {
		return MarketStatusClosed
	}
	return m.Status
}

// ValidOption reports whether idx addresses one of the market's options.
func (m Market) ValidOption(idx int) bool {
	return idx >= 0 && idx < len(m.Options)
}

// Clone returns a deep copy.
func (m Market) Clone() Market {
	c := m
	c.Options = slices.Clone(m.Options)
	c.OptionTotals = slices.Clone(m.OptionTotals)
	c.OptionParticipants = slices.Clone(m.OptionParticipants)
	if m.Oracle != nil {
		o := *m.Oracle
		c.Oracle = &o
	}
	c.ProposedOutcome = clonePtr(m.ProposedOutcome)
	c.Proposer = clonePtr(m.Proposer)
	c.ChallengeEndTime = clonePtr(m.ChallengeEndTime)
	c.FinalOutcome = clonePtr(m.FinalOutcome)
	c.SettlePrice = clonePtr(m.SettlePrice)
	c.SettledBy = clonePtr(m.SettledBy)
	return c
}

// PoolConsistent reports whether TotalPool equals the sum of option totals.
func (m Market) PoolConsistent() bool {
	var sum Amount
	for _, t := range m.OptionTotals {
		var err error
		if sum, err = sum.Add(t); err != nil {
			return false
		}
	}
	return sum == m.TotalPool
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// MarketFilter narrows market listings.
type MarketFilter struct {
	Statuses []MarketStatus
	Creator  *Identity
	ListOpts
}

// Matches reports whether m passes the filter (ignoring pagination).
func (f MarketFilter) Matches(m Market) bool {
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, m.Status) {
		return false
	}
	if f.Creator != nil && *f.Creator != m.Creator {
		return false
	}
	return true
}
