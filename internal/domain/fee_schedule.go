package domain

// FeeSchedule is the process-wide protocol configuration. It is created once
// by an initialization call and afterwards only mutated through admin-gated
// operations.
type FeeSchedule struct {
	Admin          Identity `json:"admin"`
	FeeSink        Identity `json:"fee_sink"`
	CreateFee      Amount   `json:"create_fee"`
	JoinFeeBps     uint16   `json:"join_fee_bps"`
	ClearingFeeBps uint16   `json:"clearing_fee_bps"`
	SettleFeeBps   uint16   `json:"settle_fee_bps"`
	NextMarketID   uint64   `json:"next_market_id"`
}

// FeeRates is the admin-tunable part of a FeeSchedule.
type FeeRates struct {
	FeeSink        Identity `json:"fee_sink"`
	CreateFee      Amount   `json:"create_fee"`
	JoinFeeBps     uint16   `json:"join_fee_bps"`
	ClearingFeeBps uint16   `json:"clearing_fee_bps"`
	SettleFeeBps   uint16   `json:"settle_fee_bps"`
}

// Validate checks the bps bounds and that the fee sink is set.
func (r FeeRates) Validate() error {
	if r.FeeSink == ZeroIdentity {
		return ErrInvalidFeeSink
	}
	for _, bps := range []uint16{r.JoinFeeBps, r.ClearingFeeBps, r.SettleFeeBps} {
		if bps > BPSDenominator {
			return ErrInvalidFeeBps
		}
	}
	return nil
}

// Apply copies the rates onto the schedule.
func (f *FeeSchedule) Apply(r FeeRates) {
	f.FeeSink = r.FeeSink
	f.CreateFee = r.CreateFee
	f.JoinFeeBps = r.JoinFeeBps
	f.ClearingFeeBps = r.ClearingFeeBps
	f.SettleFeeBps = r.SettleFeeBps
}

// IsAdmin reports whether id is the protocol admin.
func (f FeeSchedule) IsAdmin(id Identity) bool {
	return f.Admin != ZeroIdentity && f.Admin == id
}
