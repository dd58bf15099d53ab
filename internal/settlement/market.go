package settlement

import (
	"context"
	"errors"
	"math"
	"time"
	"unicode/utf8"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

// MarketParams are the inputs to CreateMarket.
type MarketParams struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	// StakeAmount > 0 makes every bet stake exactly this amount; 0 lets each
	// bet choose its own amount.
	StakeAmount     domain.Amount         `json:"stake_amount"`
	BetDeadline     time.Time             `json:"bet_deadline"`
	ResolveTime     time.Time             `json:"resolve_time"`
	ChallengeWindow time.Duration         `json:"challenge_window"`
	Resolution      domain.ResolutionMode `json:"resolution"`
	Oracle          *domain.OracleTerms   `json:"oracle,omitempty"`
}

func (e *Engine) validateMarket(p *MarketParams, now time.Time) error {
	if utf8.RuneCountInString(p.Question) > domain.MaxQuestionLen {
		return domain.ErrQuestionTooLong
	}
	if len(p.Options) < domain.MinOptions || len(p.Options) > domain.MaxOptions {
		return domain.ErrInvalidOptionsCount
	}
	for _, opt := range p.Options {
		if utf8.RuneCountInString(opt) > domain.MaxOptionLen {
			return domain.ErrOptionTooLong
		}
	}
	if p.StakeAmount > 0 && p.StakeAmount < e.params.MinStake {
		return domain.ErrStakeTooSmall
	}
	if !p.BetDeadline.After(now) {
		return domain.ErrInvalidBetDeadline
	}
	if p.ResolveTime.Before(p.BetDeadline) {
		return domain.ErrInvalidResolveTime
	}

	if p.Resolution == "" {
		p.Resolution = domain.ResolutionOptimistic
	}
	if _, ok := e.resolvers[p.Resolution]; !ok {
		return domain.ErrInvalidResolution
	}
	switch p.Resolution {
	case domain.ResolutionOptimistic:
		if p.ChallengeWindow <= 0 {
			return domain.ErrInvalidChallengeWindow
		}
		p.Oracle = nil
	case domain.ResolutionOracle:
		if p.Oracle == nil || p.Oracle.Oracle == domain.ZeroIdentity || len(p.Options) != 2 {
			return domain.ErrInvalidOracle
		}
		o := *p.Oracle
		p.Oracle = &o
		if o.Comparator == "" {
			o.Comparator = domain.ComparatorAbove
		}
		if o.Comparator != domain.ComparatorAbove && o.Comparator != domain.ComparatorBelow {
			return domain.ErrInvalidOracle
		}
		if p.ChallengeWindow < 0 {
			return domain.ErrInvalidChallengeWindow
		}
	}
	return nil
}

// CreateMarket validates p, charges the creation fee and opens a new market
// under the next market id.
func (e *Engine) CreateMarket(ctx context.Context, creator domain.Identity, p MarketParams) (domain.Market, error) {
	var out domain.Market
	err := e.commit(ctx, "create_market", func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
		if err := e.validateMarket(&p, now); err != nil {
			return nil, err
		}
		fs, err := tx.FeeSchedule(ctx)
		if err != nil {
			return nil, err
		}

		id := fs.NextMarketID
		if id == math.MaxUint64 {
			return nil, domain.ErrOverflow
		}
		fs.NextMarketID = id + 1
		if err := tx.SaveFeeSchedule(ctx, fs); err != nil {
			return nil, err
		}

		if fs.CreateFee > 0 {
			if err := tx.Transfer(ctx, domain.UserAccount(creator), domain.FeeAccount(fs.FeeSink), fs.CreateFee); err != nil {
				return nil, err
			}
		}

		m := domain.Market{
			ID:                 id,
			Creator:            creator,
			Question:           p.Question,
			Options:            append([]string(nil), p.Options...),
			OptionTotals:       make([]domain.Amount, len(p.Options)),
			OptionParticipants: make([]uint32, len(p.Options)),
			StakeAmount:        p.StakeAmount,
			BetDeadline:        p.BetDeadline.UTC(),
			ResolveTime:        p.ResolveTime.UTC(),
			ChallengeWindow:    p.ChallengeWindow,
			Resolution:         p.Resolution,
			Oracle:             p.Oracle,
			Status:             domain.MarketStatusOpen,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := tx.SaveMarket(ctx, m); err != nil {
			return nil, err
		}
		out = m

		ev := domain.NewEvent(domain.EventMarketCreated, id, creator, now)
		ev.Status = m.Status
		ev.Fee = fs.CreateFee
		ev.Amount = m.StakeAmount
		return []domain.Event{ev}, nil
	})
	return out, err
}

// PlaceBet stakes on option for caller. In fixed-stake markets amount must be
// 0 or equal to the market stake; otherwise it is the stake. The join fee is
// charged on top of the stake, which goes to escrow in full.
func (e *Engine) PlaceBet(ctx context.Context, caller domain.Identity, marketID uint64, option int, amount domain.Amount) (domain.Position, error) {
	var out domain.Position
	err := e.commit(ctx, "place_bet", func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
		m, err := tx.Market(ctx, marketID)
		if err != nil {
			return nil, err
		}
		if m.Status != domain.MarketStatusOpen {
			return nil, domain.ErrMarketNotOpen
		}
		if !now.Before(m.BetDeadline) {
			return nil, domain.ErrBettingClosed
		}
		if !m.ValidOption(option) {
			return nil, domain.ErrInvalidOptionIndex
		}

		stake := amount
		if m.FixedStake() {
			if amount != 0 && amount != m.StakeAmount {
				return nil, domain.ErrInvalidAmount
			}
			stake = m.StakeAmount
		} else {
			if amount == 0 {
				return nil, domain.ErrInvalidAmount
			}
			if amount < e.params.MinStake {
				return nil, domain.ErrStakeTooSmall
			}
		}

		fs, err := tx.FeeSchedule(ctx)
		if err != nil {
			return nil, err
		}
		joinFee, err := FeeOf(stake, fs.JoinFeeBps)
		if err != nil {
			return nil, err
		}

		pos, err := tx.Position(ctx, marketID, caller)
		switch {
		case errors.Is(err, domain.ErrPositionNotFound):
			if m.OptionParticipants[option] == math.MaxUint32 {
				return nil, domain.ErrOverflow
			}
			m.OptionParticipants[option]++
			pos = domain.Position{
				MarketID:    marketID,
				User:        caller,
				OptionIndex: option,
				Amount:      stake,
				BetCount:    1,
				CreatedAt:   now,
			}
		case err != nil:
			return nil, err
		default:
			if pos.OptionIndex != option {
				return nil, domain.ErrCannotChangeOption
			}
			if pos.Amount, err = pos.Amount.Add(stake); err != nil {
				return nil, err
			}
			if pos.BetCount == math.MaxUint32 {
				return nil, domain.ErrOverflow
			}
			pos.BetCount++
		}
		pos.UpdatedAt = now

		if m.OptionTotals[option], err = m.OptionTotals[option].Add(stake); err != nil {
			return nil, err
		}
		if m.TotalPool, err = m.TotalPool.Add(stake); err != nil {
			return nil, err
		}
		m.UpdatedAt = now

		user := domain.UserAccount(caller)
		if err := tx.Transfer(ctx, user, domain.EscrowAccount(marketID), stake); err != nil {
			return nil, err
		}
		if joinFee > 0 {
			if err := tx.Transfer(ctx, user, domain.FeeAccount(fs.FeeSink), joinFee); err != nil {
				return nil, err
			}
		}

		if err := tx.SavePosition(ctx, pos); err != nil {
			return nil, err
		}
		if err := tx.SaveMarket(ctx, m); err != nil {
			return nil, err
		}
		out = pos

		ev := domain.NewEvent(domain.EventBetPlaced, marketID, caller, now)
		ev.Status = m.Status
		ev.User = &caller
		ev.Option = &option
		ev.Amount = stake
		ev.Fee = joinFee
		ev.TotalPool = m.TotalPool
		return []domain.Event{ev}, nil
	})
	return out, err
}

// CloseExpired persists Closed for every Open market whose bet deadline has
// passed and returns how many were closed. Bets are already rejected from
// the deadline on; this only makes the stored status match.
func (e *Engine) CloseExpired(ctx context.Context) (int, error) {
	open, err := e.store.ListMarkets(ctx, domain.MarketFilter{
		Statuses: []domain.MarketStatus{domain.MarketStatusOpen},
	})
	if err != nil {
		return 0, err
	}
	now := e.clock.Now()
	closed := 0
	for _, m := range open {
		if now.Before(m.BetDeadline) {
			continue
		}
		id := m.ID
		changed := false
		err := e.commit(ctx, "close_market", func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
			m, err := tx.Market(ctx, id)
			if err != nil {
				return nil, err
			}
			if m.Status != domain.MarketStatusOpen || now.Before(m.BetDeadline) {
				return nil, nil
			}
			m.Status = domain.MarketStatusClosed
			m.UpdatedAt = now
			if err := tx.SaveMarket(ctx, m); err != nil {
				return nil, err
			}
			changed = true
			ev := domain.NewEvent(domain.EventMarketClosed, id, domain.ZeroIdentity, now)
			ev.Status = m.Status
			ev.TotalPool = m.TotalPool
			return []domain.Event{ev}, nil
		})
		if err != nil {
			return closed, err
		}
		if changed {
			closed++
		}
	}
	return closed, nil
}

// Market returns a market by id.
func (e *Engine) Market(ctx context.Context, id uint64) (domain.Market, error) {
	return e.store.GetMarket(ctx, id)
}
