package settlement

import (
	"time"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

// Action is a resolution step requested against a market.
type Action string

const (
	ActionPropose        Action = "propose"
	ActionChallenge      Action = "challenge"
	ActionFinalize       Action = "finalize"
	ActionResolveDispute Action = "resolve_dispute"
	ActionSubmitPrice    Action = "submit_price"
)

// Request carries a resolution step plus the facts the engine loaded for it.
type Request struct {
	Action  Action
	Caller  domain.Identity
	Outcome int
	Price   uint64

	// CallerStake is the caller's position amount in the market, 0 if none.
	CallerStake domain.Amount
	// IsAdmin is true when Caller is the fee schedule admin.
	IsAdmin bool
}

// Resolver decides a market's final outcome. Apply mutates m in place and
// returns the event describing the transition; on error m must be discarded.
type Resolver interface {
	Mode() domain.ResolutionMode
	Apply(m *domain.Market, req Request, now time.Time) (domain.Event, error)
}

// Optimistic resolves by proposal: any bettor proposes, any bettor may
// challenge within the window, the admin settles disputes and an
// unchallenged proposal is finalized by any bettor once the window ends.
type Optimistic struct{}

func (Optimistic) Mode() domain.ResolutionMode { return domain.ResolutionOptimistic }

func (o Optimistic) Apply(m *domain.Market, req Request, now time.Time) (domain.Event, error) {
	switch req.Action {
	case ActionPropose:
		return o.propose(m, req, now)
	case ActionChallenge:
		return o.challenge(m, req, now)
	case ActionFinalize:
		return o.finalize(m, req, now)
	case ActionResolveDispute:
		return o.resolveDispute(m, req, now)
	default:
		return domain.Event{}, domain.ErrUnsupportedAction
	}
}

func (Optimistic) propose(m *domain.Market, req Request, now time.Time) (domain.Event, error) {
	if m.Status != domain.MarketStatusOpen && m.Status != domain.MarketStatusClosed {
		return domain.Event{}, domain.ErrInvalidMarketStatus
	}
	if !m.ValidOption(req.Outcome) {
		return domain.Event{}, domain.ErrInvalidOptionIndex
	}
	if req.CallerStake == 0 {
		return domain.Event{}, domain.ErrMustBeBettor
	}
	if m.ChallengeWindow <= 0 {
		return domain.Event{}, domain.ErrNoChallengeWindow
	}

	end := now.Add(m.ChallengeWindow)
	outcome := req.Outcome
	proposer := req.Caller
	m.Status = domain.MarketStatusProposed
	m.ProposedOutcome = &outcome
	m.Proposer = &proposer
	m.ChallengeEndTime = &end

	ev := domain.NewEvent(domain.EventOutcomeProposed, m.ID, req.Caller, now)
	ev.Status = m.Status
	ev.Option = &outcome
	return ev, nil
}

func (Optimistic) challenge(m *domain.Market, req Request, now time.Time) (domain.Event, error) {
	if m.Status != domain.MarketStatusProposed {
		return domain.Event{}, domain.ErrMarketNotProposed
	}
	if m.ChallengeEndTime == nil {
		return domain.Event{}, domain.ErrNoChallengeWindow
	}
	if !now.Before(*m.ChallengeEndTime) {
		return domain.Event{}, domain.ErrChallengeWindowClosed
	}
	if req.CallerStake == 0 {
		return domain.Event{}, domain.ErrMustBeBettor
	}

	m.Status = domain.MarketStatusDisputed

	ev := domain.NewEvent(domain.EventOutcomeChallenged, m.ID, req.Caller, now)
	ev.Status = m.Status
	ev.Option = m.ProposedOutcome
	return ev, nil
}

func (Optimistic) finalize(m *domain.Market, req Request, now time.Time) (domain.Event, error) {
	if m.Status != domain.MarketStatusProposed {
		return domain.Event{}, domain.ErrMarketNotProposed
	}
	if m.ChallengeEndTime == nil {
		return domain.Event{}, domain.ErrNoChallengeWindow
	}
	if now.Before(*m.ChallengeEndTime) {
		return domain.Event{}, domain.ErrChallengeWindowNotEnded
	}
	if req.CallerStake == 0 {
		return domain.Event{}, domain.ErrMustBeBettor
	}
	if m.ProposedOutcome == nil {
		return domain.Event{}, domain.ErrNoOutcome
	}

	outcome := *m.ProposedOutcome
	settler := req.Caller
	m.Status = domain.MarketStatusSettled
	m.FinalOutcome = &outcome
	m.SettledBy = &settler
	m.ResolvedByAdmin = false

	ev := domain.NewEvent(domain.EventMarketSettled, m.ID, req.Caller, now)
	ev.Status = m.Status
	ev.Option = &outcome
	ev.TotalPool = m.TotalPool
	return ev, nil
}

func (Optimistic) resolveDispute(m *domain.Market, req Request, now time.Time) (domain.Event, error) {
	if !req.IsAdmin {
		return domain.Event{}, domain.ErrNotAdmin
	}
	if m.Status != domain.MarketStatusDisputed {
		return domain.Event{}, domain.ErrMarketNotDisputed
	}
	if !m.ValidOption(req.Outcome) {
		return domain.Event{}, domain.ErrInvalidOptionIndex
	}

	outcome := req.Outcome
	settler := req.Caller
	m.Status = domain.MarketStatusSettled
	m.FinalOutcome = &outcome
	m.SettledBy = &settler
	m.ResolvedByAdmin = true

	ev := domain.NewEvent(domain.EventMarketSettled, m.ID, req.Caller, now)
	ev.Status = m.Status
	ev.Option = &outcome
	ev.TotalPool = m.TotalPool
	ev.AdminResolution = true
	return ev, nil
}

// Oracle resolves with a single price submitted by the market's designated
// oracle once resolve_time has passed. There is no challenge period.
type Oracle struct{}

func (Oracle) Mode() domain.ResolutionMode { return domain.ResolutionOracle }

func (Oracle) Apply(m *domain.Market, req Request, now time.Time) (domain.Event, error) {
	if req.Action != ActionSubmitPrice {
		return domain.Event{}, domain.ErrUnsupportedAction
	}
	if m.Oracle == nil {
		return domain.Event{}, domain.ErrInvalidOracle
	}
	if req.Caller != m.Oracle.Oracle {
		return domain.Event{}, domain.ErrUnauthorizedOracle
	}
	if m.Status != domain.MarketStatusOpen && m.Status != domain.MarketStatusClosed {
		return domain.Event{}, domain.ErrInvalidMarketStatus
	}
	if now.Before(m.ResolveTime) {
		return domain.Event{}, domain.ErrNotMature
	}
	if req.Price == 0 {
		return domain.Event{}, domain.ErrInvalidPrice
	}

	price := req.Price
	settler := req.Caller
	m.SettlePrice = &price
	m.SettledBy = &settler

	// With one side empty nobody can win against anybody; everyone gets
	// their principal back instead.
	if len(m.OptionTotals) < 2 || m.OptionTotals[0] == 0 || m.OptionTotals[1] == 0 {
		m.Status = domain.MarketStatusCancelled
		ev := domain.NewEvent(domain.EventMarketCancelled, m.ID, req.Caller, now)
		ev.Status = m.Status
		ev.Price = &price
		ev.TotalPool = m.TotalPool
		ev.Reason = "one_sided"
		return ev, nil
	}

	outcome := 1
	if m.Oracle.Holds(price) {
		outcome = 0
	}
	m.Status = domain.MarketStatusSettled
	m.FinalOutcome = &outcome

	ev := domain.NewEvent(domain.EventMarketSettled, m.ID, req.Caller, now)
	ev.Status = m.Status
	ev.Option = &outcome
	ev.Price = &price
	ev.TotalPool = m.TotalPool
	return ev, nil
}
