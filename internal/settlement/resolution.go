package settlement

import (
	"context"
	"time"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

// resolve loads the market and the caller's standing, hands the request to
// the market's resolver and persists the result.
func (e *Engine) resolve(ctx context.Context, op string, marketID uint64, req Request) (domain.Market, error) {
	var out domain.Market
	err := e.commit(ctx, op, func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
		m, err := tx.Market(ctx, marketID)
		if err != nil {
			return nil, err
		}
		r, ok := e.resolvers[m.Resolution]
		if !ok {
			return nil, domain.ErrInvalidResolution
		}

		fs, err := tx.FeeSchedule(ctx)
		if err != nil {
			return nil, err
		}
		req.IsAdmin = fs.IsAdmin(req.Caller)
		if req.CallerStake, err = callerStake(ctx, tx, marketID, req.Caller); err != nil {
			return nil, err
		}

		ev, err := r.Apply(&m, req, now)
		if err != nil {
			return nil, err
		}
		m.UpdatedAt = now
		if err := tx.SaveMarket(ctx, m); err != nil {
			return nil, err
		}
		out = m
		return []domain.Event{ev}, nil
	})
	return out, err
}

// ProposeOutcome proposes outcome and opens the challenge window. The caller
// must hold a non-zero position; it does not have to be on the proposed side.
func (e *Engine) ProposeOutcome(ctx context.Context, caller domain.Identity, marketID uint64, outcome int) (domain.Market, error) {
	return e.resolve(ctx, "propose_outcome", marketID, Request{
		Action:  ActionPropose,
		Caller:  caller,
		Outcome: outcome,
	})
}

// ChallengeOutcome disputes the current proposal.
func (e *Engine) ChallengeOutcome(ctx context.Context, caller domain.Identity, marketID uint64) (domain.Market, error) {
	return e.resolve(ctx, "challenge_outcome", marketID, Request{
		Action: ActionChallenge,
		Caller: caller,
	})
}

// FinalizeSettlement settles an unchallenged proposal once its window ended.
func (e *Engine) FinalizeSettlement(ctx context.Context, caller domain.Identity, marketID uint64) (domain.Market, error) {
	return e.resolve(ctx, "finalize_settlement", marketID, Request{
		Action: ActionFinalize,
		Caller: caller,
	})
}

// ResolveDispute settles a disputed market with outcome. Admin only.
func (e *Engine) ResolveDispute(ctx context.Context, caller domain.Identity, marketID uint64, outcome int) (domain.Market, error) {
	return e.resolve(ctx, "resolve_dispute", marketID, Request{
		Action:  ActionResolveDispute,
		Caller:  caller,
		Outcome: outcome,
	})
}

// SubmitPrice settles an oracle market from the oracle's final price.
func (e *Engine) SubmitPrice(ctx context.Context, caller domain.Identity, marketID uint64, price uint64) (domain.Market, error) {
	return e.resolve(ctx, "submit_price", marketID, Request{
		Action: ActionSubmitPrice,
		Caller: caller,
		Price:  price,
	})
}
