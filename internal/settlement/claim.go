package settlement

import (
	"context"
	"time"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

// ClaimPrize pays a winning position its share of the pool minus the
// clearing fee. The position is marked claimed before any value moves and
// the fee leaves escrow before the winner is paid.
func (e *Engine) ClaimPrize(ctx context.Context, caller domain.Identity, marketID uint64) (Payout, error) {
	var out Payout
	err := e.commit(ctx, "claim_prize", func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
		m, err := tx.Market(ctx, marketID)
		if err != nil {
			return nil, err
		}
		if m.Status != domain.MarketStatusSettled {
			return nil, domain.ErrMarketNotSettled
		}
		if m.FinalOutcome == nil || !m.ValidOption(*m.FinalOutcome) {
			return nil, domain.ErrNoOutcome
		}
		pos, err := tx.Position(ctx, marketID, caller)
		if err != nil {
			return nil, err
		}
		if pos.Claimed {
			return nil, domain.ErrAlreadyClaimed
		}
		outcome := *m.FinalOutcome
		if pos.OptionIndex != outcome {
			return nil, domain.ErrNotWinner
		}

		fs, err := tx.FeeSchedule(ctx)
		if err != nil {
			return nil, err
		}
		payout, err := ComputePayout(m.TotalPool, pos.Amount, m.OptionTotals[outcome], fs.ClearingFeeBps)
		if err != nil {
			return nil, err
		}

		pos.Claimed = true
		pos.UpdatedAt = now
		if err := tx.SavePosition(ctx, pos); err != nil {
			return nil, err
		}
		if err := transferFromEscrow(ctx, tx, marketID, domain.FeeAccount(fs.FeeSink), payout.Fee); err != nil {
			return nil, err
		}
		if err := transferFromEscrow(ctx, tx, marketID, domain.UserAccount(caller), payout.Net); err != nil {
			return nil, err
		}
		out = payout

		ev := domain.NewEvent(domain.EventPrizeClaimed, marketID, caller, now)
		ev.Status = m.Status
		ev.User = &caller
		ev.Option = &outcome
		ev.Amount = payout.Net
		ev.Fee = payout.Fee
		return []domain.Event{ev}, nil
	})
	return out, err
}

// RefundExpired returns the caller's principal when nobody proposed an
// outcome within the grace period after resolve_time.
func (e *Engine) RefundExpired(ctx context.Context, caller domain.Identity, marketID uint64) (domain.Amount, error) {
	var out domain.Amount
	err := e.commit(ctx, "refund_expired", func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
		m, err := tx.Market(ctx, marketID)
		if err != nil {
			return nil, err
		}
		pos, err := tx.Position(ctx, marketID, caller)
		if err != nil {
			return nil, err
		}
		if pos.Claimed {
			return nil, domain.ErrAlreadyClaimed
		}
		deadline := m.ResolveTime.Add(e.params.GracePeriod)
		if now.Before(deadline) ||
			(m.Status != domain.MarketStatusOpen && m.Status != domain.MarketStatusClosed) {
			return nil, domain.ErrRefundNotAvailable
		}
		ev, err := refund(ctx, tx, m, pos, caller, caller, domain.RefundReasonTimeout, now)
		if err != nil {
			return nil, err
		}
		out = pos.Amount
		return []domain.Event{ev}, nil
	})
	return out, err
}

// AdminCancelMarket moves a market that is neither settled nor already
// cancelled to Cancelled, opening the refund path. Admin only.
func (e *Engine) AdminCancelMarket(ctx context.Context, caller domain.Identity, marketID uint64) (domain.Market, error) {
	var out domain.Market
	err := e.commit(ctx, "admin_cancel_market", func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
		if _, err := requireAdmin(ctx, tx, caller); err != nil {
			return nil, err
		}
		m, err := tx.Market(ctx, marketID)
		if err != nil {
			return nil, err
		}
		ev, err := cancel(ctx, tx, &m, caller, now)
		if err != nil {
			return nil, err
		}
		out = m
		return []domain.Event{ev}, nil
	})
	return out, err
}

// ClaimCancelledRefund returns the caller's principal from a cancelled market.
func (e *Engine) ClaimCancelledRefund(ctx context.Context, caller domain.Identity, marketID uint64) (domain.Amount, error) {
	var out domain.Amount
	err := e.commit(ctx, "claim_cancelled_refund", func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
		m, err := tx.Market(ctx, marketID)
		if err != nil {
			return nil, err
		}
		pos, err := tx.Position(ctx, marketID, caller)
		if err != nil {
			return nil, err
		}
		if pos.Claimed {
			return nil, domain.ErrAlreadyClaimed
		}
		if m.Status != domain.MarketStatusCancelled {
			return nil, domain.ErrMarketNotCancelled
		}
		ev, err := refund(ctx, tx, m, pos, caller, caller, domain.RefundReasonCancelled, now)
		if err != nil {
			return nil, err
		}
		out = pos.Amount
		return []domain.Event{ev}, nil
	})
	return out, err
}

// ForceCloseResult summarizes a batch force-close.
type ForceCloseResult struct {
	Market   domain.Market `json:"market"`
	Refunded int           `json:"refunded"`
	Total    domain.Amount `json:"total"`
}

// AdminForceClose cancels the market if needed and refunds every entry in
// one atomic step. Any invalid entry aborts the whole batch. Admin only.
func (e *Engine) AdminForceClose(ctx context.Context, caller domain.Identity, marketID uint64, entries []domain.RefundEntry) (ForceCloseResult, error) {
	var out ForceCloseResult
	err := e.commit(ctx, "admin_force_close", func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
		if _, err := requireAdmin(ctx, tx, caller); err != nil {
			return nil, err
		}
		if len(entries) == 0 {
			return nil, domain.ErrEmptyBatch
		}
		m, err := tx.Market(ctx, marketID)
		if err != nil {
			return nil, err
		}

		var events []domain.Event
		if m.Status != domain.MarketStatusCancelled {
			ev, err := cancel(ctx, tx, &m, caller, now)
			if err != nil {
				return nil, err
			}
			events = append(events, ev)
		}

		var total domain.Amount
		for _, entry := range entries {
			if entry.Position.MarketID != marketID {
				return nil, domain.ErrInvalidMarketID
			}
			if entry.Recipient != entry.Position.User {
				return nil, domain.ErrInvalidBetOwner
			}
			pos, err := tx.Position(ctx, marketID, entry.Position.User)
			if err != nil {
				return nil, err
			}
			if pos.Claimed {
				return nil, domain.ErrAlreadyClaimed
			}
			if pos.Amount == 0 {
				return nil, domain.ErrInvalidAmount
			}
			ev, err := refund(ctx, tx, m, pos, entry.Recipient, caller, domain.RefundReasonForceClose, now)
			if err != nil {
				return nil, err
			}
			if total, err = total.Add(pos.Amount); err != nil {
				return nil, err
			}
			events = append(events, ev)
		}

		out = ForceCloseResult{Market: m, Refunded: len(entries), Total: total}
		return events, nil
	})
	return out, err
}

func cancel(ctx context.Context, tx domain.Tx, m *domain.Market, caller domain.Identity, now time.Time) (domain.Event, error) {
	switch m.Status {
	case domain.MarketStatusSettled:
		return domain.Event{}, domain.ErrMarketAlreadySettled
	case domain.MarketStatusCancelled:
		return domain.Event{}, domain.ErrInvalidMarketStatus
	}
	m.Status = domain.MarketStatusCancelled
	m.UpdatedAt = now
	if err := tx.SaveMarket(ctx, *m); err != nil {
		return domain.Event{}, err
	}
	ev := domain.NewEvent(domain.EventMarketCancelled, m.ID, caller, now)
	ev.Status = m.Status
	ev.TotalPool = m.TotalPool
	ev.Reason = "admin"
	return ev, nil
}

// refund marks pos claimed and pays its full principal from escrow to
// recipient. No fee is taken.
func refund(ctx context.Context, tx domain.Tx, m domain.Market, pos domain.Position, recipient, actor domain.Identity, reason string, now time.Time) (domain.Event, error) {
	pos.Claimed = true
	pos.UpdatedAt = now
	if err := tx.SavePosition(ctx, pos); err != nil {
		return domain.Event{}, err
	}
	if err := transferFromEscrow(ctx, tx, m.ID, domain.UserAccount(recipient), pos.Amount); err != nil {
		return domain.Event{}, err
	}
	user := pos.User
	option := pos.OptionIndex
	ev := domain.NewEvent(domain.EventBetRefunded, m.ID, actor, now)
	ev.Status = m.Status
	ev.User = &user
	ev.Option = &option
	ev.Amount = pos.Amount
	ev.Reason = reason
	return ev, nil
}
