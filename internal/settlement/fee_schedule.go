package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

// InitializeFeeSchedule creates the fee schedule. It succeeds exactly once.
func (e *Engine) InitializeFeeSchedule(ctx context.Context, caller, admin domain.Identity, rates domain.FeeRates) (domain.FeeSchedule, error) {
	var out domain.FeeSchedule
	err := e.commit(ctx, "initialize_fee_schedule", func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
		_, err := tx.FeeSchedule(ctx)
		switch {
		case err == nil:
			return nil, domain.ErrAlreadyInitialized
		case !errors.Is(err, domain.ErrNotInitialized):
			return nil, err
		}
		if admin == domain.ZeroIdentity {
			return nil, domain.ErrInvalidAdmin
		}
		if err := rates.Validate(); err != nil {
			return nil, err
		}

		fs := domain.FeeSchedule{Admin: admin, NextMarketID: 1}
		fs.Apply(rates)
		if err := tx.CreateFeeSchedule(ctx, fs); err != nil {
			return nil, err
		}
		out = fs
		return []domain.Event{domain.NewEvent(domain.EventFeeScheduleInitialized, 0, caller, now)}, nil
	})
	return out, err
}

// UpdateFeeSchedule replaces the fee sink and rates. Admin only.
func (e *Engine) UpdateFeeSchedule(ctx context.Context, caller domain.Identity, rates domain.FeeRates) (domain.FeeSchedule, error) {
	var out domain.FeeSchedule
	err := e.commit(ctx, "update_fee_schedule", func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
		fs, err := requireAdmin(ctx, tx, caller)
		if err != nil {
			return nil, err
		}
		if err := rates.Validate(); err != nil {
			return nil, err
		}
		fs.Apply(rates)
		if err := tx.SaveFeeSchedule(ctx, fs); err != nil {
			return nil, err
		}
		out = fs
		return []domain.Event{domain.NewEvent(domain.EventFeeScheduleUpdated, 0, caller, now)}, nil
	})
	return out, err
}

// SetAdmin rotates the protocol admin. Admin only; the new admin must be
// non-zero.
func (e *Engine) SetAdmin(ctx context.Context, caller, newAdmin domain.Identity) (domain.FeeSchedule, error) {
	var out domain.FeeSchedule
	err := e.commit(ctx, "set_admin", func(tx domain.Tx, now time.Time) ([]domain.Event, error) {
		fs, err := requireAdmin(ctx, tx, caller)
		if err != nil {
			return nil, err
		}
		if newAdmin == domain.ZeroIdentity {
			return nil, domain.ErrInvalidAdmin
		}
		fs.Admin = newAdmin
		if err := tx.SaveFeeSchedule(ctx, fs); err != nil {
			return nil, err
		}
		out = fs
		ev := domain.NewEvent(domain.EventAdminChanged, 0, caller, now)
		ev.User = &newAdmin
		return []domain.Event{ev}, nil
	})
	return out, err
}

// FeeSchedule returns the current fee schedule.
func (e *Engine) FeeSchedule(ctx context.Context) (domain.FeeSchedule, error) {
	return e.store.GetFeeSchedule(ctx)
}
