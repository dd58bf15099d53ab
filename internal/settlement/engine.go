// Package settlement implements the market state machine, the payout math
// and the escrow accounting of the peer-staked prediction market.
package settlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

// Defaults for Params.
const (
	DefaultGracePeriod = 7 * 24 * time.Hour
	DefaultMinStake    = domain.Amount(1_000_000)
)

// Params are the engine-wide constants.
type Params struct {
	// GracePeriod is how long after resolve_time an unresolved market
	// becomes refundable.
	GracePeriod time.Duration
	// MinStake is the dust floor for fixed stakes and variable bets.
	MinStake domain.Amount
}

// DefaultParams returns the standard constants.
func DefaultParams() Params {
	return Params{GracePeriod: DefaultGracePeriod, MinStake: DefaultMinStake}
}

// Engine drives markets from creation through resolution to payout. Every
// mutating call runs as one store transaction; events are published only
// after the transaction commits.
type Engine struct {
	store     domain.Store
	params    Params
	resolvers map[domain.ResolutionMode]Resolver
	clock     domain.Clock
	publisher domain.EventPublisher
	logger    *slog.Logger
}

// NewEngine creates an Engine over store. With no resolvers given it
// registers Optimistic and Oracle.
func NewEngine(store domain.Store, params Params, logger *slog.Logger, resolvers ...Resolver) *Engine {
	if params.GracePeriod <= 0 {
		params.GracePeriod = DefaultGracePeriod
	}
	if params.MinStake == 0 {
		params.MinStake = DefaultMinStake
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(resolvers) == 0 {
		resolvers = []Resolver{Optimistic{}, Oracle{}}
	}
	e := &Engine{
		store:     store,
		params:    params,
		resolvers: make(map[domain.ResolutionMode]Resolver, len(resolvers)),
		clock:     domain.SystemClock,
		logger:    logger,
	}
	for _, r := range resolvers {
		e.resolvers[r.Mode()] = r
	}
	return e
}

// WithClock overrides the engine clock for deterministic tests.
func (e *Engine) WithClock(clock domain.Clock) *Engine {
	if clock != nil {
		e.clock = clock
	}
	return e
}

// WithPublisher sets the sink for committed events.
func (e *Engine) WithPublisher(p domain.EventPublisher) *Engine {
	e.publisher = p
	return e
}

// Params returns the engine constants.
func (e *Engine) Params() Params { return e.params }

// Now returns the engine's current time.
func (e *Engine) Now() time.Time { return e.clock.Now() }

// Store returns the underlying store for read queries.
func (e *Engine) Store() domain.Store { return e.store }

// txFunc is the body of one atomic operation. It returns the events to
// publish once the transaction commits.
type txFunc func(tx domain.Tx, now time.Time) ([]domain.Event, error)

func (e *Engine) commit(ctx context.Context, op string, fn txFunc) error {
	now := e.clock.Now().UTC()
	var events []domain.Event
	err := e.store.InTx(ctx, func(tx domain.Tx) error {
		evs, err := fn(tx, now)
		if err != nil {
			return err
		}
		events = evs
		return nil
	})
	if err != nil {
		var derr *domain.Error
		if errors.As(err, &derr) {
			e.logger.DebugContext(ctx, "settlement: operation rejected",
				slog.String("op", op),
				slog.String("code", derr.Code),
			)
		}
		return err
	}

	for _, ev := range events {
		e.logger.InfoContext(ctx, "settlement: "+op,
			slog.String("event", string(ev.Kind)),
			slog.Uint64("market_id", ev.MarketID),
			slog.String("actor", ev.Actor.Hex()),
		)
	}
	if e.publisher != nil && len(events) > 0 {
		if err := e.publisher.Publish(ctx, events); err != nil {
			e.logger.WarnContext(ctx, "settlement: publish events failed",
				slog.String("op", op),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// transferFromEscrow moves amount out of a market's escrow after checking the
// escrow can cover it.
func transferFromEscrow(ctx context.Context, tx domain.Tx, marketID uint64, to domain.Account, amount domain.Amount) error {
	if amount == 0 {
		return nil
	}
	escrow := domain.EscrowAccount(marketID)
	bal, err := tx.Balance(ctx, escrow)
	if err != nil {
		return err
	}
	if bal < amount {
		return domain.ErrInsufficientFunds
	}
	return tx.Transfer(ctx, escrow, to, amount)
}

// callerStake returns the caller's position amount, 0 when they have none.
func callerStake(ctx context.Context, tx domain.Tx, marketID uint64, caller domain.Identity) (domain.Amount, error) {
	pos, err := tx.Position(ctx, marketID, caller)
	if errors.Is(err, domain.ErrPositionNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return pos.Amount, nil
}

func requireAdmin(ctx context.Context, tx domain.Tx, caller domain.Identity) (domain.FeeSchedule, error) {
	fs, err := tx.FeeSchedule(ctx)
	if err != nil {
		return domain.FeeSchedule{}, err
	}
	if !fs.IsAdmin(caller) {
		return domain.FeeSchedule{}, domain.ErrNotAdmin
	}
	return fs, nil
}
