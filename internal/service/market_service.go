package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/alanyoungcy/peerstake/internal/domain"
	"github.com/alanyoungcy/peerstake/internal/settlement"
)

// DefaultLockTTL bounds how long a crashed holder can keep a market locked.
const DefaultLockTTL = 10 * time.Second

// MarketService fronts the settlement engine for the API. Reads go through
// the market cache; mutations on an existing market hold that market's
// distributed lock so concurrent replicas serialize per market.
type MarketService struct {
	engine  *settlement.Engine
	cache   domain.MarketCache
	locks   domain.LockManager
	lockTTL time.Duration
	logger  *slog.Logger
}

// NewMarketService creates a MarketService. cache and locks may be nil, in
// which case reads hit the store directly and mutations rely on store
// transactions alone.
func NewMarketService(
	engine *settlement.Engine,
	cache domain.MarketCache,
	locks domain.LockManager,
	logger *slog.Logger,
) *MarketService {
	if logger == nil {
		logger = slog.Default()
	}
	return &MarketService{
		engine:  engine,
		cache:   cache,
		locks:   locks,
		lockTTL: DefaultLockTTL,
		logger:  logger.With(slog.String("component", "market_service")),
	}
}

// WithLockTTL overrides DefaultLockTTL.
func (s *MarketService) WithLockTTL(ttl time.Duration) *MarketService {
	if ttl > 0 {
		s.lockTTL = ttl
	}
	return s
}

// Engine exposes the underlying engine.
func (s *MarketService) Engine() *settlement.Engine { return s.engine }

// LockKey is the lock name for one market.
func LockKey(marketID uint64) string {
	return "market:" + strconv.FormatUint(marketID, 10)
}

// withMarketLock runs fn while holding the market's lock. A busy lock fails
// fast with domain.ErrLockHeld.
func (s *MarketService) withMarketLock(ctx context.Context, marketID uint64, fn func() error) error {
	if s.locks == nil {
		return fn()
	}
	unlock, err := s.locks.Acquire(ctx, LockKey(marketID), s.lockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return err
		}
		return fmt.Errorf("market_service: lock market %d: %w", marketID, err)
	}
	defer unlock()
	return fn()
}

// invalidate drops a cached market after a mutation. The event relay does
// the same for every replica; doing it here closes the window for the
// caller's own next read.
func (s *MarketService) invalidate(ctx context.Context, marketID uint64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, marketID); err != nil {
		s.logger.WarnContext(ctx, "market_service: cache invalidate failed",
			slog.Uint64("market_id", marketID),
			slog.String("error", err.Error()),
		)
	}
}

// GetMarket retrieves a market by ID, checking the cache first and falling
// back to the store on a miss. The status is reported as of now, so an Open
// market past its bet deadline reads as Closed before the keeper persists it.
func (s *MarketService) GetMarket(ctx context.Context, id uint64) (domain.Market, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			m.Status = m.EffectiveStatus(s.engine.Now())
			return m, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "market_service: cache get failed",
				slog.Uint64("market_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	m, err := s.engine.Market(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}

	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: cache set failed",
				slog.Uint64("market_id", id),
				slog.String("error", cacheErr.Error()),
			)
		}
	}
	m.Status = m.EffectiveStatus(s.engine.Now())
	return m, nil
}

// ListMarkets returns markets from the store in id order with statuses as of
// now. A Closed filter also matches Open markets past their bet deadline, so
// a page may hold fewer than Limit markets.
func (s *MarketService) ListMarkets(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	query := f
	if slices.Contains(f.Statuses, domain.MarketStatusClosed) && !slices.Contains(f.Statuses, domain.MarketStatusOpen) {
		query.Statuses = append(slices.Clone(f.Statuses), domain.MarketStatusOpen)
	}
	markets, err := s.engine.Store().ListMarkets(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("market_service: list markets: %w", err)
	}

	now := s.engine.Now()
	out := markets[:0]
	for _, m := range markets {
		m.Status = m.EffectiveStatus(now)
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, m.Status) {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// Positions lists every position of a market.
func (s *MarketService) Positions(ctx context.Context, marketID uint64) ([]domain.Position, error) {
	if _, err := s.engine.Store().GetMarket(ctx, marketID); err != nil {
		return nil, err
	}
	positions, err := s.engine.Store().ListPositions(ctx, marketID)
	if err != nil {
		return nil, fmt.Errorf("market_service: list positions %d: %w", marketID, err)
	}
	return positions, nil
}

// Position returns one user's position in a market.
func (s *MarketService) Position(ctx context.Context, marketID uint64, user domain.Identity) (domain.Position, error) {
	return s.engine.Store().GetPosition(ctx, marketID, user)
}

// Balance returns the ledger balance of an account.
func (s *MarketService) Balance(ctx context.Context, account domain.Account) (domain.Amount, error) {
	return s.engine.Store().Balance(ctx, account)
}

// Deposit credits a user account from outside the system.
func (s *MarketService) Deposit(ctx context.Context, user domain.Identity, amount domain.Amount) (domain.Amount, error) {
	if amount == 0 {
		return 0, domain.ErrInvalidAmount
	}
	account := domain.UserAccount(user)
	if err := s.engine.Store().Deposit(ctx, account, amount); err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "market_service: deposit",
		slog.String("account", account.String()),
		slog.String("amount", amount.String()),
	)
	return s.engine.Store().Balance(ctx, account)
}

// FeeSchedule returns the current fee schedule.
func (s *MarketService) FeeSchedule(ctx context.Context) (domain.FeeSchedule, error) {
	return s.engine.FeeSchedule(ctx)
}

func (s *MarketService) InitializeFeeSchedule(ctx context.Context, caller, admin domain.Identity, rates domain.FeeRates) (domain.FeeSchedule, error) {
	return s.engine.InitializeFeeSchedule(ctx, caller, admin, rates)
}

func (s *MarketService) UpdateFeeSchedule(ctx context.Context, caller domain.Identity, rates domain.FeeRates) (domain.FeeSchedule, error) {
	return s.engine.UpdateFeeSchedule(ctx, caller, rates)
}

func (s *MarketService) SetAdmin(ctx context.Context, caller, newAdmin domain.Identity) (domain.FeeSchedule, error) {
	return s.engine.SetAdmin(ctx, caller, newAdmin)
}

// CreateMarket allocates a new market id. It serializes on the fee schedule
// row rather than a market lock.
func (s *MarketService) CreateMarket(ctx context.Context, creator domain.Identity, p settlement.MarketParams) (domain.Market, error) {
	return s.engine.CreateMarket(ctx, creator, p)
}

func (s *MarketService) PlaceBet(ctx context.Context, caller domain.Identity, marketID uint64, option int, amount domain.Amount) (domain.Position, error) {
	var pos domain.Position
	err := s.withMarketLock(ctx, marketID, func() error {
		var err error
		pos, err = s.engine.PlaceBet(ctx, caller, marketID, option, amount)
		return err
	})
	if err == nil {
		s.invalidate(ctx, marketID)
	}
	return pos, err
}

// marketOp runs one market-returning engine call under the market lock.
func (s *MarketService) marketOp(ctx context.Context, marketID uint64, fn func() (domain.Market, error)) (domain.Market, error) {
	var m domain.Market
	err := s.withMarketLock(ctx, marketID, func() error {
		var err error
		m, err = fn()
		return err
	})
	if err != nil {
		return domain.Market{}, err
	}
	s.invalidate(ctx, marketID)
	return m, nil
}

func (s *MarketService) ProposeOutcome(ctx context.Context, caller domain.Identity, marketID uint64, outcome int) (domain.Market, error) {
	return s.marketOp(ctx, marketID, func() (domain.Market, error) {
		return s.engine.ProposeOutcome(ctx, caller, marketID, outcome)
	})
}

func (s *MarketService) ChallengeOutcome(ctx context.Context, caller domain.Identity, marketID uint64) (domain.Market, error) {
	return s.marketOp(ctx, marketID, func() (domain.Market, error) {
		return s.engine.ChallengeOutcome(ctx, caller, marketID)
	})
}

func (s *MarketService) FinalizeSettlement(ctx context.Context, caller domain.Identity, marketID uint64) (domain.Market, error) {
	return s.marketOp(ctx, marketID, func() (domain.Market, error) {
		return s.engine.FinalizeSettlement(ctx, caller, marketID)
	})
}

func (s *MarketService) ResolveDispute(ctx context.Context, caller domain.Identity, marketID uint64, outcome int) (domain.Market, error) {
	return s.marketOp(ctx, marketID, func() (domain.Market, error) {
		return s.engine.ResolveDispute(ctx, caller, marketID, outcome)
	})
}

func (s *MarketService) SubmitPrice(ctx context.Context, caller domain.Identity, marketID uint64, price uint64) (domain.Market, error) {
	return s.marketOp(ctx, marketID, func() (domain.Market, error) {
		return s.engine.SubmitPrice(ctx, caller, marketID, price)
	})
}

func (s *MarketService) AdminCancelMarket(ctx context.Context, caller domain.Identity, marketID uint64) (domain.Market, error) {
	return s.marketOp(ctx, marketID, func() (domain.Market, error) {
		return s.engine.AdminCancelMarket(ctx, caller, marketID)
	})
}

func (s *MarketService) ClaimPrize(ctx context.Context, caller domain.Identity, marketID uint64) (settlement.Payout, error) {
	var p settlement.Payout
	err := s.withMarketLock(ctx, marketID, func() error {
		var err error
		p, err = s.engine.ClaimPrize(ctx, caller, marketID)
		return err
	})
	return p, err
}

func (s *MarketService) RefundExpired(ctx context.Context, caller domain.Identity, marketID uint64) (domain.Amount, error) {
	var amt domain.Amount
	err := s.withMarketLock(ctx, marketID, func() error {
		var err error
		amt, err = s.engine.RefundExpired(ctx, caller, marketID)
		return err
	})
	if err == nil {
		s.invalidate(ctx, marketID)
	}
	return amt, err
}

func (s *MarketService) ClaimCancelledRefund(ctx context.Context, caller domain.Identity, marketID uint64) (domain.Amount, error) {
	var amt domain.Amount
	err := s.withMarketLock(ctx, marketID, func() error {
		var err error
		amt, err = s.engine.ClaimCancelledRefund(ctx, caller, marketID)
		return err
	})
	return amt, err
}

func (s *MarketService) AdminForceClose(ctx context.Context, caller domain.Identity, marketID uint64, entries []domain.RefundEntry) (settlement.ForceCloseResult, error) {
	var res settlement.ForceCloseResult
	err := s.withMarketLock(ctx, marketID, func() error {
		var err error
		res, err = s.engine.AdminForceClose(ctx, caller, marketID, entries)
		return err
	})
	if err == nil {
		s.invalidate(ctx, marketID)
	}
	return res, err
}
