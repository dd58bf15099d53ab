package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/peerstake/internal/domain"
	"github.com/alanyoungcy/peerstake/internal/settlement"
)

// DefaultKeeperInterval is the tick period when none is configured.
const DefaultKeeperInterval = 30 * time.Second

const keeperLockKey = "keeper"

// KeeperConfig holds the keeper's tuning.
type KeeperConfig struct {
	Interval time.Duration
	// Archive enables copying terminal markets to cold storage.
	Archive bool
}

// TickResult summarizes one keeper pass.
type TickResult struct {
	Closed   int
	Archived int
	Events   int
}

// Keeper runs periodic lifecycle chores: persisting Closed for markets past
// their bet deadline, archiving terminal markets and flushing buffered
// events to cold storage. With a lock manager only one replica closes and
// archives markets in a tick; every replica flushes its own event buffer.
type Keeper struct {
	engine   *settlement.Engine
	archiver domain.Archiver
	relay    *EventRelay
	locks    domain.LockManager
	cfg      KeeperConfig
	logger   *slog.Logger

	mu       sync.Mutex
	archived map[uint64]archiveState
}

// archiveState remembers what the last market archive held. A final market
// has no claims left and is never revisited.
type archiveState struct {
	claimed int
	final   bool
}

// NewKeeper creates a Keeper. archiver, relay and locks may be nil.
func NewKeeper(
	engine *settlement.Engine,
	archiver domain.Archiver,
	relay *EventRelay,
	locks domain.LockManager,
	cfg KeeperConfig,
	logger *slog.Logger,
) *Keeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultKeeperInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Keeper{
		engine:   engine,
		archiver: archiver,
		relay:    relay,
		locks:    locks,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "keeper")),
		archived: make(map[uint64]archiveState),
	}
}

// Run ticks until ctx is cancelled. A failed tick is logged and retried on
// the next interval.
func (k *Keeper) Run(ctx context.Context) error {
	k.logger.InfoContext(ctx, "keeper: started",
		slog.Duration("interval", k.cfg.Interval),
		slog.Bool("archive", k.cfg.Archive && k.archiver != nil),
	)
	ticker := time.NewTicker(k.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := k.Tick(ctx); err != nil {
				k.logger.ErrorContext(ctx, "keeper: tick failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Tick performs one pass. The event buffer belongs to this process and is
// flushed before the cluster lock is consulted.
func (k *Keeper) Tick(ctx context.Context) (TickResult, error) {
	var res TickResult
	var flushErr error
	if k.relay != nil {
		n, err := k.relay.FlushArchive(ctx)
		res.Events = n
		if err != nil {
			flushErr = fmt.Errorf("keeper: %w", err)
		}
	}

	if k.locks != nil {
		unlock, err := k.locks.Acquire(ctx, keeperLockKey, k.cfg.Interval)
		if errors.Is(err, domain.ErrLockHeld) {
			k.logger.DebugContext(ctx, "keeper: another replica holds the tick")
			return res, flushErr
		}
		if err != nil {
			return res, fmt.Errorf("keeper: lock: %w", err)
		}
		defer unlock()
	}

	closed, err := k.engine.CloseExpired(ctx)
	res.Closed = closed
	if err != nil {
		return res, fmt.Errorf("keeper: close expired: %w", err)
	}

	if k.cfg.Archive && k.archiver != nil {
		n, err := k.archiveTerminal(ctx)
		res.Archived = n
		if err != nil {
			return res, err
		}
	}

	if flushErr != nil {
		return res, flushErr
	}

	if res.Closed > 0 || res.Archived > 0 {
		k.logger.InfoContext(ctx, "keeper: tick",
			slog.Int("closed", res.Closed),
			slog.Int("archived", res.Archived),
			slog.Int("events", res.Events),
		)
	}
	return res, nil
}

func (k *Keeper) archiveTerminal(ctx context.Context) (int, error) {
	store := k.engine.Store()
	markets, err := store.ListMarkets(ctx, domain.MarketFilter{
		Statuses: []domain.MarketStatus{domain.MarketStatusSettled, domain.MarketStatusCancelled},
	})
	if err != nil {
		return 0, fmt.Errorf("keeper: list terminal markets: %w", err)
	}

	archived := 0
	for _, m := range markets {
		prev, seen := k.archiveState(m.ID)
		if prev.final {
			continue
		}
		positions, err := store.ListPositions(ctx, m.ID)
		if err != nil {
			return archived, fmt.Errorf("keeper: positions of market %d: %w", m.ID, err)
		}
		claimed := domain.ClaimedCount(positions)
		if seen && claimed == prev.claimed {
			continue
		}
		wrote, err := k.archiver.Archive(ctx, m, positions)
		if err != nil {
			return archived, fmt.Errorf("keeper: archive market %d: %w", m.ID, err)
		}
		k.setArchiveState(m.ID, archiveState{
			claimed: claimed,
			final:   domain.OutstandingClaims(m, positions) == 0,
		})
		if wrote {
			archived++
		}
	}
	return archived, nil
}

func (k *Keeper) archiveState(id uint64) (archiveState, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	st, ok := k.archived[id]
	return st, ok
}

func (k *Keeper) setArchiveState(id uint64, st archiveState) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.archived[id] = st
}
