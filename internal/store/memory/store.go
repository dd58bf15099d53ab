// Package memory is an in-process implementation of domain.Store. Every
// transaction works on a private copy of the state that replaces the live
// state only on commit, so a failed operation leaves nothing behind.
package memory

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

type positionKey struct {
	marketID uint64
	user     domain.Identity
}

type state struct {
	fees      *domain.FeeSchedule
	markets   map[uint64]domain.Market
	positions map[positionKey]domain.Position
	balances  map[domain.Account]domain.Amount
}

func newState() *state {
	return &state{
		markets:   make(map[uint64]domain.Market),
		positions: make(map[positionKey]domain.Position),
		balances:  make(map[domain.Account]domain.Amount),
	}
}

func (s *state) clone() *state {
	c := &state{
		markets:   make(map[uint64]domain.Market, len(s.markets)),
		positions: maps.Clone(s.positions),
		balances:  maps.Clone(s.balances),
	}
	if s.fees != nil {
		fs := *s.fees
		c.fees = &fs
	}
	for id, m := range s.markets {
		c.markets[id] = m.Clone()
	}
	return c
}

// Store is a mutex-guarded in-memory store. Transactions are serialized.
type Store struct {
	mu    sync.Mutex
	state *state
}

// New creates an empty Store.
func New() *Store {
	return &Store{state: newState()}
}

// InTx runs fn against a snapshot and swaps it in when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.state.clone()
	if err := fn(&tx{st: snap}); err != nil {
		return err
	}
	s.state = snap
	return nil
}

func (s *Store) read() *tx {
	return &tx{st: s.state}
}

func (s *Store) GetFeeSchedule(ctx context.Context) (domain.FeeSchedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().FeeSchedule(ctx)
}

func (s *Store) GetMarket(ctx context.Context, id uint64) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().Market(ctx, id)
}

func (s *Store) ListMarkets(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().ListMarkets(ctx, f)
}

func (s *Store) GetPosition(ctx context.Context, marketID uint64, user domain.Identity) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().Position(ctx, marketID, user)
}

func (s *Store) ListPositions(ctx context.Context, marketID uint64) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().Positions(ctx, marketID)
}

func (s *Store) Balance(ctx context.Context, account domain.Account) (domain.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read().Balance(ctx, account)
}

// Deposit credits account with value minted outside the ledger.
func (s *Store) Deposit(_ context.Context, account domain.Account, amount domain.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, err := s.state.balances[account].Add(amount)
	if err != nil {
		return err
	}
	s.state.balances[account] = bal
	return nil
}

func (s *Store) Close() error { return nil }

// tx implements domain.Tx over a state. Rows are locked implicitly by the
// store mutex.
type tx struct {
	st *state
}

func (t *tx) FeeSchedule(_ context.Context) (domain.FeeSchedule, error) {
	if t.st.fees == nil {
		return domain.FeeSchedule{}, domain.ErrNotInitialized
	}
	return *t.st.fees, nil
}

func (t *tx) CreateFeeSchedule(_ context.Context, fs domain.FeeSchedule) error {
	if t.st.fees != nil {
		return domain.ErrAlreadyInitialized
	}
	t.st.fees = &fs
	return nil
}

func (t *tx) SaveFeeSchedule(_ context.Context, fs domain.FeeSchedule) error {
	t.st.fees = &fs
	return nil
}

func (t *tx) Market(_ context.Context, id uint64) (domain.Market, error) {
	m, ok := t.st.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrMarketNotFound
	}
	return m.Clone(), nil
}

func (t *tx) SaveMarket(_ context.Context, m domain.Market) error {
	t.st.markets[m.ID] = m.Clone()
	return nil
}

func (t *tx) ListMarkets(_ context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	ids := slices.Sorted(maps.Keys(t.st.markets))
	out := make([]domain.Market, 0, len(ids))
	for _, id := range ids {
		m := t.st.markets[id]
		if f.Matches(m) {
			out = append(out, m.Clone())
		}
	}
	return domain.Page(out, f.ListOpts), nil
}

func (t *tx) Position(_ context.Context, marketID uint64, user domain.Identity) (domain.Position, error) {
	p, ok := t.st.positions[positionKey{marketID, user}]
	if !ok {
		return domain.Position{}, domain.ErrPositionNotFound
	}
	return p, nil
}

func (t *tx) SavePosition(_ context.Context, p domain.Position) error {
	t.st.positions[positionKey{p.MarketID, p.User}] = p
	return nil
}

func (t *tx) Positions(_ context.Context, marketID uint64) ([]domain.Position, error) {
	var out []domain.Position
	for k, p := range t.st.positions {
		if k.marketID == marketID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Position) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.User.Hex(), b.User.Hex())
	})
	return out, nil
}

func (t *tx) Balance(_ context.Context, account domain.Account) (domain.Amount, error) {
	return t.st.balances[account], nil
}

func (t *tx) Transfer(_ context.Context, from, to domain.Account, amount domain.Amount) error {
	if amount == 0 || from == to {
		return nil
	}
	src, err := t.st.balances[from].Sub(amount)
	if err != nil {
		return domain.ErrInsufficientFunds
	}
	dst, err := t.st.balances[to].Add(amount)
	if err != nil {
		return err
	}
	t.st.balances[from] = src
	t.st.balances[to] = dst
	return nil
}
