package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/peerstake/internal/domain"
	"github.com/alanyoungcy/peerstake/internal/store/memory"
)

var (
	admin   = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	feeSink = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	alice   = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob     = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol   = common.HexToAddress("0x0000000000000000000000000000000000000ca0")
	oracle  = common.HexToAddress("0x00000000000000000000000000000000000000c1")
	t0      = time.Unix(1_700_000_000, 0).UTC()
)

const startingBalance = domain.Amount(1_000_000)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (r *recorder) Publish(_ context.Context, events []domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	return nil
}

func (r *recorder) kinds() []domain.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

type harness struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
	clock *testClock
	pub   *recorder
	eng   *Engine
}

func newHarness(t *testing.T, rates domain.FeeRates) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		ctx:   context.Background(),
		store: memory.New(),
		clock: &testClock{now: t0},
		pub:   &recorder{},
	}
	h.eng = NewEngine(h.store, Params{GracePeriod: DefaultGracePeriod, MinStake: 1}, nil).
		WithClock(h.clock).
		WithPublisher(h.pub)

	rates.FeeSink = feeSink
	if _, err := h.eng.InitializeFeeSchedule(h.ctx, admin, admin, rates); err != nil {
		t.Fatalf("InitializeFeeSchedule: %v", err)
	}
	for _, id := range []domain.Identity{alice, bob, carol, admin} {
		if err := h.store.Deposit(h.ctx, domain.UserAccount(id), startingBalance); err != nil {
			t.Fatalf("Deposit: %v", err)
		}
	}
	return h
}

func (h *harness) defaultMarket() MarketParams {
	return MarketParams{
		Question:        "Will it rain tomorrow?",
		Options:         []string{"yes", "no"},
		StakeAmount:     100,
		BetDeadline:     t0.Add(time.Hour),
		ResolveTime:     t0.Add(2 * time.Hour),
		ChallengeWindow: 10 * time.Minute,
	}
}

func (h *harness) createMarket(p MarketParams) domain.Market {
	h.t.Helper()
	m, err := h.eng.CreateMarket(h.ctx, alice, p)
	if err != nil {
		h.t.Fatalf("CreateMarket: %v", err)
	}
	return m
}

func (h *harness) bet(user domain.Identity, marketID uint64, option int, amount domain.Amount) domain.Position {
	h.t.Helper()
	pos, err := h.eng.PlaceBet(h.ctx, user, marketID, option, amount)
	if err != nil {
		h.t.Fatalf("PlaceBet(%s, option %d): %v", user.Hex(), option, err)
	}
	return pos
}

func (h *harness) balance(a domain.Account) domain.Amount {
	h.t.Helper()
	bal, err := h.store.Balance(h.ctx, a)
	if err != nil {
		h.t.Fatalf("Balance(%s): %v", a, err)
	}
	return bal
}

func (h *harness) market(id uint64) domain.Market {
	h.t.Helper()
	m, err := h.store.GetMarket(h.ctx, id)
	if err != nil {
		h.t.Fatalf("GetMarket(%d): %v", id, err)
	}
	return m
}

func (h *harness) position(id uint64, user domain.Identity) domain.Position {
	h.t.Helper()
	p, err := h.store.GetPosition(h.ctx, id, user)
	if err != nil {
		h.t.Fatalf("GetPosition(%d): %v", id, err)
	}
	return p
}

// checkPool asserts total_pool == sum(option_totals) == sum(position amounts).
func (h *harness) checkPool(id uint64) {
	h.t.Helper()
	m := h.market(id)
	if !m.PoolConsistent() {
		h.t.Errorf("market %d: total_pool %d != sum of option totals %v", id, m.TotalPool, m.OptionTotals)
	}
	positions, err := h.store.ListPositions(h.ctx, id)
	if err != nil {
		h.t.Fatalf("ListPositions: %v", err)
	}
	var sum domain.Amount
	for _, p := range positions {
		sum += p.Amount
	}
	if sum != m.TotalPool {
		h.t.Errorf("market %d: total_pool %d != sum of positions %d", id, m.TotalPool, sum)
	}
}

func wantErr(t *testing.T, err, want error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}
