package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/peerstake/internal/domain"
	"github.com/alanyoungcy/peerstake/internal/settlement"
	"github.com/alanyoungcy/peerstake/internal/store/memory"
)

var (
	admin = common.HexToAddress("0x00000000000000000000000000000000000000a1")
	sink  = common.HexToAddress("0x00000000000000000000000000000000000000f1")
	alice = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	t0    = time.Unix(1_700_000_000, 0).UTC()
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memCache is a domain.MarketCache that counts hits.
type memCache struct {
	mu          sync.Mutex
	markets     map[uint64]domain.Market
	hits        int
	invalidated []uint64
	failGet     error
}

func newMemCache() *memCache { return &memCache{markets: map[uint64]domain.Market{}} }

func (c *memCache) Set(_ context.Context, m domain.Market) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markets[m.ID] = m.Clone()
	return nil
}

func (c *memCache) Get(_ context.Context, id uint64) (domain.Market, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet != nil {
		return domain.Market{}, c.failGet
	}
	m, ok := c.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	c.hits++
	return m.Clone(), nil
}

func (c *memCache) Invalidate(_ context.Context, id uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.markets, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

// memLocks is a non-blocking in-process domain.LockManager.
type memLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	acquired []string
}

func newMemLocks() *memLocks { return &memLocks{held: map[string]bool{}} }

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	l.acquired = append(l.acquired, key)
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, key)
	}, nil
}

// memBus records published payloads.
type memBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	streams   map[string][][]byte
	err       error
}

func newMemBus() *memBus {
	return &memBus{published: map[string][][]byte{}, streams: map[string][][]byte{}}
}

func (b *memBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err != nil {
		return b.err
	}
	b.published[channel] = append(b.published[channel], payload)
	return nil
}

func (b *memBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errors.New("not supported")
}

func (b *memBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.streams[stream] = append(b.streams[stream], payload)
	return nil
}

func (b *memBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, nil
}

type eventSink struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (s *eventSink) Publish(_ context.Context, events []domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return s.err
}

func (s *eventSink) NotifyEvent(_ context.Context, e domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return s.err
}

type batchArchiver struct {
	mu      sync.Mutex
	batches [][]domain.Event
	err     error
}

func (a *batchArchiver) ArchiveEvents(_ context.Context, events []domain.Event) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.batches = append(a.batches, events)
	return "events/batch.jsonl", nil
}

func (a *batchArchiver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.batches)
}

// marketArchiver mirrors the S3 archiver: a market is rewritten only when
// its positions carry more claims than the stored copy.
type marketArchiver struct {
	claimed map[uint64]int
	ids     []uint64
}

func (a *marketArchiver) Archive(_ context.Context, m domain.Market, positions []domain.Position) (bool, error) {
	if a.claimed == nil {
		a.claimed = map[uint64]int{}
	}
	n := domain.ClaimedCount(positions)
	if prev, ok := a.claimed[m.ID]; ok && prev >= n {
		return false, nil
	}
	a.claimed[m.ID] = n
	a.ids = append(a.ids, m.ID)
	return true, nil
}

type fixture struct {
	t     *testing.T
	ctx   context.Context
	store *memory.Store
	clock *clock
	eng   *settlement.Engine
}

func newFixture(t *testing.T, pub domain.EventPublisher) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		ctx:   context.Background(),
		store: memory.New(),
		clock: &clock{now: t0},
	}
	f.eng = settlement.NewEngine(f.store, settlement.Params{MinStake: 1}, nil).WithClock(f.clock)
	if pub != nil {
		f.eng.WithPublisher(pub)
	}
	if _, err := f.eng.InitializeFeeSchedule(f.ctx, admin, admin, domain.FeeRates{FeeSink: sink}); err != nil {
		t.Fatalf("InitializeFeeSchedule: %v", err)
	}
	for _, id := range []domain.Identity{alice, bob} {
		if err := f.store.Deposit(f.ctx, domain.UserAccount(id), 1_000); err != nil {
			t.Fatalf("Deposit: %v", err)
		}
	}
	return f
}

func (f *fixture) market() domain.Market {
	f.t.Helper()
	m, err := f.eng.CreateMarket(f.ctx, alice, settlement.MarketParams{
		Question:        "Will it rain tomorrow?",
		Options:         []string{"yes", "no"},
		StakeAmount:     100,
		BetDeadline:     t0.Add(time.Hour),
		ResolveTime:     t0.Add(2 * time.Hour),
		ChallengeWindow: 10 * time.Minute,
	})
	if err != nil {
		f.t.Fatalf("CreateMarket: %v", err)
	}
	return m
}
