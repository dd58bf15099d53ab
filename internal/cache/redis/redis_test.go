package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

func TestClient_Key(t *testing.T) {
	c := &Client{prefix: "ps"}
	if got := c.Key("market", "7"); got != "ps:market:7" {
		t.Errorf("Key = %q", got)
	}
	if got := c.Key(); got != "ps" {
		t.Errorf("Key() = %q", got)
	}
}

// testClient connects to PEERSTAKE_TEST_REDIS_ADDR, skipping when unset. Keys
// are isolated per test by a random prefix.
func testClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("PEERSTAKE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PEERSTAKE_TEST_REDIS_ADDR not set")
	}
	c, err := New(context.Background(), ClientConfig{Addr: addr, Prefix: "test:" + uuid.NewString()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestMarketCache(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	mc := NewMarketCache(c, time.Minute)

	if _, err := mc.Get(ctx, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("miss err = %v", err)
	}
	m := domain.Market{ID: 1, Question: "q", Options: []string{"a", "b"}, Status: domain.MarketStatusOpen, TotalPool: 5}
	if err := mc.Set(ctx, m); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := mc.Get(ctx, 1)
	if err != nil || got.Question != "q" || got.TotalPool != 5 {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	if err := mc.Invalidate(ctx, 1); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if _, err := mc.Get(ctx, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("after invalidate err = %v", err)
	}
}

func TestLockManager(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	lm := NewLockManager(c)

	unlock, err := lm.Acquire(ctx, "market:1", time.Second)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := lm.Acquire(ctx, "market:1", time.Second); !errors.Is(err, domain.ErrLockHeld) {
		t.Fatalf("second Acquire err = %v", err)
	}
	unlock()
	unlock()

	again, err := lm.Acquire(ctx, "market:1", time.Second)
	if err != nil {
		t.Fatalf("Acquire after unlock: %v", err)
	}
	again()
}

func TestRateLimiter(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	rl := NewRateLimiter(c)
	now := time.Unix(1_700_000_000, 0)
	rl.now = func() time.Time { return now }

	for i := range 3 {
		ok, err := rl.Allow(ctx, "alice", 3, time.Minute)
		if err != nil || !ok {
			t.Fatalf("request %d: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := rl.Allow(ctx, "alice", 3, time.Minute); ok {
		t.Error("fourth request allowed")
	}
	now = now.Add(time.Minute + time.Second)
	if ok, _ := rl.Allow(ctx, "alice", 3, time.Minute); !ok {
		t.Error("request after window rejected")
	}
}

func TestSignalBus_Stream(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	sb := NewSignalBus(c)

	msgs, err := sb.StreamRead(ctx, "events", "0", 10)
	if err != nil || len(msgs) != 0 {
		t.Fatalf("empty read = %v, %v", msgs, err)
	}
	for _, p := range []string{"a", "b"} {
		if err := sb.StreamAppend(ctx, "events", []byte(p)); err != nil {
			t.Fatalf("StreamAppend: %v", err)
		}
	}
	msgs, err = sb.StreamRead(ctx, "events", "0", 10)
	if err != nil || len(msgs) != 2 || string(msgs[1].Payload) != "b" {
		t.Fatalf("StreamRead = %+v, %v", msgs, err)
	}
	rest, _ := sb.StreamRead(ctx, "events", msgs[0].ID, 10)
	if len(rest) != 1 || string(rest[0].Payload) != "b" {
		t.Errorf("read after first = %+v", rest)
	}
}

func TestReplayGuard(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	g := NewReplayGuard(c)

	for i, want := range []bool{true, false} {
		ok, err := g.Claim(ctx, "0xabc:digest", time.Minute)
		if err != nil || ok != want {
			t.Fatalf("claim %d = %v, %v, want %v", i, ok, err, want)
		}
	}
	if ok, err := g.Claim(ctx, "0xabc:other", time.Minute); err != nil || !ok {
		t.Errorf("distinct key = %v, %v", ok, err)
	}
}
