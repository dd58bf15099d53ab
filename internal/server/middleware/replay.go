package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

// localReplayGuard is the in-process domain.ReplayGuard used when no shared
// store is configured. It only protects a single replica.
type localReplayGuard struct {
	now func() time.Time

	mu      sync.Mutex
	expires map[string]time.Time
}

func newLocalReplayGuard(now func() time.Time) *localReplayGuard {
	return &localReplayGuard{now: now, expires: make(map[string]time.Time)}
}

func (g *localReplayGuard) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	now := g.now()

	g.mu.Lock()
	defer g.mu.Unlock()
	if exp, ok := g.expires[key]; ok && now.Before(exp) {
		return false, nil
	}
	for k, exp := range g.expires {
		if !now.Before(exp) {
			delete(g.expires, k)
		}
	}
	g.expires[key] = now.Add(ttl)
	return true, nil
}

var _ domain.ReplayGuard = (*localReplayGuard)(nil)
