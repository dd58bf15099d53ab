package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/peerstake/internal/domain"
)

// ReplayGuard implements domain.ReplayGuard with SET NX PX, so a key is
// accepted once across every replica sharing the Redis.
type ReplayGuard struct {
	c *Client
}

// NewReplayGuard creates a ReplayGuard backed by the given Client.
func NewReplayGuard(c *Client) *ReplayGuard {
	return &ReplayGuard{c: c}
}

// Claim stores key for ttl and reports whether it was not already present.
func (g *ReplayGuard) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.c.Underlying().SetNX(ctx, g.c.Key("replay", key), 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis: claim replay key: %w", err)
	}
	return ok, nil
}

var _ domain.ReplayGuard = (*ReplayGuard)(nil)
