package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/alanyoungcy/peerstake/internal/config"
	"github.com/alanyoungcy/peerstake/internal/domain"
)

func TestWireMemoryAndBootstrap(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.DiscardHandler)

	cfg := config.Defaults()
	cfg.Engine.Bootstrap.Admin = "0x1111111111111111111111111111111111111111"
	cfg.Engine.Bootstrap.FeeSink = "0x2222222222222222222222222222222222222222"
	cfg.Engine.Bootstrap.ClearingFeeBps = 250
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	deps, cleanup, err := Wire(ctx, &cfg, logger)
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	if deps.SignalBus != nil || deps.LockManager != nil || deps.Archiver != nil {
		t.Errorf("optional infrastructure wired without config: %+v", deps)
	}
	if len(deps.Checks) != 0 {
		t.Errorf("checks = %v, want none for memory backend", deps.Checks)
	}

	a := New(&cfg, logger)
	if _, err := deps.Engine.FeeSchedule(ctx); err == nil {
		t.Fatal("fee schedule present before bootstrap")
	}
	for i := 0; i < 2; i++ {
		if err := a.bootstrapFeeSchedule(ctx, deps); err != nil {
			t.Fatalf("bootstrap #%d: %v", i+1, err)
		}
	}

	fs, err := deps.Markets.FeeSchedule(ctx)
	if err != nil {
		t.Fatalf("FeeSchedule: %v", err)
	}
	admin, _ := domain.ParseIdentity(cfg.Engine.Bootstrap.Admin)
	if fs.Admin != admin || fs.ClearingFeeBps != 250 || fs.NextMarketID != 1 {
		t.Errorf("fee schedule = %+v", fs)
	}
}

func TestBootstrapDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := config.Defaults()
	deps, cleanup, err := Wire(ctx, &cfg, slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	if err := New(&cfg, slog.New(slog.DiscardHandler)).bootstrapFeeSchedule(ctx, deps); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, err := deps.Engine.FeeSchedule(ctx); err == nil {
		t.Error("fee schedule initialized without bootstrap config")
	}
}
