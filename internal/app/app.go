// Package app provides the top-level application lifecycle management for the
// peerstake service. It wires together the store backend, caches, blob
// storage, notifications and the settlement engine, and starts the
// goroutines of the configured operating mode.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/peerstake/internal/config"
	"github.com/alanyoungcy/peerstake/internal/domain"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, selects the
// operating mode, starts the corresponding goroutines, and blocks until the
// context is cancelled. Cleanup runs in Close.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("store", a.cfg.Store.Backend),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	if err := a.bootstrapFeeSchedule(ctx, deps); err != nil {
		return fmt.Errorf("app: bootstrap fee schedule: %w", err)
	}

	switch strings.ToLower(a.cfg.Mode) {
	case "server":
		return a.ServerMode(ctx, deps)
	case "keeper":
		return a.KeeperMode(ctx, deps)
	case "full":
		return a.FullMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// bootstrapFeeSchedule initializes the fee schedule from [engine.bootstrap]
// when the store has none. Losing the race to another replica is fine.
func (a *App) bootstrapFeeSchedule(ctx context.Context, deps *Dependencies) error {
	b := a.cfg.Engine.Bootstrap
	if !b.Enabled() {
		return nil
	}
	_, err := deps.Engine.FeeSchedule(ctx)
	switch {
	case err == nil:
		return nil
	case !errors.Is(err, domain.ErrNotInitialized):
		return err
	}

	admin, err := domain.ParseIdentity(b.Admin)
	if err != nil {
		return err
	}
	sink, err := domain.ParseIdentity(b.FeeSink)
	if err != nil {
		return err
	}
	fs, err := deps.Engine.InitializeFeeSchedule(ctx, admin, admin, domain.FeeRates{
		FeeSink:        sink,
		CreateFee:      domain.Amount(b.CreateFee),
		JoinFeeBps:     b.JoinFeeBps,
		ClearingFeeBps: b.ClearingFeeBps,
		SettleFeeBps:   b.SettleFeeBps,
	})
	if errors.Is(err, domain.ErrAlreadyInitialized) {
		return nil
	}
	if err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "fee schedule bootstrapped",
		slog.String("admin", fs.Admin.Hex()),
		slog.String("fee_sink", fs.FeeSink.Hex()),
	)
	return nil
}
