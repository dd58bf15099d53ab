package app

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/peerstake/internal/domain"
	"github.com/alanyoungcy/peerstake/internal/server"
	"github.com/alanyoungcy/peerstake/internal/server/handler"
	"github.com/alanyoungcy/peerstake/internal/server/ws"
	"github.com/alanyoungcy/peerstake/internal/service"
)

// shutdownTimeout bounds how long in-flight HTTP requests may finish after
// the context is cancelled.
const shutdownTimeout = 5 * time.Second

// ServerMode serves the HTTP API and, with Redis, the WebSocket event feed.
// With S3 it also flushes this process's event buffer, since no keeper runs.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	if deps.Relay.Archiving() {
		g.Go(func() error {
			return deps.Relay.RunFlusher(ctx, a.cfg.Keeper.Interval.Duration)
		})
	}
	return g.Wait()
}

// KeeperMode runs only the lifecycle loop. Run one keeper per deployment,
// or several behind a Redis lock.
func (a *App) KeeperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting keeper mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startKeeper(ctx, g, deps)
	return g.Wait()
}

// FullMode runs the API and the keeper in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps)
	a.startKeeper(ctx, g, deps)
	return g.Wait()
}

// startKeeper adds the keeper loop to g.
func (a *App) startKeeper(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var archiver domain.Archiver
	if deps.Archiver != nil {
		archiver = deps.Archiver
	}
	if a.cfg.Keeper.Archive && archiver == nil {
		a.logger.WarnContext(ctx, "keeper: archive enabled but s3 is not configured; archiving disabled")
	}

	keeper := service.NewKeeper(deps.Engine, archiver, deps.Relay, deps.LockManager, service.KeeperConfig{
		Interval: a.cfg.Keeper.Interval.Duration,
		Archive:  a.cfg.Keeper.Archive,
	}, a.logger)

	g.Go(func() error {
		return keeper.Run(ctx)
	})
}

// startHTTPServer adds an HTTP server goroutine to the given errgroup. The
// WebSocket hub is registered only when a signal bus is wired. The server is
// shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{
			Mode:           a.cfg.Mode,
			Channel:        service.EventsChannel,
			Stream:         service.EventsStream,
			AllowedOrigins: a.cfg.Server.CORSOrigins,
			StartedAt:      time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	handlers := server.Handlers{
		Health:      handler.NewHealthHandler(a.cfg.Mode, deps.Checks, a.logger),
		Markets:     handler.NewMarketHandler(deps.Markets, a.logger),
		FeeSchedule: handler.NewFeeScheduleHandler(deps.Markets, a.logger),
		Balances:    handler.NewBalanceHandler(deps.Markets, a.logger),
	}
	if deps.Audit != nil {
		handlers.Audit = handler.NewAuditHandler(deps.Audit, deps.Markets, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:         a.cfg.Server.Port,
		CORSOrigins:  a.cfg.Server.CORSOrigins,
		MaxClockSkew: a.cfg.Server.MaxClockSkew.Duration,
		RateLimit:    a.cfg.Server.RateLimit,
		RateWindow:   a.cfg.Server.RateWindow.Duration,
		DevFaucet:    a.cfg.Server.DevFaucet,
		Replay:       deps.ReplayGuard,
	}, handlers, deps.RateLimiter, hub, a.logger)

	if a.cfg.Server.DevFaucet {
		a.logger.WarnContext(ctx, "dev faucet enabled: POST /api/dev/deposit mints funds without a signature")
	}

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
