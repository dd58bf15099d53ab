package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	s3blob "github.com/alanyoungcy/peerstake/internal/blob/s3"
	"github.com/alanyoungcy/peerstake/internal/cache/redis"
	"github.com/alanyoungcy/peerstake/internal/config"
	"github.com/alanyoungcy/peerstake/internal/domain"
	"github.com/alanyoungcy/peerstake/internal/notify"
	"github.com/alanyoungcy/peerstake/internal/server/handler"
	"github.com/alanyoungcy/peerstake/internal/service"
	"github.com/alanyoungcy/peerstake/internal/settlement"
	"github.com/alanyoungcy/peerstake/internal/store/memory"
	"github.com/alanyoungcy/peerstake/internal/store/postgres"
	"github.com/alanyoungcy/peerstake/internal/store/sqlite"
)

// pingFunc adapts a ping function to the handler.Pinger interface.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// Dependencies bundles everything the operating modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
// Optional infrastructure is nil when not configured.
type Dependencies struct {
	Store domain.Store
	Audit *postgres.AuditStore

	// Redis
	MarketCache domain.MarketCache
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus
	ReplayGuard domain.ReplayGuard

	// Blob storage
	Archiver *s3blob.MarketArchiver

	Notifier *notify.Notifier

	Relay   *service.EventRelay
	Engine  *settlement.Engine
	Markets *service.MarketService

	// Checks are pinged by GET /api/health.
	Checks map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{Checks: make(map[string]handler.Pinger)}

	// --- Store backend ---
	switch strings.ToLower(cfg.Store.Backend) {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:             cfg.Postgres.DSN,
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			Database:        cfg.Postgres.Database,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxConns:        cfg.Postgres.PoolMaxConns,
			MinConns:        cfg.Postgres.PoolMinConns,
			MaxConnLifetime: cfg.Postgres.ConnLifetime.Duration,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		// Run migrations if enabled.
		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.Store = postgres.NewStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Checks["postgres"] = pingFunc(pool.Ping)

	case "sqlite":
		st, err := sqlite.Open(cfg.SQLite.Path)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: sqlite: %w", err)
		}
		closers = append(closers, func() { _ = st.Close() })
		deps.Store = st

	default:
		logger.WarnContext(ctx, "wire: using in-memory store; state is lost on restart")
		deps.Store = memory.New()
	}

	// --- Redis (optional) ---
	if cfg.Redis.Enabled() {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			URL:        cfg.Redis.URL,
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			Prefix:     cfg.Redis.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.MarketCache = redis.NewMarketCache(redisClient, cfg.Redis.CacheTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.ReplayGuard = redis.NewReplayGuard(redisClient)
		deps.Checks["redis"] = redisClient
	}

	// --- S3 blob storage (optional) ---
	if cfg.S3.Enabled() {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
			Prefix:         cfg.S3.Prefix,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		var audit domain.AuditStore
		if deps.Audit != nil {
			audit = deps.Audit
		}
		deps.Archiver = s3blob.NewArchiver(s3blob.NewWriter(s3Client), s3blob.NewReader(s3Client), audit)
		deps.Checks["s3"] = pingFunc(s3Client.Health)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	// --- Event fan-out, engine and services ---
	relayCfg := service.RelayConfig{
		Bus:   deps.SignalBus,
		Cache: deps.MarketCache,
	}
	if deps.Audit != nil {
		relayCfg.Audit = deps.Audit
	}
	if deps.Notifier.Enabled() {
		relayCfg.Notifier = deps.Notifier
	}
	if deps.Archiver != nil {
		relayCfg.Archiver = deps.Archiver
	}
	deps.Relay = service.NewEventRelay(relayCfg, logger)

	deps.Engine = settlement.NewEngine(deps.Store, settlement.Params{
		GracePeriod: cfg.Engine.GracePeriod.Duration,
		MinStake:    domain.Amount(cfg.Engine.MinStake),
	}, logger).WithPublisher(deps.Relay)

	deps.Markets = service.NewMarketService(deps.Engine, deps.MarketCache, deps.LockManager, logger).
		WithLockTTL(cfg.Redis.LockTTL.Duration)

	return deps, cleanup, nil
}
