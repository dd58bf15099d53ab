package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PEERSTAKE_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PEERSTAKE_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Engine ──
	setDuration(&cfg.Engine.GracePeriod, "PEERSTAKE_ENGINE_GRACE_PERIOD")
	setUint64(&cfg.Engine.MinStake, "PEERSTAKE_ENGINE_MIN_STAKE")
	setStr(&cfg.Engine.Bootstrap.Admin, "PEERSTAKE_ENGINE_BOOTSTRAP_ADMIN")
	setStr(&cfg.Engine.Bootstrap.FeeSink, "PEERSTAKE_ENGINE_BOOTSTRAP_FEE_SINK")
	setUint64(&cfg.Engine.Bootstrap.CreateFee, "PEERSTAKE_ENGINE_BOOTSTRAP_CREATE_FEE")
	setBps(&cfg.Engine.Bootstrap.JoinFeeBps, "PEERSTAKE_ENGINE_BOOTSTRAP_JOIN_FEE_BPS")
	setBps(&cfg.Engine.Bootstrap.ClearingFeeBps, "PEERSTAKE_ENGINE_BOOTSTRAP_CLEARING_FEE_BPS")
	setBps(&cfg.Engine.Bootstrap.SettleFeeBps, "PEERSTAKE_ENGINE_BOOTSTRAP_SETTLE_FEE_BPS")

	// ── Store ──
	setStr(&cfg.Store.Backend, "PEERSTAKE_STORE_BACKEND")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PEERSTAKE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // platform alias
	setStr(&cfg.Postgres.Host, "PEERSTAKE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PEERSTAKE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PEERSTAKE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PEERSTAKE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PEERSTAKE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PEERSTAKE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PEERSTAKE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PEERSTAKE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PEERSTAKE_POSTGRES_RUN_MIGRATIONS")

	// ── SQLite ──
	setStr(&cfg.SQLite.Path, "PEERSTAKE_SQLITE_PATH")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PEERSTAKE_REDIS_ADDR")
	setStr(&cfg.Redis.URL, "PEERSTAKE_REDIS_URL")
	setStr(&cfg.Redis.Password, "PEERSTAKE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PEERSTAKE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PEERSTAKE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PEERSTAKE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PEERSTAKE_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.Prefix, "PEERSTAKE_REDIS_PREFIX")
	setDuration(&cfg.Redis.CacheTTL, "PEERSTAKE_REDIS_CACHE_TTL")
	setDuration(&cfg.Redis.LockTTL, "PEERSTAKE_REDIS_LOCK_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PEERSTAKE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PEERSTAKE_S3_REGION")
	setStr(&cfg.S3.Bucket, "PEERSTAKE_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PEERSTAKE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PEERSTAKE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PEERSTAKE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PEERSTAKE_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.Prefix, "PEERSTAKE_S3_PREFIX")

	// ── Server ──
	setInt(&cfg.Server.Port, "PEERSTAKE_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PEERSTAKE_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "PEERSTAKE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PEERSTAKE_SERVER_RATE_WINDOW")
	setDuration(&cfg.Server.MaxClockSkew, "PEERSTAKE_SERVER_MAX_CLOCK_SKEW")
	setBool(&cfg.Server.DevFaucet, "PEERSTAKE_SERVER_DEV_FAUCET")

	// ── Keeper ──
	setDuration(&cfg.Keeper.Interval, "PEERSTAKE_KEEPER_INTERVAL")
	setBool(&cfg.Keeper.Archive, "PEERSTAKE_KEEPER_ARCHIVE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PEERSTAKE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PEERSTAKE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PEERSTAKE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PEERSTAKE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PEERSTAKE_MODE")
	setStr(&cfg.LogLevel, "PEERSTAKE_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setUint64(dst *uint64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBps(dst *uint16, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 16); err == nil {
			*dst = uint16(n)
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
