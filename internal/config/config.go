// Package config defines the top-level configuration for the peerstake
// service and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PEERSTAKE_* environment variables.
type Config struct {
	Engine   EngineConfig   `toml:"engine"`
	Store    StoreConfig    `toml:"store"`
	Postgres PostgresConfig `toml:"postgres"`
	SQLite   SQLiteConfig   `toml:"sqlite"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Keeper   KeeperConfig   `toml:"keeper"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// EngineConfig holds settlement engine parameters.
type EngineConfig struct {
	GracePeriod duration        `toml:"grace_period"`
	MinStake    uint64          `toml:"min_stake"`
	Bootstrap   BootstrapConfig `toml:"bootstrap"`
}

// BootstrapConfig describes a fee schedule to initialize at startup when the
// store has none. Leave Admin empty to skip.
type BootstrapConfig struct {
	Admin          string `toml:"admin"`
	FeeSink        string `toml:"fee_sink"`
	CreateFee      uint64 `toml:"create_fee"`
	JoinFeeBps     uint16 `toml:"join_fee_bps"`
	ClearingFeeBps uint16 `toml:"clearing_fee_bps"`
	SettleFeeBps   uint16 `toml:"settle_fee_bps"`
}

// Enabled reports whether a bootstrap fee schedule is configured.
func (b BootstrapConfig) Enabled() bool { return strings.TrimSpace(b.Admin) != "" }

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend is one of memory, postgres, sqlite.
	Backend string `toml:"backend"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string   `toml:"dsn"`
	Host          string   `toml:"host"`
	Port          int      `toml:"port"`
	Database      string   `toml:"database"`
	User          string   `toml:"user"`
	Password      string   `toml:"password"`
	SSLMode       string   `toml:"ssl_mode"`
	PoolMaxConns  int      `toml:"pool_max_conns"`
	PoolMinConns  int      `toml:"pool_min_conns"`
	ConnLifetime  duration `toml:"conn_lifetime"`
	RunMigrations bool     `toml:"run_migrations"`
}

// SQLiteConfig holds the embedded database location.
type SQLiteConfig struct {
	Path string `toml:"path"`
}

// RedisConfig holds Redis connection parameters. Redis is optional; leave
// both Addr and URL empty to run without cache, locks and the event bus.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	URL        string   `toml:"url"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	Prefix     string   `toml:"prefix"`
	CacheTTL   duration `toml:"cache_ttl"`
	LockTTL    duration `toml:"lock_ttl"`
}

// Enabled reports whether a Redis endpoint is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" || r.URL != "" }

// S3Config holds S3-compatible object storage parameters. Archiving is off
// while Bucket is empty.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

// Enabled reports whether an archive bucket is configured.
func (s S3Config) Enabled() bool { return s.Bucket != "" }

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port         int      `toml:"port"`
	CORSOrigins  []string `toml:"cors_origins"`
	RateLimit    int      `toml:"rate_limit"`
	RateWindow   duration `toml:"rate_window"`
	MaxClockSkew duration `toml:"max_clock_skew"`
	// DevFaucet exposes an unsigned deposit route. Never enable in production.
	DevFaucet bool `toml:"dev_faucet"`
}

// KeeperConfig holds lifecycle loop parameters.
type KeeperConfig struct {
	Interval duration `toml:"interval"`
	Archive  bool     `toml:"archive"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Engine: EngineConfig{
			GracePeriod: duration{7 * 24 * time.Hour},
			MinStake:    1_000_000,
		},
		Store: StoreConfig{Backend: "memory"},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "peerstake",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			ConnLifetime:  duration{time.Hour},
			RunMigrations: true,
		},
		SQLite: SQLiteConfig{Path: "peerstake.db"},
		Redis: RedisConfig{
			PoolSize:   20,
			MaxRetries: 3,
			Prefix:     "peerstake",
			CacheTTL:   duration{30 * time.Second},
			LockTTL:    duration{10 * time.Second},
		},
		S3: S3Config{
			Region:         "us-east-1",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:         8000,
			CORSOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:    120,
			RateWindow:   duration{time.Minute},
			MaxClockSkew: duration{5 * time.Minute},
		},
		Keeper: KeeperConfig{
			Interval: duration{30 * time.Second},
			Archive:  true,
		},
		Notify: NotifyConfig{
			Events: []string{"outcome_challenged", "market_cancelled", "market_settled"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server": true,
	"keeper": true,
	"full":   true,
}

var validBackends = map[string]bool{
	"memory":   true,
	"postgres": true,
	"sqlite":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, keeper, full)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Engine
	if c.Engine.GracePeriod.Duration <= 0 {
		errs = append(errs, "engine: grace_period must be > 0")
	}
	if c.Engine.MinStake == 0 {
		errs = append(errs, "engine: min_stake must be > 0")
	}
	if b := c.Engine.Bootstrap; b.Enabled() {
		if !validAddress(b.Admin) {
			errs = append(errs, fmt.Sprintf("engine.bootstrap: admin %q is not a non-zero address", b.Admin))
		}
		if !validAddress(b.FeeSink) {
			errs = append(errs, fmt.Sprintf("engine.bootstrap: fee_sink %q is not a non-zero address", b.FeeSink))
		}
		for _, f := range []struct {
			name string
			bps  uint16
		}{
			{"join_fee_bps", b.JoinFeeBps},
			{"clearing_fee_bps", b.ClearingFeeBps},
			{"settle_fee_bps", b.SettleFeeBps},
		} {
			if f.bps > 10_000 {
				errs = append(errs, fmt.Sprintf("engine.bootstrap: %s must be <= 10000, got %d", f.name, f.bps))
			}
		}
	}

	// Store
	backend := strings.ToLower(c.Store.Backend)
	if !validBackends[backend] {
		errs = append(errs, fmt.Sprintf("store: unknown backend %q (valid: memory, postgres, sqlite)", c.Store.Backend))
	}
	if backend == "postgres" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}
	if backend == "sqlite" && c.SQLite.Path == "" {
		errs = append(errs, "sqlite: path must not be empty")
	}

	// Redis
	if c.Redis.Enabled() {
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.LockTTL.Duration <= 0 {
			errs = append(errs, "redis: lock_ttl must be > 0")
		}
	}

	// S3
	if c.S3.Enabled() && c.S3.Region == "" {
		errs = append(errs, "s3: region must not be empty")
	}

	// Server
	if c.Mode != "keeper" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.MaxClockSkew.Duration <= 0 {
			errs = append(errs, "server: max_clock_skew must be > 0")
		}
	}

	// Keeper
	if c.Mode != "server" && c.Keeper.Interval.Duration <= 0 {
		errs = append(errs, "keeper: interval must be > 0")
	}

	// Notify — Telegram needs both token and chat id.
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func validAddress(s string) bool {
	return common.IsHexAddress(s) && common.HexToAddress(s) != (common.Address{})
}
