package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults().Validate() = %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   []string
	}{
		{
			name:   "bad mode and level",
			mutate: func(c *Config) { c.Mode = "trade"; c.LogLevel = "loud" },
			want:   []string{`unknown mode "trade"`, `unknown log_level "loud"`},
		},
		{
			name:   "unknown backend",
			mutate: func(c *Config) { c.Store.Backend = "mongo" },
			want:   []string{`store: unknown backend "mongo"`},
		},
		{
			name: "postgres without host",
			mutate: func(c *Config) {
				c.Store.Backend = "postgres"
				c.Postgres.Host = ""
				c.Postgres.PoolMinConns = 20
			},
			want: []string{"postgres: host must not be empty", "pool_min_conns must not exceed"},
		},
		{
			name: "postgres dsn skips host checks",
			mutate: func(c *Config) {
				c.Store.Backend = "postgres"
				c.Postgres.DSN = "postgres://u:p@db:5432/peerstake"
				c.Postgres.Host = ""
			},
		},
		{
			name: "bootstrap addresses and bps",
			mutate: func(c *Config) {
				c.Engine.Bootstrap.Admin = "0x0000000000000000000000000000000000000000"
				c.Engine.Bootstrap.FeeSink = "nope"
				c.Engine.Bootstrap.ClearingFeeBps = 10_001
			},
			want: []string{"admin", "fee_sink", "clearing_fee_bps must be <= 10000"},
		},
		{
			name:   "keeper mode ignores server port",
			mutate: func(c *Config) { c.Mode = "keeper"; c.Server.Port = 0 },
		},
		{
			name:   "server mode ignores keeper interval",
			mutate: func(c *Config) { c.Mode = "server"; c.Keeper.Interval.Duration = 0 },
		},
		{
			name:   "half telegram",
			mutate: func(c *Config) { c.Notify.TelegramToken = "t" },
			want:   []string{"telegram_token and telegram_chat_id"},
		},
		{
			name:   "zero min stake",
			mutate: func(c *Config) { c.Engine.MinStake = 0 },
			want:   []string{"min_stake must be > 0"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if len(tt.want) == 0 {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q does not mention %q", err, w)
				}
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	const body = `
mode = "server"

[engine]
grace_period = "72h"
min_stake = 5

[engine.bootstrap]
admin = "0x1111111111111111111111111111111111111111"
fee_sink = "0x2222222222222222222222222222222222222222"
clearing_fee_bps = 150

[store]
backend = "sqlite"

[server]
port = 9000
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PEERSTAKE_SERVER_PORT", "9100")
	t.Setenv("PEERSTAKE_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("PEERSTAKE_KEEPER_INTERVAL", "1m")
	t.Setenv("PEERSTAKE_ENGINE_MIN_STAKE", "not-a-number")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Mode != "server" || cfg.Store.Backend != "sqlite" {
		t.Errorf("mode/backend = %s/%s", cfg.Mode, cfg.Store.Backend)
	}
	if cfg.Engine.GracePeriod.Duration != 72*time.Hour {
		t.Errorf("grace_period = %v", cfg.Engine.GracePeriod)
	}
	if cfg.Engine.MinStake != 5 {
		t.Errorf("min_stake = %d, want file value kept on bad env", cfg.Engine.MinStake)
	}
	if cfg.Engine.Bootstrap.ClearingFeeBps != 150 || !cfg.Engine.Bootstrap.Enabled() {
		t.Errorf("bootstrap = %+v", cfg.Engine.Bootstrap)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want env override", cfg.Server.Port)
	}
	if got := strings.Join(cfg.Server.CORSOrigins, "|"); got != "https://a.example|https://b.example" {
		t.Errorf("cors = %q", got)
	}
	if cfg.Keeper.Interval.Duration != time.Minute {
		t.Errorf("keeper interval = %v", cfg.Keeper.Interval)
	}
	// Untouched sections keep their defaults.
	if cfg.Postgres.Port != 5432 || cfg.Redis.LockTTL.Duration != 10*time.Second {
		t.Errorf("defaults lost: postgres port %d, lock ttl %v", cfg.Postgres.Port, cfg.Redis.LockTTL)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("Load of a missing file succeeded")
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Postgres.DSN = "postgres://app:hunter2@db:5432/peerstake?sslmode=require"
	cfg.Postgres.Password = "hunter2"
	cfg.Redis.URL = "redis://:s3cret@cache:6379/0"
	cfg.S3.SecretKey = "sk"
	cfg.Notify.TelegramToken = "tok"

	out := RedactedConfig(&cfg)
	if out.Postgres.DSN != "postgres://app:***@db:5432/peerstake?sslmode=require" {
		t.Errorf("dsn = %q", out.Postgres.DSN)
	}
	if out.Redis.URL != "redis://:***@cache:6379/0" {
		t.Errorf("redis url = %q", out.Redis.URL)
	}
	if out.Postgres.Password != redacted || out.S3.SecretKey != redacted || out.Notify.TelegramToken != redacted {
		t.Errorf("secrets leaked: %+v", out)
	}
	if out.S3.AccessKey != "" {
		t.Errorf("empty access key redacted to %q", out.S3.AccessKey)
	}
	if cfg.Postgres.Password != "hunter2" {
		t.Error("original config mutated")
	}
	out.Server.CORSOrigins[0] = "changed"
	if cfg.Server.CORSOrigins[0] == "changed" {
		t.Error("redacted copy shares CORS slice")
	}
}
