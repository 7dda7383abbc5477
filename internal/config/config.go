// Package config loads the bridge's process configuration from a YAML
// file (searched by path-fallback) with environment-variable overrides,
// following the layering the bridge has always used: a checked-in
// config.yaml for structure, .env / real env vars for secrets.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full process configuration. Every binary in cmd/ loads
// one of these; most fields are shared, a handful are service-specific
// and simply ignored by binaries that don't need them.
type Config struct {
	PortfolioID string `yaml:"portfolio_id"`
	RunMode     string `yaml:"run_mode"` // "live" or "dry_run"

	Broker BrokerConfig `yaml:"broker"`

	Redis    RedisConfig    `yaml:"redis"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Database DatabaseConfig `yaml:"database"`

	Log LogConfig `yaml:"log"`
}

// BrokerConfig is the credential/session bundle the broker gateway factory
// needs to open a session. The real SDK binding is out of scope (see
// SPEC_FULL.md §4.8); these fields exist so a production build has
// somewhere to put them.
type BrokerConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Account  string `yaml:"account"`
}

// RedisConfig addresses the position/account cache.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// RabbitMQConfig addresses the message bus.
type RabbitMQConfig struct {
	URL string `yaml:"url"`
}

// DatabaseConfig addresses the relational store. DryRunPath, when
// RunMode=="dry_run", is opened with the pure-Go sqlite driver instead of
// dialing DSN with lib/pq.
type DatabaseConfig struct {
	DSN        string `yaml:"dsn"`
	DryRunPath string `yaml:"dry_run_path"`
}

// LogConfig controls zerolog's output.
type LogConfig struct {
	Level string `yaml:"level"`
}

// defaultSearchPaths mirrors the bridge's original lookup order:
// config.yaml in the working directory, then config/config.yaml under it,
// and finally a fixed deployment path.
func defaultSearchPaths() []string {
	return []string{
		"./config.yaml",
		"./config/config.yaml",
		"/etc/tqsdk-broker-bridge/config.yaml",
	}
}

// Load finds config.yaml by path-fallback (or CONFIG_PATH if set), layers
// a .env overlay for secrets, and applies a short list of env-var
// overrides for values operators need to change without editing yaml
// (matching the bridge's historical DB_PATH / DRY_RUN style knobs).
func Load() (*Config, error) {
	_ = godotenv.Load()

	path := os.Getenv("CONFIG_PATH")
	var raw []byte
	var err error
	if path != "" {
		raw, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		for _, p := range defaultSearchPaths() {
			raw, err = os.ReadFile(p)
			if err == nil {
				path = p
				break
			}
		}
		if raw == nil {
			return nil, fmt.Errorf("no config.yaml found in %v (set CONFIG_PATH to override)", defaultSearchPaths())
		}
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if cfg.PortfolioID == "" {
		return nil, fmt.Errorf("config: portfolio_id is required")
	}
	if cfg.RunMode == "" {
		cfg.RunMode = "live"
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PORTFOLIO_ID"); v != "" {
		cfg.PortfolioID = v
	}
	if v := os.Getenv("RUN_MODE"); v != "" {
		cfg.RunMode = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		cfg.RabbitMQ.URL = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("DRY_RUN_DB_PATH"); v != "" {
		cfg.Database.DryRunPath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = n
		}
	}
}

// IsDryRun reports whether the process should open its relational store
// against the embedded sqlite fixture instead of dialing Postgres.
func (c *Config) IsDryRun() bool { return c.RunMode == "dry_run" }
