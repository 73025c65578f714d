// Package config defines the top-level configuration for the prophetd node
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PROPHET_* environment variables.
type Config struct {
	Node     NodeConfig     `toml:"node"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// NodeConfig identifies the contract account and its initial role holder.
type NodeConfig struct {
	// ContractAddress is the engine's own account: the holder of pool
	// reserves, staged tokens, and locked collateral.
	ContractAddress string `toml:"contract_address"`
	// OwnerAddress receives all three roles at first boot.
	OwnerAddress string `toml:"owner_address"`
	// CollateralWhitelist seeds the accepted collateral assets at first boot.
	CollateralWhitelist []string `toml:"collateral_whitelist"`
}

// LedgerConfig selects and locates the key-value backend.
type LedgerConfig struct {
	// Backend is "pebble" or "memory". Memory is for tests and ephemeral runs.
	Backend string `toml:"backend"`
	Dir     string `toml:"dir"`
}

// PostgresConfig holds connection parameters for the event archive.
type PostgresConfig struct {
	DSN          string `toml:"dsn"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Database     string `toml:"database"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	SSLMode      string `toml:"ssl_mode"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the event archive and its S3 drain.
type ArchiveConfig struct {
	Enabled       bool     `toml:"enabled"`
	RetentionDays int      `toml:"retention_days"`
	DrainInterval duration `toml:"drain_interval"`
}

// ServerConfig controls the HTTP/websocket API.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APISecret signs privileged mutation requests (HMAC). Empty disables
	// the mutation surface entirely.
	APISecret string `toml:"api_secret"`
}

// duration wraps time.Duration so it can be written as "5m" in TOML.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// Defaults returns the built-in configuration. Every field can be overridden
// by the TOML file and then by environment variables.
func Defaults() Config {
	return Config{
		Node: NodeConfig{
			ContractAddress: "0x00000000000000000000000000000000000f5ee0",
		},
		Ledger: LedgerConfig{
			Backend: "pebble",
			Dir:     "data/ledger",
		},
		Postgres: PostgresConfig{
			Host:         "localhost",
			Port:         5432,
			Database:     "prophetd",
			User:         "prophetd",
			SSLMode:      "disable",
			PoolMaxConns: 10,
			PoolMinConns: 2,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			RetentionDays: 90,
			DrainInterval: duration{24 * time.Hour},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"node":    true,
	"server":  true,
	"archive": true,
	"full":    true,
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

	// Mode
	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: node, server, archive, full)", c.Mode))
	}

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Node
	if !common.IsHexAddress(c.Node.ContractAddress) {
		errs = append(errs, fmt.Sprintf("node: contract_address %q is not a hex address", c.Node.ContractAddress))
	}
	if c.Node.OwnerAddress != "" && !common.IsHexAddress(c.Node.OwnerAddress) {
		errs = append(errs, fmt.Sprintf("node: owner_address %q is not a hex address", c.Node.OwnerAddress))
	}
	for _, a := range c.Node.CollateralWhitelist {
		if !common.IsHexAddress(a) {
			errs = append(errs, fmt.Sprintf("node: collateral_whitelist entry %q is not a hex address", a))
		}
	}

	// Ledger
	switch strings.ToLower(c.Ledger.Backend) {
	case "pebble":
		if c.Ledger.Dir == "" {
			errs = append(errs, "ledger: dir must not be empty for the pebble backend")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("ledger: unknown backend %q (valid: pebble, memory)", c.Ledger.Backend))
	}

	// Postgres — only required when the archive is on.
	if c.Archive.Enabled {
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
		if c.Archive.RetentionDays < 1 {
			errs = append(errs, "archive: retention_days must be >= 1")
		}
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when the archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when the archive is enabled")
		}
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
