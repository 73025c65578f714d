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
// built-in defaults, applies PROPHET_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PROPHET_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Node ──
	setStr(&cfg.Node.ContractAddress, "PROPHET_NODE_CONTRACT_ADDRESS")
	setStr(&cfg.Node.OwnerAddress, "PROPHET_NODE_OWNER_ADDRESS")
	setStringSlice(&cfg.Node.CollateralWhitelist, "PROPHET_NODE_COLLATERAL_WHITELIST")

	// ── Ledger ──
	setStr(&cfg.Ledger.Backend, "PROPHET_LEDGER_BACKEND")
	setStr(&cfg.Ledger.Dir, "PROPHET_LEDGER_DIR")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PROPHET_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "PROPHET_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PROPHET_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PROPHET_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PROPHET_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PROPHET_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PROPHET_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PROPHET_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PROPHET_POSTGRES_POOL_MIN_CONNS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PROPHET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PROPHET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PROPHET_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PROPHET_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PROPHET_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PROPHET_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PROPHET_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PROPHET_S3_REGION")
	setStr(&cfg.S3.Bucket, "PROPHET_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PROPHET_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PROPHET_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PROPHET_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PROPHET_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "PROPHET_ARCHIVE_ENABLED")
	setInt(&cfg.Archive.RetentionDays, "PROPHET_ARCHIVE_RETENTION_DAYS")
	setDuration(&cfg.Archive.DrainInterval, "PROPHET_ARCHIVE_DRAIN_INTERVAL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "PROPHET_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "PROPHET_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PROPHET_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APISecret, "PROPHET_SERVER_API_SECRET")

	// ── Top-level ──
	setStr(&cfg.Mode, "PROPHET_MODE")
	setStr(&cfg.LogLevel, "PROPHET_LOG_LEVEL")
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
