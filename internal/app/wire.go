package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/prophetlabs/prophetd/internal/archive/postgres"
	s3blob "github.com/prophetlabs/prophetd/internal/blob/s3"
	"github.com/prophetlabs/prophetd/internal/cache/redis"
	"github.com/prophetlabs/prophetd/internal/config"
	"github.com/prophetlabs/prophetd/internal/crypto"
	"github.com/prophetlabs/prophetd/internal/engine"
	"github.com/prophetlabs/prophetd/internal/ledger"
	"github.com/prophetlabs/prophetd/internal/pipeline"
	"github.com/prophetlabs/prophetd/internal/server/ws"
)

// Dependencies bundles everything the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Store  ledger.Store
	Engine *engine.Engine
	Owner  common.Address

	// Archive (nil unless enabled).
	Postgres   *postgres.Client
	EventStore *postgres.EventStore

	// Redis (nil in archive mode).
	Redis       *redis.Client
	PropsCache  *redis.PropertiesCache
	SignalBus   *redis.SignalBus
	RateLimiter *redis.RateLimiter

	// Blob storage (nil unless the drain runs in this mode).
	S3         *s3blob.Client
	BlobWriter *s3blob.Writer
	Archiver   *s3blob.Archiver

	// Workers.
	Fanout *pipeline.Fanout
	Drain  *pipeline.Drain
	Hub    *ws.Hub

	// Auth is nil when no API secret is configured; the mutation surface is
	// then disabled.
	Auth *crypto.RequestAuth
}

// needsRedis returns true for modes that serve the API or run the pipeline.
func needsRedis(mode string) bool {
	switch mode {
	case "node", "server", "full":
		return true
	default:
		return false
	}
}

// needsDrain returns true for modes that move aged archive rows to blob
// storage.
func needsDrain(mode string) bool {
	switch mode {
	case "archive", "full":
		return true
	default:
		return false
	}
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	mode := strings.ToLower(cfg.Mode)

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Owner: common.HexToAddress(cfg.Node.OwnerAddress),
	}

	// --- Ledger ---
	switch cfg.Ledger.Backend {
	case "memory":
		deps.Store = ledger.NewMemory()
	default:
		p, err := ledger.OpenPebble(cfg.Ledger.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("wire: ledger: %w", err)
		}
		closers = append(closers, func() { _ = p.Close() })
		deps.Store = p
	}

	// --- Postgres event archive ---
	if cfg.Archive.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}

		deps.Postgres = pgClient
		deps.EventStore = postgres.NewEventStore(pgClient.Pool())
	}

	// --- Redis ---
	if needsRedis(mode) {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Redis = redisClient
		deps.PropsCache = redis.NewPropertiesCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	// --- S3 blob storage ---
	if cfg.Archive.Enabled && needsDrain(mode) {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.S3 = s3Client
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.Archiver = s3blob.NewArchiver(deps.BlobWriter, deps.EventStore, logger)
		deps.Drain = pipeline.NewDrain(
			deps.Archiver,
			deps.EventStore,
			cfg.Archive.RetentionDays,
			cfg.Archive.DrainInterval.Duration,
			logger,
		)
	}

	// --- Event fan-out and engine ---
	fanoutCfg := pipeline.FanoutConfig{}
	if deps.EventStore != nil {
		fanoutCfg.Archive = deps.EventStore
	}
	if deps.SignalBus != nil {
		fanoutCfg.Bus = deps.SignalBus
		fanoutCfg.Stream = deps.SignalBus
	}
	if deps.PropsCache != nil {
		fanoutCfg.Cache = deps.PropsCache
	}
	deps.Fanout = pipeline.NewFanout(fanoutCfg, logger)

	deps.Engine = engine.New(deps.Store, common.HexToAddress(cfg.Node.ContractAddress), engine.Options{
		Sink:   deps.Fanout,
		Logger: logger,
	})

	if err := deployIfNeeded(ctx, deps, cfg, logger); err != nil {
		cleanup()
		return nil, nil, err
	}

	// --- WebSocket hub ---
	if deps.SignalBus != nil {
		deps.Hub = ws.NewHub(deps.SignalBus, mode, logger)
	}

	// --- Request auth ---
	if cfg.Server.APISecret != "" {
		secret, err := crypto.LoadSecret(crypto.SecretConfig{RawSecret: cfg.Server.APISecret})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: api secret: %w", err)
		}
		deps.Auth = &crypto.RequestAuth{Secret: []byte(secret)}
	}

	return deps, cleanup, nil
}

// deployIfNeeded seeds the roles and collateral whitelist on a fresh ledger.
// An already-deployed ledger is left untouched.
func deployIfNeeded(ctx context.Context, deps *Dependencies, cfg *config.Config, logger *slog.Logger) error {
	if _, err := deps.Store.Get(ledger.Key(ledger.PrefixTokenCounter)); err == nil {
		return nil
	} else if err != ledger.ErrNotFound {
		return fmt.Errorf("wire: probe ledger: %w", err)
	}

	if err := deps.Engine.Deploy(ctx, deps.Owner); err != nil {
		return fmt.Errorf("wire: deploy: %w", err)
	}
	for _, raw := range cfg.Node.CollateralWhitelist {
		asset := common.HexToAddress(raw)
		if err := deps.Engine.AddWhitelist(ctx, deps.Owner, asset); err != nil {
			return fmt.Errorf("wire: seed whitelist %s: %w", raw, err)
		}
	}

	logger.InfoContext(ctx, "ledger initialized",
		slog.String("owner", deps.Owner.Hex()),
		slog.Int("whitelisted_assets", len(cfg.Node.CollateralWhitelist)),
	)
	return nil
}
