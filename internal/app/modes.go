package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prophetlabs/prophetd/internal/domain"
	"github.com/prophetlabs/prophetd/internal/engine"
	"github.com/prophetlabs/prophetd/internal/pipeline"
	"github.com/prophetlabs/prophetd/internal/server"
	"github.com/prophetlabs/prophetd/internal/server/handler"
)

// Per-client API rate limit. Applied only when Redis is wired.
const (
	apiRateLimit  = 120
	apiRateWindow = time.Minute
)

// shutdownGrace bounds how long in-flight requests may run after the context
// is cancelled.
const shutdownGrace = 10 * time.Second

// NodeMode runs the engine with its event fan-out and the full API surface.
// The archive drain is left to a dedicated archive process.
func (a *App) NodeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting node mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startPipeline(ctx, g, deps, nil)
	a.startServer(ctx, g, deps, true)
	return g.Wait()
}

// ServerMode serves the read-only API over an existing ledger. Mutating
// endpoints are not registered regardless of auth configuration.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startServer(ctx, g, deps, false)
	return g.Wait()
}

// ArchiveMode runs only the cold-storage drain.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	if deps.Drain == nil {
		return fmt.Errorf("app: archive mode requires the archive to be enabled")
	}
	err := deps.Drain.RunLoop(ctx)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// FullMode runs everything: engine, fan-out, API server, and the drain.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)
	a.startPipeline(ctx, g, deps, deps.Drain)
	a.startServer(ctx, g, deps, true)
	return g.Wait()
}

// startPipeline launches the fan-out worker and, when drain is non-nil, the
// cold-storage drain under the group.
func (a *App) startPipeline(ctx context.Context, g *errgroup.Group, deps *Dependencies, drain *pipeline.Drain) {
	orch := pipeline.NewOrchestrator(deps.Fanout, drain, a.logger)
	g.Go(func() error {
		return orch.Run(ctx)
	})
}

// startServer builds the handler set and launches the HTTP server and the
// websocket hub under the group. mutable controls whether the execute and
// admin surfaces are registered.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, mutable bool) {
	if !a.cfg.Server.Enabled {
		a.logger.InfoContext(ctx, "api server disabled")
		return
	}

	eng := deps.Engine
	startedAt := time.Now().UTC()

	// Typed nils must not leak into the interface field.
	var cache domain.PropertiesCache
	if deps.PropsCache != nil {
		cache = deps.PropsCache
	}

	handlers := server.Handlers{
		Health: a.buildHealthHandler(deps),
		Status: handler.NewStatusHandler(eng, a.cfg.Mode, startedAt, deps.Fanout.Pending),
		Markets: handler.NewMarketHandler(
			eng,
			cache,
			engine.FeeNominator,
			engine.FeeDenominator,
			a.logger,
		),
		Accounts: handler.NewAccountHandler(eng, a.logger),
	}
	if deps.EventStore != nil {
		handlers.Events = handler.NewEventsHandler(deps.EventStore, a.logger)
	}
	if mutable && deps.Auth != nil {
		handlers.Admin = handler.NewAdminHandler(eng, a.logger)
		handlers.Execute = handler.NewExecuteHandler(eng, a.logger)
	}

	cfg := server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		Auth:        deps.Auth,
	}
	if deps.RateLimiter != nil {
		cfg.RateLimiter = deps.RateLimiter
		cfg.RateLimit = apiRateLimit
		cfg.RateWindow = apiRateWindow
	}

	srv := server.NewServer(cfg, handlers, deps.Hub, a.logger)

	if deps.Hub != nil {
		g.Go(func() error {
			err := deps.Hub.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("app: ws hub: %w", err)
		})
	}

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// buildHealthHandler registers dependency probes for whatever backends this
// mode wired.
func (a *App) buildHealthHandler(deps *Dependencies) *handler.HealthHandler {
	h := handler.NewHealthHandler(a.logger)
	if deps.Redis != nil {
		h.AddCheck("redis", deps.Redis.Ping)
	}
	if deps.Postgres != nil {
		h.AddCheck("postgres", func(ctx context.Context) error {
			return deps.Postgres.Pool().Ping(ctx)
		})
	}
	if deps.S3 != nil {
		h.AddCheck("s3", deps.S3.Health)
	}
	return h
}
