package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs the node's background workers: the event fan-out and,
// when archival is enabled, the cold-storage drain.
type Orchestrator struct {
	fanout *Fanout
	drain  *Drain
	logger *slog.Logger
}

// NewOrchestrator creates an Orchestrator. drain may be nil when archival is
// disabled.
func NewOrchestrator(fanout *Fanout, drain *Drain, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		fanout: fanout,
		drain:  drain,
		logger: logger.With("component", "orchestrator"),
	}
}

// Run starts the workers as concurrent goroutines using an errgroup. Each
// goroutine respects ctx cancellation. If any goroutine returns a non-context
// error, the errgroup cancels the shared context and Run returns that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline starting", slog.Bool("drain_enabled", o.drain != nil))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := o.fanout.Run(ctx)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("event fanout: %w", err)
	})

	if o.drain != nil {
		g.Go(func() error {
			err := o.drain.RunLoop(ctx)
			if ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("event drain: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline stopped cleanly")
	return nil
}
