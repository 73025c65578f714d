package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// BlobArchiver uploads archived events older than a cutoff and reports how
// many rows it drained. The s3blob archiver satisfies it.
type BlobArchiver interface {
	ArchiveEvents(ctx context.Context, before time.Time) (int64, error)
}

// RowDeleter removes archived rows older than a cutoff. Deletion runs only
// after a successful upload so a failed drain never loses rows.
type RowDeleter interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// Drain periodically moves aged event rows from the database into blob cold
// storage and then deletes them.
type Drain struct {
	archiver      BlobArchiver
	deleter       RowDeleter
	retentionDays int
	interval      time.Duration
	logger        *slog.Logger
}

// NewDrain creates a Drain that runs every interval and archives rows older
// than retentionDays.
func NewDrain(archiver BlobArchiver, deleter RowDeleter, retentionDays int, interval time.Duration, logger *slog.Logger) *Drain {
	if logger == nil {
		logger = slog.Default()
	}
	return &Drain{
		archiver:      archiver,
		deleter:       deleter,
		retentionDays: retentionDays,
		interval:      interval,
		logger:        logger.With("component", "drain"),
	}
}

// Run executes a single drain pass.
func (d *Drain) Run(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-time.Duration(d.retentionDays) * 24 * time.Hour)
	d.logger.Info("starting drain pass",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", d.retentionDays))

	archived, err := d.archiver.ArchiveEvents(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: archiving events before %v: %w", cutoff, err)
	}
	if archived == 0 {
		d.logger.Info("drain pass complete, nothing to archive")
		return nil
	}

	deleted, err := d.deleter.DeleteBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("pipeline: deleting archived events before %v: %w", cutoff, err)
	}

	d.logger.Info("drain pass complete",
		slog.Int64("archived", archived),
		slog.Int64("deleted", deleted))
	return nil
}

// RunLoop runs drain passes on a ticker until the context is cancelled. The
// first pass runs immediately.
func (d *Drain) RunLoop(ctx context.Context) error {
	if err := d.Run(ctx); err != nil {
		d.logger.Error("drain pass failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("drain loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := d.Run(ctx); err != nil {
				d.logger.Error("drain pass failed", slog.String("error", err.Error()))
			}
		}
	}
}
