package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prophetlabs/prophetd/internal/domain"
)

// EventStore implements domain.EventArchive using PostgreSQL. Every engine
// event is appended as a row with its JSON detail, so settled markets can be
// audited and drained to blob storage long after the ledger state moved on.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates an EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

var _ domain.EventArchive = (*EventStore)(nil)

// Append stores one engine event.
func (s *EventStore) Append(ctx context.Context, ev domain.Event) error {
	detailJSON, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("postgres: marshal event detail: %w", err)
	}

	const query = `INSERT INTO market_events (id, event, detail) VALUES ($1, $2, $3)`
	if _, err := s.pool.Exec(ctx, query, uuid.NewString(), ev.EventType(), detailJSON); err != nil {
		return fmt.Errorf("postgres: append event %s: %w", ev.EventType(), err)
	}
	return nil
}

// List returns archived events with pagination and optional time filtering,
// newest first.
func (s *EventStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.ArchivedEvent, error) {
	query := `SELECT id, event, detail, created_at FROM market_events WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListBefore returns every event created strictly before the cutoff, oldest
// first, for archival drains.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ArchivedEvent, error) {
	const query = `SELECT id, event, detail, created_at FROM market_events
		WHERE created_at < $1 ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before %s: %w", before, err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// DeleteBefore removes events created strictly before the cutoff and returns
// the number of rows removed.
func (s *EventStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM market_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete events before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

type pgxRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanEvents(rows pgxRows) ([]domain.ArchivedEvent, error) {
	var events []domain.ArchivedEvent
	for rows.Next() {
		var e domain.ArchivedEvent
		var detailJSON []byte

		if err := rows.Scan(&e.ID, &e.Type, &detailJSON, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		if detailJSON != nil {
			if err := json.Unmarshal(detailJSON, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal event detail: %w", err)
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list events rows: %w", err)
	}
	return events, nil
}
