package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/prophetlabs/prophetd/internal/domain"
)

const jsonlContentType = "application/x-ndjson"

// Archiver drains aged event rows from the durable archive into blob
// storage. Deletion of drained rows is a separate explicit step so a failed
// upload never loses data.
type Archiver struct {
	writer  domain.BlobWriter
	archive domain.EventArchive
	logger  *slog.Logger
}

// NewArchiver creates an Archiver that reads from archive and writes to
// writer.
func NewArchiver(writer domain.BlobWriter, archive domain.EventArchive, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{
		writer:  writer,
		archive: archive,
		logger:  logger.With("component", "archiver"),
	}
}

// ArchiveEvents uploads every archived event older than before as one JSONL
// object and returns the number of rows drained. Rows are grouped by the
// month of their creation time so repeated drains append stable paths.
func (a *Archiver) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	events, err := a.archive.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list events before %s: %w", before.Format(time.RFC3339), err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	for month, batch := range groupByMonth(events) {
		body, err := marshalJSONL(batch)
		if err != nil {
			return 0, fmt.Errorf("s3blob: encode events for %s: %w", month, err)
		}
		path := fmt.Sprintf("archive/events/%s/%d.jsonl", month, before.UnixMilli())
		if err := a.writer.Put(ctx, path, bytes.NewReader(body), jsonlContentType); err != nil {
			return 0, err
		}
		a.logger.Info("archived events",
			"path", path,
			"count", len(batch))
	}
	return int64(len(events)), nil
}

// groupByMonth buckets events by the YYYY-MM of their creation time.
func groupByMonth(events []domain.ArchivedEvent) map[string][]domain.ArchivedEvent {
	groups := make(map[string][]domain.ArchivedEvent)
	for _, ev := range events {
		month := ev.CreatedAt.UTC().Format("2006-01")
		groups[month] = append(groups[month], ev)
	}
	return groups
}

// marshalJSONL encodes each item as one JSON line.
func marshalJSONL[T any](items []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}
