package domain

import (
	"context"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Clock abstracts the host time source. The engine compares epoch
// milliseconds against due times and caller deadlines.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// NowMS converts a Clock reading to epoch milliseconds.
func NowMS(c Clock) int64 { return c.Now().UnixMilli() }

// CollateralClient is the boundary to the external collateral asset
// contract. Transfer moves amount of asset from one account to another and
// must either fully apply or return an error; the engine aborts the whole
// transaction on error.
type CollateralClient interface {
	Transfer(ctx context.Context, asset common.Address, from, to common.Address, amount *big.Int) error
}

// EventSink receives events from committed transactions. Implementations must
// tolerate being called concurrently with reads.
type EventSink interface {
	Emit(ctx context.Context, ev Event)
}

// EventArchive persists engine events durably for later listing and blob
// archival.
type EventArchive interface {
	Append(ctx context.Context, ev Event) error
	List(ctx context.Context, opts ListOpts) ([]ArchivedEvent, error)
	ListBefore(ctx context.Context, before time.Time) ([]ArchivedEvent, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ArchivedEvent is one archived engine event row.
type ArchivedEvent struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"createdAt"`
}

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SignalBus publishes event payloads to out-of-process subscribers.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// StreamMessage is one entry read from a durable signal stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// PropertiesCache caches aggregated token property lookups. Mutating engine
// events invalidate the affected market.
type PropertiesCache interface {
	Get(ctx context.Context, id TokenID) (TokenProperties, error)
	Set(ctx context.Context, props TokenProperties) error
	Invalidate(ctx context.Context, ids ...TokenID) error
}

// BlobWriter uploads an object to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
