// Package pipeline connects the engine's committed events to the node's
// side-channels: the durable archive, the Redis signal bus, the properties
// cache, and blob cold storage.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/prophetlabs/prophetd/internal/domain"
)

const (
	// ChannelEvents receives every committed event.
	ChannelEvents = "ch:events"

	// channelPrefix is prepended to the event type for per-type channels,
	// e.g. "ch:events:Judged".
	channelPrefix = "ch:events:"

	// StreamEvents is the durable Redis stream fed alongside pub/sub so
	// consumers that reconnect can replay missed judgments.
	StreamEvents = "stream:events"

	// queueSize bounds the in-process buffer between the engine's commit
	// path and the fan-out worker.
	queueSize = 1024
)

// EventChannel names the per-type signal-bus channel for an event type,
// e.g. EventChannel("Judged") == "ch:events:Judged".
func EventChannel(eventType string) string {
	return channelPrefix + eventType
}

// StreamAppender appends a payload to a durable stream. The Redis signal bus
// satisfies it; the fan-out treats it as optional.
type StreamAppender interface {
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// envelope is the JSON wire shape published to subscribers.
type envelope struct {
	Type    string       `json:"type"`
	Payload domain.Event `json:"payload"`
}

// Fanout implements domain.EventSink. Emit enqueues; the Run loop delivers
// each event to the archive, the signal bus, and the cache invalidator. Any
// of the three destinations may be nil and is then skipped.
type Fanout struct {
	archive domain.EventArchive
	bus     domain.SignalBus
	stream  StreamAppender
	cache   domain.PropertiesCache
	queue   chan domain.Event
	logger  *slog.Logger
}

// FanoutConfig lists the optional destinations for committed events.
type FanoutConfig struct {
	Archive domain.EventArchive
	Bus     domain.SignalBus
	Stream  StreamAppender
	Cache   domain.PropertiesCache
}

// NewFanout creates a Fanout with the given destinations.
func NewFanout(cfg FanoutConfig, logger *slog.Logger) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{
		archive: cfg.Archive,
		bus:     cfg.Bus,
		stream:  cfg.Stream,
		cache:   cfg.Cache,
		queue:   make(chan domain.Event, queueSize),
		logger:  logger.With("component", "fanout"),
	}
}

// Emit enqueues a committed event for delivery. It never blocks the engine;
// if the queue is full the event is dropped from the side-channels (the
// ledger itself remains the source of truth).
func (f *Fanout) Emit(_ context.Context, ev domain.Event) {
	select {
	case f.queue <- ev:
	default:
		f.logger.Warn("event queue full, dropping event",
			slog.String("type", ev.EventType()))
	}
}

// Run delivers queued events until ctx is cancelled. Delivery failures are
// logged and skipped so one broken destination never stalls the rest.
func (f *Fanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-f.queue:
			f.deliver(ctx, ev)
		}
	}
}

func (f *Fanout) deliver(ctx context.Context, ev domain.Event) {
	if f.archive != nil {
		if err := f.archive.Append(ctx, ev); err != nil {
			f.logger.Error("archive append failed",
				slog.String("type", ev.EventType()),
				slog.String("error", err.Error()))
		}
	}

	payload, err := json.Marshal(envelope{Type: ev.EventType(), Payload: ev})
	if err != nil {
		f.logger.Error("event encode failed",
			slog.String("type", ev.EventType()),
			slog.String("error", err.Error()))
		return
	}

	if f.bus != nil {
		if err := f.bus.Publish(ctx, ChannelEvents, payload); err != nil {
			f.logger.Error("publish failed", slog.String("error", err.Error()))
		}
		if err := f.bus.Publish(ctx, EventChannel(ev.EventType()), payload); err != nil {
			f.logger.Error("publish failed", slog.String("error", err.Error()))
		}
	}

	if f.stream != nil {
		if err := f.stream.StreamAppend(ctx, StreamEvents, payload); err != nil {
			f.logger.Error("stream append failed", slog.String("error", err.Error()))
		}
	}

	if f.cache != nil {
		if ids := affectedTokens(ev); len(ids) > 0 {
			if err := f.cache.Invalidate(ctx, ids...); err != nil {
				f.logger.Warn("cache invalidation failed",
					slog.String("error", err.Error()))
			}
		}
	}
}

// affectedTokens lists the token IDs whose cached properties an event makes
// stale.
func affectedTokens(ev domain.Event) []domain.TokenID {
	switch e := ev.(type) {
	case domain.CreatedEvent:
		return []domain.TokenID{e.LiquidityTokenID, e.TrueTokenID, e.FalseTokenID}
	case domain.JudgedEvent:
		return []domain.TokenID{e.LiquidityTokenID, e.WinningTokenID}
	case domain.DepositEvent:
		return []domain.TokenID{e.LiquidityTokenID}
	case domain.RedeemEvent:
		return []domain.TokenID{e.LiquidityTokenID}
	case domain.BuyEvent:
		return []domain.TokenID{e.TokenIn, e.TokenOut}
	case domain.AddLiquidityEvent:
		return []domain.TokenID{e.TokenA, e.TokenB}
	case domain.RemoveLiquidityEvent:
		return []domain.TokenID{e.TokenTrue, e.TokenFalse}
	case domain.TransferEvent:
		return []domain.TokenID{e.TokenID}
	default:
		return nil
	}
}

// Pending reports how many events are queued but not yet delivered. Used by
// the status endpoint.
func (f *Fanout) Pending() int { return len(f.queue) }

var _ domain.EventSink = (*Fanout)(nil)
