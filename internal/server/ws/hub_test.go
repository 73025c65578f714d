package ws

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophetlabs/prophetd/internal/domain"
	"github.com/prophetlabs/prophetd/internal/pipeline"
)

type memBus struct {
	mu   sync.Mutex
	subs map[string]chan []byte
}

func newMemBus() *memBus {
	return &memBus{subs: make(map[string]chan []byte)}
}

func (b *memBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	ch, ok := b.subs[channel]
	b.mu.Unlock()
	if ok {
		ch <- payload
	}
	return nil
}

func (b *memBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan []byte, 16)
	b.subs[channel] = ch
	return ch, nil
}

func (b *memBus) hasSub(channel string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subs[channel]
	return ok
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// runHub starts a hub against the bus and waits until every bus channel is
// subscribed so publishes are not lost to startup racing.
func runHub(t *testing.T, bus *memBus) *Hub {
	t.Helper()

	h := NewHub(bus, "node", testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		ready := true
		for _, ch := range busChannels() {
			if !bus.hasSub(ch) {
				ready = false
				break
			}
		}
		if ready {
			return h
		}
		require.True(t, time.Now().Before(deadline), "hub did not subscribe in time")
		time.Sleep(5 * time.Millisecond)
	}
}

// addClient registers a bare client with the given subscriptions, bypassing
// the websocket upgrade.
func addClient(t *testing.T, h *Hub, subs ...string) *client {
	t.Helper()

	c := &client{
		hub:  h,
		send: make(chan []byte, sendBufferSize),
		subs: make(map[string]bool),
	}
	for _, s := range subs {
		c.subs[s] = true
	}
	h.register <- c

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() == 0 {
		require.True(t, time.Now().Before(deadline), "client did not register in time")
		time.Sleep(5 * time.Millisecond)
	}
	return c
}

func recvWithin(t *testing.T, ch chan []byte, d time.Duration) []byte {
	t.Helper()
	select {
	case data := <-ch:
		return data
	case <-time.After(d):
		t.Fatal("no message delivered")
		return nil
	}
}

func TestBusChannelsAreConcrete(t *testing.T) {
	channels := busChannels()

	assert.Contains(t, channels, pipeline.ChannelEvents)
	for _, et := range domain.EventTypes() {
		assert.Contains(t, channels, pipeline.EventChannel(et))
	}
	for _, ch := range channels {
		assert.NotContains(t, ch, "*")
	}
}

func TestTypedSubscriberReceivesTypedEvents(t *testing.T) {
	bus := newMemBus()
	h := runHub(t, bus)
	c := addClient(t, h, pipeline.EventChannel("Judged"))

	require.NoError(t, bus.Publish(context.Background(),
		pipeline.EventChannel("Judged"), []byte(`{"type":"Judged"}`)))

	got := recvWithin(t, c.send, 2*time.Second)
	assert.JSONEq(t, `{"type":"Judged"}`, string(got))
}

func TestTypedSubscriberSkipsOtherChannels(t *testing.T) {
	bus := newMemBus()
	h := runHub(t, bus)
	c := addClient(t, h, pipeline.EventChannel("Judged"))

	require.NoError(t, bus.Publish(context.Background(),
		pipeline.ChannelEvents, []byte(`{"type":"Buy"}`)))
	require.NoError(t, bus.Publish(context.Background(),
		pipeline.EventChannel("Buy"), []byte(`{"type":"Buy"}`)))

	select {
	case data := <-c.send:
		t.Fatalf("unexpected delivery: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWildcardSubscriberReceivesAllTypes(t *testing.T) {
	bus := newMemBus()
	h := runHub(t, bus)
	c := addClient(t, h, "ch:events:*")

	require.NoError(t, bus.Publish(context.Background(),
		pipeline.EventChannel("Buy"), []byte(`{"type":"Buy"}`)))
	recvWithin(t, c.send, 2*time.Second)

	require.NoError(t, bus.Publish(context.Background(),
		pipeline.EventChannel("Deposit"), []byte(`{"type":"Deposit"}`)))
	recvWithin(t, c.send, 2*time.Second)
}

func TestIsSubscribed(t *testing.T) {
	c := &client{subs: map[string]bool{
		pipeline.ChannelEvents: true,
		"ch:market:*":          true,
	}}

	assert.True(t, c.isSubscribed(pipeline.ChannelEvents))
	assert.True(t, c.isSubscribed("ch:market:42"))
	assert.False(t, c.isSubscribed(pipeline.EventChannel("Judged")))
}
