package invalidate_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsafe/kumo/internal/cache"
	"github.com/fieldsafe/kumo/internal/invalidate"
	"github.com/fieldsafe/kumo/internal/message"
)

const generation = "app-cache-v1.0.0"

func activeGeneration() (string, bool) { return generation, true }

func seedStore(t *testing.T) *cache.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := cache.NewMemoryStore()
	require.NoError(t, store.Put(ctx, generation, "/api/checklists", cache.Entry{Body: []byte("api")}))
	require.NoError(t, store.Put(ctx, generation, "/app.css", cache.Entry{Body: []byte("css")}))
	require.NoError(t, store.Put(ctx, generation, "/bundle.js?v=3&t=99", cache.Entry{Body: []byte("versioned")}))
	require.NoError(t, store.Put(ctx, generation, "/icon.png?v=1&t=1", cache.Entry{Body: []byte("versioned")}))
	return store
}

func TestPurge(t *testing.T) {
	ctx := context.Background()

	t.Run("versioned assets survive, everything else goes", func(t *testing.T) {
		store := seedStore(t)
		h := invalidate.New(store, message.NewInProcessBus(), activeGeneration, zerolog.Nop())

		deleted, err := h.Purge(ctx)

		require.NoError(t, err)
		assert.Equal(t, 2, deleted)

		keys, err := store.Keys(ctx, generation)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"/bundle.js?v=3&t=99", "/icon.png?v=1&t=1"}, keys)
	})

	t.Run("purging an empty generation is a no-op", func(t *testing.T) {
		store := cache.NewMemoryStore()
		h := invalidate.New(store, message.NewInProcessBus(), activeGeneration, zerolog.Nop())

		deleted, err := h.Purge(ctx)

		require.NoError(t, err)
		assert.Zero(t, deleted)
	})

	t.Run("no active generation purges nothing", func(t *testing.T) {
		store := seedStore(t)
		h := invalidate.New(store, message.NewInProcessBus(), func() (string, bool) { return "", false }, zerolog.Nop())

		deleted, err := h.Purge(ctx)

		require.NoError(t, err)
		assert.Zero(t, deleted)
	})
}

func TestRunAnswersInvalidateRequests(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := seedStore(t)
	bus := message.NewInProcessBus()
	h := invalidate.New(store, bus, activeGeneration, zerolog.Nop())

	broadcasts, stop, err := bus.Subscribe(ctx, message.ChannelBroadcast)
	require.NoError(t, err)
	defer stop()

	go func() { _ = h.Run(ctx) }()
	// Give the handler a beat to subscribe before publishing.
	time.Sleep(20 * time.Millisecond)

	req := message.New(message.TagInvalidateCache)
	require.NoError(t, bus.Publish(ctx, message.ChannelControl, req))

	select {
	case ack := <-broadcasts:
		assert.Equal(t, message.TagCacheInvalidated, ack.Tag)
		assert.Equal(t, req.ID, ack.ReplyTo, "the ack must name the request it answers")
	case <-time.After(2 * time.Second):
		t.Fatal("no CACHE_INVALIDATED broadcast received")
	}

	keys, err := store.Keys(context.Background(), generation)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/bundle.js?v=3&t=99", "/icon.png?v=1&t=1"}, keys)

	t.Run("a second invalidation with nothing to delete still acks", func(t *testing.T) {
		second := message.New(message.TagInvalidateCache)
		require.NoError(t, bus.Publish(ctx, message.ChannelControl, second))

		select {
		case ack := <-broadcasts:
			assert.Equal(t, message.TagCacheInvalidated, ack.Tag)
			assert.Equal(t, second.ID, ack.ReplyTo)
		case <-time.After(2 * time.Second):
			t.Fatal("idempotent invalidation did not ack")
		}
	})
}

func TestRunIgnoresOtherTags(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := seedStore(t)
	bus := message.NewInProcessBus()
	h := invalidate.New(store, bus, activeGeneration, zerolog.Nop())

	go func() { _ = h.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, bus.Publish(ctx, message.ChannelControl, message.New("SOMETHING_ELSE")))
	time.Sleep(50 * time.Millisecond)

	keys, err := store.Keys(context.Background(), generation)
	require.NoError(t, err)
	assert.Len(t, keys, 4, "unknown control tags must not purge anything")
}
