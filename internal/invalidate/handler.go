package invalidate

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/fieldsafe/kumo/internal/cache"
	"github.com/fieldsafe/kumo/internal/classify"
	"github.com/fieldsafe/kumo/internal/message"
)

// Handler listens for INVALIDATE_CACHE control messages and purges the
// current generation, sparing versioned assets: their URL is a content
// fingerprint, so they never go stale and survive every purge.
type Handler struct {
	store      cache.Store
	bus        message.Bus
	generation func() (string, bool)
	logger     zerolog.Logger
}

// New builds a Handler. generation supplies the currently serving cache
// generation (and false while the worker has not activated yet).
func New(store cache.Store, bus message.Bus, generation func() (string, bool), logger zerolog.Logger) *Handler {
	return &Handler{
		store:      store,
		bus:        bus,
		generation: generation,
		logger:     logger.With().Str("component", "invalidate").Logger(),
	}
}

// Run subscribes to the control channel and serves purge requests until ctx
// is done.
func (h *Handler) Run(ctx context.Context) error {
	msgs, cancel, err := h.bus.Subscribe(ctx, message.ChannelControl)
	if err != nil {
		return fmt.Errorf("subscribe control channel: %w", err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if msg.Tag != message.TagInvalidateCache {
				continue
			}
			h.handle(ctx, msg)
		}
	}
}

func (h *Handler) handle(ctx context.Context, req message.Message) {
	deleted, err := h.Purge(ctx)
	if err != nil {
		h.logger.Error().Err(err).Str("request_id", req.ID).Msg("purge failed")
		return
	}
	h.logger.Info().Int("deleted", deleted).Str("request_id", req.ID).Msg("cache invalidated")

	ack := message.Reply(message.TagCacheInvalidated, req)
	if err := h.bus.Publish(ctx, message.ChannelBroadcast, ack); err != nil {
		h.logger.Warn().Err(err).Msg("could not broadcast invalidation ack")
	}
}

// Purge deletes every non-versioned entry in the current generation and
// returns how many were removed. Purging an empty generation is a no-op.
func (h *Handler) Purge(ctx context.Context) (int, error) {
	generation, ok := h.generation()
	if !ok {
		return 0, nil
	}

	keys, err := h.store.Keys(ctx, generation)
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", generation, err)
	}

	deleted := 0
	for _, key := range keys {
		if classify.IsVersionedKey(key) {
			continue
		}
		if err := h.store.Delete(ctx, generation, key); err != nil {
			return deleted, fmt.Errorf("delete %q: %w", key, err)
		}
		deleted++
	}
	return deleted, nil
}
