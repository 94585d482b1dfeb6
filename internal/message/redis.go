package message

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisBus carries the control protocol over redis pub/sub, so pages and the
// worker can run in separate processes.
type RedisBus struct {
	client *redis.Client
	logger zerolog.Logger
}

func NewRedisBus(client *redis.Client, logger zerolog.Logger) *RedisBus {
	return &RedisBus{
		client: client,
		logger: logger.With().Str("component", "bus").Logger(),
	}
}

func (b *RedisBus) Publish(ctx context.Context, channel string, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, channel, payload).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, channel string) (<-chan Message, func(), error) {
	pubsub := b.client.Subscribe(ctx, channel)
	// Wait for the subscription to be confirmed so messages published right
	// after Subscribe returns are not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan Message, 16)
	go func() {
		defer close(out)
		for raw := range pubsub.Channel() {
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				b.logger.Warn().Err(err).Str("channel", channel).Msg("dropping malformed control message")
				continue
			}
			out <- msg
		}
	}()

	cancel := func() { _ = pubsub.Close() }
	return out, cancel, nil
}
