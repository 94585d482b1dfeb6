package message_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsafe/kumo/internal/message"
)

func TestNewMessage(t *testing.T) {
	msg := message.New(message.TagInvalidateCache)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, message.TagInvalidateCache, msg.Tag)
	assert.Empty(t, msg.ReplyTo)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestReplyCarriesCorrelation(t *testing.T) {
	req := message.New(message.TagInvalidateCache)

	ack := message.Reply(message.TagCacheInvalidated, req)

	assert.Equal(t, req.ID, ack.ReplyTo)
	assert.NotEqual(t, req.ID, ack.ID)
}

func TestInProcessBus(t *testing.T) {
	ctx := context.Background()

	t.Run("every subscriber sees every message", func(t *testing.T) {
		bus := message.NewInProcessBus()
		first, stopFirst, err := bus.Subscribe(ctx, message.ChannelBroadcast)
		require.NoError(t, err)
		defer stopFirst()
		second, stopSecond, err := bus.Subscribe(ctx, message.ChannelBroadcast)
		require.NoError(t, err)
		defer stopSecond()

		sent := message.New(message.TagSyncNeeded)
		require.NoError(t, bus.Publish(ctx, message.ChannelBroadcast, sent))

		for _, sub := range []<-chan message.Message{first, second} {
			select {
			case got := <-sub:
				assert.Equal(t, sent.ID, got.ID)
			case <-time.After(time.Second):
				t.Fatal("subscriber did not receive the broadcast")
			}
		}
	})

	t.Run("channels are independent", func(t *testing.T) {
		bus := message.NewInProcessBus()
		control, stop, err := bus.Subscribe(ctx, message.ChannelControl)
		require.NoError(t, err)
		defer stop()

		require.NoError(t, bus.Publish(ctx, message.ChannelBroadcast, message.New(message.TagSyncNeeded)))

		select {
		case msg := <-control:
			t.Fatalf("control subscriber received broadcast message %v", msg.Tag)
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("cancel closes the subscription", func(t *testing.T) {
		bus := message.NewInProcessBus()
		sub, stop, err := bus.Subscribe(ctx, message.ChannelControl)
		require.NoError(t, err)

		stop()

		_, open := <-sub
		assert.False(t, open)
		// Publishing after cancellation must not block or panic.
		require.NoError(t, bus.Publish(ctx, message.ChannelControl, message.New(message.TagInvalidateCache)))
	})
}
