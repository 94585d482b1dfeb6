package outbox_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldsafe/kumo/internal/outbox"
)

func openOutbox(t *testing.T) *outbox.Outbox {
	t.Helper()
	ob, err := outbox.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ob.Close() })
	return ob
}

func TestOutbox(t *testing.T) {
	t.Run("empty outbox has no pending mutations", func(t *testing.T) {
		ob := openOutbox(t)

		count, err := ob.PendingCount()

		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("enqueued mutations are counted", func(t *testing.T) {
		ob := openOutbox(t)

		require.NoError(t, ob.Enqueue(outbox.Mutation{
			Kind:    "inspection.answer",
			Payload: json.RawMessage(`{"itemId":"q1","value":"pass"}`),
		}))
		require.NoError(t, ob.Enqueue(outbox.Mutation{
			Kind:    "checklist.update",
			Payload: json.RawMessage(`{"title":"Daily forklift check"}`),
		}))

		count, err := ob.PendingCount()
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("an explicit ID is kept, re-enqueueing it overwrites", func(t *testing.T) {
		ob := openOutbox(t)
		m := outbox.Mutation{ID: "fixed", Kind: "inspection.answer", Payload: json.RawMessage(`{}`)}

		require.NoError(t, ob.Enqueue(m))
		require.NoError(t, ob.Enqueue(m))

		count, err := ob.PendingCount()
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})
}
