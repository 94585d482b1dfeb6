package outbox

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldsafe/kumo/internal/message"
)

// Counter is the read-only view of the outbox the notifier needs.
type Counter interface {
	PendingCount() (int, error)
}

// Notifier is the background-sync stub: when a sync check fires and the
// outbox holds queued mutations, it broadcasts SYNC_NEEDED to pages. Replay
// itself is the external sync manager's job, never the worker's.
type Notifier struct {
	outbox   Counter
	bus      message.Bus
	interval time.Duration
	logger   zerolog.Logger
}

func NewNotifier(outbox Counter, bus message.Bus, interval time.Duration, logger zerolog.Logger) *Notifier {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Notifier{
		outbox:   outbox,
		bus:      bus,
		interval: interval,
		logger:   logger.With().Str("component", "sync-notifier").Logger(),
	}
}

// Run checks periodically until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	ticker := time.NewTicker(n.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = n.Check(ctx)
		}
	}
}

// Check is one sync event: it broadcasts SYNC_NEEDED when mutations are
// pending and reports whether it did.
func (n *Notifier) Check(ctx context.Context) (bool, error) {
	count, err := n.outbox.PendingCount()
	if err != nil {
		n.logger.Error().Err(err).Msg("could not count pending mutations")
		return false, err
	}
	if count == 0 {
		return false, nil
	}

	n.logger.Info().Int("pending", count).Msg("offline mutations queued, notifying pages")
	msg := message.New(message.TagSyncNeeded)
	if err := n.bus.Publish(ctx, message.ChannelBroadcast, msg); err != nil {
		n.logger.Warn().Err(err).Msg("could not broadcast sync notification")
		return false, err
	}
	return true, nil
}
