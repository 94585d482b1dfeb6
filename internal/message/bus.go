package message

import (
	"context"
	"sync"
)

// Bus carries control messages between pages and the worker. Subscribe
// returns a channel of messages published to the named channel after the
// subscription is established, plus a cancel function that closes it.
// Delivery is broadcast: every subscriber sees every message.
type Bus interface {
	Publish(ctx context.Context, channel string, msg Message) error
	Subscribe(ctx context.Context, channel string) (<-chan Message, func(), error)
}

// InProcessBus is a Bus for dev mode and tests, where pages and worker live
// in one process.
type InProcessBus struct {
	mu   sync.Mutex
	subs map[string][]chan Message
}

func NewInProcessBus() *InProcessBus {
	return &InProcessBus{subs: make(map[string][]chan Message)}
}

// Publish delivers under the lock so a concurrent cancel cannot close a
// channel mid-send.
func (b *InProcessBus) Publish(_ context.Context, channel string, msg Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs[channel] {
		sub <- msg
	}
	return nil
}

func (b *InProcessBus) Subscribe(_ context.Context, channel string) (<-chan Message, func(), error) {
	sub := make(chan Message, 16)

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], sub)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		subs := b.subs[channel]
		for i, s := range subs {
			if s == sub {
				b.subs[channel] = append(subs[:i], subs[i+1:]...)
				close(sub)
				return
			}
		}
	}
	return sub, cancel, nil
}
