package client

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldsafe/kumo/internal/message"
)

// Registration records an attached worker.
type Registration struct {
	Scope        string
	RegisteredAt time.Time
}

// Manager runs in the page context and bridges it to the worker: it attaches
// to a running worker (idempotently), listens for worker broadcasts, and
// exposes RefreshApp, the one public entry point for a cache-bust-and-reload.
type Manager struct {
	workerURL   string
	httpc       *http.Client
	bus         message.Bus
	logger      zerolog.Logger
	refreshWait time.Duration

	mu      sync.Mutex
	reg     *Registration
	pending map[string]chan message.Message

	onInvalidated func(message.Message)
	onSyncNeeded  func(message.Message)
	reload        func()
}

// Option configures a Manager.
type Option func(*Manager)

// WithReload sets the page-reload hook RefreshApp invokes once the purge is
// acknowledged (or the wait elapses). Real UIs reload the window here.
func WithReload(fn func()) Option {
	return func(m *Manager) { m.reload = fn }
}

// WithCacheInvalidated sets the hook called on every CACHE_INVALIDATED
// broadcast. The base behavior is logging; UIs hook a toast here.
func WithCacheInvalidated(fn func(message.Message)) Option {
	return func(m *Manager) { m.onInvalidated = fn }
}

// WithSyncNeeded sets the hook called when the worker signals queued offline
// mutations. The hook should trigger the external sync manager's replay.
func WithSyncNeeded(fn func(message.Message)) Option {
	return func(m *Manager) { m.onSyncNeeded = fn }
}

// WithRefreshWait overrides the short delay RefreshApp grants the purge
// before reloading.
func WithRefreshWait(d time.Duration) Option {
	return func(m *Manager) { m.refreshWait = d }
}

func NewManager(workerURL string, bus message.Bus, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		workerURL:   strings.TrimRight(workerURL, "/"),
		httpc:       &http.Client{Timeout: 5 * time.Second},
		bus:         bus,
		logger:      logger.With().Str("component", "registration").Logger(),
		refreshWait: time.Second,
		pending:     make(map[string]chan message.Message),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register attaches to the worker controlling this origin. Registration is
// idempotent: an existing attachment is reused. On failure it logs and
// returns nil; the page then runs uncached.
func (m *Manager) Register(ctx context.Context) *Registration {
	m.mu.Lock()
	if m.reg != nil {
		reg := m.reg
		m.mu.Unlock()
		return reg
	}
	m.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.workerURL+"/readyz", nil)
	if err != nil {
		m.logger.Error().Err(err).Msg("worker registration failed")
		return nil
	}
	resp, err := m.httpc.Do(req)
	if err != nil {
		m.logger.Error().Err(err).Msg("worker registration failed")
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		m.logger.Error().Int("status", resp.StatusCode).Msg("worker not ready, registration failed")
		return nil
	}

	reg := &Registration{Scope: m.workerURL, RegisteredAt: time.Now().UTC()}
	m.mu.Lock()
	if m.reg == nil {
		m.reg = reg
	}
	reg = m.reg
	m.mu.Unlock()

	m.logger.Info().Str("scope", reg.Scope).Msg("worker registered")
	return reg
}

// Listen subscribes to worker broadcasts and dispatches them to the
// configured hooks until ctx is done.
func (m *Manager) Listen(ctx context.Context) error {
	msgs, cancel, err := m.bus.Subscribe(ctx, message.ChannelBroadcast)
	if err != nil {
		return err
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
			m.dispatch(msg)
		}
	}
}

func (m *Manager) dispatch(msg message.Message) {
	switch msg.Tag {
	case message.TagCacheInvalidated:
		m.mu.Lock()
		waiter, ok := m.pending[msg.ReplyTo]
		if ok {
			delete(m.pending, msg.ReplyTo)
		}
		m.mu.Unlock()
		if ok {
			waiter <- msg
		}
		m.logger.Info().Str("reply_to", msg.ReplyTo).Msg("cache invalidated")
		if m.onInvalidated != nil {
			m.onInvalidated(msg)
		}
	case message.TagSyncNeeded:
		m.logger.Info().Msg("offline mutations pending, sync needed")
		if m.onSyncNeeded != nil {
			m.onSyncNeeded(msg)
		}
	}
}

// RefreshApp posts an INVALIDATE_CACHE request to the worker, waits briefly
// for the matching CACHE_INVALIDATED acknowledgment, then reloads the page.
// Without an attached worker it reloads immediately.
func (m *Manager) RefreshApp(ctx context.Context) {
	m.mu.Lock()
	registered := m.reg != nil
	m.mu.Unlock()

	if !registered {
		m.doReload()
		return
	}

	req := message.New(message.TagInvalidateCache)
	waiter := make(chan message.Message, 1)
	m.mu.Lock()
	m.pending[req.ID] = waiter
	m.mu.Unlock()

	if err := m.bus.Publish(ctx, message.ChannelControl, req); err != nil {
		m.logger.Error().Err(err).Msg("could not request invalidation")
		m.mu.Lock()
		delete(m.pending, req.ID)
		m.mu.Unlock()
		m.doReload()
		return
	}

	select {
	case <-ctx.Done():
	case <-time.After(m.refreshWait):
		m.logger.Warn().Str("request_id", req.ID).Msg("invalidation ack timed out, reloading anyway")
	case ack := <-waiter:
		m.logger.Debug().Str("request_id", ack.ReplyTo).Msg("invalidation acknowledged")
	}

	m.mu.Lock()
	delete(m.pending, req.ID)
	m.mu.Unlock()
	m.doReload()
}

func (m *Manager) doReload() {
	if m.reload != nil {
		m.reload()
	}
}
