package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldsafe/kumo/internal/cache"
	"github.com/fieldsafe/kumo/internal/classify"
	"github.com/fieldsafe/kumo/internal/upstream"
)

// State tracks a worker generation through its lifecycle.
type State int32

const (
	StateNew State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
)

func (s State) String() string {
	switch s {
	case StateInstalling:
		return "installing"
	case StateInstalled:
		return "installed"
	case StateActivating:
		return "activating"
	case StateActivated:
		return "activated"
	default:
		return "new"
	}
}

// Config is the worker's injected configuration: one app version, the shell
// assets to precache, and the strategy table. Multiple configurations can
// coexist, one per worker instance.
type Config struct {
	Version     string
	ShellAssets []string
	Rules       classify.Rules
}

// Worker owns one cache generation: it precaches the app shell on install,
// prunes every stale generation on activate, and then claims traffic by
// publishing its generation to the fetch handler.
type Worker struct {
	cfg    Config
	store  cache.Store
	origin *upstream.Client
	logger zerolog.Logger

	state  atomic.Int32
	active atomic.Pointer[string]
}

func New(cfg Config, store cache.Store, origin *upstream.Client, logger zerolog.Logger) *Worker {
	return &Worker{
		cfg:    cfg,
		store:  store,
		origin: origin,
		logger: logger.With().Str("component", "worker").Str("generation", cache.GenerationName(cfg.Version)).Logger(),
	}
}

func (w *Worker) Config() Config { return w.cfg }

// Generation returns the cache generation this worker owns.
func (w *Worker) Generation() string {
	return cache.GenerationName(w.cfg.Version)
}

// ActiveGeneration returns the generation currently serving traffic. It is
// empty until Activate has claimed clients.
func (w *Worker) ActiveGeneration() (string, bool) {
	p := w.active.Load()
	if p == nil {
		return "", false
	}
	return *p, true
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

// Install precaches the app shell into this worker's generation. The precache
// is atomic: if any single asset fails, the partially filled generation is
// deleted and the previous generation keeps serving.
func (w *Worker) Install(ctx context.Context) error {
	w.state.Store(int32(StateInstalling))
	generation := w.Generation()

	for _, asset := range w.cfg.ShellAssets {
		if err := w.precacheAsset(ctx, generation, asset); err != nil {
			w.logger.Error().Err(err).Str("asset", asset).Msg("precache failed, aborting install")
			if delErr := w.store.DeleteGeneration(ctx, generation); delErr != nil {
				w.logger.Warn().Err(delErr).Msg("could not remove partial generation")
			}
			w.state.Store(int32(StateNew))
			return fmt.Errorf("install %s: precache %q: %w", generation, asset, err)
		}
	}

	w.state.Store(int32(StateInstalled))
	w.logger.Info().Int("assets", len(w.cfg.ShellAssets)).Msg("installed")
	return nil
}

// Activate deletes every cache generation except this worker's, then claims
// open clients by making this generation the serving one. New requests pick
// it up immediately; no client restart is needed.
func (w *Worker) Activate(ctx context.Context) error {
	w.state.Store(int32(StateActivating))
	generation := w.Generation()

	names, err := w.store.Generations(ctx)
	if err != nil {
		return fmt.Errorf("activate %s: list generations: %w", generation, err)
	}
	for _, name := range names {
		if name == generation || !cache.IsGenerationName(name) {
			continue
		}
		if err := w.store.DeleteGeneration(ctx, name); err != nil {
			return fmt.Errorf("activate %s: delete stale generation %s: %w", generation, name, err)
		}
		w.logger.Info().Str("stale", name).Msg("deleted stale generation")
	}

	w.active.Store(&generation)
	w.state.Store(int32(StateActivated))
	w.logger.Info().Msg("activated")
	return nil
}

// Start runs install and then promotes immediately, skipping the waiting
// state, so a fresh deploy takes over without draining old clients.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.Install(ctx); err != nil {
		return err
	}
	return w.Activate(ctx)
}

func (w *Worker) precacheAsset(ctx context.Context, generation, asset string) error {
	resp, body, err := w.origin.FetchKey(ctx, asset)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	entry := cache.Entry{
		Body:        body,
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Encoding:    resp.Header.Get("Content-Encoding"),
		StoredAt:    time.Now().UTC(),
	}
	return w.store.Put(ctx, generation, asset, entry)
}
