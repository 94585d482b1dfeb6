package strategy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/fieldsafe/kumo/internal/cache"
	"github.com/fieldsafe/kumo/internal/lock"
	"github.com/fieldsafe/kumo/internal/upstream"
)

// Cache status values reported to pages via the X-Kumo-Cache header.
const (
	StatusHit   = "HIT"   // served from cache
	StatusMiss  = "MISS"  // fetched from origin and written to cache
	StatusLive  = "LIVE"  // fetched from origin, not written
	StatusStale = "STALE" // origin unreachable, cached fallback served
)

// Result is what a strategy hands back to the fetch router.
type Result struct {
	Status      int
	ContentType string
	Encoding    string
	Body        []byte
	CacheStatus string
}

// Executor runs the caching strategies against one store and one origin.
// The locker, when present, keeps replicas from revalidating the same stale
// key at once; a nil locker skips the guard.
type Executor struct {
	store       cache.Store
	origin      *upstream.Client
	locker      *lock.Locker
	lockTTL     time.Duration
	refreshWait time.Duration
	logger      zerolog.Logger
}

func NewExecutor(store cache.Store, origin *upstream.Client, locker *lock.Locker, lockTTL time.Duration, logger zerolog.Logger) *Executor {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &Executor{
		store:       store,
		origin:      origin,
		locker:      locker,
		lockTTL:     lockTTL,
		refreshWait: 10 * time.Second,
		logger:      logger.With().Str("component", "strategy").Logger(),
	}
}

// StaleWhileRevalidate serves the cached entry immediately and refreshes it
// in the background. Callers never wait on the network when a cached copy
// exists; on a miss the network response is awaited, stored and returned.
func (e *Executor) StaleWhileRevalidate(ctx context.Context, generation, key string) (Result, error) {
	entry, err := e.store.Get(ctx, generation, key)
	if err == nil {
		e.scheduleRevalidate(generation, key)
		return fromEntry(entry, StatusHit), nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return Result{}, err
	}

	resp, body, err := e.origin.FetchKey(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if err := e.storeIfSuccess(ctx, generation, key, resp, body); err != nil {
		return Result{}, err
	}
	return fromResponse(resp, body, StatusMiss), nil
}

// NetworkFirst prefers a live origin answer. A successful response is
// returned as-is and deliberately not written back to the cache; the cached
// fallback served offline is whatever some other write path left behind.
func (e *Executor) NetworkFirst(ctx context.Context, generation, key string) (Result, error) {
	resp, body, err := e.origin.FetchKey(ctx, key)
	if err == nil {
		return fromResponse(resp, body, StatusLive), nil
	}

	entry, cacheErr := e.store.Get(ctx, generation, key)
	if cacheErr == nil {
		return fromEntry(entry, StatusStale), nil
	}
	return Result{}, err
}

// CacheFirstVersioned serves a content-fingerprinted asset from cache without
// ever revalidating it. Only a miss reaches the origin, and only a success
// status is stored.
func (e *Executor) CacheFirstVersioned(ctx context.Context, generation, key string) (Result, error) {
	entry, err := e.store.Get(ctx, generation, key)
	if err == nil {
		return fromEntry(entry, StatusHit), nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		return Result{}, err
	}

	resp, body, err := e.origin.FetchKey(ctx, key)
	if err != nil {
		return Result{}, err
	}
	if err := e.storeIfSuccess(ctx, generation, key, resp, body); err != nil {
		return Result{}, err
	}
	return fromResponse(resp, body, StatusMiss), nil
}

// NetworkFallback is the default strategy: try the network, and on failure
// serve the cached entry if one happens to exist.
func (e *Executor) NetworkFallback(ctx context.Context, generation, key string) (Result, error) {
	resp, body, err := e.origin.FetchKey(ctx, key)
	if err == nil {
		return fromResponse(resp, body, StatusLive), nil
	}

	entry, cacheErr := e.store.Get(ctx, generation, key)
	if cacheErr == nil {
		return fromEntry(entry, StatusStale), nil
	}
	return Result{}, err
}

// scheduleRevalidate refreshes a cache entry after the fact. Failures are
// swallowed: the caller already has a response, and the entry stays as it
// was until the next attempt.
func (e *Executor) scheduleRevalidate(generation, key string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.refreshWait)
		defer cancel()

		if e.locker != nil {
			lease, ok, err := e.locker.TryAcquire(ctx, key, e.lockTTL)
			if err != nil || !ok {
				return
			}
			defer func() { _ = lease.Release(ctx) }()
		}

		resp, body, err := e.origin.FetchKey(ctx, key)
		if err != nil {
			e.logger.Debug().Err(err).Str("key", key).Msg("background revalidation failed")
			return
		}
		if err := e.storeIfSuccess(ctx, generation, key, resp, body); err != nil {
			e.logger.Warn().Err(err).Str("key", key).Msg("background cache write failed")
		}
	}()
}

// storeIfSuccess writes the response into the generation, but only for
// success statuses; error responses are never cached.
func (e *Executor) storeIfSuccess(ctx context.Context, generation, key string, resp *http.Response, body []byte) error {
	if !isSuccess(resp.StatusCode) {
		return nil
	}
	entry := cache.Entry{
		Body:        body,
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Encoding:    resp.Header.Get("Content-Encoding"),
		StoredAt:    time.Now().UTC(),
	}
	return e.store.Put(ctx, generation, key, entry)
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func fromEntry(entry cache.Entry, cacheStatus string) Result {
	status := entry.Status
	if status == 0 {
		status = http.StatusOK
	}
	return Result{
		Status:      status,
		ContentType: entry.ContentType,
		Encoding:    entry.Encoding,
		Body:        entry.Body,
		CacheStatus: cacheStatus,
	}
}

func fromResponse(resp *http.Response, body []byte, cacheStatus string) Result {
	return Result{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Encoding:    resp.Header.Get("Content-Encoding"),
		Body:        body,
		CacheStatus: cacheStatus,
	}
}
