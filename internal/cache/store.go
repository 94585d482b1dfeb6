package cache

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("cache entry not found")

// Entry is an immutable snapshot of a successful upstream response, keyed by
// the request URL inside one cache generation.
type Entry struct {
	Body        []byte
	Status      int
	ContentType string
	Encoding    string
	StoredAt    time.Time
}

// Store is a cache partitioned into named generations. Exactly one generation
// is current at a time; the rest are stale and only exist until the next
// activation deletes them.
type Store interface {
	Get(ctx context.Context, generation, key string) (Entry, error)
	Put(ctx context.Context, generation, key string, entry Entry) error
	Delete(ctx context.Context, generation, key string) error
	Keys(ctx context.Context, generation string) ([]string, error)
	Generations(ctx context.Context) ([]string, error)
	DeleteGeneration(ctx context.Context, generation string) error
}
