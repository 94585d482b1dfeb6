package message

import (
	"time"

	"github.com/google/uuid"
)

// Control message tags exchanged between pages and the worker.
const (
	TagInvalidateCache  = "INVALIDATE_CACHE"  // page -> worker: purge non-versioned entries
	TagCacheInvalidated = "CACHE_INVALIDATED" // worker -> page: purge completed
	TagSyncNeeded       = "SYNC_NEEDED"       // worker -> page: offline mutations are queued
)

// Channel names on the bus. Pages publish control requests; the worker
// publishes broadcasts every page sees.
const (
	ChannelControl   = "kumo:control"
	ChannelBroadcast = "kumo:broadcast"
)

// Message is one control-protocol payload. Every message carries a unique ID;
// an acknowledgment names the request it answers in ReplyTo, so a page with
// several invalidations in flight can match completions to requests.
type Message struct {
	ID        string    `json:"id"`
	Tag       string    `json:"tag"`
	ReplyTo   string    `json:"replyTo,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func New(tag string) Message {
	return Message{
		ID:        uuid.NewString(),
		Tag:       tag,
		Timestamp: time.Now().UTC(),
	}
}

// Reply builds an acknowledgment of req tagged tag.
func Reply(tag string, req Message) Message {
	m := New(tag)
	m.ReplyTo = req.ID
	return m
}
