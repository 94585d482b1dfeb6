package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

const mutationPrefix = "mutation:"

// Mutation is one queued offline write: a checklist or inspection change made
// while disconnected, waiting for the sync manager to replay it.
type Mutation struct {
	ID       string          `json:"id"`
	Kind     string          `json:"kind"`
	Payload  json.RawMessage `json:"payload"`
	QueuedAt time.Time       `json:"queuedAt"`
}

// Outbox is the durable offline-mutation store. The worker only ever counts
// it; enqueueing belongs to the domain code (the saveForSync surface) and
// replay belongs to the external sync manager.
type Outbox struct {
	db *leveldb.DB
}

func Open(path string) (*Outbox, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// Enqueue persists a mutation for later replay. An empty ID is filled in.
func (o *Outbox) Enqueue(m Mutation) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.QueuedAt.IsZero() {
		m.QueuedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return o.db.Put([]byte(mutationPrefix+m.ID), raw, nil)
}

// PendingCount reports how many mutations are queued. It is the only read
// the background-sync path performs.
func (o *Outbox) PendingCount() (int, error) {
	iter := o.db.NewIterator(util.BytesPrefix([]byte(mutationPrefix)), nil)
	defer iter.Release()

	count := 0
	for iter.Next() {
		count++
	}
	if err := iter.Error(); err != nil {
		return 0, err
	}
	return count, nil
}
