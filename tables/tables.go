// Package tables maintains one routing table per query key: a bounded,
// least-recently-used collection mapping each info-hash to its own
// kbucket.KBucket. Lookups for keys nobody asks about anymore age out of
// the collection; the k-buckets themselves never shrink.
package tables

import (
	"fmt"

	"github.com/attilabuti/eventemitter/v2"
	"github.com/elliotchance/orderedmap/v2"

	"github.com/dhtlab/mainline/kbucket"
)

// HashLength is the length of an info-hash key in bytes (SHA-1).
const HashLength = 20

// Key is an info-hash identifying one DHT query namespace.
type Key = [HashLength]byte

type Options struct {
	// MaxTables bounds how many per-key routing tables are kept before the
	// least-recently-used one is evicted. (Default: 1000)
	MaxTables int

	// LocalNodeId, NodesPerKBucket and NodesToPing are forwarded to every
	// KBucket this collection creates.
	LocalNodeId     []byte
	NodesPerKBucket int
	NodesToPing     int
}

// Tables is not internally synchronized; like the k-buckets it owns, it
// expects the caller to serialize access.
type Tables struct {
	opts    Options
	emitter *eventemitter.Emitter
	tables  *orderedmap.OrderedMap[Key, *kbucket.KBucket]
}

// New creates the collection. A MaxTables bound below 1 is rejected.
func New(opts Options, emitter *eventemitter.Emitter) (*Tables, error) {
	if opts.MaxTables == 0 {
		opts.MaxTables = 1000
	}
	if opts.MaxTables < 1 {
		return nil, fmt.Errorf("tables: MaxTables must be at least 1, got %d", opts.MaxTables)
	}

	return &Tables{
		opts:    opts,
		emitter: emitter,
		tables:  orderedmap.NewOrderedMap[Key, *kbucket.KBucket](),
	}, nil
}

// Get returns the routing table for the key, creating it on first use, and
// marks it most-recently-used. Creating a table beyond the MaxTables bound
// evicts the least-recently-used one.
func (t *Tables) Get(key Key) (*kbucket.KBucket, error) {
	if b, ok := t.tables.Get(key); ok {
		// Move to the most-recently-used end.
		t.tables.Delete(key)
		t.tables.Set(key, b)
		return b, nil
	}

	b, err := kbucket.NewKBucket(kbucket.KBucketOptions{
		LocalNodeId:     t.opts.LocalNodeId,
		NodesPerKBucket: t.opts.NodesPerKBucket,
		NodesToPing:     t.opts.NodesToPing,
	}, t.emitter)
	if err != nil {
		return nil, err
	}

	if t.tables.Len() >= t.opts.MaxTables {
		if el := t.tables.Front(); el != nil {
			t.tables.Delete(el.Key)
		}
	}

	t.tables.Set(key, b)

	return b, nil
}

// Has reports whether a table exists for the key, without touching recency.
func (t *Tables) Has(key Key) bool {
	_, ok := t.tables.Get(key)
	return ok
}

// Len returns the number of tables currently kept.
func (t *Tables) Len() int {
	return t.tables.Len()
}

// Keys returns the kept keys, least-recently-used first.
func (t *Tables) Keys() []Key {
	keys := make([]Key, 0, t.tables.Len())
	for el := t.tables.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Key)
	}
	return keys
}
