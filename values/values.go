// Package values is the bounded store of announced values: the payloads
// peers asked this node to keep, one per info-hash, with least-recently-used
// eviction once the bound is reached.
package values

import (
	"fmt"

	"github.com/elliotchance/orderedmap/v2"
)

// HashLength is the length of an info-hash key in bytes (SHA-1).
const HashLength = 20

// Key is an info-hash identifying one DHT query namespace.
type Key = [HashLength]byte

// Value is an announced value: the id of the announcing node, the opaque
// token it presented, and the payload itself. All three are opaque here;
// token validation belongs to the secret-rotation layer.
type Value struct {
	Id    []byte
	Token []byte
	V     []byte
}

type Values struct {
	max    int
	values *orderedmap.OrderedMap[Key, Value]
}

// New creates the store. A bound below 1 is rejected.
func New(max int) (*Values, error) {
	if max < 1 {
		return nil, fmt.Errorf("values: max must be at least 1, got %d", max)
	}

	return &Values{
		max:    max,
		values: orderedmap.NewOrderedMap[Key, Value](),
	}, nil
}

// Put stores or refreshes the value for the key, evicting the
// least-recently-used entry when the bound is exceeded.
func (v *Values) Put(key Key, value Value) {
	if _, ok := v.values.Get(key); ok {
		v.values.Delete(key)
		v.values.Set(key, value)
		return
	}

	if v.values.Len() >= v.max {
		if el := v.values.Front(); el != nil {
			v.values.Delete(el.Key)
		}
	}

	v.values.Set(key, value)
}

// Get returns the value for the key and refreshes its recency.
func (v *Values) Get(key Key) (Value, bool) {
	value, ok := v.values.Get(key)
	if !ok {
		return Value{}, false
	}

	v.values.Delete(key)
	v.values.Set(key, value)

	return value, true
}

// Remove drops the value for the key. No-op if absent.
func (v *Values) Remove(key Key) {
	v.values.Delete(key)
}

// Len returns the number of stored values.
func (v *Values) Len() int {
	return v.values.Len()
}

// Keys returns the stored keys, least-recently-used first.
func (v *Values) Keys() []Key {
	keys := make([]Key, 0, v.values.Len())
	for el := v.values.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Key)
	}
	return keys
}
