// Package records stores announced peers: for each info-hash, the endpoints
// that announced themselves as holders of the torrent. Entries expire after
// a configurable age and the total number of stored peers is capped, with
// the least-recently-touched info-hash evicted first.
package records

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/elliotchance/orderedmap/v2"
)

// HashLength is the length of an info-hash key in bytes (SHA-1).
const HashLength = 20

// Key is an info-hash identifying one DHT query namespace.
type Key = [HashLength]byte

type announced struct {
	addrPort netip.AddrPort
	seenAt   time.Time
}

type Records struct {
	maxAge   time.Duration // Zero disables expiry.
	maxPeers int
	count    int
	records  *orderedmap.OrderedMap[Key, []announced]
	now      func() time.Time
}

// New creates the store. maxAge of zero disables expiry; a maxPeers bound
// below 1 is rejected.
func New(maxAge time.Duration, maxPeers int) (*Records, error) {
	if maxPeers < 1 {
		return nil, fmt.Errorf("records: maxPeers must be at least 1, got %d", maxPeers)
	}

	return &Records{
		maxAge:   maxAge,
		maxPeers: maxPeers,
		records:  orderedmap.NewOrderedMap[Key, []announced](),
		now:      time.Now,
	}, nil
}

// Add records an announce for the key. A re-announce from the same endpoint
// refreshes its timestamp. Exceeding the global peer cap evicts whole
// least-recently-touched keys until the new peer fits.
func (r *Records) Add(key Key, addrPort netip.AddrPort) {
	peers, ok := r.records.Get(key)
	if ok {
		r.records.Delete(key)
	}

	refreshed := false
	for i := range peers {
		if peers[i].addrPort == addrPort {
			peers[i].seenAt = r.now()
			refreshed = true
			break
		}
	}

	if !refreshed {
		peers = append(peers, announced{addrPort: addrPort, seenAt: r.now()})
		r.count++

		for r.count > r.maxPeers {
			el := r.records.Front()
			if el == nil {
				break
			}
			r.count -= len(el.Value)
			r.records.Delete(el.Key)
		}
	}

	r.records.Set(key, peers)
}

// Get returns the live announced endpoints for the key. Expired entries are
// dropped on the way out.
func (r *Records) Get(key Key) []netip.AddrPort {
	peers, ok := r.records.Get(key)
	if !ok {
		return nil
	}

	live := r.dropExpired(peers)
	if len(live) != len(peers) {
		r.count -= len(peers) - len(live)
		if len(live) == 0 {
			r.records.Delete(key)
			return nil
		}
		r.records.Delete(key)
		r.records.Set(key, live)
	}

	out := make([]netip.AddrPort, len(live))
	for i, p := range live {
		out[i] = p.addrPort
	}
	return out
}

// GC sweeps expired entries from every key. Called periodically by the
// owning node loop.
func (r *Records) GC() {
	if r.maxAge == 0 {
		return
	}

	var empty []Key
	for el := r.records.Front(); el != nil; el = el.Next() {
		live := r.dropExpired(el.Value)
		if len(live) == len(el.Value) {
			continue
		}
		r.count -= len(el.Value) - len(live)
		if len(live) == 0 {
			empty = append(empty, el.Key)
		} else {
			el.Value = live
		}
	}

	for _, key := range empty {
		r.records.Delete(key)
	}
}

// Len returns the number of stored peers across all keys, counting entries
// that have expired but have not been swept yet.
func (r *Records) Len() int {
	return r.count
}

func (r *Records) dropExpired(peers []announced) []announced {
	if r.maxAge == 0 {
		return peers
	}

	cutoff := r.now().Add(-r.maxAge)
	live := peers[:0:0]
	for _, p := range peers {
		if p.seenAt.After(cutoff) {
			live = append(live, p)
		}
	}
	return live
}
