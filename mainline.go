package mainline

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	"github.com/attilabuti/eventemitter/v2"
	"github.com/lni/goutils/syncutil"
	"go.uber.org/zap"

	"github.com/dhtlab/mainline/kbucket"
	"github.com/dhtlab/mainline/records"
	"github.com/dhtlab/mainline/store"
	"github.com/dhtlab/mainline/tables"
	"github.com/dhtlab/mainline/values"
)

// HashLength is the length of node ids and info-hash keys in bytes (SHA-1).
const HashLength = 20

// Key is an info-hash identifying one DHT query namespace.
type Key = [HashLength]byte

// RotateInterval is how often the token secrets are rotated.
const RotateInterval = 5 * time.Minute

type Opts struct {
	// NodeID is this node's 20-byte id. Nil generates a random one.
	NodeID []byte

	// MaxTables bounds how many per-key routing tables are kept. (Default: 1000)
	MaxTables int

	// MaxValues bounds how many announced values are kept. (Default: 1000)
	MaxValues int

	// MaxPeers bounds the total number of announced peers across all keys.
	// (Default: 10000)
	MaxPeers int

	// MaxAge is how long an announced peer stays live without a re-announce.
	// Zero disables expiry.
	MaxAge time.Duration

	// TimeBucketOutdated is the cadence of the maintenance sweep.
	// (Default: 240s)
	TimeBucketOutdated time.Duration

	// NodesPerKBucket and NodesToPing are forwarded to every routing table.
	NodesPerKBucket int
	NodesToPing     int

	// StatePath, when set, persists contacts and values across restarts.
	StatePath string
}

// DefaultOpts returns the standard Mainline parameters.
func DefaultOpts() Opts {
	return Opts{
		MaxTables:          1000,
		MaxValues:          1000,
		MaxPeers:           10000,
		MaxAge:             0,
		TimeBucketOutdated: 15 * 16 * time.Second,
	}
}

// Node ties the routing tables, value and peer stores and the token secrets
// together behind one serialized facade. The network layer calls into it for
// every query it answers; the node never touches the network itself.
type Node struct {
	mu sync.Mutex

	nodeID  []byte
	tables  *tables.Tables
	values  *values.Values
	peers   *records.Records
	secrets *Secrets
	store   *store.Store // Nil without StatePath.

	emitter *eventemitter.Emitter
	stopper *syncutil.Stopper
	sweep   time.Duration
	log     *zap.Logger
}

func New(opts Opts, logger *zap.Logger) (*Node, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	nodeID := opts.NodeID
	if nodeID == nil {
		id, err := kbucket.GenerateId()
		if err != nil {
			return nil, err
		}
		nodeID = id
	}
	if len(nodeID) != HashLength {
		return nil, fmt.Errorf("mainline: node id must be %d bytes, got %d", HashLength, len(nodeID))
	}

	if opts.MaxValues == 0 {
		opts.MaxValues = 1000
	}
	if opts.MaxPeers == 0 {
		opts.MaxPeers = 10000
	}
	if opts.TimeBucketOutdated <= 0 {
		opts.TimeBucketOutdated = 15 * 16 * time.Second
	}

	emitter := eventemitter.New()

	tbls, err := tables.New(tables.Options{
		MaxTables:       opts.MaxTables,
		LocalNodeId:     nodeID,
		NodesPerKBucket: opts.NodesPerKBucket,
		NodesToPing:     opts.NodesToPing,
	}, emitter)
	if err != nil {
		return nil, err
	}

	vals, err := values.New(opts.MaxValues)
	if err != nil {
		return nil, err
	}

	peers, err := records.New(opts.MaxAge, opts.MaxPeers)
	if err != nil {
		return nil, err
	}

	secrets, err := NewSecrets()
	if err != nil {
		return nil, err
	}

	var st *store.Store
	if opts.StatePath != "" {
		st, err = store.Open(opts.StatePath)
		if err != nil {
			return nil, err
		}
	}

	return &Node{
		nodeID:  nodeID,
		tables:  tbls,
		values:  vals,
		peers:   peers,
		secrets: secrets,
		store:   st,
		emitter: emitter,
		stopper: syncutil.NewStopper(),
		sweep:   opts.TimeBucketOutdated,
		log:     logger,
	}, nil
}

// NodeID returns this node's id.
func (n *Node) NodeID() []byte {
	return n.nodeID
}

// Emitter exposes the event bus the routing tables emit on, so the network
// layer can subscribe to "kbucket.ping" and drive liveness checks.
func (n *Node) Emitter() *eventemitter.Emitter {
	return n.emitter
}

// Start rewarms the node's own-neighborhood table from persisted contacts
// and launches the maintenance loop.
func (n *Node) Start() error {
	if n.store != nil {
		contacts, err := n.store.Contacts()
		if err != nil {
			return err
		}

		b, err := n.tables.Get(n.homeKey())
		if err != nil {
			return err
		}
		for _, p := range contacts {
			b.Add(p)
		}

		n.log.Debug("rewarmed routing table",
			zap.Int("contacts", len(contacts)))
	}

	n.stopper.RunWorker(func() {
		n.loop()
	})

	return nil
}

// Close persists the current contacts, stops the maintenance loop and closes
// the store.
func (n *Node) Close() error {
	n.stopper.Stop()

	if n.store == nil {
		return nil
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.persistContacts(); err != nil {
		n.store.Close()
		return err
	}

	return n.store.Close()
}

func (n *Node) loop() {
	rotate := time.NewTicker(RotateInterval)
	defer rotate.Stop()

	sweep := time.NewTicker(n.sweep)
	defer sweep.Stop()

	for {
		select {
		case <-n.stopper.ShouldStop():
			n.log.Debug("maintenance loop stopped")
			return
		case <-rotate.C:
			n.mu.Lock()
			err := n.secrets.Rotate()
			n.mu.Unlock()
			if err != nil {
				n.log.Error("secret rotation failed", zap.Error(err))
				continue
			}
			n.log.Debug("rotated token secrets")
		case <-sweep.C:
			n.mu.Lock()
			n.peers.GC()
			live := n.peers.Len()
			n.mu.Unlock()
			n.log.Debug("swept announced peers", zap.Int("live", live))
		}
	}
}

// Observe routes a seen contact into the table for the key. Whether the
// contact is stored, refreshed or queued behind a liveness check follows the
// k-bucket rules; a full frozen bucket surfaces as a "kbucket.ping" event.
func (n *Node) Observe(key Key, c kbucket.Contact) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	b, err := n.tables.Get(key)
	if err != nil {
		return err
	}
	b.Add(c)

	return nil
}

// Closest returns up to count contacts from the key's table, closest to the
// target id first.
func (n *Node) Closest(key Key, target []byte, count uint) (kbucket.Contacts, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	b, err := n.tables.Get(key)
	if err != nil {
		return nil, err
	}

	return b.Closest(target, count), nil
}

// ResolveEviction applies the outcome of a liveness check on the key's
// table: failed contacts are removed and the pending contact is re-offered.
func (n *Node) ResolveEviction(key Key, failed [][]byte, pending kbucket.Contact) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	b, err := n.tables.Get(key)
	if err != nil {
		return err
	}
	b.ResolveEviction(failed, pending)

	return nil
}

// Announce records an endpoint as a holder of the key's torrent.
func (n *Node) Announce(key Key, addrPort netip.AddrPort) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.peers.Add(key, addrPort)
}

// Peers returns the live endpoints announced for the key.
func (n *Node) Peers(key Key) []netip.AddrPort {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.peers.Get(key)
}

// PutValue stores an announced value, persisting it when a store is open.
func (n *Node) PutValue(key Key, value values.Value) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.values.Put(key, value)

	if n.store != nil {
		return n.store.PutValue(key, value)
	}

	return nil
}

// GetValue returns the announced value for the key, falling back to the
// store for values the in-memory bound has already evicted.
func (n *Node) GetValue(key Key) (values.Value, bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if value, ok := n.values.Get(key); ok {
		return value, true, nil
	}

	if n.store != nil {
		value, ok, err := n.store.GetValue(key)
		if err != nil {
			return values.Value{}, false, err
		}
		if ok {
			n.values.Put(key, value)
		}
		return value, ok, nil
	}

	return values.Value{}, false, nil
}

// Secrets returns the token secrets. The caller derives and validates
// announce tokens against Current and Previous.
func (n *Node) Secrets() *Secrets {
	return n.secrets
}

// homeKey is the info-hash of the node's own neighborhood: the table the
// node rewarms from persisted contacts.
func (n *Node) homeKey() Key {
	var key Key
	copy(key[:], n.nodeID)
	return key
}

func (n *Node) persistContacts() error {
	for _, key := range n.tables.Keys() {
		b, err := n.tables.Get(key)
		if err != nil {
			return err
		}

		for it := b.Iterate(); ; {
			c, ok := it.Next()
			if !ok {
				break
			}
			p, ok := c.(*kbucket.Peer)
			if !ok {
				continue
			}
			if err := n.store.PutContact(p); err != nil {
				return err
			}
		}
	}

	return nil
}
