package kbucket

// Kademlia DHT k-bucket routing table implemented as a binary tree.
// The trie layout and splitting policy follow Tristan Slominski's k-bucket
// (https://github.com/tristanls/k-bucket).
//
// KBucket maintains a bounded, distance-ordered view of known peers around a
// local node id. It stores Contact values which represent locations and
// addresses of nodes in the decentralized distributed system. Contacts are
// typically identified by a SHA-1 hash, however this restriction is lifted
// here and node ids of different lengths can be compared.
//
// The trie is deliberately minimal: it only ever looks at a contact's id.
// Addresses, tokens and any other satellite data a concrete contact carries
// are opaque to the routing table.
//
//
// The MIT License (MIT)
//
// Copyright (c) Tristan Slominski
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

import (
	"bytes"
	"sort"

	"github.com/attilabuti/eventemitter/v2"
)

// KBucket is not internally synchronized: the owner is expected to serialize
// access, e.g. by routing all mutations through a single goroutine.
type KBucket struct {
	id      []byte                // The local node id.
	size    int                   // The number of contacts a leaf can contain before being full or split.
	ping    int                   // The number of contacts to ping when a frozen leaf becomes full.
	root    *node                 // The root node of the trie.
	emitter *eventemitter.Emitter // The emitter to use for emitting events.

	// Optional satellite data to include with the KBucket. Metadata is
	// guaranteed not to be altered by the KBucket, it is provided as an
	// explicit container for users to store implementation-specific data.
	Metadata map[string]any
}

type KBucketOptions struct {
	// An optional byte slice representing the local node id. If not provided,
	// a local node id will be created via GenerateId(). (Default: randomly generated)
	LocalNodeId []byte

	// The number of contacts a leaf can contain before being full or split.
	// (Default: 20)
	NodesPerKBucket int

	// The number of contacts to ping when a leaf that must not be split
	// becomes full. KBucket will emit a "kbucket.ping" event that contains
	// the NodesToPing contacts that have not been contacted the longest,
	// plus the contact that could not be inserted. (Default: 3)
	NodesToPing int
}

// node is a leaf while contacts != nil, and an inner node with exactly two
// children once split. Inner nodes are permanent: the trie never merges.
type node struct {
	contacts  Contacts
	dontSplit bool
	left      *node
	right     *node
}

type Contacts []Contact

// NewKBucket creates a new KBucket with the given options. Events emitted on
// the provided emitter are the only channel through which the routing table
// communicates with its surroundings.
func NewKBucket(options KBucketOptions, emitter *eventemitter.Emitter) (*KBucket, error) {
	options, err := setDefaultsKBucket(options)
	if err != nil {
		return nil, err
	}

	return &KBucket{
		id:       options.LocalNodeId,
		size:     options.NodesPerKBucket,
		ping:     options.NodesToPing,
		root:     createNode(),
		emitter:  emitter,
		Metadata: map[string]any{},
	}, nil
}

func setDefaultsKBucket(options KBucketOptions) (KBucketOptions, error) {
	if len(options.LocalNodeId) == 0 {
		id, err := GenerateId()
		if err != nil {
			return KBucketOptions{}, err
		}

		options.LocalNodeId = id
	}

	if options.NodesPerKBucket < 1 {
		options.NodesPerKBucket = 20
	}

	if options.NodesToPing < 1 {
		options.NodesToPing = 3
	}

	return options, nil
}

// GetId returns the local node id.
func (b *KBucket) GetId() []byte {
	return b.id
}

// Add adds a contact to the KBucket.
//
// If the owning leaf already holds a contact with the same id the replacement
// policy decides the outcome. If the leaf is full and frozen, the contact is
// not inserted; a "kbucket.ping" event carries the oldest contacts and the
// pending candidate so a higher layer can probe liveness and call
// ResolveEviction. If the leaf is full and splittable, it is split and the
// add is retried from the root.
func (b *KBucket) Add(contact Contact) *KBucket {
	bitIndex := 0
	node := b.root

	for node.contacts == nil {
		// This is not a leaf node but an inner node with "low" and "high"
		// branches; we will check the appropriate bit of the identifier and
		// delegate to the appropriate node for further processing.
		node = node.determine(contact.Id(), bitIndex)
		if node == nil {
			panic("kbucket: inner node with a missing child")
		}
		bitIndex++
	}

	// Check if the contact already exists.
	if i := node.contacts.indexOf(contact.Id()); i >= 0 {
		old, new, ok := b.update(node, i, contact)

		if ok {
			// Event "kbucket.updated" emitted when a previously existing
			// ("previously existing" means old.Id() equals new.Id()) contact
			// was added to the bucket and it was replaced with the new contact.
			b.emitter.Emit("kbucket.updated", old, new)
		}

		return b
	}

	if len(node.contacts) < b.size {
		node.contacts = append(node.contacts, contact)

		// Event "kbucket.added" emitted only when the contact was added to
		// the bucket and it was not stored in the bucket before.
		b.emitter.Emit("kbucket.added", contact)

		return b
	}

	// The bucket is full.
	if node.dontSplit {
		// We are not allowed to split the bucket.
		// The first KBucket.ping contacts need to be pinged in order to
		// determine if they are alive.
		// Only if one of the pinged contacts does not respond can the new
		// contact be added (this prevents DoS flooding with new invalid
		// contacts).
		// The candidates are copied out: a leaf can hold fewer contacts than
		// KBucket.ping, and listeners must not observe later mutations of the
		// leaf's backing array.
		candidates := make(Contacts, min(b.ping, len(node.contacts)))
		copy(candidates, node.contacts)
		b.emitter.Emit("kbucket.ping", candidates, contact)

		return b
	}

	// The bucket is full and we are allowed to split it.
	node.split(bitIndex, b.id)

	return b.Add(contact)
}

// ResolveEviction is the second phase of the deferred eviction started by a
// "kbucket.ping" event. The caller probes the candidates out of band and
// reports the ids of the contacts that failed the probe; those are removed
// and the pending contact is added again.
func (b *KBucket) ResolveEviction(failed [][]byte, pending Contact) *KBucket {
	for _, id := range failed {
		b.Remove(id)
	}

	if pending != nil {
		b.Add(pending)
	}

	return b
}

// Has returns true if a contact with the given id is in the KBucket.
func (b *KBucket) Has(id []byte) bool {
	i, _ := b.get(id)

	return i != -1
}

// Get a contact by its exact id. Returns nil if the contact is not found.
func (b *KBucket) Get(id []byte) Contact {
	_, contact := b.get(id)

	return contact
}

// Remove removes the contact with the provided id. No-op if absent.
func (b *KBucket) Remove(id []byte) {
	node := b.leafFor(id)

	if i := node.contacts.indexOf(id); i >= 0 {
		removed := node.contacts[i]
		node.contacts = append(node.contacts[:i], node.contacts[i+1:]...)

		// Event "kbucket.removed" emitted when a contact was removed from the bucket.
		b.emitter.Emit("kbucket.removed", removed)
	}
}

// Clear removes all contacts from the KBucket.
func (b *KBucket) Clear() {
	b.root = createNode()
}

// Closest gets the n closest contacts to the provided id. "Closest" here
// means: closest according to the XOR metric of the contact id.
//
// The trie is traversed toward the branch matching the target first, falling
// back to the other branch only as needed, and the gathered candidates are
// sorted by ascending distance. The ordering is exact over the gathered set;
// it is a global guarantee only when the whole trie was visited.
func (b *KBucket) Closest(id []byte, n uint) Contacts {
	contacts := Contacts{}

	for bitIndex, nodes := 0, []*node{b.root}; len(nodes) > 0 && len(contacts) < int(n); {
		node := nodes[len(nodes)-1]
		nodes = nodes[:len(nodes)-1]

		if node.contacts == nil {
			detNode := node.determine(id, bitIndex)
			bitIndex++

			if node.left == detNode {
				nodes = append(nodes, node.right)
			} else {
				nodes = append(nodes, node.left)
			}

			nodes = append(nodes, detNode)
		} else {
			contacts = append(contacts, node.contacts...)
		}
	}

	sort.SliceStable(contacts, func(i, j int) bool {
		return distanceOf(contacts[i], id) < distanceOf(contacts[j], id)
	})

	if int(n) > len(contacts) {
		return contacts
	}

	return contacts[0:n]
}

// Count returns the number of contacts in the KBucket. The count is summed
// over every leaf on each call, it is not cached.
func (b *KBucket) Count() int {
	count, _ := b.getAll(true)

	return count
}

// ToSlice returns a slice with all contacts in the KBucket. The order is
// trie-structural, not distance-ordered.
func (b *KBucket) ToSlice() Contacts {
	_, contacts := b.getAll(false)

	return contacts
}

// leafFor walks the trie to the single leaf owning the given id.
func (b *KBucket) leafFor(id []byte) *node {
	node := b.root

	for bitIndex := 0; node.contacts == nil; {
		node = node.determine(id, bitIndex)
		if node == nil {
			panic("kbucket: inner node with a missing child")
		}
		bitIndex++
	}

	return node
}

// Get the index of the contact and the contact itself by its exact id.
// Returns -1 and nil if the contact is not found.
func (b *KBucket) get(id []byte) (int, Contact) {
	node := b.leafFor(id)

	if i := node.contacts.indexOf(id); i >= 0 {
		return i, node.contacts[i]
	}

	return -1, nil
}

// getAll returns the number of contacts or a slice with all contacts.
func (b *KBucket) getAll(justCount bool) (int, Contacts) {
	var count int
	var contacts Contacts

	for nodes := []*node{b.root}; len(nodes) > 0; {
		node := nodes[len(nodes)-1]  // Get the last node.
		nodes = nodes[:len(nodes)-1] // Remove the last node from the list.

		if node.contacts == nil {
			nodes = append(nodes, node.right, node.left)
		} else {
			if justCount {
				count += len(node.contacts)
			} else {
				contacts = append(contacts, node.contacts...)
			}
		}
	}

	return count, contacts
}

// update applies the replacement policy to an incumbent contact and a
// candidate carrying the same id. If the incumbent declines the replacement
// and the candidate otherwise differs, the candidate is abandoned. If the
// incumbent declines and the candidate is that same contact, the contact is
// marked as most recently contacted (by being moved to the tail of the
// bucket). If the incumbent approves, it is removed and the candidate is
// appended at the tail.
func (b *KBucket) update(n *node, i int, contact Contact) (Contact, Contact, bool) {
	if !bytes.Equal(n.contacts[i].Id(), contact.Id()) {
		return nil, nil, false
	}

	incumbent := n.contacts[i]
	replace := shouldReplace(incumbent, contact)

	// If the incumbent stays and the candidate is some new contact, then
	// there is nothing to do.
	if !replace && !contactsEqual(incumbent, contact) {
		return nil, nil, false
	}

	selection := incumbent
	if replace {
		selection = contact
	}

	n.contacts = append(n.contacts[:i], n.contacts[i+1:]...) // Remove old contact
	n.contacts = append(n.contacts, selection)               // Add more recent contact version

	return incumbent, selection, true
}

// determine returns the child the id falls into at the given bit index:
// the left leaf if the bit is 0, the right leaf otherwise.
func (n *node) determine(id []byte, bitIndex int) *node {
	// Ids that are too short are put in the low bucket (1 byte = 8 bits).
	// (bitIndex >> 3) finds how many bytes the bitIndex describes.
	// bitIndex % 8 checks if we have extra bits beyond byte multiples.
	// If the number of bytes is <= the number described by bitIndex and there
	// are extra bits to consider, the id has fewer bits than what bitIndex
	// describes; it is too short and goes in the low bucket.
	// Note that this treats a missing byte as 0 while the distance metric
	// pads missing bytes with 0xFF; the two conventions disagree and both
	// are kept as-is.
	bytesDescribedByBitIndex := bitIndex >> 3
	bitIndexWithinByte := bitIndex % 8
	if len(id) <= bytesDescribedByBitIndex && bitIndexWithinByte != 0 {
		return n.left
	}

	// byteUnderConsideration is an integer from 0 to 255 represented by 8 bits
	// where 255 is 11111111 and 0 is 00000000.
	// In order to find out whether the bit at bitIndexWithinByte is set we
	// construct (1 << (7 - bitIndexWithinByte)) which will consist of all bits
	// being 0, with only one bit set to 1.
	// For example, if bitIndexWithinByte is 3, we will construct 00010000 by
	// (1 << (7 - 3)) -> (1 << 4) -> 16
	if byteUnderConsideration := id[bytesDescribedByBitIndex]; (byteUnderConsideration & (1 << (7 - bitIndexWithinByte))) > 0 {
		return n.right
	}

	return n.left
}

// split redistributes the leaf's contacts into two new leaves and marks the
// node as an inner node of the trie by setting node.contacts = nil. The
// "far away" child is marked dontSplit; a split is never undone.
func (n *node) split(bitIndex int, localNodeId []byte) {
	n.left = createNode()
	n.right = createNode()

	// Redistribute existing contacts amongst the two newly created nodes.
	for _, contact := range n.contacts {
		tmp := n.determine(contact.Id(), bitIndex)
		tmp.contacts = append(tmp.contacts, contact)
	}

	n.contacts = nil // Mark as inner tree node

	// Don't split the "far away" node.
	// We check where the local node would end up and mark the other one as
	// dontSplit (i.e. "far away").
	if detNode := n.determine(localNodeId, bitIndex); n.left == detNode {
		n.right.dontSplit = true
	} else {
		n.left.dontSplit = true
	}
}

// indexOf returns the index of the contact with the provided id if it exists,
// -1 otherwise.
func (c Contacts) indexOf(id []byte) int {
	for i, v := range c {
		if bytes.Equal(v.Id(), id) {
			return i
		}
	}

	return -1
}

// createNode creates a new splittable empty leaf.
func createNode() *node {
	return &node{
		contacts:  Contacts{},
		dontSplit: false,
		left:      nil,
		right:     nil,
	}
}
