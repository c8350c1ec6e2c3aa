package kbucket

import (
	"bytes"
	"net/netip"
	"time"
)

// Contact is the capability a routing-table entry must expose. The trie only
// ever consults the id; everything else a concrete contact carries is
// opaque satellite data.
//
// A contact may additionally implement Distancer, Arbiter or Equaler to
// override the defaults documented on each interface.
type Contact interface {
	Id() []byte
}

// Distancer is implemented by contacts that override the default XOR fold
// metric (XORDistance) used to order Closest results.
type Distancer interface {
	Distance(otherId []byte) int
}

// Arbiter is implemented by contacts that decide whether an incoming
// candidate carrying the same id should replace them. The default approves
// the replacement unconditionally, so every add of an existing id refreshes
// it to the most-recently-contacted end of its bucket. A liveness or
// quality based arbiter can be supplied per contact type.
type Arbiter interface {
	ShouldReplace(candidate Contact) bool
}

// Equaler is implemented by contacts that carry satellite data relevant for
// equality. Without it, two contacts are considered equal when their ids
// match. Equality only matters for arbiters that decline replacements: a
// declined candidate equal to the incumbent still refreshes recency.
type Equaler interface {
	Equal(other Contact) bool
}

func distanceOf(c Contact, otherId []byte) int {
	if d, ok := c.(Distancer); ok {
		return d.Distance(otherId)
	}

	return XORDistance(c.Id(), otherId)
}

func shouldReplace(incumbent, candidate Contact) bool {
	if a, ok := incumbent.(Arbiter); ok {
		return a.ShouldReplace(candidate)
	}

	return true
}

func contactsEqual(a, b Contact) bool {
	if e, ok := a.(Equaler); ok {
		return e.Equal(b)
	}

	return bytes.Equal(a.Id(), b.Id())
}

// Peer is the concrete contact the transport layer builds from a received
// peer announcement: a node id plus the address to reach it and the opaque
// session token it presented. The routing table never inspects the address
// or the token.
type Peer struct {
	ID       []byte
	AddrPort netip.AddrPort
	Token    []byte
	SeenAt   time.Time // SeenAt is the time this peer was last seen.
}

// NewPeer creates a Peer stamped with the current time.
func NewPeer(id []byte, addrPort netip.AddrPort, token []byte) *Peer {
	return &Peer{
		ID:       id,
		AddrPort: addrPort,
		Token:    token,
		SeenAt:   time.Now(),
	}
}

func (p *Peer) Id() []byte {
	return p.ID
}

// Equal compares id, address and token. SeenAt is deliberately excluded so a
// re-announce from the same endpoint counts as the same peer.
func (p *Peer) Equal(other Contact) bool {
	o, ok := other.(*Peer)
	if !ok {
		return bytes.Equal(p.ID, other.Id())
	}

	if !bytes.Equal(p.ID, o.ID) {
		return false
	}

	if !CompareAddrPorts(p.AddrPort, o.AddrPort) {
		return false
	}

	return bytes.Equal(p.Token, o.Token)
}
