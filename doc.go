// Package mainline is the storage and routing core of a BitTorrent Mainline
// DHT node. It keeps a bounded set of per-info-hash routing tables built on
// Kademlia k-buckets, the values and peer endpoints other nodes announce, and
// the rotating secrets announce tokens are issued against.
//
// The package does no network I/O, no wire encoding and no liveness probing.
// A network layer in front of it decodes queries, calls the Node facade, and
// subscribes to the routing-table events (see package kbucket) to ping stale
// contacts.
package mainline
