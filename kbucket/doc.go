/*
# KBucket

Kademlia DHT k-bucket routing table implemented as a binary tree, following
Tristan Slominski's k-bucket: github.com/tristanls/k-bucket

A Distributed Hash Table (DHT) is a decentralized distributed system that
provides a lookup table similar to a hash table.

KBucket stores Contact values which represent locations and addresses of
nodes in the decentralized distributed system. Contact is a small capability
interface: the trie only requires an id, and a concrete contact type may
additionally override the distance metric (Distancer), the replacement
policy applied when the same id is added again (Arbiter), and equality over
satellite data (Equaler). Peer is the concrete contact built from a received
announcement, carrying an address and an opaque session token.

The trie grows by splitting full leaves, but only along the branch holding
the local node id; leaves on diverging branches are frozen at creation, so
the total size stays O(k * id-bit-length). When a frozen leaf is full, an
add turns into an eviction intent: a ping event names the longest-unseen
contacts and the pending candidate, the caller probes them out of band and
reports the outcome via ResolveEviction.

KBucket events:

	kbucket.added
		  	contact Contact: The new contact that was added.
		Emitted only when the contact was added to a bucket and it was not
		stored in the bucket before.

	kbucket.ping
		  	old Contacts: The slice of contacts to ping.
			pending Contact: The contact to be added if one of the old contacts fails the probe.
		Emitted every time a contact is added that would exceed the capacity
		of a "don't split" bucket it belongs to.

	kbucket.removed
		  	contact Contact: The contact that was removed.
		Emitted when a contact was removed from a bucket.

	kbucket.updated
		  	old Contact: The contact that was stored prior to the update.
			new Contact: The contact that is now stored after the update.
		Emitted when a previously existing ("previously existing" means
		old.Id() equals new.Id()) contact was added and replaced the old one.

KBucket is not internally synchronized; the owning layer serializes access.
*/
package kbucket
