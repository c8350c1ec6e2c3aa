package kbucket

// Iter is a lazy depth-first cursor over every contact in the trie. The
// order is trie-structural, not distance-ordered. An Iter observes the live
// trie; it is not a snapshot and is not restartable.
type Iter struct {
	nodes    []*node
	contacts Contacts
	i        int
}

// Iterate returns a cursor positioned before the first contact.
func (b *KBucket) Iterate() *Iter {
	return &Iter{nodes: []*node{b.root}}
}

// Next returns the next contact, or false when the trie is exhausted.
func (it *Iter) Next() (Contact, bool) {
	for {
		if it.contacts != nil {
			if it.i < len(it.contacts) {
				contact := it.contacts[it.i]
				it.i++
				return contact, true
			}

			it.contacts = nil
			it.i = 0
		}

		if len(it.nodes) == 0 {
			return nil, false
		}

		node := it.nodes[len(it.nodes)-1]
		it.nodes = it.nodes[:len(it.nodes)-1]

		if node.contacts == nil {
			it.nodes = append(it.nodes, node.right, node.left)
		} else {
			it.contacts = node.contacts
			it.i = 0
		}
	}
}
