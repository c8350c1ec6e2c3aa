// Package store persists the node's view of the network between restarts:
// known-good contacts (so the node can rewarm its routing tables without
// hitting the bootstrap servers) and announced values. It owns no wire
// format; records are msgpack-encoded in a node-local leveldb.
package store

import (
	"fmt"
	"net/netip"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dhtlab/mainline/kbucket"
	"github.com/dhtlab/mainline/values"
)

var (
	contactPrefix = []byte("c/")
	valuePrefix   = []byte("v/")
)

type Store struct {
	db *leveldb.DB
}

// Open opens (or creates) the store at the given path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// peerRecord is the on-disk form of a contact. The address round-trips
// through its string form; netip types carry no stable binary encoding we
// want to depend on.
type peerRecord struct {
	Id       []byte `msgpack:"id"`
	AddrPort string `msgpack:"addr"`
	Token    []byte `msgpack:"token"`
	SeenAt   int64  `msgpack:"seen"`
}

// PutContact stores or overwrites a contact, keyed by its id.
func (s *Store) PutContact(p *kbucket.Peer) error {
	rec := peerRecord{
		Id:       p.ID,
		AddrPort: p.AddrPort.String(),
		Token:    p.Token,
		SeenAt:   p.SeenAt.Unix(),
	}

	data, err := msgpack.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encode contact: %w", err)
	}

	return s.db.Put(append(contactPrefix, p.ID...), data, nil)
}

// DeleteContact drops the contact with the given id. No-op if absent.
func (s *Store) DeleteContact(id []byte) error {
	return s.db.Delete(append(contactPrefix, id...), nil)
}

// Contacts returns every persisted contact.
func (s *Store) Contacts() ([]*kbucket.Peer, error) {
	var peers []*kbucket.Peer

	iter := s.db.NewIterator(util.BytesPrefix(contactPrefix), nil)
	defer iter.Release()

	for iter.Next() {
		var rec peerRecord
		if err := msgpack.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("store: decode contact: %w", err)
		}

		addrPort, err := netip.ParseAddrPort(rec.AddrPort)
		if err != nil {
			return nil, fmt.Errorf("store: decode contact address: %w", err)
		}

		peers = append(peers, &kbucket.Peer{
			ID:       rec.Id,
			AddrPort: addrPort,
			Token:    rec.Token,
			SeenAt:   time.Unix(rec.SeenAt, 0),
		})
	}

	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("store: iterate contacts: %w", err)
	}

	return peers, nil
}

// valueRecord is the on-disk form of an announced value.
type valueRecord struct {
	Id    []byte `msgpack:"id"`
	Token []byte `msgpack:"token"`
	V     []byte `msgpack:"v"`
}

// PutValue stores or overwrites the announced value for an info-hash.
func (s *Store) PutValue(key values.Key, value values.Value) error {
	data, err := msgpack.Marshal(valueRecord{Id: value.Id, Token: value.Token, V: value.V})
	if err != nil {
		return fmt.Errorf("store: encode value: %w", err)
	}

	return s.db.Put(append(valuePrefix, key[:]...), data, nil)
}

// GetValue returns the announced value for an info-hash, if present.
func (s *Store) GetValue(key values.Key) (values.Value, bool, error) {
	data, err := s.db.Get(append(valuePrefix, key[:]...), nil)
	if err == leveldb.ErrNotFound {
		return values.Value{}, false, nil
	}
	if err != nil {
		return values.Value{}, false, fmt.Errorf("store: get value: %w", err)
	}

	var rec valueRecord
	if err := msgpack.Unmarshal(data, &rec); err != nil {
		return values.Value{}, false, fmt.Errorf("store: decode value: %w", err)
	}

	return values.Value{Id: rec.Id, Token: rec.Token, V: rec.V}, true, nil
}
