// Package pocstore is the Local PoC Store (spec.md §4.2): a durable,
// goleveldb-backed key-value store mapping onion-key-hash to the LocalPoC
// record that hash identifies. Grounded on the teacher's own leveldb usage
// pattern (a thin Get/Put/Delete/iterator wrapper over goleveldb, keys
// namespaced by a fixed string prefix).
package pocstore

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"

	"poc-challenge-manager/pockeys"
	"poc-challenge-manager/pocerrors"
	"poc-challenge-manager/pocmodel"
)

const keyPrefix = "localpoc:"

// Store is the durable Local PoC Store. Safe for concurrent use, though
// spec.md §5 routes every call through the single Manager actor.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if necessary) a leveldb database rooted at dir.
func Open(dir string) (*Store, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, fmt.Errorf("pocstore: open %q: %w", dir, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func dbKey(hash pockeys.Hash) []byte {
	return append([]byte(keyPrefix), hash.Bytes()...)
}

// Get fails with pocerrors.ErrNotFound if hash has no record.
func (s *Store) Get(hash pockeys.Hash) (*pocmodel.LocalPoC, error) {
	raw, err := s.db.Get(dbKey(hash), nil)
	if err != nil {
		if err == errors.ErrNotFound {
			return nil, pocerrors.ErrNotFound
		}
		return nil, fmt.Errorf("pocstore: get %s: %w", hash, err)
	}
	poc, err := pocmodel.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("pocstore: decode %s: %w", hash, err)
	}
	return poc, nil
}

// Put performs a full-record overwrite, the store's only write form
// (spec.md §4.2: challenges are short-lived and bounded in size, so
// overwrite trivially preserves the single-writer invariant).
func (s *Store) Put(poc *pocmodel.LocalPoC) error {
	raw, err := pocmodel.Encode(poc)
	if err != nil {
		return fmt.Errorf("pocstore: encode %s: %w", poc.OnionKeyHash, err)
	}
	if err := s.db.Put(dbKey(poc.OnionKeyHash), raw, nil); err != nil {
		return fmt.Errorf("pocstore: put %s: %w", poc.OnionKeyHash, err)
	}
	return nil
}

// Delete removes hash's record, if present. Deleting an absent key is not
// an error, matching goleveldb's own semantics.
func (s *Store) Delete(hash pockeys.Hash) error {
	if err := s.db.Delete(dbKey(hash), nil); err != nil {
		return fmt.Errorf("pocstore: delete %s: %w", hash, err)
	}
	return nil
}

// Iter returns a snapshot slice of every LocalPoC currently stored. The
// first record that fails to decode ends the scan with an error and no
// slice.
func (s *Store) Iter() ([]*pocmodel.LocalPoC, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(keyPrefix)), nil)
	defer iter.Release()

	var out []*pocmodel.LocalPoC
	for iter.Next() {
		raw := make([]byte, len(iter.Value()))
		copy(raw, iter.Value())
		poc, err := pocmodel.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("pocstore: iter: decode: %w", err)
		}
		out = append(out, poc)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("pocstore: iter: %w", err)
	}
	return out, nil
}
