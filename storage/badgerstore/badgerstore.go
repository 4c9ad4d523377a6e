// Package badgerstore is a storage.Backend backed by
// github.com/dgraph-io/badger/v4, an LSM-tree key-value store. Badger
// exposes one flat keyspace, so columns are realized as a one-byte key
// prefix, the same partitioning idea as the teacher's
// common/partition.go ReaderPartition/WriterPartition applied over a
// physical KVStore. A batch is applied inside one badger transaction
// so Write is atomic even though the prefixes interleave.
package badgerstore

import (
	"github.com/cockroachdb/errors"
	badger "github.com/dgraph-io/badger/v4"
	"github.com/lvmt-go/lvmt/storage"
)

type Store struct {
	db *badger.DB
}

var _ storage.Backend = (*Store)(nil)

// Open opens (creating if absent) a badger database directory at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "badgerstore: open %q", path)
	}
	return &Store{db: db}, nil
}

func prefixedKey(col storage.Column, key []byte) []byte {
	out := make([]byte, 1+len(key))
	out[0] = byte(col)
	copy(out[1:], key)
	return out
}

func (s *Store) Get(col storage.Column, key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(prefixedKey(col, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "badgerstore: get")
	}
	return out, nil
}

func (s *Store) Write(batch []storage.Op) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, op := range batch {
			k := prefixedKey(op.Col, op.Key)
			switch op.Kind {
			case storage.OpPut:
				if err := txn.Set(k, op.Value); err != nil {
					return err
				}
			case storage.OpDelete:
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "badgerstore: write batch")
	}
	return nil
}

func (s *Store) Flush() error {
	return errors.Wrap(s.db.Sync(), "badgerstore: flush")
}

func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "badgerstore: close")
}
