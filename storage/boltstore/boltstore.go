// Package boltstore is a storage.Backend backed by go.etcd.io/bbolt, a
// single-file B+tree store. Each Column maps to its own top-level
// bucket; Write applies a batch inside one bbolt read-write
// transaction, which is bbolt's unit of atomicity, giving the
// all-or-nothing guarantee the Backend contract requires.
package boltstore

import (
	"github.com/cockroachdb/errors"
	"github.com/lvmt-go/lvmt/storage"
	bolt "go.etcd.io/bbolt"
)

var bucketNames = [storage.ColumnCount][]byte{
	storage.ColValOld:    []byte("val_old"),
	storage.ColValNew:    []byte("val_new"),
	storage.ColNodes:     []byte("nodes"),
	storage.ColLeafIndex: []byte("leaf_index"),
	storage.ColMeta:      []byte("meta"),
}

type Store struct {
	db *bolt.DB
}

var _ storage.Backend = (*Store)(nil)

// Open opens (creating if absent) a bbolt file at path and ensures a
// bucket exists for every storage column.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "boltstore: open %q", path)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range bucketNames {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "boltstore: create buckets")
	}
	return &Store{db: db}, nil
}

func (s *Store) Get(col storage.Column, key []byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketNames[col])
		v := b.Get(key)
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "boltstore: get")
	}
	return out, nil
}

func (s *Store) Write(batch []storage.Op) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, op := range batch {
			b := tx.Bucket(bucketNames[op.Col])
			switch op.Kind {
			case storage.OpPut:
				if err := b.Put(op.Key, op.Value); err != nil {
					return err
				}
			case storage.OpDelete:
				if err := b.Delete(op.Key); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "boltstore: write batch")
	}
	return nil
}

// Flush is a no-op beyond Write: every bbolt Update transaction is
// already fsynced on commit.
func (s *Store) Flush() error { return nil }

func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "boltstore: close")
}
