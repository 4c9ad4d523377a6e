// Package memstore is an in-memory storage.Backend, used for tests and
// benchmarks. Grounded on the teacher's common.InMemoryKVStore: a
// mutex-guarded map per column, with Write applying a batch under a
// single lock so batches are atomic with respect to concurrent Get.
package memstore

import (
	"sync"

	"github.com/lvmt-go/lvmt/storage"
)

type Store struct {
	mu   sync.RWMutex
	cols [storage.ColumnCount]map[string][]byte
}

var _ storage.Backend = (*Store)(nil)

// New creates an empty in-memory backend.
func New() *Store {
	s := &Store{}
	for i := range s.cols {
		s.cols[i] = make(map[string][]byte)
	}
	return s
}

func (s *Store) Get(col storage.Column, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cols[col][string(key)]
	if !ok {
		return nil, nil
	}
	ret := make([]byte, len(v))
	copy(ret, v)
	return ret, nil
}

func (s *Store) Write(batch []storage.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range batch {
		m := s.cols[op.Col]
		switch op.Kind {
		case storage.OpPut:
			vClone := make([]byte, len(op.Value))
			copy(vClone, op.Value)
			m[string(op.Key)] = vClone
		case storage.OpDelete:
			delete(m, string(op.Key))
		}
	}
	return nil
}

// Flush is a no-op: all state lives in process memory already.
func (s *Store) Flush() error { return nil }

func (s *Store) Close() error { return nil }

// Len returns the number of entries in a column, for test assertions.
func (s *Store) Len(col storage.Column) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cols[col])
}

// Snapshot returns a deep copy of one column's contents, for P7
// (determinism) tests that compare COL_NODES byte contents across
// independently-built engines.
func (s *Store) Snapshot(col storage.Column) map[string][]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret := make(map[string][]byte, len(s.cols[col]))
	for k, v := range s.cols[col] {
		vc := make([]byte, len(v))
		copy(vc, v)
		ret[k] = vc
	}
	return ret
}
