package boltstore

import (
	"path/filepath"
	"testing"

	"github.com/lvmt-go/lvmt/storage"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Write([]storage.Op{storage.Put(storage.ColNodes, []byte("k"), []byte("v"))}))

	v, err := s.Get(storage.ColNodes, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
}

func TestGetMissingReturnsNil(t *testing.T) {
	s := openTemp(t)
	v, err := s.Get(storage.ColValOld, []byte("missing"))
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestDelete(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Write([]storage.Op{storage.Put(storage.ColValNew, []byte("k"), []byte("v"))}))
	require.NoError(t, s.Write([]storage.Op{storage.Delete(storage.ColValNew, []byte("k"))}))

	v, err := s.Get(storage.ColValNew, []byte("k"))
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Write([]storage.Op{storage.Put(storage.ColNodes, []byte("k"), []byte("persisted"))}))
	require.NoError(t, s.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	v, err := s2.Get(storage.ColNodes, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("persisted"), v)
}
