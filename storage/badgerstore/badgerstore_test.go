package badgerstore

import (
	"path/filepath"
	"testing"

	"github.com/lvmt-go/lvmt/storage"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "badger"))
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

func TestColumnsDoNotCollideOnSameKeyBytes(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Write([]storage.Op{
		storage.Put(storage.ColValOld, []byte("k"), []byte("old")),
		storage.Put(storage.ColValNew, []byte("k"), []byte("new")),
	}))

	vOld, err := s.Get(storage.ColValOld, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("old"), vOld)

	vNew, err := s.Get(storage.ColValNew, []byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("new"), vNew)
}

func TestDelete(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.Write([]storage.Op{storage.Put(storage.ColNodes, []byte("k"), []byte("v"))}))
	require.NoError(t, s.Write([]storage.Op{storage.Delete(storage.ColNodes, []byte("k"))}))

	v, err := s.Get(storage.ColNodes, []byte("k"))
	require.NoError(t, err)
	require.Nil(t, v)
}

func TestGetMissingReturnsNil(t *testing.T) {
	s := openTemp(t)
	v, err := s.Get(storage.ColValOld, []byte("missing"))
	require.NoError(t, err)
	require.Nil(t, v)
}
