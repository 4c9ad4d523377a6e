package amt

import (
	"github.com/cockroachdb/errors"
	"github.com/lvmt-go/lvmt/lvmterr"
	"github.com/lvmt-go/lvmt/storage"
)

// valueColumn returns the column holding the current value for a slot
// at the given version: even versions live in COL_VAL_OLD, odd in
// COL_VAL_NEW (spec.md §4.2).
func valueColumn(version uint64) storage.Column {
	if version%2 == 0 {
		return storage.ColValOld
	}
	return storage.ColValNew
}

func leafIndexKey(prefix []byte, index int) []byte {
	key := make([]byte, len(prefix)+1)
	copy(key, prefix)
	key[len(prefix)] = byte(index)
	return key
}

// putValue stores value under keyHash in the column selected by
// newVersion's parity, and stages deletion of the opposite column's
// entry in the same batch. This is the crash-atomic rotation of spec.md
// §4.2: "the old-parity entry for that key is deleted in the same
// batch."
func putValue(ops []storage.Op, keyHash [32]byte, value []byte, newVersion uint64) []storage.Op {
	newCol := valueColumn(newVersion)
	oldCol := storage.ColValOld
	if newCol == storage.ColValOld {
		oldCol = storage.ColValNew
	}
	ops = append(ops, storage.Put(newCol, keyHash[:], value))
	ops = append(ops, storage.Delete(oldCol, keyHash[:]))
	return ops
}

// tombstoneValue deletes keyHash from both value columns (spec.md §4.2
// "Tombstones for removed keys delete from both").
func tombstoneValue(ops []storage.Op, keyHash [32]byte) []storage.Op {
	ops = append(ops, storage.Delete(storage.ColValOld, keyHash[:]))
	ops = append(ops, storage.Delete(storage.ColValNew, keyHash[:]))
	return ops
}

// getValue reads the current value for keyHash given the slot version
// that authenticates it.
func getValue(backend storage.Backend, keyHash [32]byte, version uint64) ([]byte, error) {
	v, err := backend.Get(valueColumn(version), keyHash[:])
	if err != nil {
		return nil, lvmterr.Backend(errors.Wrap(err, "amt: read value"))
	}
	if v == nil {
		return nil, lvmterr.Integrityf("amt: value missing for slot version %d", version)
	}
	return v, nil
}

// setLeafIndex records that the slot (prefix, index) is occupied by
// keyHash, so a future collision at that slot can resolve which key to
// push down without the node format carrying key material (the
// ColLeafIndex expansion documented in SPEC_FULL.md §4.2).
func setLeafIndex(ops []storage.Op, prefix []byte, index int, keyHash [32]byte) []storage.Op {
	return append(ops, storage.Put(storage.ColLeafIndex, leafIndexKey(prefix, index), keyHash[:]))
}

func clearLeafIndex(ops []storage.Op, prefix []byte, index int) []storage.Op {
	return append(ops, storage.Delete(storage.ColLeafIndex, leafIndexKey(prefix, index)))
}

func getLeafIndex(backend storage.Backend, prefix []byte, index int) ([32]byte, error) {
	raw, err := backend.Get(storage.ColLeafIndex, leafIndexKey(prefix, index))
	if err != nil {
		return [32]byte{}, lvmterr.Backend(errors.Wrap(err, "amt: read leaf index"))
	}
	if len(raw) != 32 {
		return [32]byte{}, lvmterr.Integrityf("amt: leaf index entry missing or malformed at %x[%d]", prefix, index)
	}
	var h [32]byte
	copy(h[:], raw)
	return h, nil
}
