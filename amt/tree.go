// Package amt implements the versioned multi-layer AMT of
// SPEC_FULL.md §4.3: routing by key hash, per-slot incremental
// commitment updates, the epoch commit pipeline, and inclusion proofs.
// Grounded on the teacher's trie/trie.go (commitNode,
// markModifiedCommitmentsBackToRoot) and mutable/nodestore.go, adapted
// from its path-fragment-compressed radix shape to LVMT's fixed-depth,
// fixed-fanout, versioned-slot node layout.
package amt

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/lvmt-go/lvmt/kzgparams"
	"github.com/lvmt-go/lvmt/lvmterr"
	"github.com/lvmt-go/lvmt/storage"
	"go.dedis.ch/kyber/v3"
)

// Tree owns one versioned AMT instance: a node store layered over a
// backend, the crypto params to commit and open against, and the
// routing parameters (fanout, depth, hash).
type Tree struct {
	Backend storage.Backend
	Params  *kzgparams.Params
	Hash    HashFunc
	Fanout  int
	Depth   int
	Nodes   *NodeStore
}

// NewTree constructs a Tree over an existing backend and params
// handle. cacheCap <= 0 uses DefaultCacheSize.
func NewTree(backend storage.Backend, params *kzgparams.Params, hash HashFunc, fanout, depth, cacheCap int) *Tree {
	return &Tree{
		Backend: backend,
		Params:  params,
		Hash:    hash,
		Fanout:  fanout,
		Depth:   depth,
		Nodes:   NewNodeStore(backend, params, fanout, cacheCap),
	}
}

// WriteOp is one staged mutation fed into CommitEpoch: a key/value put,
// or a tombstoning delete when Tombstone is set (spec.md §4.4 "set",
// "delete").
type WriteOp struct {
	Key       []byte
	Value     []byte
	Tombstone bool
}

// Get reads the value for key as of the last committed epoch. It never
// consults a caller's uncommitted write cache — that cache lives in
// the root lvmt.Engine, not here (spec.md §4.4: "Must reflect the
// last-committed state, not uncommitted cache" applies to Prove; Get
// in this package has the same property by construction since nothing
// here is touched outside CommitEpoch).
func (t *Tree) Get(key []byte) ([]byte, bool, error) {
	h := t.Hash(key)
	digits := RoutingDigits(h, t.Fanout, t.Depth)

	var prefix []byte
	for level := 0; level < t.Depth; level++ {
		node, err := t.Nodes.Load(prefix)
		if err != nil {
			return nil, false, err
		}
		idx := digits[level]
		slot := node.Slots[idx]
		if !slot.Occupied() {
			return nil, false, nil
		}
		if slot.Present {
			occupantHash, err := getLeafIndex(t.Backend, prefix, idx)
			if err != nil {
				return nil, false, err
			}
			if occupantHash != h {
				// the leaf on this path belongs to another key
				return nil, false, nil
			}
			v, err := getValue(t.Backend, h, slot.Version)
			if err != nil {
				return nil, false, err
			}
			return v, true, nil
		}
		prefix = append(append([]byte{}, prefix...), byte(idx))
	}
	return nil, false, nil
}

// RootCommitment returns the current root node's commitment, loading
// it (as empty, if absent) through the node cache.
func (t *Tree) RootCommitment() (kyber.Point, error) {
	root, err := t.Nodes.Load(nil)
	if err != nil {
		return nil, err
	}
	return root.Commitment, nil
}

// RootHash folds the epoch into the root commitment (spec.md §4.3 step
// 5: "root_hash = H(root_commitment || e)").
func RootHash(hash HashFunc, commitment kyber.Point, epoch uint64) ([32]byte, error) {
	cb, err := commitment.MarshalBinary()
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "amt: marshal root commitment")
	}
	buf := make([]byte, len(cb)+8)
	copy(buf, cb)
	binary.BigEndian.PutUint64(buf[len(cb):], epoch)
	return hash(buf), nil
}

// commitSession tracks the value and leaf-index writes staged during
// one CommitEpoch call, so a later write in the same epoch that
// collides with an earlier one sees the new state before anything is
// durable. Node mutations use the same read-your-writes property via
// NodeStore's dirty map.
type commitSession struct {
	tree           *Tree
	pendingValues  map[string][]byte
	pendingLeaf    map[string][32]byte
	pendingLeafDel map[string]bool
	ops            []storage.Op
}

func newCommitSession(t *Tree) *commitSession {
	return &commitSession{
		tree:           t,
		pendingValues:  make(map[string][]byte),
		pendingLeaf:    make(map[string][32]byte),
		pendingLeafDel: make(map[string]bool),
	}
}

func (cs *commitSession) getValue(keyHash [32]byte, version uint64) ([]byte, error) {
	if v, ok := cs.pendingValues[string(keyHash[:])]; ok {
		if v == nil {
			return nil, lvmterr.Integrityf("amt: value for %x tombstoned earlier in this commit", keyHash)
		}
		return v, nil
	}
	return getValue(cs.tree.Backend, keyHash, version)
}

func (cs *commitSession) putValue(keyHash [32]byte, value []byte, newVersion uint64) {
	cs.pendingValues[string(keyHash[:])] = value
	cs.ops = putValue(cs.ops, keyHash, value, newVersion)
}

func (cs *commitSession) tombstoneValue(keyHash [32]byte) {
	cs.pendingValues[string(keyHash[:])] = nil
	cs.ops = tombstoneValue(cs.ops, keyHash)
}

func (cs *commitSession) setLeafIndex(prefix []byte, index int, keyHash [32]byte) {
	k := string(leafIndexKey(prefix, index))
	cs.pendingLeaf[k] = keyHash
	delete(cs.pendingLeafDel, k)
	cs.ops = setLeafIndex(cs.ops, prefix, index, keyHash)
}

func (cs *commitSession) clearLeafIndex(prefix []byte, index int) {
	k := string(leafIndexKey(prefix, index))
	delete(cs.pendingLeaf, k)
	cs.pendingLeafDel[k] = true
	cs.ops = clearLeafIndex(cs.ops, prefix, index)
}

func (cs *commitSession) getLeafIndex(prefix []byte, index int) ([32]byte, error) {
	k := string(leafIndexKey(prefix, index))
	if h, ok := cs.pendingLeaf[k]; ok {
		return h, nil
	}
	if cs.pendingLeafDel[k] {
		return [32]byte{}, lvmterr.Integrityf("amt: leaf index at %x[%d] cleared earlier in this commit", prefix, index)
	}
	return getLeafIndex(cs.tree.Backend, prefix, index)
}

func (cs *commitSession) insertLeaf(node *Node, prefix []byte, idx int, keyHash [32]byte, value []byte) error {
	t := cs.tree
	digest := t.Hash(value)
	newSlot := node.SetSlot(t.Params, idx, digest, true)
	t.Nodes.MarkDirty(node)
	cs.putValue(keyHash, value, newSlot.Version)
	cs.setLeafIndex(prefix, idx, keyHash)
	return nil
}

func (cs *commitSession) updateOrDeleteLeaf(node *Node, prefix []byte, idx int, keyHash [32]byte, op WriteOp) error {
	t := cs.tree
	if op.Tombstone {
		node.SetSlot(t.Params, idx, [32]byte{}, false)
		t.Nodes.MarkDirty(node)
		cs.tombstoneValue(keyHash)
		cs.clearLeafIndex(prefix, idx)
		return nil
	}
	digest := t.Hash(op.Value)
	newSlot := node.SetSlot(t.Params, idx, digest, true)
	t.Nodes.MarkDirty(node)
	cs.putValue(keyHash, op.Value, newSlot.Version)
	return nil
}

// applyAt implements spec.md §4.3's "Per-slot update" and "Insertion of
// a new key" together: descend by one routing digit per call, mutate
// at the slot that resolves the key, and on unwind let the caller (one
// level up, in the pointer branch below) fold the child's new
// commitment into its own slot. Writes are applied one key at a time,
// so an ancestor shared by k written keys is updated k times in one
// commit: its slot version is bumped once per descendant write, not
// once per commit. The result is deterministic for a given set of
// writes, since CommitEpoch sorts them by key first.
func (cs *commitSession) applyAt(prefix []byte, level int, myHash [32]byte, digits []int, op WriteOp) error {
	t := cs.tree
	node, err := t.Nodes.Load(prefix)
	if err != nil {
		return err
	}
	idx := digits[level]
	slot := node.Slots[idx]

	switch {
	case !slot.Occupied():
		// covers both a never-touched slot and one vacated by an
		// earlier delete; either way there is nothing here to route
		// through, so a new key may claim it.
		if op.Tombstone {
			return nil
		}
		return cs.insertLeaf(node, prefix, idx, myHash, op.Value)

	case slot.Present:
		occupantHash, err := cs.getLeafIndex(prefix, idx)
		if err != nil {
			return err
		}
		if occupantHash == myHash {
			return cs.updateOrDeleteLeaf(node, prefix, idx, myHash, op)
		}
		if op.Tombstone {
			return nil
		}
		if level+1 >= t.Depth {
			return lvmterr.Integrityf("amt: routing collision at max depth between keys hashing to %x and %x", occupantHash, myHash)
		}

		occupantValue, err := cs.getValue(occupantHash, slot.Version)
		if err != nil {
			return err
		}
		childPrefix := append(append([]byte{}, prefix...), byte(idx))
		child, err := t.Nodes.Load(childPrefix)
		if err != nil {
			return err
		}
		occupantDigits := RoutingDigits(occupantHash, t.Fanout, t.Depth)
		if err := cs.insertLeaf(child, childPrefix, occupantDigits[level+1], occupantHash, occupantValue); err != nil {
			return err
		}
		cs.clearLeafIndex(prefix, idx)

		// the new key still needs to land in the same child before the
		// parent slot is updated - committing the child's digest here,
		// between the occupant's pushdown and the new key's insertion,
		// would point the parent at a commitment that omits the new
		// key. Recurse first, then fold the child's final commitment
		// into the parent once below.
		if err := cs.applyAt(childPrefix, level+1, myHash, digits, op); err != nil {
			return err
		}

		digest, err := child.CommitmentDigest(t.Hash)
		if err != nil {
			return err
		}
		node.SetSlot(t.Params, idx, digest, false)
		t.Nodes.MarkDirty(node)
		return nil

	default: // interior pointer to a non-empty child subtree
		childPrefix := append(append([]byte{}, prefix...), byte(idx))
		if err := cs.applyAt(childPrefix, level+1, myHash, digits, op); err != nil {
			return err
		}
		child, err := t.Nodes.Load(childPrefix)
		if err != nil {
			return err
		}
		digest, err := child.CommitmentDigest(t.Hash)
		if err != nil {
			return err
		}
		if digest == slot.Digest {
			// the write below resolved to a no-op (e.g. deleting an
			// absent key): leave this slot's version and the parent
			// commitment untouched rather than bumping them for
			// nothing.
			return nil
		}
		node.SetSlot(t.Params, idx, digest, false)
		t.Nodes.MarkDirty(node)
		return nil
	}
}

// CommitEpoch runs the pipeline of spec.md §4.3 "Commit (epoch e)":
// writes are applied in deterministic key order (property P7), node
// commitments are recomputed bottom-up as the recursion unwinds, and
// every mutation — value rotations, leaf-index updates, and serialized
// dirty nodes — is returned as one ordered batch for the caller to
// apply atomically. CommitEpoch reads from the backend but does not
// write to it; the
// root lvmt.Engine owns write+flush so it can enforce epoch
// monotonicity and cache-clearing around the same atomic boundary.
func (t *Tree) CommitEpoch(epoch uint64, writes []WriteOp) (kyber.Point, [32]byte, []storage.Op, error) {
	sorted := make([]WriteOp, len(writes))
	copy(sorted, writes)
	sort.Slice(sorted, func(i, j int) bool { return bytes.Compare(sorted[i].Key, sorted[j].Key) < 0 })

	cs := newCommitSession(t)
	for _, op := range sorted {
		h := t.Hash(op.Key)
		digits := RoutingDigits(h, t.Fanout, t.Depth)
		if err := cs.applyAt(nil, 0, h, digits, op); err != nil {
			t.Nodes.DiscardDirty()
			return nil, [32]byte{}, nil, err
		}
	}

	nodeOps, err := t.Nodes.FlushDirty()
	if err != nil {
		t.Nodes.DiscardDirty()
		return nil, [32]byte{}, nil, err
	}
	ops := append(cs.ops, nodeOps...)

	root, err := t.Nodes.Load(nil)
	if err != nil {
		return nil, [32]byte{}, nil, err
	}
	rootHash, err := RootHash(t.Hash, root.Commitment, epoch)
	if err != nil {
		return nil, [32]byte{}, nil, err
	}
	return root.Commitment, rootHash, ops, nil
}
