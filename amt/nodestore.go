package amt

import (
	"container/list"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/lvmt-go/lvmt/kzgparams"
	"github.com/lvmt-go/lvmt/lvmterr"
	"github.com/lvmt-go/lvmt/storage"
)

// DefaultCacheSize bounds the clean-node LRU (SPEC_FULL.md §4.2 "bounded
// write-through cache (LRU on node-prefix)").
const DefaultCacheSize = 4096

// NodeStore is the engine's sole owner of in-memory tree state
// (SPEC_FULL.md §9 "Interior mutability"). Dirty nodes are held in an
// unbounded map until FlushDirty; clean nodes live in a bounded LRU so a
// commit never re-reads a node it just mutated, and hot read paths
// avoid backend round-trips. Grounded on the teacher's
// mutable/nodestore.go buffered-cache pattern, generalized with an
// eviction bound since this tree is long-lived across many commits
// rather than rebuilt per request.
type NodeStore struct {
	backend storage.Backend
	params  *kzgparams.Params
	fanout  int

	mu        sync.Mutex
	dirty     map[string]*Node
	cleanLRU  *list.List
	cleanIdx  map[string]*list.Element
	cleanCap  int
}

type cleanEntry struct {
	key  string
	node *Node
}

func NewNodeStore(backend storage.Backend, params *kzgparams.Params, fanout, cacheCap int) *NodeStore {
	if cacheCap <= 0 {
		cacheCap = DefaultCacheSize
	}
	return &NodeStore{
		backend:  backend,
		params:   params,
		fanout:   fanout,
		dirty:    make(map[string]*Node),
		cleanLRU: list.New(),
		cleanIdx: make(map[string]*list.Element),
		cleanCap: cacheCap,
	}
}

// Load returns the node at prefix, creating an empty one if it does
// not yet exist on disk (spec.md §3 "A node is created lazily on first
// write to its subtree"). Reads during a commit observe dirty nodes
// before falling through to the clean cache or the backend, so a
// mutated-but-unflushed node is never shadowed by a stale disk copy.
func (ns *NodeStore) Load(prefix []byte) (*Node, error) {
	key := string(prefix)

	ns.mu.Lock()
	if n, ok := ns.dirty[key]; ok {
		ns.mu.Unlock()
		return n, nil
	}
	if el, ok := ns.cleanIdx[key]; ok {
		ns.cleanLRU.MoveToFront(el)
		ns.mu.Unlock()
		return el.Value.(*cleanEntry).node, nil
	}
	ns.mu.Unlock()

	raw, err := ns.backend.Get(storage.ColNodes, prefix)
	if err != nil {
		return nil, lvmterr.Backend(errors.Wrap(err, "amt: load node"))
	}
	if raw == nil {
		n := NewEmptyNode(prefix, ns.fanout, ns.params)
		ns.insertClean(key, n)
		return n, nil
	}
	n, err := DeserializeNode(ns.params, prefix, ns.fanout, raw)
	if err != nil {
		return nil, err
	}
	ns.insertClean(key, n)
	return n, nil
}

func (ns *NodeStore) insertClean(key string, n *Node) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	if el, ok := ns.cleanIdx[key]; ok {
		el.Value.(*cleanEntry).node = n
		ns.cleanLRU.MoveToFront(el)
		return
	}
	el := ns.cleanLRU.PushFront(&cleanEntry{key: key, node: n})
	ns.cleanIdx[key] = el
	for ns.cleanLRU.Len() > ns.cleanCap {
		oldest := ns.cleanLRU.Back()
		if oldest == nil {
			break
		}
		ns.cleanLRU.Remove(oldest)
		delete(ns.cleanIdx, oldest.Value.(*cleanEntry).key)
	}
}

// MarkDirty moves a node into the write-through set. Dirty nodes are
// never evicted (spec.md §4.3 node state machine: "No transition from
// dirty to evicted without flush").
func (ns *NodeStore) MarkDirty(n *Node) {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	n.Dirty = true
	ns.dirty[string(n.Prefix)] = n
	if el, ok := ns.cleanIdx[string(n.Prefix)]; ok {
		ns.cleanLRU.Remove(el)
		delete(ns.cleanIdx, string(n.Prefix))
	}
}

// FlushDirty serializes every dirty node into Put ops and returns them
// without touching the backend; the caller folds these into the same
// atomic batch as the value-column writes (spec.md §4.3 commit steps
// 4-6). On success, dirty nodes transition to clean and become
// eviction-eligible again.
func (ns *NodeStore) FlushDirty() ([]storage.Op, error) {
	ns.mu.Lock()
	dirty := ns.dirty
	ns.dirty = make(map[string]*Node)
	ns.mu.Unlock()

	ops := make([]storage.Op, 0, len(dirty))
	for key, n := range dirty {
		data, err := n.Serialize(ns.params)
		if err != nil {
			return nil, err
		}
		ops = append(ops, storage.Put(storage.ColNodes, []byte(key), data))
		n.Dirty = false
		ns.insertClean(key, n)
	}
	return ops, nil
}

// DiscardDirty drops all pending in-memory mutations without writing
// them, used when a commit fails before the atomic write (spec.md
// §4.3: "Partial failure before step 6 leaves the tree unmodified").
func (ns *NodeStore) DiscardDirty() {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	ns.dirty = make(map[string]*Node)
}

// DirtyLen reports the number of dirty nodes, for tests.
func (ns *NodeStore) DirtyLen() int {
	ns.mu.Lock()
	defer ns.mu.Unlock()
	return len(ns.dirty)
}
