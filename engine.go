// Package lvmt is the public facade of the versioned multi-layer AMT
// store: get/set/delete/commit/prove/verify over a pluggable
// storage.Backend, wiring together kzgparams (crypto) and amt (tree)
// per SPEC_FULL.md §4.4. Grounded on the teacher's mutable package,
// which plays the same "buffered write cache over a persisted trie"
// role, generalized here with explicit epoch bookkeeping and the
// single-writer/multi-reader lock spec.md §5 requires.
package lvmt

import (
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/lvmt-go/lvmt/amt"
	"github.com/lvmt-go/lvmt/kzgparams"
	"github.com/lvmt-go/lvmt/lvmterr"
	"github.com/lvmt-go/lvmt/storage"
	"go.dedis.ch/kyber/v3"
	"go.uber.org/zap"
)

const metaEpochKey = "epoch"

type cacheEntry struct {
	value     []byte
	tombstone bool
}

// Engine is the authenticated-store contract exposed to hosts (spec.md
// §6). The zero value is not usable; construct with Open.
type Engine struct {
	cfg     Config
	backend storage.Backend
	params  *kzgparams.Params
	hash    amt.HashFunc
	tree    *amt.Tree
	log     *zap.Logger

	mu         sync.RWMutex
	writeCache map[string]cacheEntry
	lastEpoch  uint64
	sealedErr  error
}

// Option customizes Open beyond Config.
type Option func(*Engine)

// WithLogger attaches a structured logger (spec.md §9 implies none;
// this is the ambient-stack addition of SPEC_FULL.md §2). A nil logger
// leaves the default no-op logger in place.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// Open constructs an Engine over backend using params, recovering the
// last committed epoch from storage.ColMeta (spec.md §4.3: "recovery is
// a no-op: the engine restarts from the last persisted root").
func Open(cfg Config, backend storage.Backend, params *kzgparams.Params, opts ...Option) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if params.N != cfg.Fanout {
		return nil, errors.Mark(errors.Newf("lvmt: params domain size %d does not match configured fanout %d", params.N, cfg.Fanout), lvmterr.ErrParamMismatch)
	}
	hashFn, err := cfg.Hash.Resolve()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		backend:    backend,
		params:     params,
		hash:       hashFn,
		tree:       amt.NewTree(backend, params, hashFn, cfg.Fanout, cfg.Depth, cfg.NodeCacheSize),
		log:        zap.NewNop(),
		writeCache: make(map[string]cacheEntry),
	}
	for _, opt := range opts {
		opt(e)
	}

	raw, err := backend.Get(storage.ColMeta, []byte(metaEpochKey))
	if err != nil {
		return nil, lvmterr.Backend(errors.Wrap(err, "lvmt: recover last epoch"))
	}
	if len(raw) == 8 {
		e.lastEpoch = binary.BigEndian.Uint64(raw)
	}
	e.log.Info("engine opened", zap.Uint64("last_epoch", e.lastEpoch), zap.Int("fanout", cfg.Fanout), zap.Int("depth", cfg.Depth))
	return e, nil
}

func (e *Engine) fail(err error) error {
	e.sealedErr = err
	e.log.Error("engine sealed after integrity error", zap.Error(err))
	return err
}

func (e *Engine) checkSealed() error {
	if e.sealedErr != nil {
		return lvmterr.ErrSealed
	}
	return nil
}

// Get consults the write cache first, then the last-committed tree
// state (spec.md §4.4 "get").
func (e *Engine) Get(key []byte) ([]byte, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.checkSealed(); err != nil {
		return nil, false, err
	}
	if ce, ok := e.writeCache[string(key)]; ok {
		if ce.tombstone {
			return nil, false, nil
		}
		return ce.value, true, nil
	}
	v, ok, err := e.tree.Get(key)
	if err != nil {
		if errors.Is(err, lvmterr.ErrIntegrity) {
			return nil, false, e.fail(err)
		}
		return nil, false, err
	}
	return v, ok, nil
}

// Set stages a write in the in-memory cache; no I/O occurs until
// Commit (spec.md §4.4 "set").
func (e *Engine) Set(key, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkSealed(); err != nil {
		return err
	}
	vCopy := append([]byte(nil), value...)
	e.writeCache[string(key)] = cacheEntry{value: vCopy}
	return nil
}

// Delete stages a tombstone (spec.md §4.4 "delete").
func (e *Engine) Delete(key []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkSealed(); err != nil {
		return err
	}
	e.writeCache[string(key)] = cacheEntry{tombstone: true}
	return nil
}

// Commit runs the pipeline of spec.md §4.3 over the staged write
// cache. epoch must be strictly greater than the last committed epoch.
// On success, the root commitment and hash are durable and the write
// cache is cleared. If the tree update or the backend Write fails, the
// engine is left exactly at its pre-commit state (spec.md §5, §7). A
// failed Flush comes after the batch was written: the error is
// returned and the last committed epoch and the write cache are left
// as they were.
func (e *Engine) Commit(epoch uint64) (kyber.Point, [32]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkSealed(); err != nil {
		return nil, [32]byte{}, err
	}
	if epoch <= e.lastEpoch {
		return nil, [32]byte{}, lvmterr.ErrEpochRegress
	}

	writes := make([]amt.WriteOp, 0, len(e.writeCache))
	for k, ce := range e.writeCache {
		writes = append(writes, amt.WriteOp{Key: []byte(k), Value: ce.value, Tombstone: ce.tombstone})
	}

	commitment, rootHash, ops, err := e.tree.CommitEpoch(epoch, writes)
	if err != nil {
		if errors.Is(err, lvmterr.ErrIntegrity) {
			return nil, [32]byte{}, e.fail(err)
		}
		return nil, [32]byte{}, err
	}

	var epochBuf [8]byte
	binary.BigEndian.PutUint64(epochBuf[:], epoch)
	ops = append(ops, storage.Put(storage.ColMeta, []byte(metaEpochKey), epochBuf[:]))

	if err := e.backend.Write(ops); err != nil {
		// CommitEpoch already moved this commit's nodes into the clean
		// node cache; start from a fresh cache so reads see the
		// persisted pre-commit tree again.
		e.tree = amt.NewTree(e.backend, e.params, e.hash, e.cfg.Fanout, e.cfg.Depth, e.cfg.NodeCacheSize)
		return nil, [32]byte{}, lvmterr.Backend(errors.Wrap(err, "lvmt: commit write"))
	}
	if err := e.backend.Flush(); err != nil {
		return nil, [32]byte{}, lvmterr.Backend(errors.Wrap(err, "lvmt: commit flush"))
	}

	e.lastEpoch = epoch
	e.writeCache = make(map[string]cacheEntry)
	e.log.Info("commit", zap.Uint64("epoch", epoch), zap.Int("writes", len(writes)))

	if e.cfg.OnlyMerkleRoot {
		return nil, rootHash, nil
	}
	return commitment, rootHash, nil
}

// Prove builds an inclusion proof for key as of the last commit. It
// requires at least one commit to have occurred and ignores the
// uncommitted write cache (spec.md §4.4 "prove").
func (e *Engine) Prove(key []byte) (*amt.Proof, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if err := e.checkSealed(); err != nil {
		return nil, err
	}
	proof, err := e.tree.ProveKey(key, e.cfg.shardFilter())
	if err != nil {
		if errors.Is(err, lvmterr.ErrIntegrity) {
			return nil, e.fail(err)
		}
		return nil, err
	}
	return proof, nil
}

// Verify checks proof against rootCommitment for key, touching no
// engine state (spec.md §4.4 "verify").
func (e *Engine) Verify(key []byte, proof *amt.Proof, rootCommitment kyber.Point) error {
	return amt.Verify(e.params, e.hash, rootCommitment, key, proof)
}

// Backend returns the underlying store for diagnostics or metrics
// (spec.md §6 "backend() -> Option<&KeyValueStore>").
func (e *Engine) Backend() (storage.Backend, bool) {
	if e.backend == nil {
		return nil, false
	}
	return e.backend, true
}

// LastEpoch returns the last successfully committed epoch number.
func (e *Engine) LastEpoch() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastEpoch
}
