package lvmt

import (
	"github.com/cockroachdb/errors"
	"github.com/lvmt-go/lvmt/amt"
	"github.com/lvmt-go/lvmt/kzgparams"
	"github.com/lvmt-go/lvmt/lvmterr"
)

// Depth options recognized by Config (spec.md §6 "Recognized
// configuration"): compile-time-ish constants in typical deployments,
// but left as a runtime choice here since this module is a library.
const (
	Depth8  = 8
	Depth12 = 12
	Depth16 = 16
	Depth20 = 20
)

// Config collects the recognized configuration of spec.md §6.
type Config struct {
	// Depth is the maximum tree depth. Must be one of Depth8/12/16/20.
	Depth int
	// Fanout is the slot count per node. Default 256.
	Fanout int
	// Shards is the proof-sharding denominator; 1 means unsharded.
	Shards int
	// ShardIndex is this instance's shard, in [0, Shards).
	ShardIndex int
	// OnlyMerkleRoot, if true, skips emitting the G1 root commitment
	// from Commit and returns only the hash fingerprint. The engine
	// still maintains the full commitment internally — §6 describes
	// this as a presentation choice for hosts that don't handle group
	// elements, not a cheaper maintenance mode.
	OnlyMerkleRoot bool
	// Hash selects the digest for subtree hashing and value-column
	// keys. Default blake2b.
	Hash amt.HashName
	// NodeCacheSize bounds the clean-node LRU. <=0 uses amt.DefaultCacheSize.
	NodeCacheSize int
}

// DefaultConfig returns the configuration spec.md §6 lists as defaults.
func DefaultConfig() Config {
	return Config{
		Depth:      Depth20,
		Fanout:     kzgparams.DefaultFanout,
		Shards:     1,
		ShardIndex: 0,
		Hash:       amt.HashBlake2b,
	}
}

func (c Config) validate() error {
	switch c.Depth {
	case Depth8, Depth12, Depth16, Depth20:
	default:
		return errors.Newf("lvmt: depth %d is not one of {8,12,16,20}", c.Depth)
	}
	if c.Fanout <= 1 {
		return errors.Newf("lvmt: fanout must be > 1, got %d", c.Fanout)
	}
	if c.Shards < 1 || c.Shards&(c.Shards-1) != 0 {
		return errors.Newf("lvmt: shards must be a power of two >= 1, got %d", c.Shards)
	}
	if c.ShardIndex < 0 || c.ShardIndex >= c.Shards {
		return errors.Mark(errors.Newf("lvmt: shard_index %d out of range [0,%d)", c.ShardIndex, c.Shards), lvmterr.ErrShardOutOfRange)
	}
	return nil
}

func (c Config) shardFilter() *amt.ShardFilter {
	if c.Shards <= 1 {
		return nil
	}
	return &amt.ShardFilter{Shards: c.Shards, Index: c.ShardIndex}
}
