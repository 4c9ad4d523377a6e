package amt

// ShardFilter restricts proof material to keys whose low bits of
// H(key) select this shard (spec.md §4.3 "Sharding (optional)"). It is
// consulted only by ProveKey; commitments are always fully maintained
// regardless of sharding, so CommitEpoch never looks at it.
type ShardFilter struct {
	Shards int
	Index  int
}

// Contains reports whether h routes to this shard. A nil filter or
// Shards<=1 means "no sharding": every key belongs.
func (f *ShardFilter) Contains(h [32]byte) bool {
	if f == nil || f.Shards <= 1 {
		return true
	}
	low := uint32(h[30])<<8 | uint32(h[31])
	return int(low&uint32(f.Shards-1)) == f.Index
}
