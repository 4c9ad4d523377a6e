package amt

// Slot is one position in a node's slot vector (spec.md §3). Version
// counts how many times this exact (node, index) pair has been
// touched, independent of any other slot; it never resets, even when
// the slot is later vacated by a delete.
type Slot struct {
	Version uint64
	Digest  [32]byte
	Present bool
}

// Untouched reports whether this slot has never been written: its
// scalar contribution to the node's commitment is the field zero,
// distinct from a vacated (deleted) slot whose version keeps counting.
func (s Slot) Untouched() bool {
	return s.Version == 0
}

// Occupied reports whether descent should treat this slot as holding
// something: either a value (Present) or a pointer to a non-empty
// child subtree (non-zero Digest).
func (s Slot) Occupied() bool {
	return s.Present || s.Digest != [32]byte{}
}
