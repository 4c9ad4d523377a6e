// Node serialization follows SPEC_FULL.md §4.2's bit-level format:
// [ver:1 | slot_count:2 LE | commitment | slot[slot_count]], each slot
// [version_varint | digest:32 | flags:1]. Trailing untouched slots are
// omitted; slot_count is the index of the last touched slot plus one.
package amt

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/lvmt-go/lvmt/kzgparams"
	"github.com/lvmt-go/lvmt/lvmterr"
	"go.dedis.ch/kyber/v3"
)

const nodeFormatV1 = 1

const flagPresent = 1 << 0

// Node is one AMT tree node, uniform whether it is the root or an
// interior node (spec.md §3: "Root is treated uniformly"). Children
// are addressed by path-prefix lookup through a NodeStore, not by
// in-memory pointer (SPEC_FULL.md §9 "Cyclic parent/child references").
type Node struct {
	Prefix     []byte
	Fanout     int
	Slots      []Slot
	Commitment kyber.Point
	Dirty      bool
}

// NewEmptyNode creates a node with fanout slots, all untouched, and the
// identity commitment (the polynomial commitment of the all-zero
// vector).
func NewEmptyNode(prefix []byte, fanout int, params *kzgparams.Params) *Node {
	return &Node{
		Prefix:     append([]byte(nil), prefix...),
		Fanout:     fanout,
		Slots:      make([]Slot, fanout),
		Commitment: params.Suite.G1().Point().Null(),
	}
}

func scalarForSlot(params *kzgparams.Params, s Slot) kyber.Scalar {
	if s.Untouched() {
		return params.ZeroScalar()
	}
	return EncodeSlot(params.Suite, s.Version, s.Digest)
}

// Recompute sets n.Commitment to the full polynomial commitment of the
// current slot vector. DeserializeNode does not call it: a decoded node
// keeps the commitment stored in its bytes.
func (n *Node) Recompute(params *kzgparams.Params) {
	vect := make([]kyber.Scalar, len(n.Slots))
	for i, s := range n.Slots {
		vect[i] = scalarForSlot(params, s)
	}
	n.Commitment = params.Commit(vect)
}

// SetSlot bumps the slot's version and applies the incremental
// commitment update C' = C + delta*L_i(tau)*G1 (spec.md §4.3 "Per-slot
// update"). digest is H(value) at a leaf, H(child commitment) at an
// interior pointer, or the zero digest to vacate the slot.
func (n *Node) SetSlot(params *kzgparams.Params, index int, digest [32]byte, present bool) Slot {
	old := n.Slots[index]
	newSlot := Slot{Version: old.Version + 1, Digest: digest, Present: present}

	oldScalar := scalarForSlot(params, old)
	newScalar := scalarForSlot(params, newSlot)
	delta := params.Suite.G1().Scalar().Sub(newScalar, oldScalar)
	n.Commitment = params.UpdateCommitment(n.Commitment, index, delta)

	n.Slots[index] = newSlot
	n.Dirty = true
	return newSlot
}

// ScalarVector returns the node's slot vector in the evaluation-form
// representation Params.Commit/Open expect.
func (n *Node) ScalarVector(params *kzgparams.Params) []kyber.Scalar {
	vect := make([]kyber.Scalar, len(n.Slots))
	for i, s := range n.Slots {
		vect[i] = scalarForSlot(params, s)
	}
	return vect
}

func lastTouchedIndex(slots []Slot) int {
	for i := len(slots) - 1; i >= 0; i-- {
		if !slots[i].Untouched() {
			return i
		}
	}
	return -1
}

// Serialize encodes the node per the pinned wire format.
func (n *Node) Serialize(params *kzgparams.Params) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(nodeFormatV1)

	used := lastTouchedIndex(n.Slots) + 1
	var countBuf [2]byte
	binary.LittleEndian.PutUint16(countBuf[:], uint16(used))
	buf.Write(countBuf[:])

	cbytes, err := n.Commitment.MarshalBinary()
	if err != nil {
		return nil, errors.Wrap(err, "amt: marshal node commitment")
	}
	buf.Write(cbytes)

	var varintBuf [binary.MaxVarintLen64]byte
	for i := 0; i < used; i++ {
		s := n.Slots[i]
		m := binary.PutUvarint(varintBuf[:], s.Version)
		buf.Write(varintBuf[:m])
		buf.Write(s.Digest[:])
		var flags byte
		if s.Present {
			flags |= flagPresent
		}
		buf.WriteByte(flags)
	}
	return buf.Bytes(), nil
}

// DeserializeNode decodes bytes produced by Serialize. prefix and
// fanout are supplied by the caller (the node key and the configured
// fanout), not carried in the wire format.
func DeserializeNode(params *kzgparams.Params, prefix []byte, fanout int, data []byte) (*Node, error) {
	r := bytes.NewReader(data)
	ver, err := r.ReadByte()
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "amt: read node format byte"), lvmterr.ErrIntegrity)
	}
	if ver != nodeFormatV1 {
		return nil, errors.Mark(errors.Newf("amt: unknown node format version %d", ver), lvmterr.ErrIntegrity)
	}

	var countBuf [2]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "amt: read slot count"), lvmterr.ErrIntegrity)
	}
	used := int(binary.LittleEndian.Uint16(countBuf[:]))
	if used > fanout {
		return nil, errors.Mark(errors.Newf("amt: node slot_count %d exceeds fanout %d", used, fanout), lvmterr.ErrIntegrity)
	}

	commitment := params.Suite.G1().Point()
	if _, err := commitment.UnmarshalFrom(r); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "amt: read node commitment"), lvmterr.ErrIntegrity)
	}

	n := &Node{
		Prefix:     append([]byte(nil), prefix...),
		Fanout:     fanout,
		Slots:      make([]Slot, fanout),
		Commitment: commitment,
	}
	for i := 0; i < used; i++ {
		version, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "amt: read slot version"), lvmterr.ErrIntegrity)
		}
		var digest [32]byte
		if _, err := io.ReadFull(r, digest[:]); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "amt: read slot digest"), lvmterr.ErrIntegrity)
		}
		flags, err := r.ReadByte()
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "amt: read slot flags"), lvmterr.ErrIntegrity)
		}
		n.Slots[i] = Slot{Version: version, Digest: digest, Present: flags&flagPresent != 0}
	}
	return n, nil
}

// CommitmentDigest returns H(commitment bytes), the subtree_digest a
// parent slot stores for this node (spec.md §3 invariant I2).
func (n *Node) CommitmentDigest(hash HashFunc) ([32]byte, error) {
	b, err := n.Commitment.MarshalBinary()
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "amt: marshal commitment for digest")
	}
	return hash(b), nil
}
