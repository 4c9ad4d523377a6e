// Proof construction and verification, grounded on the teacher's
// models/trie_kzg_bn256/proof.go ProofOfInclusion pattern: a root-to-leaf
// path of per-level openings, adapted from the teacher's path-fragment
// node shape to LVMT's fixed-fanout slot vectors (spec.md §4.3).
package amt

import (
	"github.com/cockroachdb/errors"
	"github.com/lvmt-go/lvmt/kzgparams"
	"github.com/lvmt-go/lvmt/lvmterr"
	"go.dedis.ch/kyber/v3"
)

// ProofStep is one level of a root-to-leaf inclusion proof. Commitment
// is the node commitment this level's opening was produced against;
// the spec's path tuple (d_ℓ, s_ℓ, π_ℓ) alone is not enough for the
// verifier to re-derive it, since a KZG opening does not reveal the
// commitment it was checked against.
type ProofStep struct {
	Index      int
	Commitment kyber.Point
	Scalar     kyber.Scalar
	Opening    kyber.Point
}

// Proof is the root-to-leaf witness produced by ProveKey.
type Proof struct {
	Path  []ProofStep
	Value []byte
}

// ProveKey walks root to leaf recording, at each level, the slot index,
// node commitment, slot scalar and KZG opening for that position
// (spec.md §4.3 "Proof construction for key k"). shard may be nil.
func (t *Tree) ProveKey(key []byte, shard *ShardFilter) (*Proof, error) {
	h := t.Hash(key)
	if !shard.Contains(h) {
		return nil, lvmterr.ErrShardMismatch
	}
	digits := RoutingDigits(h, t.Fanout, t.Depth)

	var prefix []byte
	var path []ProofStep
	for level := 0; level < t.Depth; level++ {
		node, err := t.Nodes.Load(prefix)
		if err != nil {
			return nil, err
		}
		idx := digits[level]
		slot := node.Slots[idx]
		if !slot.Occupied() {
			return nil, lvmterr.ErrUnknownKey
		}

		step := ProofStep{
			Index:      idx,
			Commitment: node.Commitment.Clone(),
			Scalar:     scalarForSlot(t.Params, slot),
			Opening:    t.Params.Open(node.ScalarVector(t.Params), idx),
		}
		path = append(path, step)

		if slot.Present {
			occupantHash, err := getLeafIndex(t.Backend, prefix, idx)
			if err != nil {
				return nil, err
			}
			if occupantHash != h {
				// the leaf on this path belongs to another key
				return nil, lvmterr.ErrUnknownKey
			}
			value, err := getValue(t.Backend, h, slot.Version)
			if err != nil {
				return nil, err
			}
			return &Proof{Path: path, Value: value}, nil
		}
		prefix = append(append([]byte{}, prefix...), byte(idx))
	}
	return nil, lvmterr.ErrUnknownKey
}

// Verify is a pure function of its inputs and the public params
// (spec.md §4.4 "verify(...) -> Result<(), VerifyError>"): it touches
// no engine state. rootCommitment is the claimed root to verify
// against.
func Verify(params *kzgparams.Params, hash HashFunc, rootCommitment kyber.Point, key []byte, proof *Proof) error {
	if proof == nil || len(proof.Path) == 0 {
		return lvmterr.NewVerifyError(lvmterr.VerifyPathMismatch, 0)
	}
	h := hash(key)
	digits := RoutingDigits(h, params.N, len(proof.Path))

	for level, step := range proof.Path {
		if step.Index != digits[level] {
			return lvmterr.NewVerifyError(lvmterr.VerifyPathMismatch, level)
		}
		if level == 0 && !rootCommitment.Equal(step.Commitment) {
			return lvmterr.NewVerifyError(lvmterr.VerifyPathMismatch, level)
		}
		if !params.Verify(step.Commitment, step.Opening, step.Scalar, step.Index) {
			return lvmterr.NewVerifyError(lvmterr.VerifyBadPairing, level)
		}

		if level < len(proof.Path)-1 {
			nextDigest, err := commitmentDigest(hash, proof.Path[level+1].Commitment)
			if err != nil {
				return lvmterr.NewVerifyError(lvmterr.VerifyPathMismatch, level)
			}
			if !DigestMatches(params.Suite, step.Scalar, nextDigest) {
				return lvmterr.NewVerifyError(lvmterr.VerifyPathMismatch, level)
			}
			continue
		}
		if !DigestMatches(params.Suite, step.Scalar, hash(proof.Value)) {
			return lvmterr.NewVerifyError(lvmterr.VerifyPathMismatch, level)
		}
	}
	return nil
}

func commitmentDigest(hash HashFunc, c kyber.Point) ([32]byte, error) {
	b, err := c.MarshalBinary()
	if err != nil {
		return [32]byte{}, errors.Wrap(err, "amt: marshal commitment for digest")
	}
	return hash(b), nil
}
