package amt

import (
	"encoding/binary"

	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bn256"
)

// EncodingV1 packs a slot's (version, subtree_digest) pair into one
// scalar of the pairing's scalar field (spec.md §3 "Commitment scalar
// encoding", pinned per the Open Question in SPEC_FULL.md §9): the low
// 8 bytes hold the version counter, the next 23 bytes hold a truncated
// form of the digest, and the top byte is always zero. Zeroing the top
// byte keeps the packed 256-bit value under 2^248, comfortably below
// the BN256 scalar field order, so SetBytes never reduces it — the
// packing is exactly invertible, which DecodeVersion and DigestMatches
// rely on. Must be used identically by every prover and verifier; any
// change to the layout is a new encoding version.
const (
	encVersionBytes = 8
	encDigestBytes  = 23
	encTotalBytes   = 1 + encDigestBytes + encVersionBytes // 32
)

// EncodeSlot returns the scalar representing a slot whose counter is
// version and whose subtree digest (or H(value) at a leaf) is digest.
func EncodeSlot(suite *bn256.Suite, version uint64, digest [32]byte) kyber.Scalar {
	var buf [encTotalBytes]byte
	copy(buf[1:1+encDigestBytes], digest[:encDigestBytes])
	binary.BigEndian.PutUint64(buf[1+encDigestBytes:], version)
	s := suite.G1().Scalar()
	s.SetBytes(buf[:])
	return s
}

// DecodeVersion extracts the version counter packed into s by
// EncodeSlot. Only meaningful for scalars produced by EncodeSlot under
// the same suite.
func DecodeVersion(suite *bn256.Suite, s kyber.Scalar) uint64 {
	buf := scalarBytesBE(s)
	return binary.BigEndian.Uint64(buf[1+encDigestBytes:])
}

// DigestMatches reports whether s was encoded (by EncodeSlot, any
// version) with the given digest, truncated to encDigestBytes. Used by
// proof verification to confirm a claimed slot scalar encodes the
// expected child commitment hash or leaf value hash.
func DigestMatches(suite *bn256.Suite, s kyber.Scalar, digest [32]byte) bool {
	buf := scalarBytesBE(s)
	for i := 0; i < encDigestBytes; i++ {
		if buf[1+i] != digest[i] {
			return false
		}
	}
	return true
}

// scalarBytesBE returns the big-endian, encTotalBytes-wide
// representation of s. kyber's bn256 scalars marshal big-endian, the
// same byte order SetBytes reads in EncodeSlot; this left-pads so byte
// offsets line up with EncodeSlot.
func scalarBytesBE(s kyber.Scalar) [encTotalBytes]byte {
	be, err := s.MarshalBinary()
	if err != nil {
		panic(err)
	}
	var out [encTotalBytes]byte
	copy(out[encTotalBytes-len(be):], be)
	return out
}
