package amt

import (
	"math/big"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// HashName selects the digest used for subtree hashing and
// value-column keys (SPEC_FULL.md §4.2, config option `hash`).
type HashName string

const (
	HashBlake2b   HashName = "blake2b"
	HashKeccak256 HashName = "keccak256"
)

// HashFunc digests arbitrary bytes down to the 32-byte domain the tree
// routes and authenticates over.
type HashFunc func([]byte) [32]byte

// Resolve returns the concrete digest function for a HashName.
func (n HashName) Resolve() (HashFunc, error) {
	switch n {
	case HashBlake2b, "":
		return hashBlake2b, nil
	case HashKeccak256:
		return hashKeccak256, nil
	default:
		return nil, errUnknownHash(n)
	}
}

func hashBlake2b(data []byte) [32]byte {
	return blake2b.Sum256(data)
}

func hashKeccak256(data []byte) [32]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

type errUnknownHash string

func (e errUnknownHash) Error() string { return "amt: unknown hash function " + string(e) }

// RoutingDigits interprets h as a big-endian number and returns the
// first depth digits of its base-fanout expansion, most significant
// digit first (SPEC_FULL.md §3 "one byte of the routing hash per level", i.e.
// digit[0],digit[1],... = h[0],h[1],... when fanout is 256).
//
// The digit at a given level must not depend on depth: ProveKey calls
// this with the tree's full depth, while Verify only knows the depth
// of the proof it was handed (the leaf level, which is typically
// shallower), and the two must agree on every level they share. So the
// expansion always runs over digitCapacity(fanout) digits - the number
// of base-fanout digits needed to exactly cover a 256-bit hash - and
// depth only truncates the result, it never changes which digit lands
// at which level.
func RoutingDigits(h [32]byte, fanout, depth int) []int {
	total := digitCapacity(fanout)
	if depth > total {
		depth = total
	}
	full := fullDigits(h, fanout, total)
	return full[:depth]
}

// digitCapacity returns the smallest n such that fanout^n >= 2^256, the
// number of base-fanout digits needed to represent any 256-bit hash
// without truncation. For fanout=256 this is exactly 32, i.e. one digit
// per hash byte.
func digitCapacity(fanout int) int {
	base := big.NewInt(int64(fanout))
	limit := new(big.Int).Lsh(big.NewInt(1), 256)
	pow := big.NewInt(1)
	n := 0
	for pow.Cmp(limit) < 0 {
		pow.Mul(pow, base)
		n++
	}
	return n
}

// fullDigits returns h's base-fanout expansion over exactly total
// digits, most significant digit first.
func fullDigits(h [32]byte, fanout, total int) []int {
	n := new(big.Int).SetBytes(h[:])
	base := big.NewInt(int64(fanout))
	digits := make([]int, total)
	m := new(big.Int)
	for i := total - 1; i >= 0; i-- {
		n.DivMod(n, base, m)
		digits[i] = int(m.Int64())
	}
	return digits
}
