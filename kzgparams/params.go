// Package kzgparams holds the public parameters of the KZG-style vector
// commitment scheme used by package amt: powers-of-tau in G1/G2, the
// Lagrange basis commitments for a size-N evaluation domain, and the
// per-index opening bases needed to produce and verify inclusion proofs.
//
// The derivation follows the pairing arithmetic used throughout the
// models/trie_kzg_bn256 package this module was grounded on: a BN256
// pairing suite from go.dedis.ch/kyber, one polynomial per AMT node
// represented in evaluation (Lagrange) form over a domain of N points,
// and additive homomorphic commitments so that changing one coordinate
// of the vector updates the commitment with a single scalar multiply.
package kzgparams

import (
	"bytes"
	"io"
	"math/big"

	"github.com/cockroachdb/errors"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"golang.org/x/crypto/blake2b"
)

// Sentinel errors per the spec's ParamError taxonomy. All are fatal at
// engine construction.
var (
	ErrNotFound  = errors.New("kzgparams: parameters not found")
	ErrIntegrity = errors.New("kzgparams: parameters file is corrupt")
	ErrMismatch  = errors.New("kzgparams: domain size does not match compiled fanout")
)

// Params is the immutable handle to the trusted-setup-derived public
// parameters for one fan-out N. It is constructed once per process and
// passed by reference into every component that needs to commit, open,
// or verify — there is no mutable global (see Design Notes §9 in
// SPEC_FULL.md).
type Params struct {
	Suite *bn256.Suite
	N     int

	// Domain[i] is the i-th evaluation point of the size-N domain: the
	// N-th root of unity ω^i when N divides (fieldOrder-1), or the
	// natural number (i+1) when no such root of unity exists.
	Domain []kyber.Scalar

	// LagrangeBasis[i] = L_i(τ)·G1, used both to commit (Σ s_i·L_i(τ)G1)
	// and to update a commitment incrementally (C' = C + Δ·L_i(τ)G1).
	LagrangeBasis []kyber.Point

	// Diff2[i] = (τ - Domain[i])·G2, the right-hand pairing argument
	// used to verify an opening at index i.
	Diff2 []kyber.Point

	zero kyber.Scalar
}

// N used as the fan-out of one AMT node. 256 means one routing digit is
// one byte of the key's digest.
const DefaultFanout = 256

// GenRootOfUnityQuasiPrimitive returns a generator of the unique subgroup
// of order n of the scalar field, used as the evaluation domain's root of
// unity. Grounded on the teacher's function of the same name in
// models/trie_kzg_bn256; "quasi-primitive" because it searches small
// candidate bases rather than factoring the full multiplicative group.
func GenRootOfUnityQuasiPrimitive(suite *bn256.Suite, n int) (kyber.Scalar, error) {
	order := fieldOrder(suite)
	nBig := big.NewInt(int64(n))
	mod := new(big.Int).Mod(new(big.Int).Sub(order, big.NewInt(1)), nBig)
	if mod.Sign() != 0 {
		return nil, errors.Newf("kzgparams: field order - 1 is not divisible by %d, use a natural-number domain instead", n)
	}
	exp := new(big.Int).Div(new(big.Int).Sub(order, big.NewInt(1)), nBig)
	for candidate := int64(2); candidate < 1<<16; candidate++ {
		g := suite.G1().Scalar().SetInt64(candidate)
		gBig := scalarToBig(g)
		omega := new(big.Int).Exp(gBig, exp, order)
		if isPrimitiveNthRoot(omega, int64(n), order) {
			ret := suite.G1().Scalar()
			ret.SetBytes(omega.Bytes())
			return ret, nil
		}
	}
	return nil, errors.New("kzgparams: could not find a primitive root of unity")
}

func isPrimitiveNthRoot(omega *big.Int, n int64, order *big.Int) bool {
	check := new(big.Int).Exp(omega, big.NewInt(n), order)
	if check.Cmp(big.NewInt(1)) != 0 {
		return false
	}
	// primitive: no proper divisor d of n has omega^d == 1
	for d := int64(1); d < n; d++ {
		if n%d != 0 {
			continue
		}
		if new(big.Int).Exp(omega, big.NewInt(d), order).Cmp(big.NewInt(1)) == 0 {
			return false
		}
	}
	return true
}

func fieldOrder(suite *bn256.Suite) *big.Int {
	// the BN256 scalar field order, computed as (-1 mod order) + 1 from
	// the byte encoding of the scalar -1.
	negOne := suite.G1().Scalar().SetInt64(-1)
	one := big.NewInt(1)
	order := new(big.Int).Add(scalarToBig(negOne), one)
	return order
}

func scalarToBig(s kyber.Scalar) *big.Int {
	b, err := s.MarshalBinary()
	if err != nil {
		panic(err)
	}
	// bn256 scalars marshal big-endian, the same byte order SetBytes
	// reads (see GenRootOfUnityQuasiPrimitive's SetBytes(omega.Bytes())).
	return new(big.Int).SetBytes(b)
}

// GenerateFromSecret derives Params from a one-time secret τ ("powers of
// tau"). The caller is responsible for destroying secret after the call
// returns; this mirrors cmd/kzgsetup which zeroes its scalar immediately
// after deriving Params.
func GenerateFromSecret(suite *bn256.Suite, n int, secret kyber.Scalar) (*Params, error) {
	omega, err := GenRootOfUnityQuasiPrimitive(suite, n)
	if err != nil {
		return nil, err
	}
	return generate(suite, n, omega, secret, true)
}

// GenerateNaturalDomain derives Params over the domain {1,2,...,n} instead
// of roots of unity, for fan-outs where no n-th root of unity exists in
// the scalar field (§4.1: "if N is not a power of two, a subgroup FFT
// domain is chosen instead and must be documented").
func GenerateNaturalDomain(suite *bn256.Suite, n int, secret kyber.Scalar) (*Params, error) {
	return generate(suite, n, nil, secret, false)
}

func generate(suite *bn256.Suite, n int, omega, secret kyber.Scalar, rootsOfUnity bool) (*Params, error) {
	domain := make([]kyber.Scalar, n)
	if rootsOfUnity {
		cur := suite.G1().Scalar().One()
		for i := 0; i < n; i++ {
			domain[i] = cur.Clone()
			cur = suite.G1().Scalar().Mul(cur, omega)
		}
	} else {
		for i := 0; i < n; i++ {
			domain[i] = suite.G1().Scalar().SetInt64(int64(i + 1))
		}
	}

	// powers of tau in G1, used to evaluate each Lagrange basis
	// polynomial L_i(τ) via its coefficient-form conversion.
	lagrange := make([]kyber.Point, n)
	diff2 := make([]kyber.Point, n)
	g2Base := suite.G2().Point().Base()
	tauG2 := suite.G2().Point().Mul(secret, g2Base)

	for i := 0; i < n; i++ {
		li := lagrangeAtTau(suite, domain, i, secret)
		lagrange[i] = suite.G1().Point().Mul(li, nil)

		d2 := suite.G2().Point().Mul(domain[i], g2Base)
		diff2[i] = suite.G2().Point().Sub(tauG2, d2)
	}

	return &Params{
		Suite:         suite,
		N:             n,
		Domain:        domain,
		LagrangeBasis: lagrange,
		Diff2:         diff2,
		zero:          suite.G1().Scalar().Zero(),
	}, nil
}

// lagrangeAtTau evaluates the i-th Lagrange basis polynomial of the given
// domain at the secret point τ: L_i(τ) = Π_{j≠i} (τ-ω_j)/(ω_i-ω_j).
func lagrangeAtTau(suite *bn256.Suite, domain []kyber.Scalar, i int, tau kyber.Scalar) kyber.Scalar {
	num := suite.G1().Scalar().One()
	den := suite.G1().Scalar().One()
	tmp := suite.G1().Scalar()
	for j, dj := range domain {
		if j == i {
			continue
		}
		tmp.Sub(tau, dj)
		num.Mul(num, tmp)
		tmp.Sub(domain[i], dj)
		den.Mul(den, tmp)
	}
	den.Inv(den)
	return num.Mul(num, den)
}

// ZeroScalar returns the additive identity of the scalar field, cached on
// Params since it is allocated often during commit updates.
func (p *Params) ZeroScalar() kyber.Scalar {
	return p.zero.Clone()
}

// Commit computes Σ_i vect[i]·L_i(τ)G1 for a slot vector in evaluation
// form; nil entries are treated as zero.
func (p *Params) Commit(vect []kyber.Scalar) kyber.Point {
	ret := p.Suite.G1().Point().Null()
	elem := p.Suite.G1().Point()
	for i, s := range vect {
		if s == nil {
			continue
		}
		elem.Mul(s, p.LagrangeBasis[i])
		ret.Add(ret, elem)
	}
	return ret
}

// UpdateCommitment applies the incremental update rule of §4.3:
// C' = C + Δ·L_i(τ)G1, where Δ = newScalar - oldScalar.
func (p *Params) UpdateCommitment(c kyber.Point, index int, delta kyber.Scalar) kyber.Point {
	elem := p.Suite.G1().Point().Mul(delta, p.LagrangeBasis[index])
	return p.Suite.G1().Point().Add(c, elem)
}

// Open produces the KZG opening π_i for position i of a slot vector
// committed to by Commit(vect). It follows the barycentric evaluation of
// the quotient polynomial q(X) = (f(X)-f_i)/(X-ω_i), in evaluation form,
// the same approach as models/trie_kzg_bn256/fun.go's prove().
func (p *Params) Open(vect []kyber.Scalar, index int) kyber.Point {
	ret := p.Suite.G1().Point().Null()
	elem := p.Suite.G1().Point()
	qm := p.Suite.G1().Scalar()
	for m := range p.Domain {
		p.quotientAt(vect, index, m, qm)
		elem.Mul(qm, p.LagrangeBasis[m])
		ret.Add(ret, elem)
	}
	return ret
}

// quotientAt computes q(ω_m), the evaluation at domain point m of the
// quotient polynomial for opening index `index`, and stores it in ret.
func (p *Params) quotientAt(vect []kyber.Scalar, index, m int, ret kyber.Scalar) {
	fi := valueAt(vect, index, p.zero)
	if m != index {
		fm := valueAt(vect, m, p.zero)
		ret.Sub(fm, fi)
		invDen := p.Suite.G1().Scalar().Sub(p.Domain[m], p.Domain[index])
		invDen.Inv(invDen)
		ret.Mul(ret, invDen)
		return
	}
	// diagonal term: barycentric derivative formula
	// q(ω_i) = sum_{j!=i} (f_j - f_i) * w_j / (w_i * (w_i - w_j))
	ret.Zero()
	term := p.Suite.G1().Scalar()
	ratio := p.Suite.G1().Scalar()
	for j := range p.Domain {
		if j == index {
			continue
		}
		ratio.Sub(p.Domain[index], p.Domain[j])
		ratio.Inv(ratio)
		ratio.Mul(ratio, p.Domain[j])
		invI := p.Suite.G1().Scalar().Inv(p.Domain[index])
		ratio.Mul(ratio, invI)

		fj := valueAt(vect, j, p.zero)
		term.Sub(fj, fi)
		term.Mul(term, ratio)
		ret.Add(ret, term)
	}
}

func valueAt(vect []kyber.Scalar, i int, zero kyber.Scalar) kyber.Scalar {
	if i >= len(vect) || vect[i] == nil {
		return zero
	}
	return vect[i]
}

// Verify checks the KZG opening identity e(C - v·G1, G2) = e(π, Diff2[i])
// for the given commitment C, proof π, claimed value v, and position i.
// C = f(τ)G1 for the polynomial f interpolating the slot vector, so the
// identity holds when f(Domain[i]) = v.
func (p *Params) Verify(c, proof kyber.Point, v kyber.Scalar, index int) bool {
	if index < 0 || index >= p.N {
		return false
	}
	lhsPoint := p.Suite.G1().Point().Mul(v, nil)
	lhsPoint.Sub(c, lhsPoint)
	lhs := p.Suite.Pair(lhsPoint, p.Suite.G2().Point().Base())
	rhs := p.Suite.Pair(proof, p.Diff2[index])
	return lhs.Equal(rhs)
}

// Bytes serializes Params for on-disk caching (see Load/Save).
func (p *Params) Bytes() []byte {
	var buf bytes.Buffer
	mustWrite(&buf, func(w io.Writer) error { return writeUint32(w, uint32(p.N)) })
	for _, d := range p.Domain {
		mustMarshal(&buf, d)
	}
	for _, l := range p.LagrangeBasis {
		mustMarshal(&buf, l)
	}
	for _, d2 := range p.Diff2 {
		mustMarshal(&buf, d2)
	}
	return buf.Bytes()
}

// FromBytes deserializes Params previously produced by Bytes, validating
// that every element decodes against the given suite.
func FromBytes(suite *bn256.Suite, data []byte) (*Params, error) {
	r := bytes.NewReader(data)
	var n32 uint32
	if err := readUint32(r, &n32); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "kzgparams: reading N"), ErrIntegrity)
	}
	n := int(n32)

	domain := make([]kyber.Scalar, n)
	for i := range domain {
		domain[i] = suite.G1().Scalar()
		if _, err := domain[i].UnmarshalFrom(r); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "kzgparams: reading domain"), ErrIntegrity)
		}
	}
	lagrange := make([]kyber.Point, n)
	for i := range lagrange {
		lagrange[i] = suite.G1().Point()
		if _, err := lagrange[i].UnmarshalFrom(r); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "kzgparams: reading Lagrange basis"), ErrIntegrity)
		}
	}
	diff2 := make([]kyber.Point, n)
	for i := range diff2 {
		diff2[i] = suite.G2().Point()
		if _, err := diff2[i].UnmarshalFrom(r); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "kzgparams: reading Diff2"), ErrIntegrity)
		}
	}
	return &Params{
		Suite:         suite,
		N:             n,
		Domain:        domain,
		LagrangeBasis: lagrange,
		Diff2:         diff2,
		zero:          suite.G1().Scalar().Zero(),
	}, nil
}

// Hash returns the integrity digest stored alongside the params directory
// (§6 "an integrity hash over the concatenation"). Loaders MUST verify it.
func Hash(data []byte) [32]byte {
	return blake2b.Sum256(data)
}

// PointSize returns the wire size in bytes of one G1 point under this
// suite, used to size buffers for node/proof (de)serialization. It is a
// property of the pairing suite, not a fixed constant: BN256 G1 points
// are not the 48-byte compressed BLS12-381 points described in the
// spec's illustrative on-disk layout (see SPEC_FULL.md §3).
func (p *Params) PointSize() int {
	return p.Suite.G1().PointLen()
}

func mustMarshal(w io.Writer, m interface{ MarshalTo(io.Writer) (int, error) }) {
	if _, err := m.MarshalTo(w); err != nil {
		panic(err)
	}
}

func mustWrite(w io.Writer, f func(io.Writer) error) {
	if err := f(w); err != nil {
		panic(err)
	}
}
