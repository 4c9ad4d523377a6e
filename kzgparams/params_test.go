package kzgparams

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/util/random"
)

// small domain for fast tests; production uses DefaultFanout (256)
const testN = 8

func genTestParams(t *testing.T) *Params {
	suite := bn256.NewSuite()
	secret := suite.G1().Scalar().Pick(random.New())
	p, err := GenerateFromSecret(suite, testN, secret)
	require.NoError(t, err)
	return p
}

func TestCommitOpenVerifySingle(t *testing.T) {
	p := genTestParams(t)
	vect := make([]kyber.Scalar, testN)
	vect[0] = p.Suite.G1().Scalar().SetInt64(42)

	c := p.Commit(vect)
	for i := 0; i < testN; i++ {
		pi := p.Open(vect, i)
		v := valueAt(vect, i, p.zero)
		require.True(t, p.Verify(c, pi, v, i), "index %d", i)
	}
}

func TestCommitOpenVerifyFull(t *testing.T) {
	p := genTestParams(t)
	vect := make([]kyber.Scalar, testN)
	for i := range vect {
		vect[i] = p.Suite.G1().Scalar().SetInt64(int64(i + 1))
	}
	c := p.Commit(vect)
	for i := range vect {
		pi := p.Open(vect, i)
		require.True(t, p.Verify(c, pi, vect[i], i))
	}
}

func TestVerifyRejectsWrongValue(t *testing.T) {
	p := genTestParams(t)
	vect := make([]kyber.Scalar, testN)
	for i := range vect {
		vect[i] = p.Suite.G1().Scalar().SetInt64(int64(i + 1))
	}
	c := p.Commit(vect)
	pi := p.Open(vect, 2)
	wrong := p.Suite.G1().Scalar().SetInt64(999)
	require.False(t, p.Verify(c, pi, wrong, 2))
}

func TestUpdateCommitmentMatchesRecompute(t *testing.T) {
	p := genTestParams(t)
	vect := make([]kyber.Scalar, testN)
	for i := range vect {
		vect[i] = p.Suite.G1().Scalar().SetInt64(int64(i + 1))
	}
	c0 := p.Commit(vect)

	newVal := p.Suite.G1().Scalar().SetInt64(100)
	delta := p.Suite.G1().Scalar().Sub(newVal, vect[3])
	c1Incremental := p.UpdateCommitment(c0, 3, delta)

	vect[3] = newVal
	c1Recomputed := p.Commit(vect)

	require.True(t, c1Incremental.Equal(c1Recomputed))
}

func TestSerializationRoundTrip(t *testing.T) {
	p := genTestParams(t)
	data := p.Bytes()
	back, err := FromBytes(p.Suite, data)
	require.NoError(t, err)
	require.Equal(t, data, back.Bytes())
}

func TestParamBinding(t *testing.T) {
	p1 := genTestParams(t)
	p2 := genTestParams(t) // independent trusted setup, different secret

	vect := make([]kyber.Scalar, testN)
	vect[0] = p1.Suite.G1().Scalar().SetInt64(7)
	c := p1.Commit(vect)
	pi := p1.Open(vect, 0)
	require.True(t, p1.Verify(c, pi, vect[0], 0))

	// swapping in an unrelated trusted setup's basis must reject
	require.False(t, p2.Verify(c, pi, vect[0], 0))
}
