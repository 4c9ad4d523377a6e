package amt

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/lvmt-go/lvmt/kzgparams"
	"github.com/lvmt-go/lvmt/lvmterr"
	"github.com/lvmt-go/lvmt/storage"
	"github.com/lvmt-go/lvmt/storage/memstore"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/util/random"
)

// small domain/depth so tests exercise real collisions and pushdowns
// without the 256-wide production fanout.
const (
	testFanout = 4
	testDepth  = 6
)

func genTestParams(t *testing.T) *kzgparams.Params {
	t.Helper()
	suite := bn256.NewSuite()
	secret := suite.G1().Scalar().Pick(random.New())
	p, err := kzgparams.GenerateFromSecret(suite, testFanout, secret)
	require.NoError(t, err)
	return p
}

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	return newTestTreeWithParams(t, genTestParams(t))
}

// newTestTreeWithParams builds a tree over a fresh backend but a
// caller-supplied *kzgparams.Params, so tests comparing commitments
// across independently-built trees (e.g. determinism under write
// order) share one trusted setup instead of each drawing its own
// random tau, which would make the commitments incomparable.
func newTestTreeWithParams(t *testing.T, params *kzgparams.Params) *Tree {
	t.Helper()
	backend := memstore.New()
	return NewTree(backend, params, HashBlake2b.mustResolve(t), testFanout, testDepth, 0)
}

// mustResolve is a test-only convenience; HashName.Resolve never fails
// for the built-in names.
func (n HashName) mustResolve(t *testing.T) HashFunc {
	t.Helper()
	h, err := n.Resolve()
	require.NoError(t, err)
	return h
}

func TestEmptyCommitProducesStableRoot(t *testing.T) {
	tree := newTestTree(t)
	c1, h1, ops1, err := tree.CommitEpoch(1, nil)
	require.NoError(t, err)
	// nodes are created lazily on first write, so an empty commit
	// dirties nothing and emits no ops
	require.Empty(t, ops1)

	tree2 := newTestTree(t)
	c2, h2, _, err := tree2.CommitEpoch(1, nil)
	require.NoError(t, err)
	require.True(t, c1.Equal(c2))
	require.Equal(t, h1, h2)
}

func TestSingleKeySetThenGet(t *testing.T) {
	tree := newTestTree(t)
	_, _, ops, err := tree.CommitEpoch(1, []WriteOp{{Key: []byte("alpha"), Value: []byte("one")}})
	require.NoError(t, err)
	require.NoError(t, tree.Backend.Write(ops))

	v, ok, err := tree.Get([]byte("alpha"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("one"), v)

	_, ok, err = tree.Get([]byte("missing"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOverwriteRotatesParityColumn(t *testing.T) {
	tree := newTestTree(t)
	_, _, ops, err := tree.CommitEpoch(1, []WriteOp{{Key: []byte("k"), Value: []byte("v1")}})
	require.NoError(t, err)
	require.NoError(t, tree.Backend.Write(ops))

	_, _, ops, err = tree.CommitEpoch(2, []WriteOp{{Key: []byte("k"), Value: []byte("v2")}})
	require.NoError(t, err)
	require.NoError(t, tree.Backend.Write(ops))

	v, ok, err := tree.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v2"), v)

	// version 1 (odd) put v1 in ColValNew; version 2 (even) moves the
	// value to ColValOld and deletes the ColValNew entry
	h := tree.Hash([]byte("k"))
	inOld, err := tree.Backend.Get(storage.ColValOld, h[:])
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), inOld)
	inNew, err := tree.Backend.Get(storage.ColValNew, h[:])
	require.NoError(t, err)
	require.Nil(t, inNew)
}

func TestDeleteRemovesKey(t *testing.T) {
	tree := newTestTree(t)
	_, _, ops, err := tree.CommitEpoch(1, []WriteOp{{Key: []byte("k"), Value: []byte("v")}})
	require.NoError(t, err)
	require.NoError(t, tree.Backend.Write(ops))

	_, _, ops, err = tree.CommitEpoch(2, []WriteOp{{Key: []byte("k"), Tombstone: true}})
	require.NoError(t, err)
	require.NoError(t, tree.Backend.Write(ops))

	_, ok, err := tree.Get([]byte("k"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestManyKeysTriggerCollisionPushdown(t *testing.T) {
	tree := newTestTree(t)
	var writes []WriteOp
	want := make(map[string]string)
	for i := 0; i < 64; i++ {
		k := fmt.Sprintf("key-%03d", i)
		v := fmt.Sprintf("val-%03d", i)
		writes = append(writes, WriteOp{Key: []byte(k), Value: []byte(v)})
		want[k] = v
	}
	_, _, ops, err := tree.CommitEpoch(1, writes)
	require.NoError(t, err)
	require.NoError(t, tree.Backend.Write(ops))

	for k, v := range want {
		got, ok, err := tree.Get([]byte(k))
		require.NoError(t, err)
		require.True(t, ok, "key %q should be present", k)
		require.Equal(t, v, string(got))
	}
}

func TestCommitDeterministicUnderWriteOrder(t *testing.T) {
	writes := []WriteOp{
		{Key: []byte("b"), Value: []byte("2")},
		{Key: []byte("a"), Value: []byte("1")},
		{Key: []byte("c"), Value: []byte("3")},
	}
	reversed := []WriteOp{writes[2], writes[1], writes[0]}

	params := genTestParams(t)

	t1 := newTestTreeWithParams(t, params)
	c1, h1, _, err := t1.CommitEpoch(1, writes)
	require.NoError(t, err)

	t2 := newTestTreeWithParams(t, params)
	c2, h2, _, err := t2.CommitEpoch(1, reversed)
	require.NoError(t, err)

	require.True(t, c1.Equal(c2))
	require.Equal(t, h1, h2)
}

func TestProveVerifyRoundTrip(t *testing.T) {
	tree := newTestTree(t)
	var writes []WriteOp
	for i := 0; i < 20; i++ {
		writes = append(writes, WriteOp{
			Key:   []byte(fmt.Sprintf("proof-key-%d", i)),
			Value: []byte(fmt.Sprintf("proof-val-%d", i)),
		})
	}
	root, _, ops, err := tree.CommitEpoch(1, writes)
	require.NoError(t, err)
	require.NoError(t, tree.Backend.Write(ops))

	for i := 0; i < 20; i++ {
		key := []byte(fmt.Sprintf("proof-key-%d", i))
		proof, err := tree.ProveKey(key, nil)
		require.NoError(t, err)
		require.Equal(t, []byte(fmt.Sprintf("proof-val-%d", i)), proof.Value)
		require.NoError(t, Verify(tree.Params, tree.Hash, root, key, proof))
	}
}

func TestVerifyRejectsTamperedValue(t *testing.T) {
	tree := newTestTree(t)
	_, _, ops, err := tree.CommitEpoch(1, []WriteOp{{Key: []byte("k"), Value: []byte("v")}})
	require.NoError(t, err)
	require.NoError(t, tree.Backend.Write(ops))

	root, err := tree.RootCommitment()
	require.NoError(t, err)
	proof, err := tree.ProveKey([]byte("k"), nil)
	require.NoError(t, err)

	proof.Value = []byte("tampered")
	err = Verify(tree.Params, tree.Hash, root, []byte("k"), proof)
	require.Error(t, err)
	var verr *lvmterr.VerifyError
	require.ErrorAs(t, err, &verr)
}

func TestVerifyRejectsWrongRoot(t *testing.T) {
	tree := newTestTree(t)
	_, _, ops, err := tree.CommitEpoch(1, []WriteOp{{Key: []byte("k"), Value: []byte("v")}})
	require.NoError(t, err)
	require.NoError(t, tree.Backend.Write(ops))

	proof, err := tree.ProveKey([]byte("k"), nil)
	require.NoError(t, err)

	otherTree := newTestTree(t)
	_, _, ops, err = otherTree.CommitEpoch(1, []WriteOp{{Key: []byte("other"), Value: []byte("v2")}})
	require.NoError(t, err)
	require.NoError(t, otherTree.Backend.Write(ops))
	wrongRoot, err := otherTree.RootCommitment()
	require.NoError(t, err)

	err = Verify(tree.Params, tree.Hash, wrongRoot, []byte("k"), proof)
	require.Error(t, err)
}

func TestProveUnknownKeyFails(t *testing.T) {
	tree := newTestTree(t)
	_, _, ops, err := tree.CommitEpoch(1, []WriteOp{{Key: []byte("k"), Value: []byte("v")}})
	require.NoError(t, err)
	require.NoError(t, tree.Backend.Write(ops))

	_, err = tree.ProveKey([]byte("absent"), nil)
	require.ErrorIs(t, err, lvmterr.ErrUnknownKey)
}

func TestProveShardMismatch(t *testing.T) {
	tree := newTestTree(t)
	_, _, ops, err := tree.CommitEpoch(1, []WriteOp{{Key: []byte("k"), Value: []byte("v")}})
	require.NoError(t, err)
	require.NoError(t, tree.Backend.Write(ops))

	h := tree.Hash([]byte("k"))
	mismatched := &ShardFilter{Shards: 2, Index: 1 - int(h[31]&1)}
	_, err = tree.ProveKey([]byte("k"), mismatched)
	require.ErrorIs(t, err, lvmterr.ErrShardMismatch)
}

func TestRandomReplayAgainstShadowMap(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	tree := newTestTree(t)
	shadow := make(map[string]string)

	for epoch := uint64(1); epoch <= 15; epoch++ {
		// one write per distinct key per epoch: CommitEpoch sorts by
		// key and Go's sort is not stable, so duplicate keys in one
		// batch would leave which-write-wins unspecified.
		batch := make(map[string]WriteOp)
		for i := 0; i < 10; i++ {
			k := fmt.Sprintf("rk-%d", rng.Intn(40))
			if rng.Intn(4) == 0 {
				batch[k] = WriteOp{Key: []byte(k), Tombstone: true}
				continue
			}
			v := fmt.Sprintf("v-%d-%d", epoch, i)
			batch[k] = WriteOp{Key: []byte(k), Value: []byte(v)}
		}
		var writes []WriteOp
		for k, op := range batch {
			writes = append(writes, op)
			if op.Tombstone {
				delete(shadow, k)
			} else {
				shadow[k] = string(op.Value)
			}
		}
		_, _, ops, err := tree.CommitEpoch(epoch, writes)
		require.NoError(t, err)
		require.NoError(t, tree.Backend.Write(ops))
	}

	for k, v := range shadow {
		got, ok, err := tree.Get([]byte(k))
		require.NoError(t, err)
		require.True(t, ok, "key %q should be present", k)
		require.Equal(t, v, string(got))
	}
}
