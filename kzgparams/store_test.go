package kzgparams

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.dedis.ch/kyber/v3/pairing/bn256"
	"go.dedis.ch/kyber/v3/util/random"
)

func TestGenerateAndSaveRoundTrip(t *testing.T) {
	suite := bn256.NewSuite()
	secret := suite.G1().Scalar().Pick(random.New())
	dir := t.TempDir()

	p, err := GenerateAndSave(suite, dir, testN, secret)
	require.NoError(t, err)

	loaded, err := Load(suite, dir, testN)
	require.NoError(t, err)
	require.Equal(t, p.Bytes(), loaded.Bytes())
}

func TestLoadMissingDirectory(t *testing.T) {
	suite := bn256.NewSuite()
	_, err := Load(suite, filepath.Join(t.TempDir(), "does-not-exist"), testN)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLoadCorruptHash(t *testing.T) {
	suite := bn256.NewSuite()
	secret := suite.G1().Scalar().Pick(random.New())
	dir := t.TempDir()
	_, err := GenerateAndSave(suite, dir, testN, secret)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, hashFileName), []byte("not a real hash"), 0o600))

	_, err = Load(suite, dir, testN)
	require.ErrorIs(t, err, ErrIntegrity)
}

func TestLoadMismatchedFanout(t *testing.T) {
	suite := bn256.NewSuite()
	secret := suite.G1().Scalar().Pick(random.New())
	dir := t.TempDir()
	_, err := GenerateAndSave(suite, dir, testN, secret)
	require.NoError(t, err)

	_, err = Load(suite, dir, testN*2)
	require.ErrorIs(t, err, ErrMismatch)
}
