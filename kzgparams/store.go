package kzgparams

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"go.dedis.ch/kyber/v3"
	"go.dedis.ch/kyber/v3/pairing/bn256"
)

// On-disk layout of the pp/ directory (§6): a fixed filename for the
// serialized parameters and one for the integrity hash over it. Grounded
// on the teacher's single-file TrustedSetupFromFile/Bytes round trip in
// models/trie_kzg_bn256, split into two files here so the MAC can be
// checked without touching the (potentially large) parameter blob twice.
const (
	paramsFileName = "params.bin"
	hashFileName   = "params.hash"
)

// Save writes Params to dir/params.bin and dir/params.hash. The directory
// is created if it does not exist.
func Save(dir string, p *Params) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "kzgparams: creating params directory")
	}
	data := p.Bytes()
	if err := os.WriteFile(filepath.Join(dir, paramsFileName), data, 0o600); err != nil {
		return errors.Wrap(err, "kzgparams: writing params file")
	}
	h := Hash(data)
	if err := os.WriteFile(filepath.Join(dir, hashFileName), h[:], 0o600); err != nil {
		return errors.Wrap(err, "kzgparams: writing params hash")
	}
	return nil
}

// Load reads and integrity-checks Params from dir, for the given fan-out
// n. Failure modes map directly onto spec.md §4.1's ParamError taxonomy.
func Load(suite *bn256.Suite, dir string, n int) (*Params, error) {
	dataPath := filepath.Join(dir, paramsFileName)
	hashPath := filepath.Join(dir, hashFileName)

	data, err := os.ReadFile(dataPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Mark(errors.Wrapf(err, "kzgparams: %s", dataPath), ErrNotFound)
		}
		return nil, errors.Wrap(err, "kzgparams: reading params file")
	}
	wantHash, err := os.ReadFile(hashPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Mark(errors.Wrapf(err, "kzgparams: %s", hashPath), ErrNotFound)
		}
		return nil, errors.Wrap(err, "kzgparams: reading params hash")
	}
	gotHash := Hash(data)
	if len(wantHash) != len(gotHash) || string(wantHash) != string(gotHash[:]) {
		return nil, errors.Mark(errors.New("kzgparams: integrity hash mismatch"), ErrIntegrity)
	}

	p, err := FromBytes(suite, data)
	if err != nil {
		return nil, err
	}
	if p.N != n {
		return nil, errors.Mark(
			errors.Newf("kzgparams: params directory has N=%d, expected %d", p.N, n),
			ErrMismatch,
		)
	}
	return p, nil
}

// GenerateAndSave runs a trusted setup derivation from secret and persists
// the result to dir in one step. secret is zeroed by the caller once this
// returns; Params never retains a reference to it.
func GenerateAndSave(suite *bn256.Suite, dir string, n int, secret kyber.Scalar) (*Params, error) {
	p, err := GenerateFromSecret(suite, n, secret)
	if err != nil {
		return nil, err
	}
	if err := Save(dir, p); err != nil {
		return nil, err
	}
	return p, nil
}
