// Package lvmterr implements the error taxonomy of SPEC_FULL.md §7:
// backend errors, integrity errors, usage errors, parameter errors, and
// verification errors. Sentinel values are wrapped with
// github.com/cockroachdb/errors so callers get stack traces and
// errors.Is/As compatibility without the engine hand-rolling either.
package lvmterr

import (
	"github.com/cockroachdb/errors"
	"github.com/lvmt-go/lvmt/kzgparams"
)

// Sentinels. Wrap the underlying cause with errors.Mark(cause, Sentinel)
// so errors.Is(err, lvmterr.ErrBackend) keeps working through wrapping.
var (
	// ErrBackend marks I/O failures surfaced from the KeyValueStore.
	// A failed write leaves the engine at its pre-commit state.
	ErrBackend = errors.New("lvmt: backend error")

	// ErrIntegrity marks a corrupt node, missing commitment, or a
	// digest mismatch between parent and child. Fatal: once observed,
	// the engine refuses all further operations.
	ErrIntegrity = errors.New("lvmt: integrity error")

	// ErrEpochRegress is returned by Commit when epoch <= last
	// committed epoch. State is left unchanged.
	ErrEpochRegress = errors.New("lvmt: epoch must be strictly greater than the last committed epoch")

	// ErrUnknownKey is returned by Prove when no leaf terminates on the
	// key's routing path.
	ErrUnknownKey = errors.New("lvmt: unknown key")

	// ErrShardOutOfRange is returned when a shard index is requested
	// outside [0, shards).
	ErrShardOutOfRange = errors.New("lvmt: shard index out of range")

	// ErrShardMismatch is returned by Prove when the requested key's
	// routing hash does not belong to this instance's shard.
	ErrShardMismatch = errors.New("lvmt: key does not belong to this shard")

	// ErrParamNotFound, ErrParamIntegrity, ErrParamMismatch alias the
	// kzgparams package's sentinels so callers of this package do not
	// need to import kzgparams to check error identity.
	ErrParamNotFound  = kzgparams.ErrNotFound
	ErrParamIntegrity = kzgparams.ErrIntegrity
	ErrParamMismatch  = kzgparams.ErrMismatch

	// ErrSealed marks the engine state after a fatal integrity error:
	// every subsequent call returns this until the process is restarted.
	ErrSealed = errors.New("lvmt: engine sealed after integrity error, restart required")
)

// Backend wraps cause with ErrBackend.
func Backend(cause error) error {
	return errors.Mark(errors.WithStack(cause), ErrBackend)
}

// Integrity wraps cause with ErrIntegrity.
func Integrity(cause error) error {
	return errors.Mark(errors.WithStack(cause), ErrIntegrity)
}

// Integrityf formats a new integrity error.
func Integrityf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), ErrIntegrity)
}

// VerifyErrorKind enumerates the pure, state-free verification failure
// kinds of §7 (VerifyError::{BadPairing, PathMismatch, UnknownKey}).
type VerifyErrorKind int

const (
	VerifyOK VerifyErrorKind = iota
	VerifyBadPairing
	VerifyPathMismatch
	VerifyUnknownKey
)

func (k VerifyErrorKind) String() string {
	switch k {
	case VerifyOK:
		return "ok"
	case VerifyBadPairing:
		return "bad-pairing"
	case VerifyPathMismatch:
		return "path-mismatch"
	case VerifyUnknownKey:
		return "unknown-key"
	default:
		return "unknown"
	}
}

// VerifyError is a pure value type: verification touches no engine
// state, so there is nothing to annotate beyond which check failed and
// at what path depth.
type VerifyError struct {
	Kind  VerifyErrorKind
	Level int
}

func (e *VerifyError) Error() string {
	if e.Kind == VerifyOK {
		return "lvmt: proof is valid"
	}
	return errors.Newf("lvmt: verify failed: %s at level %d", e.Kind, e.Level).Error()
}

// NewVerifyError constructs a non-OK VerifyError.
func NewVerifyError(kind VerifyErrorKind, level int) error {
	return &VerifyError{Kind: kind, Level: level}
}
