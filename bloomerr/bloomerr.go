// Package bloomerr defines the error taxonomy shared by standardbloom and
// expiringbloom. Errors are typed so callers can errors.As into a *Error and
// inspect Kind, rather than string-matching messages.
package bloomerr

import (
	"errors"
	"fmt"
)

// Kind classifies the failure. See spec.md §7 for the full taxonomy.
type Kind int

const (
	// InvalidParams means the supplied configuration cannot produce a
	// usable filter (target_fpr out of range, capacity < 1, derived m < k,
	// num_levels out of [1,255], chunk_size_bytes == 0).
	InvalidParams Kind = iota
	// Hash means the hash kernel's invariants were violated. This should be
	// unreachable in practice; it exists so a broken FilterParams pairing
	// fails loudly instead of silently degrading the false-positive rate.
	Hash
	// Storage means the backend failed an open/put/get/delete/iterate call.
	Storage
	// Codec means a config or metadata blob failed to deserialize.
	Codec
	// CorruptChunk means apply_chunk was asked to write into an out-of-range
	// chunk id, or the supplied bytes don't match the expected chunk length.
	CorruptChunk
	// SnapshotPartial means one or more chunks failed to persist during a
	// snapshot; the dirty set was retained for those chunks.
	SnapshotPartial
	// RotationAborted means a rotation stopped before publishing the new
	// current level because its freeze, evict, or metadata/pointer-persist
	// step failed; see spec.md §4.4 step ordering.
	RotationAborted
	// Closed means the operation was invoked after Close.
	Closed
)

func (k Kind) String() string {
	switch k {
	case InvalidParams:
		return "invalid_params"
	case Hash:
		return "hash"
	case Storage:
		return "storage"
	case Codec:
		return "codec"
	case CorruptChunk:
		return "corrupt_chunk"
	case SnapshotPartial:
		return "snapshot_partial"
	case RotationAborted:
		return "rotation_aborted"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by this module's public API.
type Error struct {
	Kind Kind
	Msg  string
	Err  error

	// Recoverable is meaningful only for Kind == Storage: a recoverable
	// storage error is safe to retry on the next snapshot/rotation tick; a
	// non-recoverable one should transition the filter to a degraded state.
	Recoverable bool

	// FailingChunks is populated only for Kind == SnapshotPartial.
	FailingChunks []uint64
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("bloomkeep: %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("bloomkeep: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, bloomerr.ErrClosed) work by comparing Kind, matching
// the sentinel-error ergonomics callers expect.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newf(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// InvalidParamsf builds an InvalidParams error.
func InvalidParamsf(format string, args ...any) error {
	return newf(InvalidParams, nil, format, args...)
}

// Hashf builds a Hash error.
func Hashf(format string, args ...any) error {
	return newf(Hash, nil, format, args...)
}

// Storagef builds a Storage error with the given Recoverable flag.
func Storagef(err error, recoverable bool, format string, args ...any) error {
	e := newf(Storage, err, format, args...)
	e.Recoverable = recoverable
	return e
}

// Codecf builds a Codec error.
func Codecf(err error, format string, args ...any) error {
	return newf(Codec, err, format, args...)
}

// CorruptChunkf builds a CorruptChunk error.
func CorruptChunkf(format string, args ...any) error {
	return newf(CorruptChunk, nil, format, args...)
}

// SnapshotPartialErr builds a SnapshotPartial error carrying the chunk ids
// that failed to persist.
func SnapshotPartialErr(failing []uint64, err error) error {
	e := newf(SnapshotPartial, err, "%d chunk(s) failed to persist", len(failing))
	e.FailingChunks = failing
	return e
}

// RotationAbortedf builds a RotationAborted error.
func RotationAbortedf(format string, args ...any) error {
	return newf(RotationAborted, nil, format, args...)
}

// ErrClosed is returned by any operation invoked on a closed filter.
var ErrClosed = &Error{Kind: Closed, Msg: "filter is closed"}

// Of reports whether err is (or wraps) a bloomerr.Error of the given kind.
func Of(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
