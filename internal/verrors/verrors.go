// Package verrors models the error taxonomy the verification pipeline
// reports to its caller: malformed input, resource exhaustion, I/O
// faults, verification failure, and internal inconsistency.
package verrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the taxonomy buckets from the
// propagation policy: each kind maps to a fixed CLI exit code.
type Kind int

const (
	// KindMalformed covers input files that disagree in size or width
	// before any pass starts.
	KindMalformed Kind = iota
	// KindResourceExhaustion covers scratch-disk or RAM-budget faults.
	KindResourceExhaustion
	// KindIOFault covers short reads/writes and scratch checksum mismatches.
	KindIOFault
	// KindVerificationFailure is a normal REJECT outcome, not a fault.
	KindVerificationFailure
	// KindInternalInconsistency indicates a bug: a sorter stream
	// exhausted out of turn, a heap invariant violated, etc.
	KindInternalInconsistency
)

func (k Kind) String() string {
	switch k {
	case KindMalformed:
		return "malformed input"
	case KindResourceExhaustion:
		return "resource exhaustion"
	case KindIOFault:
		return "I/O fault"
	case KindVerificationFailure:
		return "verification failure"
	case KindInternalInconsistency:
		return "internal inconsistency"
	default:
		return "unknown error kind"
	}
}

// Error wraps an underlying cause with a Kind so callers can classify
// it with errors.As without string-matching messages.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether err carries the given Kind.
func Is(err error, k Kind) bool {
	var ve *Error
	if errors.As(err, &ve) {
		return ve.Kind == k
	}
	return false
}

func newf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Reason: fmt.Sprintf(format, args...)}
}

func wrapf(k Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: k, Reason: fmt.Sprintf(format, args...), Err: err}
}

// Malformed reports a malformed-input fault (spec §7).
func Malformed(format string, args ...any) *Error { return newf(KindMalformed, format, args...) }

// MalformedWrap wraps an underlying parse/width error as malformed input.
func MalformedWrap(err error, format string, args ...any) *Error {
	return wrapf(KindMalformed, err, format, args...)
}

// ResourceExhausted reports scratch-disk or RAM-budget exhaustion.
func ResourceExhausted(format string, args ...any) *Error {
	return newf(KindResourceExhaustion, format, args...)
}

// IOFault reports a short read/write or a scratch-block checksum mismatch.
func IOFault(err error, format string, args ...any) *Error {
	return wrapf(KindIOFault, err, format, args...)
}

// VerificationFailed reports a REJECT outcome. This is never a fault:
// the propagation policy treats it as a normal pipeline result.
func VerificationFailed(format string, args ...any) *Error {
	return newf(KindVerificationFailure, format, args...)
}

// Internal reports a bug-class inconsistency: a stream exhausted out
// of turn, a heap invariant broken, a sort that produced out-of-order
// keys. Never expected to be reached by correct inputs.
func Internal(format string, args ...any) *Error {
	return newf(KindInternalInconsistency, format, args...)
}

// ExitCode maps an error to the §6 CLI exit-code scheme. A nil err
// (ACCEPT) is not handled here; callers check that case separately.
func ExitCode(err error) int {
	var ve *Error
	if !errors.As(err, &ve) {
		return 4 // unclassified I/O / runtime error
	}
	switch ve.Kind {
	case KindMalformed:
		return 2
	case KindResourceExhaustion:
		return 3
	case KindIOFault:
		return 4
	case KindVerificationFailure:
		return 1
	case KindInternalInconsistency:
		return 4
	default:
		return 4
	}
}
