// Package fingerprint implements the Karp-Rabin fingerprint engine
// (C1): forward fingerprints over T, a precomputed power-of-R table
// for O(log n) range fingerprint extraction, and the three (P, R)
// constant pairs the spec's Design Notes call for (RAM mode, EM with
// 32-bit arithmetic, EM with 128-bit arithmetic).
//
// The modular multiply-add primitives are grounded on the teacher's
// LVCS/mod64.go (MulAddMod64/MulMod64/AddMod64), which already solves
// exactly the "P² must fit in the wide arithmetic type" problem this
// package needs, via math/bits.Mul64/Div64 128-bit intermediates.
package fingerprint

import (
	"math/bits"

	"suffixverify/internal/verrors"
)

// Width selects one of the three fingerprint constant pairs the
// Design Notes say appear in the original source: RAM mode, EM with
// 32-bit arithmetic, and EM with 128-bit arithmetic (P sized so that
// P*R and P^2 comfortably fit the wide multiply). All three share the
// same recurrence; only the (P, R) magnitudes differ.
type Width int

const (
	WidthRAM Width = iota
	WidthEM32
	WidthEM128
)

// Defaults returns a canonical (P, R) pair per mode: RAM mode uses a
// small prime near 2^31 (cheap in-memory arithmetic), EM-32 uses a
// similarly small prime chosen for fast external-memory scans, and
// EM-128 uses a prime near 2^61 whose square needs the 128-bit
// bits.Mul64/Div64 intermediate this package's mulMod always uses.
func Defaults(w Width) (p, r uint64) {
	switch w {
	case WidthRAM:
		return 2147483647, 131542391 // 2^31 - 1, arbitrary R < P
	case WidthEM32:
		return 1073741789, 48271 // prime just under 2^30, small R
	case WidthEM128:
		return 2305843009213693951, 1500450271 // 2^61 - 1 (Mersenne), small R
	default:
		return 0, 0
	}
}

// Sentinel is the reserved value (P+1) §4.1 requires C2 to use to
// encode "no common prefix carried this round". Engine.Reject rejects
// any fingerprint value at or above this.
func sentinelOf(p uint64) uint64 { return p + 1 }

// Engine computes and verifies Karp-Rabin fingerprints over a prime
// field (P, R) chosen at construction.
type Engine struct {
	p       uint64
	r       uint64
	powers  []uint64 // powers[k] = R^(2^k) mod P
	maxPow  int
}

// NewEngine constructs an Engine for the given prime/base pair,
// precomputing R^(2^k) mod P for k = 0..floor(log2(maxLen))+1. It
// verifies P*R < 2^63 is representable before the 128-bit
// intermediate multiply, per the Design Notes' "P*R < 2^(width-1)"
// invariant check at init.
func NewEngine(p, r uint64, maxLen int) (*Engine, error) {
	if p < 2 {
		return nil, verrors.Malformed("fingerprint: prime P=%d is not usable", p)
	}
	if r == 0 || r >= p {
		return nil, verrors.Malformed("fingerprint: base R=%d must be in [1,P)", r)
	}
	hi, lo := bits.Mul64(p, r)
	if hi != 0 || lo>>63 != 0 {
		return nil, verrors.Malformed("fingerprint: P*R is not below 2^63 (P=%d R=%d)", p, r)
	}
	bitsNeeded := 1
	for n := maxLen; n > 1; n >>= 1 {
		bitsNeeded++
	}
	powers := make([]uint64, bitsNeeded+1)
	powers[0] = r % p
	for k := 1; k < len(powers); k++ {
		powers[k] = mulMod(powers[k-1], powers[k-1], p)
	}
	return &Engine{p: p, r: r % p, powers: powers, maxPow: len(powers) - 1}, nil
}

// P returns the field prime.
func (e *Engine) P() uint64 { return e.p }

// R returns the base.
func (e *Engine) R() uint64 { return e.r }

// Sentinel returns the reserved "no common prefix" value, P+1.
func (e *Engine) Sentinel() uint64 { return sentinelOf(e.p) }

func mulMod(a, b, p uint64) uint64 {
	a %= p
	b %= p
	hi, lo := bits.Mul64(a, b)
	_, rem := bits.Div64(hi, lo, p)
	return rem
}

func addMod(a, b, p uint64) uint64 {
	a %= p
	b %= p
	s, c := bits.Add64(a, b, 0)
	if c == 1 || s >= p {
		s -= p
	}
	return s
}

func subMod(a, b, p uint64) uint64 {
	a %= p
	b %= p
	if a >= b {
		return a - b
	}
	return a + p - b
}

// Mix applies the recurrence fp(i) = (fp(i-1)*R + (byteVal+1)) mod P.
// byteVal must be in [0,255]; the +1 shift guarantees a run of zero
// bytes still produces non-constant fingerprints (§3 Fingerprint
// entity note).
func (e *Engine) Mix(prev uint64, byteVal byte) uint64 {
	return addMod(mulMod(prev, e.r, e.p), uint64(byteVal)+1, e.p)
}

// MixValue applies the same recurrence Mix uses, but over an arbitrary
// non-negative integer (an LCP value) rather than a single byte — the
// accumulator C5 uses for fp_scanned[c]/fp_induced[c] (§4.5
// "Verification-by-fingerprint": h := (h·R + (v+1)) mod P).
func (e *Engine) MixValue(prev, v uint64) uint64 {
	return addMod(mulMod(prev, e.r, e.p), v+1, e.p)
}

// Power returns R^length mod P in O(log length) multiplications via
// the precomputed R^(2^k) table (C1's `power` operation).
func (e *Engine) Power(length int) (uint64, error) {
	if length < 0 {
		return 0, verrors.Internal("fingerprint: negative power length %d", length)
	}
	result := uint64(1) % e.p
	k := 0
	for length > 0 {
		if length&1 == 1 {
			if k > e.maxPow {
				return 0, verrors.Internal("fingerprint: power table exhausted at k=%d (built for maxLen)", k)
			}
			result = mulMod(result, e.powers[k], e.p)
		}
		length >>= 1
		k++
	}
	return result, nil
}

// Interval computes fp_interval(a,b) = (fp(b) - fp(a-1)*R^(b-a+1)) mod P,
// treating fp(-1) as 0 (fpBeforeA is fp(a-1), or 0 if a==0).
func (e *Engine) Interval(fpBeforeA, fpB uint64, length int) (uint64, error) {
	if length < 0 {
		return 0, verrors.Internal("fingerprint: negative interval length %d", length)
	}
	pw, err := e.Power(length)
	if err != nil {
		return 0, err
	}
	return subMod(fpB, mulMod(fpBeforeA, pw, e.p), e.p), nil
}

// StreamForward yields fp(0..len(t)-1) into yield, in ascending index
// order, one forward pass over t (C1's `stream_forward` operation).
// It returns fp(-1)=0 implicitly as the seed and never calls yield for
// index -1.
func (e *Engine) StreamForward(t []byte, yield func(i int, fp uint64) error) error {
	fp := uint64(0)
	for i, b := range t {
		fp = e.Mix(fp, b)
		if err := yield(i, fp); err != nil {
			return err
		}
	}
	return nil
}

// Reject reports whether v is an invalid fingerprint value: the
// sentinel P+1 or anything at/above it must never appear as a real
// fingerprint (§4.1 failure semantics).
func (e *Engine) Reject(v uint64) bool {
	return v >= e.Sentinel()
}
