// Package direct implements the Direct Karp-Rabin Verifier: the
// spec's other top-level strategy alongside the induced method (§1
// "a direct Karp-Rabin method that reasons over arbitrary consecutive
// SA entries"). It is the §4.4 LMS Verifier's per-entry test
// (range-fingerprint equality plus next-character divergence)
// generalized from the LMS-restricted subsequence to every SA-adjacent
// pair of candidate ranks, and from LCP_LMS's running-minimum value to
// the candidate LCP[i] itself — no minimum is needed here, since
// adjacent SA ranks are separated by exactly one candidate interval.
//
// Grounded on lmsverify.Verify's fp-array-plus-Interval structure
// (suffixverify/lmsverify), reused verbatim for the fingerprint half;
// the permutation check is grounded on the teacher's external-sort
// idiom (emstream.Sorter), used here to confirm the §8 "Injectivity of
// SA" universal property without an in-RAM seen-bitmap.
package direct

import (
	"io"

	"suffixverify/emstream"
	"suffixverify/fingerprint"
	"suffixverify/internal/measure"
	"suffixverify/internal/scratch"
	"suffixverify/internal/verrors"
)

// Reader is a sequential forward reader over the candidate SA or LCP
// stream, satisfied by scratch.RawIntReader.
type Reader interface {
	Next() (uint64, error)
}

// Result reports the outcome of the direct verification pass.
type Result struct {
	Accepted   bool
	FailRank   int64
	FailReason string
}

const permRecLen = 8

func lessPos(a, b []byte) bool { return decodeU64(a) < decodeU64(b) }

func decodeU64(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * uint(i))
	}
	return v
}

func encodeU64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
	return b
}

// CheckPermutation verifies SA is a permutation of [0,n) (spec §8
// "Injectivity of SA"): every candidate position is pushed through a
// bounded-memory external sorter, then the merged output is scanned
// for the strictly-increasing sequence 0,1,...,n-1. Returns the
// failing rank (the read order, not the sorted order) when a position
// is out of range; a duplicate or gap is reported at the sorted
// position where the mismatch was found, which is sufficient to prove
// non-injectivity even though it isn't the original offending rank.
func CheckPermutation(dir *scratch.Dir, sa Reader, n int64, run *measure.Run, budgetRecords int) (bool, int64, error) {
	if budgetRecords <= 0 {
		budgetRecords = 1 << 16
	}
	sorter, err := emstream.NewSorter(dir, "direct-perm", permRecLen, budgetRecords, lessPos, run)
	if err != nil {
		return false, 0, err
	}
	for i := int64(0); i < n; i++ {
		v, err := sa.Next()
		if err != nil {
			return false, 0, verrors.IOFault(err, "reading candidate SA at rank %d", i)
		}
		if v >= uint64(n) {
			return false, i, nil
		}
		if err := sorter.Push(encodeU64(v)); err != nil {
			return false, 0, err
		}
	}
	merged, err := sorter.Finalize()
	if err != nil {
		return false, 0, err
	}
	defer merged.Close()

	var want uint64
	for {
		rec, err := merged.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return false, 0, err
		}
		got := decodeU64(rec)
		if got != want {
			return false, int64(want), nil
		}
		want++
	}
	if want != uint64(n) {
		return false, int64(want), nil
	}
	return true, 0, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// Verify streams the candidate SA and LCP forward once, checking
// spec §4.4's range-fingerprint-plus-divergence test between every
// pair of SA-adjacent candidate positions, plus the two structural
// invariants of §8: LCP[0] = 0 and 0 <= LCP[i] <= n - max(SA[i-1],
// SA[i]). T is taken as a fully addressable byte slice (an mmap view's
// Bytes(), or an in-memory slice in tests) because every interval
// query needs random access into the same forward-fingerprint array
// lmsverify.Verify already builds this way.
func Verify(eng *fingerprint.Engine, t []byte, sa, lcp Reader, n int64) (Result, error) {
	fp := make([]uint64, n+1) // fp[0]=fp(-1)=0, fp[i+1]=fp(i)
	for i := int64(0); i < n; i++ {
		fp[i+1] = eng.Mix(fp[i], t[i])
	}
	fpAt := func(i int64) uint64 {
		if i < 0 {
			return 0
		}
		return fp[i+1]
	}
	charAt := func(i int64) (byte, bool) {
		if i < 0 || i >= n {
			return 0, false
		}
		return t[i], true
	}

	var prevPos int64 = -1
	for i := int64(0); i < n; i++ {
		pv, err := sa.Next()
		if err != nil {
			return Result{}, verrors.IOFault(err, "reading candidate SA at rank %d", i)
		}
		p := int64(pv)
		if p < 0 || p >= n {
			return Result{}, verrors.Malformed("SA[%d]=%d out of range for n=%d", i, p, n)
		}
		lv, err := lcp.Next()
		if err != nil {
			return Result{}, verrors.IOFault(err, "reading candidate LCP at rank %d", i)
		}
		l := int64(lv)
		if l < 0 {
			return Result{}, verrors.Internal("direct: negative LCP at rank %d", i)
		}

		if i == 0 {
			if l != 0 {
				return Result{Accepted: false, FailRank: 0, FailReason: "LCP[0] != 0"}, nil
			}
			prevPos = p
			continue
		}

		bound := n - max64(prevPos, p)
		if l > bound {
			return Result{Accepted: false, FailRank: i, FailReason: "LCP exceeds structural bound n-max(SA[i-1],SA[i])"}, nil
		}

		if l > 0 {
			// a zero-length interval's fingerprint is trivially empty on
			// both sides; only the divergence check below is meaningful.
			fp1, err := eng.Interval(fpAt(prevPos-1), fpAt(prevPos+l-1), int(l))
			if err != nil {
				return Result{}, err
			}
			fp2, err := eng.Interval(fpAt(p-1), fpAt(p+l-1), int(l))
			if err != nil {
				return Result{}, err
			}
			if eng.Reject(fp1) || eng.Reject(fp2) {
				return Result{}, verrors.Internal("direct: fingerprint engine produced a sentinel value at rank %d", i)
			}
			if fp1 != fp2 {
				return Result{Accepted: false, FailRank: i, FailReason: "adjacent SA interval fingerprints differ"}, nil
			}
		}
		c1, ok1 := charAt(prevPos + l)
		c2, ok2 := charAt(p + l)
		sameNext := ok1 == ok2 && (!ok1 || c1 == c2)
		if sameNext {
			return Result{Accepted: false, FailRank: i, FailReason: "adjacent SA divergence character does not differ"}, nil
		}
		prevPos = p
	}
	return Result{Accepted: true}, nil
}
