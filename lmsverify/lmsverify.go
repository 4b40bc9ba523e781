// Package lmsverify implements the LMS Verifier (C4): materializing
// SA_LMS/LCP_LMS from a candidate (SA, LCP) pair and T's L/S/LMS
// classification (with external sorters), then checking every adjacent
// LMS pair with the §4.4 test. Verify holds the forward fingerprints
// of T in one RAM-resident array and answers interval queries from it;
// it does not use position-keyed sorters for that step.
//
// Grounded on the teacher's DECS verifier/prover split (DECS/decs_verifier.go,
// DECS/decs_prover.go): a Verify function that walks the entries in
// order and returns at the first failing pair as a REJECT.
package lmsverify

import (
	"io"

	"suffixverify/emstream"
	"suffixverify/fingerprint"
	"suffixverify/internal/measure"
	"suffixverify/internal/scratch"
	"suffixverify/internal/verrors"
	"suffixverify/sastype"
)

// Entry is one materialized SA_LMS/LCP_LMS pair: Rank is the candidate
// SA's index i such that SA[i] is this LMS text position; Pos is that
// text position; LCPBefore is LCP_LMS[k] (the running-min LCP against
// the previous LMS entry in SA order).
type Entry struct {
	Rank      int64
	Pos       int64
	LCPBefore int64
}

// sorterBudget bounds how many (key,payload) tuples any one lmsverify
// sorter buffers in RAM before spilling a run; callers needing a
// different RAM/disk tradeoff should expose this as a config knob,
// but a fixed, generous default keeps the C4 API obligation-free.
const sorterBudget = 1 << 16

// recISA is an (SA[i], i) tuple: 8 bytes position key + 8 bytes rank
// payload, sorted ascending on the position key to build ISA.
const recISALen = 16

func encodeISARec(pos, rank int64) []byte {
	rec := make([]byte, recISALen)
	putI64(rec[0:8], pos)
	putI64(rec[8:16], rank)
	return rec
}

func decodeISARec(rec []byte) (pos, rank int64) {
	return getI64(rec[0:8]), getI64(rec[8:16])
}

func lessISA(a, b []byte) bool { return getI64(a[0:8]) < getI64(b[0:8]) }

func putI64(dst []byte, v int64) {
	u := uint64(v)
	for i := 0; i < 8; i++ {
		dst[i] = byte(u >> (8 * uint(i)))
	}
}

func getI64(src []byte) int64 {
	var u uint64
	for i := 0; i < 8; i++ {
		u |= uint64(src[i]) << (8 * uint(i))
	}
	return int64(u)
}

// recLMS is an (i, p) tuple keyed for a second sort on i ascending,
// recovering SA order among the LMS subsequence.
const recLMSLen = 16

func encodeLMSRec(rank, pos int64) []byte {
	rec := make([]byte, recLMSLen)
	putI64(rec[0:8], rank)
	putI64(rec[8:16], pos)
	return rec
}

func decodeLMSRec(rec []byte) (rank, pos int64) {
	return getI64(rec[0:8]), getI64(rec[8:16])
}

func lessByRank(a, b []byte) bool { return getI64(a[0:8]) < getI64(b[0:8]) }

// SAReader is a sequential forward reader over the candidate SA (or
// LCP) file, abstracted so lmsverify doesn't care whether it's backed
// by scratch.RawIntReader or any other width-tagged source.
type SAReader interface {
	Next() (uint64, error) // io.EOF at end
}

// Materialize builds SA_LMS and LCP_LMS (spec §4.4 "Retrieval") from a
// candidate SA stream (forward, length n), a candidate LCP stream
// (forward, length n), and T (mmap-backed or in-memory, random access
// needed only by the classifier's reverse pass).
//
// It performs, in order:
//  1. a forward scan of SA building (SA[i], i) tuples, sorted ascending
//     on SA[i] and written out as the ISA vector (index p -> rank i);
//  2. a reverse scan of T (sastype.Classify) paired with a reverse read
//     of the ISA vector, collecting (i, p) for every LMS position p,
//     sorted ascending on i to recover SA order;
//  3. a forward scan of LCP paired with the i-ordered LMS stream,
//     maintaining a running minimum to assign each entry its LCP_LMS.
func Materialize(dir *scratch.Dir, t []byte, sa, lcp SAReader, n int64, run *measure.Run) ([]Entry, error) {
	isaSorter, err := emstream.NewSorter(dir, "lms-isa", recISALen, sorterBudget, lessISA, run)
	if err != nil {
		return nil, err
	}
	for i := int64(0); i < n; i++ {
		pos, err := sa.Next()
		if err != nil {
			return nil, verrors.IOFault(err, "reading candidate SA at rank %d", i)
		}
		if int64(pos) >= n {
			return nil, verrors.Malformed("SA[%d]=%d is out of range for n=%d", i, pos, n)
		}
		if err := isaSorter.Push(encodeISARec(int64(pos), i)); err != nil {
			return nil, err
		}
	}
	isaMerge, err := isaSorter.Finalize()
	if err != nil {
		return nil, err
	}
	defer isaMerge.Close()

	isaVec, err := scratch.CreateVector(dir, "lms-isa-vec", scratch.Width64, run)
	if err != nil {
		return nil, err
	}
	for {
		rec, err := isaMerge.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		_, rank := decodeISARec(rec)
		if err := isaVec.Append(uint64(rank)); err != nil {
			return nil, err
		}
	}
	isaMeta, err := isaVec.Finalize()
	if err != nil {
		return nil, err
	}
	if isaMeta.Count != uint64(n) {
		return nil, verrors.Internal("lmsverify: ISA vector has %d entries, want %d", isaMeta.Count, n)
	}

	isaRev, err := scratch.OpenReverseVectorReader(isaMeta, run)
	if err != nil {
		return nil, err
	}
	defer isaRev.Close()

	byRankSorter, err := emstream.NewSorter(dir, "lms-byrank", recLMSLen, sorterBudget, lessByRank, run)
	if err != nil {
		return nil, err
	}
	_, err = sastype.Classify(t, 0, func(r sastype.Record) error {
		rank, err := isaRev.Next()
		if err != nil {
			return verrors.IOFault(err, "reading ISA in reverse at text position %d", r.Index)
		}
		if r.Type == sastype.TypeLMS {
			return byRankSorter.Push(encodeLMSRec(int64(rank), int64(r.Index)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	byRankMerge, err := byRankSorter.Finalize()
	if err != nil {
		return nil, err
	}
	defer byRankMerge.Close()

	var lmsEntries []Entry
	for {
		rec, err := byRankMerge.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rank, pos := decodeLMSRec(rec)
		lmsEntries = append(lmsEntries, Entry{Rank: rank, Pos: pos})
	}
	if len(lmsEntries) == 0 {
		return lmsEntries, nil
	}

	var runMin int64 = -1
	nextIdx := 0
	for i := int64(0); i < n; i++ {
		v, err := lcp.Next()
		if err != nil {
			return nil, verrors.IOFault(err, "reading candidate LCP at rank %d", i)
		}
		lv := int64(v)
		if runMin < 0 || lv < runMin {
			runMin = lv
		}
		if nextIdx < len(lmsEntries) && lmsEntries[nextIdx].Rank == i {
			lmsEntries[nextIdx].LCPBefore = runMin
			nextIdx++
			runMin = -1
		}
	}
	if nextIdx != len(lmsEntries) {
		return nil, verrors.Internal("lmsverify: only matched %d of %d LMS ranks while scanning LCP", nextIdx, len(lmsEntries))
	}
	return lmsEntries, nil
}

// Reject is returned by Verify (as part of a Result, not an error) to
// report a normal REJECT outcome with the offending index, per §7
// "Verification failure ... reported as REJECT with the offending
// bucket character and index if available".
type Result struct {
	Accepted   bool
	FailRank   int64 // the SA_LMS index k that failed, valid iff !Accepted
	FailReason string
}

// Verify runs the §4.4 per-entry test over every LMS pair (entries[k-1],
// entries[k]) for k>=1: fp_interval equality over [p, p+l-1] and
// inequality of T[p+l] between the two candidate positions.
func Verify(eng *fingerprint.Engine, t []byte, entries []Entry) (Result, error) {
	n := int64(len(t))
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

	for k := 1; k < len(entries); k++ {
		p1 := entries[k-1].Pos
		p2 := entries[k].Pos
		l := entries[k].LCPBefore
		if l < 0 {
			return Result{}, verrors.Internal("lmsverify: negative LCP_LMS at k=%d", k)
		}
		if l > 0 {
			// a zero-length interval's fingerprint is trivially empty on
			// both sides; only the divergence check below is meaningful.
			fp1, err := eng.Interval(fpAt(p1-1), fpAt(p1+l-1), int(l))
			if err != nil {
				return Result{}, err
			}
			fp2, err := eng.Interval(fpAt(p2-1), fpAt(p2+l-1), int(l))
			if err != nil {
				return Result{}, err
			}
			if eng.Reject(fp1) || eng.Reject(fp2) {
				return Result{}, verrors.Internal("lmsverify: fingerprint engine produced a sentinel value at k=%d", k)
			}
			if fp1 != fp2 {
				return Result{Accepted: false, FailRank: int64(k), FailReason: "LMS interval fingerprints differ"}, nil
			}
		}
		c1, ok1 := charAt(p1 + l)
		c2, ok2 := charAt(p2 + l)
		sameNext := ok1 == ok2 && (!ok1 || c1 == c2)
		if sameNext {
			return Result{Accepted: false, FailRank: int64(k), FailReason: "LMS divergence character does not differ"}, nil
		}
	}
	return Result{Accepted: true}, nil
}
