// Package sastype implements the Type Classifier (C3): a single
// right-to-left pass over T that assigns every suffix its L/S/LMS
// type, records each position's true predecessor character/type and
// clamped repetition count, and accumulates per-character bucket
// sizes.
//
// Grounded on the L/S/LMS classification loop of the SA-IS reference
// implementation retrieved for this spec (nkamenev-suffixarr's
// sais.go: the min/max-character scan and the "S-type iff
// text[i]<text[i+1] (or equal and next is S)" rule, with LMS detected
// on an S-to-L transition scanned backwards) — adapted from an
// int32-keyed in-memory pass into a streaming, side-effecting
// classifier that emits one record per position instead of building
// an in-RAM suffix array.
//
// A position's type (L/S) only depends on its right neighbor, so it
// is known the moment the backward scan reaches it; but the spec's
// LMS rule and the record's predecessor fields both depend on the
// position's LEFT neighbor (§3: "LMS = S with Type(i-1)=L"), which
// the backward scan has not visited yet. The classifier therefore
// holds one position "pending" one step behind the scan cursor: a
// position is only finalized (LMS-upgraded, bucket-counted, and
// emitted with its real predecessor) once the scan has reached its
// left neighbor. The leftmost position (0) has no left neighbor, so
// it is finalized after the loop with the synthetic (0, SENTINEL)
// predecessor the spec's boundary rule calls for.
package sastype

import "suffixverify/internal/verrors"

// Type is the suffix classification at one position.
type Type uint8

const (
	TypeSentinel Type = iota
	TypeL
	TypeS
	TypeLMS
)

func (t Type) String() string {
	switch t {
	case TypeSentinel:
		return "SENTINEL"
	case TypeL:
		return "L"
	case TypeS:
		return "S"
	case TypeLMS:
		return "LMS"
	default:
		return "?"
	}
}

// IsSType reports whether t behaves as S-type for induced-sorting
// purposes (LMS suffixes are S-type suffixes with an extra property).
func (t Type) IsSType() bool { return t == TypeS || t == TypeLMS }

// Record is the tuple C3 emits for one position i: its own
// char/finalized-type, its true predecessor's char/type, and the
// clamped run length of identical bytes ending at i (spec §4.3).
type Record struct {
	Index    int
	Ch       byte
	Type     Type
	PreCh    byte
	PreType  Type
	RepCount int // consecutive identical bytes ending at Index, clamped at K
}

// BucketInfo accumulates, for each byte value, how many suffixes of
// each type start with it.
type BucketInfo struct {
	LCount   [256]uint64
	SCount   [256]uint64
	LMSCount [256]uint64
}

// TotalLS returns the sum of L- and S-type (including LMS) counts for c.
func (b *BucketInfo) TotalLS(c byte) uint64 {
	return b.LCount[c] + b.SCount[c] + b.LMSCount[c]
}

func (b *BucketInfo) count(ch byte, t Type) error {
	switch t {
	case TypeL:
		b.LCount[ch]++
	case TypeS:
		b.SCount[ch]++
	case TypeLMS:
		b.LMSCount[ch]++
	default:
		return verrors.Internal("sastype: cannot bucket-count type %v", t)
	}
	return nil
}

type pending struct {
	idx int
	ch  byte
	typ Type
	rep int
}

// Classify runs the single reverse pass over t, invoking yield once
// per position in descending index order (n-1 down to 0), and
// returns the accumulated BucketInfo. K clamps RepCount (K-order
// mode); K<=0 means unclamped.
func Classify(t []byte, k int, yield func(Record) error) (*BucketInfo, error) {
	n := len(t)
	info := &BucketInfo{}
	if n == 0 {
		return info, nil
	}

	p := pending{idx: n - 1, ch: t[n-1], typ: TypeL, rep: clamp(1, k)}

	if n == 1 {
		if err := info.count(p.ch, p.typ); err != nil {
			return nil, err
		}
		if err := yield(Record{Index: p.idx, Ch: p.ch, Type: p.typ, PreCh: 0, PreType: TypeSentinel, RepCount: p.rep}); err != nil {
			return nil, err
		}
		return info, nil
	}

	lastCh := t[n-1]
	lastType := TypeL
	repRun := 1

	for i := n - 2; i >= 0; i-- {
		curCh := t[i]
		var curType Type
		if curCh < lastCh || (curCh == lastCh && lastType == TypeS) {
			curType = TypeS
		} else {
			curType = TypeL
		}
		if curCh == lastCh {
			repRun++
		} else {
			repRun = 1
		}

		finalType := p.typ
		if p.typ == TypeS && curType == TypeL {
			finalType = TypeLMS
		}
		if err := info.count(p.ch, finalType); err != nil {
			return nil, err
		}
		if err := yield(Record{
			Index:    p.idx,
			Ch:       p.ch,
			Type:     finalType,
			PreCh:    curCh,
			PreType:  curType,
			RepCount: p.rep,
		}); err != nil {
			return nil, err
		}

		p = pending{idx: i, ch: curCh, typ: curType, rep: clamp(repRun, k)}
		lastCh = curCh
		lastType = curType
	}

	// Position 0: no left neighbor exists to finalize its LMS status
	// or supply a real predecessor, so it is never LMS and gets the
	// synthetic (0, SENTINEL) boundary predecessor.
	if err := info.count(p.ch, p.typ); err != nil {
		return nil, err
	}
	if err := yield(Record{Index: p.idx, Ch: p.ch, Type: p.typ, PreCh: 0, PreType: TypeSentinel, RepCount: p.rep}); err != nil {
		return nil, err
	}
	return info, nil
}

func clamp(v, k int) int {
	if k > 0 && v > k {
		return k
	}
	return v
}
