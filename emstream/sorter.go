package emstream

import (
	"container/heap"
	"fmt"
	"io"
	"sort"

	"suffixverify/internal/measure"
	"suffixverify/internal/scratch"
	"suffixverify/internal/verrors"
)

// Less compares two fixed-length records, returning true if a sorts
// before b. Implementations are pass-specific (sort by position, sort
// by fingerprint, composite-key tie-break per §4.2).
type Less func(a, b []byte) bool

// Sorter is the bounded-memory external sorter (C2's `sorter`
// abstraction): records are buffered up to a record budget, sorted in
// memory and spilled to a run file each time the budget is hit, then
// merged back into one sorted stream by a k-way merge over the spilled
// runs. A Sorter that never exceeds its budget never touches disk.
type Sorter struct {
	dir       *scratch.Dir
	run       *measure.Run
	purpose   string
	recLen    int
	budget    int
	less      Less
	buf       [][]byte
	runMetas  []*RunMeta
	pushed    uint64
	finalized bool
}

// NewSorter constructs a Sorter holding at most budgetRecords
// recLen-byte records in memory before spilling a sorted run.
func NewSorter(dir *scratch.Dir, purpose string, recLen, budgetRecords int, less Less, run *measure.Run) (*Sorter, error) {
	if recLen <= 0 {
		return nil, verrors.Internal("emstream: non-positive sorter record length %d", recLen)
	}
	if budgetRecords <= 0 {
		return nil, verrors.Internal("emstream: non-positive sorter budget %d", budgetRecords)
	}
	return &Sorter{
		dir:     dir,
		run:     run,
		purpose: purpose,
		recLen:  recLen,
		budget:  budgetRecords,
		less:    less,
		buf:     make([][]byte, 0, budgetRecords),
	}, nil
}

// Push buffers one record, spilling a sorted run to disk once the
// in-memory budget is reached.
func (s *Sorter) Push(rec []byte) error {
	if s.finalized {
		return verrors.Internal("emstream: sorter push after finalize")
	}
	if len(rec) != s.recLen {
		return verrors.Internal("emstream: sorter push record length %d != %d", len(rec), s.recLen)
	}
	own := make([]byte, s.recLen)
	copy(own, rec)
	s.buf = append(s.buf, own)
	s.pushed++
	if len(s.buf) >= s.budget {
		return s.spill()
	}
	return nil
}

func (s *Sorter) spill() error {
	if len(s.buf) == 0 {
		return nil
	}
	sort.Slice(s.buf, func(i, j int) bool { return s.less(s.buf[i], s.buf[j]) })
	rw, err := CreateRun(s.dir, fmt.Sprintf("%s-run%d", s.purpose, len(s.runMetas)), s.recLen, s.run)
	if err != nil {
		return err
	}
	for _, rec := range s.buf {
		if err := rw.Append(rec); err != nil {
			return err
		}
	}
	meta, err := rw.Finalize()
	if err != nil {
		return err
	}
	s.runMetas = append(s.runMetas, meta)
	s.buf = s.buf[:0]
	return nil
}

// Finalize spills any buffered remainder and returns a MergeStream
// yielding every pushed record in sorted order. If the sorter never
// spilled, the merge degenerates to a single in-memory sorted slice.
func (s *Sorter) Finalize() (*MergeStream, error) {
	if s.finalized {
		return nil, verrors.Internal("emstream: sorter double finalize")
	}
	s.finalized = true
	if len(s.runMetas) == 0 {
		sort.Slice(s.buf, func(i, j int) bool { return s.less(s.buf[i], s.buf[j]) })
		return &MergeStream{memRecs: s.buf, count: s.pushed}, nil
	}
	if err := s.spill(); err != nil {
		return nil, err
	}
	return newMergeStream(s.runMetas, s.less, s.run, s.pushed)
}

// mergeEntry is one participant in the k-way merge heap.
type mergeEntry struct {
	rec    []byte
	reader *RunReader
}

type mergeHeap struct {
	entries []*mergeEntry
	less    Less
}

func (h *mergeHeap) Len() int            { return len(h.entries) }
func (h *mergeHeap) Less(i, j int) bool  { return h.less(h.entries[i].rec, h.entries[j].rec) }
func (h *mergeHeap) Swap(i, j int)       { h.entries[i], h.entries[j] = h.entries[j], h.entries[i] }
func (h *mergeHeap) Push(x interface{})  { h.entries = append(h.entries, x.(*mergeEntry)) }
func (h *mergeHeap) Pop() interface{} {
	old := h.entries
	n := len(old)
	e := old[n-1]
	h.entries = old[:n-1]
	return e
}

// MergeStream is the sorted output of a Sorter: a single forward,
// single-pass stream regardless of how many runs fed it.
type MergeStream struct {
	// in-memory path (sorter never spilled)
	memRecs [][]byte
	memPos  int

	// external k-way merge path
	h        *mergeHeap
	readers  []*RunReader
	started  bool
	count    uint64
	returned uint64
}

func newMergeStream(metas []*RunMeta, less Less, run *measure.Run, count uint64) (*MergeStream, error) {
	ms := &MergeStream{h: &mergeHeap{less: less}, count: count}
	for _, m := range metas {
		r, err := OpenRunReader(m, run)
		if err != nil {
			ms.closeReaders()
			return nil, err
		}
		ms.readers = append(ms.readers, r)
	}
	return ms, nil
}

func (ms *MergeStream) closeReaders() {
	for _, r := range ms.readers {
		r.Close()
	}
}

func (ms *MergeStream) primeHeap() error {
	for _, r := range ms.readers {
		rec, err := r.Next()
		if err == io.EOF {
			continue
		}
		if err != nil {
			return err
		}
		own := make([]byte, len(rec))
		copy(own, rec)
		heap.Push(ms.h, &mergeEntry{rec: own, reader: r})
	}
	ms.started = true
	return nil
}

// Next returns the next record in sorted order, or io.EOF once every
// pushed record has been returned.
func (ms *MergeStream) Next() ([]byte, error) {
	if ms.memRecs != nil {
		if ms.memPos >= len(ms.memRecs) {
			return nil, io.EOF
		}
		rec := ms.memRecs[ms.memPos]
		ms.memPos++
		return rec, nil
	}
	if ms.returned >= ms.count {
		return nil, io.EOF
	}
	if !ms.started {
		if err := ms.primeHeap(); err != nil {
			return nil, err
		}
	}
	if ms.h.Len() == 0 {
		return nil, verrors.Internal("emstream: merge stream exhausted before record count reached")
	}
	top := heap.Pop(ms.h).(*mergeEntry)
	rec := top.rec
	nextRec, err := top.reader.Next()
	if err == nil {
		own := make([]byte, len(nextRec))
		copy(own, nextRec)
		heap.Push(ms.h, &mergeEntry{rec: own, reader: top.reader})
	} else if err != io.EOF {
		return nil, err
	}
	ms.returned++
	return rec, nil
}

// Close releases every run reader backing an externalized merge. A
// merge stream that never spilled has nothing to release.
func (ms *MergeStream) Close() error {
	ms.closeReaders()
	return nil
}
