// Package measure accumulates the run-level telemetry the CLI prints
// in its §6 summary line: bytes read, bytes written, peak scratch
// usage, and per-stage elapsed time. Grounded on the teacher's
// measureutil/prof packages (a global counter map plus a Track/
// SnapshotAndReset timing ledger), generalized from named float
// counters to the fixed set this pipeline needs.
package measure

import (
	"sync"
	"time"
)

// Span is a single timed phase, e.g. "C4.LMSVerify" or "C5.RightPass".
type Span struct {
	Label string
	Dur   time.Duration
}

// Run collects counters and spans for one verification run. It is not
// safe for concurrent use across independent runs sharing a Run value,
// but IS safe for the concurrent readers/writers of a single run's
// streams, which all report through the same *Run.
type Run struct {
	mu          sync.Mutex
	bytesRead   uint64
	bytesWrite  uint64
	peakScratch uint64
	curScratch  uint64
	spans       []Span
}

// New returns a fresh, zeroed Run.
func New() *Run { return &Run{} }

// AddBytesRead increments the bytes-read counter.
func (r *Run) AddBytesRead(n uint64) {
	r.mu.Lock()
	r.bytesRead += n
	r.mu.Unlock()
}

// AddBytesWritten increments the bytes-written counter.
func (r *Run) AddBytesWritten(n uint64) {
	r.mu.Lock()
	r.bytesWrite += n
	r.mu.Unlock()
}

// GrowScratch records an allocation of n scratch bytes and tracks the
// high-water mark. Shrink should be called when a scoped vector is
// released so concurrent passes are accounted correctly.
func (r *Run) GrowScratch(n uint64) {
	r.mu.Lock()
	r.curScratch += n
	if r.curScratch > r.peakScratch {
		r.peakScratch = r.curScratch
	}
	r.mu.Unlock()
}

// ShrinkScratch records the release of n scratch bytes.
func (r *Run) ShrinkScratch(n uint64) {
	r.mu.Lock()
	if n > r.curScratch {
		r.curScratch = 0
	} else {
		r.curScratch -= n
	}
	r.mu.Unlock()
}

// Track records the duration since start under label. Mirrors
// prof.Track's signature so call sites read the same way:
// defer measure.Track(time.Now(), "C3.Classify")(run)
func Track(start time.Time, label string) func(*Run) {
	return func(r *Run) {
		if r == nil {
			return
		}
		d := time.Since(start)
		r.mu.Lock()
		r.spans = append(r.spans, Span{Label: label, Dur: d})
		r.mu.Unlock()
	}
}

// Snapshot is an immutable copy of a Run's counters for reporting.
type Snapshot struct {
	BytesRead    uint64
	BytesWritten uint64
	PeakScratch  uint64
	Spans        []Span
	Elapsed      time.Duration
}

// SnapshotAndReset returns the current counters and clears the span
// ledger (byte/scratch counters are cumulative for the run's lifetime
// and are not reset, matching the one-shot-per-process CLI use case).
func (r *Run) SnapshotAndReset(elapsed time.Duration) Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	spans := make([]Span, len(r.spans))
	copy(spans, r.spans)
	r.spans = nil
	return Snapshot{
		BytesRead:    r.bytesRead,
		BytesWritten: r.bytesWrite,
		PeakScratch:  r.peakScratch,
		Spans:        spans,
		Elapsed:      elapsed,
	}
}
