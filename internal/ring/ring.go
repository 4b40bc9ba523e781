// Package ring implements the ring-buffered file I/O spec §5 requires:
// a dedicated reader (or writer) goroutine moves bytes between an
// *os.File and a small pool of buffers handed off through a lock-free
// SPSC queue, so the pass consuming/producing a stream never blocks on
// the syscall itself ("a dedicated reader thread fills buffers while
// the main thread consumes, and symmetric writer threads flush on the
// output side").
//
// Grounded on code.hybscloud.com/lfq's SPSC queue and the
// Backoff-retry pattern its own pipeline-stage examples use for a
// blocking-style Enqueue/Dequeue over a non-blocking lock-free queue.
// It lives below both emstream (run files) and scratch (vector files)
// so that either can wrap its sequential I/O in a ring without an
// import cycle.
package ring

import (
	"io"
	"os"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
	"suffixverify/internal/measure"
	"suffixverify/internal/verrors"
)

type pipeBlock struct {
	data  []byte
	err   error // io.EOF or a read fault, attached to the last block
	close bool  // writer-side stop signal
}

// DefaultBufSize and DefaultBufCount size the ring used by FileReader
// and FileWriter absent an explicit override.
const (
	DefaultBufSize  = 1 << 20 // 1 MiB per buffer
	DefaultBufCount = 4
)

// FileReader streams an *os.File through a background producer
// goroutine into the caller's Read calls.
type FileReader struct {
	f       *os.File
	q       *lfq.SPSC[pipeBlock]
	bufSize int
	run     *measure.Run
	cur     pipeBlock
	curOff  int
	done    bool
}

// NewFileReader starts a background goroutine that fills bufCount
// buffers of bufSize bytes from f and hands them to the caller through
// a bounded SPSC ring.
func NewFileReader(f *os.File, bufSize, bufCount int, run *measure.Run) *FileReader {
	if bufSize <= 0 {
		bufSize = DefaultBufSize
	}
	if bufCount < 2 {
		bufCount = DefaultBufCount
	}
	r := &FileReader{f: f, q: lfq.NewSPSC[pipeBlock](bufCount), bufSize: bufSize, run: run}
	go r.produce()
	return r
}

func (r *FileReader) produce() {
	backoff := iox.Backoff{}
	for {
		buf := make([]byte, r.bufSize)
		n, err := r.f.Read(buf)
		b := pipeBlock{data: buf[:n]}
		if err != nil {
			b.err = err
		}
		for r.q.Enqueue(&b) != nil {
			backoff.Wait()
		}
		backoff.Reset()
		if err != nil {
			return
		}
	}
}

// Read implements io.Reader, drawing from the background-filled ring.
func (r *FileReader) Read(p []byte) (int, error) {
	if r.done {
		return 0, io.EOF
	}
	if r.curOff >= len(r.cur.data) {
		if r.cur.err != nil {
			r.done = true
			return 0, r.cur.err
		}
		backoff := iox.Backoff{}
		for {
			b, err := r.q.Dequeue()
			if err == nil {
				r.cur = b
				r.curOff = 0
				break
			}
			backoff.Wait()
		}
		if len(r.cur.data) == 0 && r.cur.err != nil {
			r.done = true
			return 0, r.cur.err
		}
	}
	n := copy(p, r.cur.data[r.curOff:])
	r.curOff += n
	if r.run != nil {
		r.run.AddBytesRead(uint64(n))
	}
	return n, nil
}

// FileWriter streams the caller's Write calls to an *os.File through a
// background consumer goroutine, decoupling the caller from the flush
// syscall's latency.
type FileWriter struct {
	f      *os.File
	q      *lfq.SPSC[pipeBlock]
	run    *measure.Run
	doneCh chan struct{}
	werr   error
}

// NewFileWriter starts a background goroutine that writes buffers
// handed to it through a bounded SPSC ring to f.
func NewFileWriter(f *os.File, bufCount int, run *measure.Run) *FileWriter {
	if bufCount < 2 {
		bufCount = DefaultBufCount
	}
	w := &FileWriter{f: f, q: lfq.NewSPSC[pipeBlock](bufCount), run: run, doneCh: make(chan struct{})}
	go w.consume()
	return w
}

func (w *FileWriter) consume() {
	backoff := iox.Backoff{}
	for {
		b, err := w.q.Dequeue()
		if err != nil {
			backoff.Wait()
			continue
		}
		backoff.Reset()
		if b.close {
			close(w.doneCh)
			return
		}
		if _, err := w.f.Write(b.data); err != nil {
			w.werr = verrors.IOFault(err, "writing ring-buffered stream %s", w.f.Name())
			close(w.doneCh)
			return
		}
		if w.run != nil {
			w.run.AddBytesWritten(uint64(len(b.data)))
		}
	}
}

// Write implements io.Writer, copying p into the ring for the
// background goroutine to flush.
func (w *FileWriter) Write(p []byte) (int, error) {
	own := make([]byte, len(p))
	copy(own, p)
	b := pipeBlock{data: own}
	backoff := iox.Backoff{}
	for w.q.Enqueue(&b) != nil {
		select {
		case <-w.doneCh:
			return 0, w.werr
		default:
		}
		backoff.Wait()
	}
	return len(p), nil
}

// Close signals the background goroutine to stop and waits for it to
// drain, returning the first write fault it hit, if any.
func (w *FileWriter) Close() error {
	b := pipeBlock{close: true}
	backoff := iox.Backoff{}
	for w.q.Enqueue(&b) != nil {
		backoff.Wait()
	}
	<-w.doneCh
	return w.werr
}
