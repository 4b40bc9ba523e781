// Package emstream implements the Sort/Stream Scaffold (C2): bounded-
// memory external sorting over fixed-length records, the sequential
// forward run reader its merge consumes, and aliases for the
// producer/consumer ring-buffered file I/O of internal/ring. Reverse
// readers live in internal/scratch; this package has no priority
// queue, and the induced pass does not use one.
//
// The on-disk run format (checksummed blocks, footer with a
// block/record-count index) is the same layout scratch.Vector uses,
// generalized here from scratch's fixed uint64 records to arbitrary
// fixed-length byte records so a Sorter can spill whatever tuple type
// a pass needs (position+fingerprint pairs, SA_LMS entries, etc.)
// without a scratch.Width case per tuple shape.
package emstream

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"suffixverify/internal/measure"
	"suffixverify/internal/ring"
	"suffixverify/internal/scratch"
	"suffixverify/internal/verrors"
)

const (
	runMagic        = "SVR1"
	defaultBlockLen = 1 << 14 // records per block before a checksum boundary
)

// RunWriter appends fixed-length byte records to a scratch-backed run
// file, grouped into checksummed blocks, mirroring scratch.VectorWriter
// but parameterized on an arbitrary record width instead of a fixed
// integer Width.
type RunWriter struct {
	f         *os.File
	rf        *ring.FileWriter
	w         *bufio.Writer
	recLen    int
	blockLen  int
	run       *measure.Run
	dir       *scratch.Dir
	path      string
	block     []byte
	blockN    int
	count     uint64
	blockRecs []uint32
	finalized bool
}

// CreateRun opens a new run file under dir named for purpose, holding
// fixed recLen-byte records.
func CreateRun(dir *scratch.Dir, purpose string, recLen int, run *measure.Run) (*RunWriter, error) {
	if recLen <= 0 {
		return nil, verrors.Internal("emstream: non-positive record length %d", recLen)
	}
	path := dir.NewPath(purpose)
	f, err := os.Create(path)
	if err != nil {
		return nil, verrors.IOFault(err, "creating run file %s", path)
	}
	rf := ring.NewFileWriter(f, ring.DefaultBufCount, run)
	w := bufio.NewWriterSize(rf, 1<<20)
	if _, err := w.WriteString(runMagic); err != nil {
		return nil, verrors.IOFault(err, "writing run header %s", path)
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(recLen))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return nil, verrors.IOFault(err, "writing run header %s", path)
	}
	return &RunWriter{
		f:        f,
		rf:       rf,
		w:        w,
		recLen:   recLen,
		blockLen: defaultBlockLen,
		run:      run,
		dir:      dir,
		path:     path,
		block:    make([]byte, 0, defaultBlockLen*recLen),
	}, nil
}

// Path returns the backing file path.
func (rw *RunWriter) Path() string { return rw.path }

// Append writes one record, rec must be exactly recLen bytes.
func (rw *RunWriter) Append(rec []byte) error {
	if rw.finalized {
		return verrors.Internal("run append after finalize: %s", rw.path)
	}
	if len(rec) != rw.recLen {
		return verrors.Internal("run append: record length %d != %d", len(rec), rw.recLen)
	}
	rw.block = append(rw.block, rec...)
	rw.blockN++
	rw.count++
	if rw.blockN == rw.blockLen {
		if err := rw.flushBlock(); err != nil {
			return err
		}
	}
	return nil
}

func (rw *RunWriter) flushBlock() error {
	if rw.blockN == 0 {
		return nil
	}
	sum := scratch.BlockChecksum(rw.block)
	if _, err := rw.w.Write(rw.block); err != nil {
		return verrors.IOFault(err, "writing run block %s", rw.path)
	}
	if _, err := rw.w.Write(sum[:]); err != nil {
		return verrors.IOFault(err, "writing run block checksum %s", rw.path)
	}
	n := uint64(len(rw.block) + len(sum))
	if rw.dir != nil {
		if err := rw.dir.Reserve(n); err != nil {
			return err
		}
	}
	rw.blockRecs = append(rw.blockRecs, uint32(rw.blockN))
	rw.block = rw.block[:0]
	rw.blockN = 0
	return nil
}

// RunMeta describes a finalized run file.
type RunMeta struct {
	Path      string
	RecLen    int
	Count     uint64
	BlockRecs []uint32
}

// Finalize flushes the trailing partial block and writes the footer.
func (rw *RunWriter) Finalize() (*RunMeta, error) {
	if rw.finalized {
		return nil, verrors.Internal("run double finalize: %s", rw.path)
	}
	if err := rw.flushBlock(); err != nil {
		return nil, err
	}
	footer := make([]byte, 0, 12+4*len(rw.blockRecs))
	var tmp8 [8]byte
	binary.LittleEndian.PutUint64(tmp8[:], rw.count)
	footer = append(footer, tmp8[:]...)
	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(rw.blockRecs)))
	footer = append(footer, tmp4[:]...)
	for _, r := range rw.blockRecs {
		binary.LittleEndian.PutUint32(tmp4[:], r)
		footer = append(footer, tmp4[:]...)
	}
	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(footer)))
	if _, err := rw.w.Write(footer); err != nil {
		return nil, verrors.IOFault(err, "writing run footer %s", rw.path)
	}
	if _, err := rw.w.Write(tmp4[:]); err != nil {
		return nil, verrors.IOFault(err, "writing run footer length %s", rw.path)
	}
	if err := rw.w.Flush(); err != nil {
		return nil, verrors.IOFault(err, "flushing run %s", rw.path)
	}
	if err := rw.rf.Close(); err != nil {
		return nil, verrors.IOFault(err, "draining ring writer for run %s", rw.path)
	}
	if err := rw.f.Close(); err != nil {
		return nil, verrors.IOFault(err, "closing run %s", rw.path)
	}
	rw.finalized = true
	return &RunMeta{Path: rw.path, RecLen: rw.recLen, Count: rw.count, BlockRecs: rw.blockRecs}, nil
}

// RunReader is a single-pass forward reader over a finalized run file.
type RunReader struct {
	f      *os.File
	rf     *ring.FileReader
	r      *bufio.Reader
	recLen int
	count  uint64
	read   uint64
	run    *measure.Run
	blocks []uint32
	curBlk int
	curBuf []byte
	curPos int
}

// OpenRunReader opens a finalized run file for forward, single-pass
// reading.
func OpenRunReader(meta *RunMeta, run *measure.Run) (*RunReader, error) {
	f, err := os.Open(meta.Path)
	if err != nil {
		return nil, verrors.IOFault(err, "opening run file %s", meta.Path)
	}
	hdr := make([]byte, 8)
	if _, err := io.ReadFull(f, hdr); err != nil {
		f.Close()
		return nil, verrors.IOFault(err, "reading run header %s", meta.Path)
	}
	if string(hdr[:4]) != runMagic {
		f.Close()
		return nil, verrors.Malformed("run file %s has bad magic", meta.Path)
	}
	if int(binary.LittleEndian.Uint32(hdr[4:8])) != meta.RecLen {
		f.Close()
		return nil, verrors.Malformed("run file %s record length mismatch", meta.Path)
	}
	rf := ring.NewFileReader(f, ring.DefaultBufSize, ring.DefaultBufCount, run)
	return &RunReader{
		f:      f,
		rf:     rf,
		r:      bufio.NewReaderSize(rf, 1<<20),
		recLen: meta.RecLen,
		count:  meta.Count,
		run:    run,
		blocks: meta.BlockRecs,
	}, nil
}

// Len returns the total record count.
func (rr *RunReader) Len() uint64 { return rr.count }

func (rr *RunReader) loadNextBlock() error {
	if rr.curBlk >= len(rr.blocks) {
		return verrors.Internal("run reader ran past last block")
	}
	recs := rr.blocks[rr.curBlk]
	raw := make([]byte, int(recs)*rr.recLen)
	if _, err := io.ReadFull(rr.r, raw); err != nil {
		return verrors.IOFault(err, "short read in run block %d", rr.curBlk)
	}
	var sum [16]byte
	if _, err := io.ReadFull(rr.r, sum[:]); err != nil {
		return verrors.IOFault(err, "short read of run block checksum %d", rr.curBlk)
	}
	if scratch.BlockChecksum(raw) != sum {
		return verrors.IOFault(nil, "checksum mismatch in run block %d of %s", rr.curBlk, rr.f.Name())
	}
	rr.curBuf = raw
	rr.curPos = 0
	rr.curBlk++
	return nil
}

// Next returns the next record (a view into an internal buffer, valid
// only until the following Next call), or io.EOF once exhausted.
func (rr *RunReader) Next() ([]byte, error) {
	if rr.read >= rr.count {
		return nil, io.EOF
	}
	if rr.curBuf == nil || rr.curPos >= len(rr.curBuf) {
		if err := rr.loadNextBlock(); err != nil {
			return nil, err
		}
	}
	rec := rr.curBuf[rr.curPos : rr.curPos+rr.recLen]
	rr.curPos += rr.recLen
	rr.read++
	return rec, nil
}

// Close releases the underlying file handle.
func (rr *RunReader) Close() error { return rr.f.Close() }
