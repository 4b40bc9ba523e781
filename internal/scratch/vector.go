// Package scratch implements the on-disk typed vectors the external
// sorters and pass-scoped intermediate streams spill to: fixed-width
// integer records grouped into checksummed blocks, readable forward
// or in reverse, and reopenable read-only as an mmap view.
//
// Grounded on the teacher's bit-packing (DECS/decs_pathbits.go,
// generalized in width.go) and checksum hashing (DECS/merkle.go,
// adapted in checksum.go); the block/footer layout itself has no
// direct teacher analogue and is original plumbing connecting the two.
package scratch

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"suffixverify/internal/measure"
	"suffixverify/internal/ring"
	"suffixverify/internal/verrors"
)

const (
	vecMagic        = "SVC1"
	defaultBlockLen = 1 << 16 // records per block before a checksum boundary
)

// VectorWriter appends fixed-width integer records to a scratch file,
// grouping them into checksummed blocks. Push-after-Finalize is fatal
// per the §4.2 sorter/stream contract.
type VectorWriter struct {
	f         *os.File
	rf        *ring.FileWriter
	w         *bufio.Writer
	width     Width
	blockLen  int
	run       *measure.Run
	dir       *Dir
	path      string
	recBuf    []byte
	block     []byte
	blockN    int
	count     uint64
	blockRecs []uint32
	finalized bool
}

// CreateVector opens a new scratch-backed vector file under dir named
// for purpose, encoding records at width.
func CreateVector(dir *Dir, purpose string, width Width, run *measure.Run) (*VectorWriter, error) {
	path := dir.NewPath(purpose)
	f, err := os.Create(path)
	if err != nil {
		return nil, verrors.IOFault(err, "creating scratch vector %s", path)
	}
	rf := ring.NewFileWriter(f, ring.DefaultBufCount, run)
	w := bufio.NewWriterSize(rf, 1<<20)
	if _, err := w.WriteString(vecMagic); err != nil {
		return nil, verrors.IOFault(err, "writing vector header %s", path)
	}
	if err := w.WriteByte(byte(width)); err != nil {
		return nil, verrors.IOFault(err, "writing vector header %s", path)
	}
	recBytes := width.Bytes()
	return &VectorWriter{
		f:        f,
		rf:       rf,
		w:        w,
		width:    width,
		blockLen: defaultBlockLen,
		run:      run,
		dir:      dir,
		path:     path,
		recBuf:   make([]byte, recBytes),
		block:    make([]byte, 0, defaultBlockLen*recBytes),
	}, nil
}

// Path returns the backing file path.
func (vw *VectorWriter) Path() string { return vw.path }

// Append encodes and buffers one record. Returns an Internal error if
// called after Finalize.
func (vw *VectorWriter) Append(v uint64) error {
	if vw.finalized {
		return verrors.Internal("vector append after finalize: %s", vw.path)
	}
	if err := vw.width.Encode(v, vw.recBuf); err != nil {
		return err
	}
	vw.block = append(vw.block, vw.recBuf...)
	vw.blockN++
	vw.count++
	if vw.blockN == vw.blockLen {
		if err := vw.flushBlock(); err != nil {
			return err
		}
	}
	return nil
}

func (vw *VectorWriter) flushBlock() error {
	if vw.blockN == 0 {
		return nil
	}
	sum := blockChecksum(vw.block)
	if _, err := vw.w.Write(vw.block); err != nil {
		return verrors.IOFault(err, "writing scratch block %s", vw.path)
	}
	if _, err := vw.w.Write(sum[:]); err != nil {
		return verrors.IOFault(err, "writing scratch block checksum %s", vw.path)
	}
	n := uint64(len(vw.block) + len(sum))
	if vw.dir != nil {
		if err := vw.dir.Reserve(n); err != nil {
			return err
		}
	}
	vw.blockRecs = append(vw.blockRecs, uint32(vw.blockN))
	vw.block = vw.block[:0]
	vw.blockN = 0
	return nil
}

// Finalize flushes any partial block and writes the footer (record
// count + per-block record counts), returning metadata for a reader.
func (vw *VectorWriter) Finalize() (*VectorMeta, error) {
	if vw.finalized {
		return nil, verrors.Internal("vector double finalize: %s", vw.path)
	}
	if err := vw.flushBlock(); err != nil {
		return nil, err
	}
	footerStart := make([]byte, 0, 12+4*len(vw.blockRecs))
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], vw.count)
	footerStart = append(footerStart, tmp[:]...)
	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(vw.blockRecs)))
	footerStart = append(footerStart, tmp4[:]...)
	for _, r := range vw.blockRecs {
		binary.LittleEndian.PutUint32(tmp4[:], r)
		footerStart = append(footerStart, tmp4[:]...)
	}
	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(footerStart)))
	if _, err := vw.w.Write(footerStart); err != nil {
		return nil, verrors.IOFault(err, "writing vector footer %s", vw.path)
	}
	if _, err := vw.w.Write(tmp4[:]); err != nil {
		return nil, verrors.IOFault(err, "writing vector footer length %s", vw.path)
	}
	if err := vw.w.Flush(); err != nil {
		return nil, verrors.IOFault(err, "flushing vector %s", vw.path)
	}
	if err := vw.rf.Close(); err != nil {
		return nil, verrors.IOFault(err, "draining ring writer for vector %s", vw.path)
	}
	if err := vw.f.Close(); err != nil {
		return nil, verrors.IOFault(err, "closing vector %s", vw.path)
	}
	vw.finalized = true
	return &VectorMeta{
		Path:      vw.path,
		Width:     vw.width,
		Count:     vw.count,
		BlockRecs: vw.blockRecs,
	}, nil
}

// VectorMeta describes a finalized vector, enough to open a reader
// without re-parsing the footer from disk (though a reader can also
// reopen cold via OpenVectorReader).
type VectorMeta struct {
	Path      string
	Width     Width
	Count     uint64
	BlockRecs []uint32
}

func recordBlockByteLen(recs uint32, recBytes int) int64 {
	return int64(recs)*int64(recBytes) + 16
}

// VectorReader is a single-pass forward reader over a finalized
// vector. It is restartable only by reopening, per the §4.2 contract.
type VectorReader struct {
	f      *os.File
	rf     *ring.FileReader
	r      *bufio.Reader
	width  Width
	count  uint64
	read   uint64
	run    *measure.Run
	blocks []uint32
	curBlk int
	curBuf []byte
	curPos int
}

// OpenVectorReader opens a finalized vector for forward, single-pass
// reading, verifying the magic/width header and loading the (small)
// block-count footer into memory.
func OpenVectorReader(meta *VectorMeta, run *measure.Run) (*VectorReader, error) {
	f, err := os.Open(meta.Path)
	if err != nil {
		return nil, verrors.IOFault(err, "opening scratch vector %s", meta.Path)
	}
	hdr := make([]byte, 5)
	if _, err := io.ReadFull(f, hdr); err != nil {
		f.Close()
		return nil, verrors.IOFault(err, "reading vector header %s", meta.Path)
	}
	if string(hdr[:4]) != vecMagic {
		f.Close()
		return nil, verrors.Malformed("scratch vector %s has bad magic", meta.Path)
	}
	if Width(hdr[4]) != meta.Width {
		f.Close()
		return nil, verrors.Malformed("scratch vector %s width mismatch", meta.Path)
	}
	rf := ring.NewFileReader(f, ring.DefaultBufSize, ring.DefaultBufCount, run)
	return &VectorReader{
		f:      f,
		rf:     rf,
		r:      bufio.NewReaderSize(rf, 1<<20),
		width:  meta.Width,
		count:  meta.Count,
		run:    run,
		blocks: meta.BlockRecs,
	}, nil
}

// Len returns the total record count.
func (vr *VectorReader) Len() uint64 { return vr.count }

func (vr *VectorReader) loadNextBlock() error {
	if vr.curBlk >= len(vr.blocks) {
		return verrors.Internal("vector reader ran past last block")
	}
	recs := vr.blocks[vr.curBlk]
	recBytes := vr.width.Bytes()
	raw := make([]byte, int(recs)*recBytes)
	if _, err := io.ReadFull(vr.r, raw); err != nil {
		return verrors.IOFault(err, "short read in scratch block %d", vr.curBlk)
	}
	var sum [16]byte
	if _, err := io.ReadFull(vr.r, sum[:]); err != nil {
		return verrors.IOFault(err, "short read of block checksum %d", vr.curBlk)
	}
	if blockChecksum(raw) != sum {
		return verrors.IOFault(nil, "checksum mismatch in scratch block %d of %s", vr.curBlk, vr.f.Name())
	}
	vr.curBuf = raw
	vr.curPos = 0
	vr.curBlk++
	return nil
}

// Next returns the next record, or io.EOF once Len() records have
// been consumed. A read past EOF that the caller expected more from
// is the "empty-stream fault" of §4.2, surfaced as InternalInconsistency
// by the caller, not retried.
func (vr *VectorReader) Next() (uint64, error) {
	if vr.read >= vr.count {
		return 0, io.EOF
	}
	recBytes := vr.width.Bytes()
	if vr.curBuf == nil || vr.curPos >= len(vr.curBuf) {
		if err := vr.loadNextBlock(); err != nil {
			return 0, err
		}
	}
	v, err := vr.width.Decode(vr.curBuf[vr.curPos:])
	if err != nil {
		return 0, err
	}
	vr.curPos += recBytes
	vr.read++
	return v, nil
}

// Close releases the underlying file handle.
func (vr *VectorReader) Close() error { return vr.f.Close() }

// ReverseVectorReader streams a finalized vector from its last record
// to its first, the "reverse variant" readers the §4.2 contract
// requires (used by C3's right-to-left pass over derived streams).
type ReverseVectorReader struct {
	f         *os.File
	width     Width
	count     uint64
	read      uint64
	run       *measure.Run
	blockRecs []uint32
	blockOff  []int64 // byte offset of each block's data, in file
	curBlk    int      // next block index to load, counting from len-1 down
	curBuf    []byte
	curPos    int // next read index within curBuf, counting down
}

// OpenReverseVectorReader opens a finalized vector for reverse,
// single-pass reading.
func OpenReverseVectorReader(meta *VectorMeta, run *measure.Run) (*ReverseVectorReader, error) {
	f, err := os.Open(meta.Path)
	if err != nil {
		return nil, verrors.IOFault(err, "opening scratch vector %s", meta.Path)
	}
	hdr := make([]byte, 5)
	if _, err := io.ReadFull(f, hdr); err != nil {
		f.Close()
		return nil, verrors.IOFault(err, "reading vector header %s", meta.Path)
	}
	if string(hdr[:4]) != vecMagic || Width(hdr[4]) != meta.Width {
		f.Close()
		return nil, verrors.Malformed("scratch vector %s header mismatch", meta.Path)
	}
	recBytes := meta.Width.Bytes()
	offs := make([]int64, len(meta.BlockRecs))
	off := int64(5)
	for i, recs := range meta.BlockRecs {
		offs[i] = off
		off += recordBlockByteLen(recs, recBytes)
	}
	return &ReverseVectorReader{
		f:         f,
		width:     meta.Width,
		count:     meta.Count,
		run:       run,
		blockRecs: meta.BlockRecs,
		blockOff:  offs,
		curBlk:    len(meta.BlockRecs) - 1,
	}, nil
}

func (rv *ReverseVectorReader) loadPrevBlock() error {
	if rv.curBlk < 0 {
		return verrors.Internal("reverse vector reader ran past first block")
	}
	recs := rv.blockRecs[rv.curBlk]
	recBytes := rv.width.Bytes()
	n := int(recs) * recBytes
	raw := make([]byte, n)
	if _, err := rv.f.ReadAt(raw, rv.blockOff[rv.curBlk]); err != nil {
		return verrors.IOFault(err, "short read in reverse scratch block %d", rv.curBlk)
	}
	sum := make([]byte, 16)
	if _, err := rv.f.ReadAt(sum, rv.blockOff[rv.curBlk]+int64(n)); err != nil {
		return verrors.IOFault(err, "short read of reverse block checksum %d", rv.curBlk)
	}
	var want [16]byte
	copy(want[:], sum)
	if blockChecksum(raw) != want {
		return verrors.IOFault(nil, "checksum mismatch in reverse scratch block %d of %s", rv.curBlk, rv.f.Name())
	}
	if rv.run != nil {
		rv.run.AddBytesRead(uint64(n + 16))
	}
	rv.curBuf = raw
	rv.curPos = n
	rv.curBlk--
	return nil
}

// Next returns records from last to first, io.EOF once exhausted.
func (rv *ReverseVectorReader) Next() (uint64, error) {
	if rv.read >= rv.count {
		return 0, io.EOF
	}
	recBytes := rv.width.Bytes()
	if rv.curBuf == nil || rv.curPos <= 0 {
		if err := rv.loadPrevBlock(); err != nil {
			return 0, err
		}
	}
	rv.curPos -= recBytes
	v, err := rv.width.Decode(rv.curBuf[rv.curPos:])
	if err != nil {
		return 0, err
	}
	rv.read++
	return v, nil
}

// Close releases the underlying file handle.
func (rv *ReverseVectorReader) Close() error { return rv.f.Close() }

// LoadVectorMeta reopens the footer of a finalized vector from disk,
// for the case where a pass hands off a path rather than a live
// *VectorMeta (e.g. across a cancellation/resume boundary).
func LoadVectorMeta(path string) (*VectorMeta, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, verrors.IOFault(err, "opening scratch vector %s", path)
	}
	defer f.Close()
	hdr := make([]byte, 5)
	if _, err := io.ReadFull(f, hdr); err != nil {
		return nil, verrors.IOFault(err, "reading vector header %s", path)
	}
	if string(hdr[:4]) != vecMagic {
		return nil, verrors.Malformed("scratch vector %s has bad magic", path)
	}
	width := Width(hdr[4])
	st, err := f.Stat()
	if err != nil {
		return nil, verrors.IOFault(err, "stat scratch vector %s", path)
	}
	var flen [4]byte
	if _, err := f.ReadAt(flen[:], st.Size()-4); err != nil {
		return nil, verrors.IOFault(err, "reading vector footer length %s", path)
	}
	footerLen := binary.LittleEndian.Uint32(flen[:])
	footer := make([]byte, footerLen)
	if _, err := f.ReadAt(footer, st.Size()-4-int64(footerLen)); err != nil {
		return nil, verrors.IOFault(err, "reading vector footer %s", path)
	}
	count := binary.LittleEndian.Uint64(footer[0:8])
	numBlocks := binary.LittleEndian.Uint32(footer[8:12])
	blockRecs := make([]uint32, numBlocks)
	for i := range blockRecs {
		off := 12 + i*4
		blockRecs[i] = binary.LittleEndian.Uint32(footer[off : off+4])
	}
	return &VectorMeta{Path: path, Width: width, Count: count, BlockRecs: blockRecs}, nil
}
