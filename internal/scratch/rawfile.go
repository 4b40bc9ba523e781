package scratch

import (
	"bufio"
	"io"
	"os"

	"suffixverify/internal/verrors"
)

// RawIntReader sequentially decodes fixed-width little-endian integers
// from a plain binary file with no magic header, block structure, or
// checksum — the §6 external interface format for the T/SA/LCP input
// files themselves, as opposed to this package's own internal
// scratch-vector format.
type RawIntReader struct {
	f      *os.File
	r      io.Reader
	width  Width
	n      int64 // total record count
	read   int64
	buf    []byte
}

// OpenRawIntReader opens path as a sequence of n fixed-width integers
// and verifies its size matches exactly (a §7 malformed-input check
// the caller would otherwise discover as a short/long read much
// later).
func OpenRawIntReader(path string, width Width, n int64) (*RawIntReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, verrors.IOFault(err, "opening input file %s", path)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, verrors.IOFault(err, "stat input file %s", path)
	}
	want := n * int64(width.Bytes())
	if st.Size() != want {
		f.Close()
		return nil, verrors.Malformed("input file %s has %d bytes, want %d for %d records at width %v", path, st.Size(), want, n, width)
	}
	return &RawIntReader{f: f, r: bufio.NewReaderSize(f, 1<<20), width: width, n: n, buf: make([]byte, width.Bytes())}, nil
}

// Len returns the total record count.
func (r *RawIntReader) Len() int64 { return r.n }

// Next returns the next integer, or io.EOF once Len() records have
// been consumed.
func (r *RawIntReader) Next() (uint64, error) {
	if r.read >= r.n {
		return 0, io.EOF
	}
	if _, err := io.ReadFull(r.r, r.buf); err != nil {
		return 0, verrors.IOFault(err, "short read at record %d of %s", r.read, r.f.Name())
	}
	v, err := r.width.Decode(r.buf)
	if err != nil {
		return 0, err
	}
	r.read++
	return v, nil
}

// Close releases the underlying file handle.
func (r *RawIntReader) Close() error { return r.f.Close() }

// RawIntReverseReader decodes the same raw format from last record to
// first, via ReadAt, for passes that need T/SA/LCP scanned backwards.
type RawIntReverseReader struct {
	f     *os.File
	width Width
	n     int64
	read  int64
}

// OpenRawIntReverseReader opens path for reverse, single-pass reading.
func OpenRawIntReverseReader(path string, width Width, n int64) (*RawIntReverseReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, verrors.IOFault(err, "opening input file %s", path)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, verrors.IOFault(err, "stat input file %s", path)
	}
	want := n * int64(width.Bytes())
	if st.Size() != want {
		f.Close()
		return nil, verrors.Malformed("input file %s has %d bytes, want %d for %d records at width %v", path, st.Size(), want, n, width)
	}
	return &RawIntReverseReader{f: f, width: width, n: n}, nil
}

// Len returns the total record count.
func (r *RawIntReverseReader) Len() int64 { return r.n }

// Next returns records from last to first, io.EOF once exhausted.
func (r *RawIntReverseReader) Next() (uint64, error) {
	if r.read >= r.n {
		return 0, io.EOF
	}
	idx := r.n - 1 - r.read
	buf := make([]byte, r.width.Bytes())
	if _, err := r.f.ReadAt(buf, idx*int64(r.width.Bytes())); err != nil {
		return 0, verrors.IOFault(err, "short read at reverse record %d of %s", idx, r.f.Name())
	}
	v, err := r.width.Decode(buf)
	if err != nil {
		return 0, err
	}
	r.read++
	return v, nil
}

// Close releases the underlying file handle.
func (r *RawIntReverseReader) Close() error { return r.f.Close() }
