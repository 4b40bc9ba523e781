//go:build unix

package scratch

import (
	"os"

	"golang.org/x/sys/unix"

	"suffixverify/internal/verrors"
)

// MmapView is a read-only mapped view of a file on disk, used to give
// the fingerprint engine and the induced pass random access into T
// without re-reading it sequentially on every range-fingerprint query.
type MmapView struct {
	data []byte
	f    *os.File
}

// OpenMmapView maps path read-only. Reopening per pass (as the §3
// ownership model requires for T) is cheap: it is just another mmap
// syscall over the same page cache entries.
func OpenMmapView(path string) (*MmapView, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, verrors.IOFault(err, "opening %s for mmap", path)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, verrors.IOFault(err, "stat %s for mmap", path)
	}
	if st.Size() == 0 {
		return &MmapView{f: f}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, verrors.IOFault(err, "mmap %s", path)
	}
	return &MmapView{data: data, f: f}, nil
}

// Bytes returns the mapped, read-only byte slice. Callers must not
// retain it past Close.
func (m *MmapView) Bytes() []byte { return m.data }

// At returns the byte at i, or false if i is out of range (the
// "index >= n compares unequal to any real byte" sentinel semantics
// the spec's induced pass and LMS verifier rely on).
func (m *MmapView) At(i int) (byte, bool) {
	if i < 0 || i >= len(m.data) {
		return 0, false
	}
	return m.data[i], true
}

// Len returns the mapped length.
func (m *MmapView) Len() int { return len(m.data) }

// Close unmaps and closes the file.
func (m *MmapView) Close() error {
	var err error
	if m.data != nil {
		err = unix.Munmap(m.data)
	}
	if cerr := m.f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return verrors.IOFault(err, "closing mmap view")
	}
	return nil
}
