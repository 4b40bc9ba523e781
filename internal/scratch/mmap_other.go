//go:build !unix

package scratch

import (
	"os"

	"suffixverify/internal/verrors"
)

// MmapView falls back to a plain in-memory read on platforms without
// a POSIX mmap (mirrors the stubs_generic.go fallback pattern the
// hayabusa-cloud-lfq package uses for non-asm targets).
type MmapView struct {
	data []byte
}

func OpenMmapView(path string) (*MmapView, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, verrors.IOFault(err, "reading %s", path)
	}
	return &MmapView{data: data}, nil
}

func (m *MmapView) Bytes() []byte { return m.data }

func (m *MmapView) At(i int) (byte, bool) {
	if i < 0 || i >= len(m.data) {
		return 0, false
	}
	return m.data[i], true
}

func (m *MmapView) Len() int { return len(m.data) }

func (m *MmapView) Close() error { return nil }
