// Ring-buffered file I/O (spec §5) lives in internal/ring, one level
// below both emstream and scratch so that scratch's vector I/O can
// wrap it too without an import cycle (emstream already imports
// scratch for its run-file checksum/Dir plumbing). The aliases below
// keep this package's own call sites (Sorter's run spills, this
// package's tests) unchanged.
package emstream

import "suffixverify/internal/ring"

type FileReader = ring.FileReader
type FileWriter = ring.FileWriter

const (
	DefaultBufSize  = ring.DefaultBufSize
	DefaultBufCount = ring.DefaultBufCount
)

var (
	NewFileReader = ring.NewFileReader
	NewFileWriter = ring.NewFileWriter
)
