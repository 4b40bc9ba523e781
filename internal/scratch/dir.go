package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"suffixverify/internal/measure"
	"suffixverify/internal/verrors"
)

// Dir owns the scratch directory for one verification run: every
// sorter spill file, pre-item stream, and SA_LMS/LCP_LMS vector is
// created under it with a process-unique name, and all of them are
// deleted on every exit path (including failure), per spec §6.
type Dir struct {
	root    string
	cap     uint64 // 0 = unbounded
	used    uint64 // atomic
	seq     uint64 // atomic
	run     *measure.Run
	mu      sync.Mutex
	files   map[string]struct{}
	ownsDir bool
}

// Open creates (or reuses, if it already exists) the scratch
// directory at root, bounding total spill usage at capBytes (0 means
// unbounded). run receives GrowScratch/ShrinkScratch telemetry.
func Open(root string, capBytes uint64, run *measure.Run) (*Dir, error) {
	if root == "" {
		return nil, verrors.Malformed("scratch directory path is empty")
	}
	ownsDir := false
	if _, err := os.Stat(root); os.IsNotExist(err) {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, verrors.IOFault(err, "creating scratch directory %s", root)
		}
		ownsDir = true
	}
	pid := os.Getpid()
	sub := filepath.Join(root, fmt.Sprintf("sacheck-%d", pid))
	if err := os.MkdirAll(sub, 0o755); err != nil {
		return nil, verrors.IOFault(err, "creating scratch subdirectory %s", sub)
	}
	return &Dir{root: sub, cap: capBytes, run: run, files: map[string]struct{}{}, ownsDir: ownsDir}, nil
}

// Reserve accounts for n additional bytes of scratch usage, returning
// a ResourceExhaustion error the instant the configured cap would be
// exceeded rather than letting the OS fail opaquely later.
func (d *Dir) Reserve(n uint64) error {
	if d.cap == 0 {
		atomic.AddUint64(&d.used, n)
		if d.run != nil {
			d.run.GrowScratch(n)
		}
		return nil
	}
	for {
		cur := atomic.LoadUint64(&d.used)
		next := cur + n
		if next > d.cap {
			return verrors.ResourceExhausted("scratch cap %d bytes exceeded (requested %d more, %d in use)", d.cap, n, cur)
		}
		if atomic.CompareAndSwapUint64(&d.used, cur, next) {
			if d.run != nil {
				d.run.GrowScratch(n)
			}
			return nil
		}
	}
}

// Release gives back n bytes of previously reserved scratch usage.
func (d *Dir) Release(n uint64) {
	for {
		cur := atomic.LoadUint64(&d.used)
		next := cur
		if n > cur {
			next = 0
		} else {
			next = cur - n
		}
		if atomic.CompareAndSwapUint64(&d.used, cur, next) {
			if d.run != nil {
				d.run.ShrinkScratch(n)
			}
			return
		}
	}
}

// NewPath returns a process-unique path for a new scratch file named
// after the stage/purpose, e.g. dir.NewPath("lms-sort-by-pos").
func (d *Dir) NewPath(purpose string) string {
	n := atomic.AddUint64(&d.seq, 1)
	name := fmt.Sprintf("%s.%04d", purpose, n)
	p := filepath.Join(d.root, name)
	d.mu.Lock()
	d.files[p] = struct{}{}
	d.mu.Unlock()
	return p
}

// Forget drops bookkeeping for a path once its owner has removed it
// itself (e.g. a pass that cleans up its own intermediate vectors).
func (d *Dir) Forget(path string) {
	d.mu.Lock()
	delete(d.files, path)
	d.mu.Unlock()
}

// Close removes every remaining tracked scratch file and the scratch
// subdirectory itself. Safe to call on every exit path, including
// after a fatal error.
func (d *Dir) Close() error {
	d.mu.Lock()
	files := make([]string, 0, len(d.files))
	for p := range d.files {
		files = append(files, p)
	}
	d.files = map[string]struct{}{}
	d.mu.Unlock()
	var firstErr error
	for _, p := range files {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	if err := os.Remove(d.root); err != nil && !os.IsNotExist(err) && firstErr == nil {
		firstErr = err
	}
	if firstErr != nil {
		return verrors.IOFault(firstErr, "cleaning up scratch directory %s", d.root)
	}
	return nil
}

// Used returns the current scratch bytes in use.
func (d *Dir) Used() uint64 { return atomic.LoadUint64(&d.used) }
