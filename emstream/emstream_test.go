package emstream

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"testing"

	"suffixverify/internal/scratch"
)

func recOf(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

func valOf(rec []byte) uint64 { return binary.LittleEndian.Uint64(rec) }

func lessUint64(a, b []byte) bool { return valOf(a) < valOf(b) }

func TestRunWriterReaderRoundTrip(t *testing.T) {
	dir, err := scratch.Open(t.TempDir(), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer dir.Close()

	rw, err := CreateRun(dir, "test-run", 8, nil)
	if err != nil {
		t.Fatal(err)
	}
	const n = 40000 // spans several blocks at defaultBlockLen=1<<14
	for i := 0; i < n; i++ {
		if err := rw.Append(recOf(uint64(i))); err != nil {
			t.Fatal(err)
		}
	}
	meta, err := rw.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	if meta.Count != n {
		t.Fatalf("count = %d want %d", meta.Count, n)
	}

	rr, err := OpenRunReader(meta, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer rr.Close()
	for i := 0; i < n; i++ {
		rec, err := rr.Next()
		if err != nil {
			t.Fatalf("next(%d): %v", i, err)
		}
		if valOf(rec) != uint64(i) {
			t.Fatalf("record %d = %d want %d", i, valOf(rec), i)
		}
	}
	if _, err := rr.Next(); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestSorterForcesMultipleRuns(t *testing.T) {
	dir, err := scratch.Open(t.TempDir(), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer dir.Close()

	s, err := NewSorter(dir, "sort-test", 8, 100, lessUint64, nil)
	if err != nil {
		t.Fatal(err)
	}
	const n = 2500 // forces 25 spills at a 100-record budget
	// push in reverse order so sortedness is a real assertion
	for i := n - 1; i >= 0; i-- {
		if err := s.Push(recOf(uint64(i))); err != nil {
			t.Fatal(err)
		}
	}
	ms, err := s.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	defer ms.Close()

	var prev uint64
	count := 0
	for {
		rec, err := ms.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		v := valOf(rec)
		if count > 0 && v < prev {
			t.Fatalf("merge stream out of order at %d: %d < %d", count, v, prev)
		}
		prev = v
		count++
	}
	if count != n {
		t.Fatalf("merge stream returned %d records want %d", count, n)
	}
}

func TestSorterSingleRunNeverSpills(t *testing.T) {
	dir, err := scratch.Open(t.TempDir(), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer dir.Close()

	s, err := NewSorter(dir, "small", 8, 1000, lessUint64, nil)
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range []uint64{5, 3, 1, 4, 2} {
		if err := s.Push(recOf(v)); err != nil {
			t.Fatal(err)
		}
	}
	ms, err := s.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	defer ms.Close()
	var got []uint64
	for {
		rec, err := ms.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, valOf(rec))
	}
	want := []uint64{1, 2, 3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestFileReaderMatchesDirectRead(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/data.bin"
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog"), 50000)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	r := NewFileReader(f, 4096, 4, nil)
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("ring-buffered read mismatch: got %d bytes want %d", len(got), len(payload))
	}
}

func TestFileWriterMatchesDirectWrite(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/out.bin"
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := NewFileWriter(f, 4, nil)
	payload := bytes.Repeat([]byte("suffix array verification"), 20000)
	chunk := 4096
	for i := 0; i < len(payload); i += chunk {
		end := i + chunk
		if end > len(payload) {
			end = len(payload)
		}
		if _, err := w.Write(payload[i:end]); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("ring-buffered write mismatch: got %d bytes want %d", len(got), len(payload))
	}
}
