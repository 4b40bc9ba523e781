package lmsverify

import (
	"io"
	"testing"

	"suffixverify/fingerprint"
	"suffixverify/internal/scratch"
)

type sliceReader struct {
	vals []int64
	pos  int
}

func (s *sliceReader) Next() (uint64, error) {
	if s.pos >= len(s.vals) {
		return 0, io.EOF
	}
	v := s.vals[s.pos]
	s.pos++
	return uint64(v), nil
}

func newEngine(t *testing.T) *fingerprint.Engine {
	t.Helper()
	p, r := fingerprint.Defaults(fingerprint.WidthRAM)
	e, err := fingerprint.NewEngine(p, r, 64)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestMaterializeAndVerifyBananaAccepts(t *testing.T) {
	text := []byte("banana")
	sa := []int64{5, 3, 1, 0, 4, 2}
	lcp := []int64{0, 1, 3, 0, 0, 2}

	dir, err := scratch.Open(t.TempDir(), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer dir.Close()

	entries, err := Materialize(dir, text, &sliceReader{vals: sa}, &sliceReader{vals: lcp}, int64(len(text)), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d LMS entries, want 2", len(entries))
	}
	// LMS text positions are 1 and 3; SA-order (by rank) puts pos=3 first.
	if entries[0].Pos != 3 || entries[1].Pos != 1 {
		t.Fatalf("unexpected SA_LMS order: %+v", entries)
	}

	res, err := Verify(newEngine(t), text, entries)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Accepted {
		t.Fatalf("expected ACCEPT, got REJECT: %s", res.FailReason)
	}
}

func TestVerifyRejectsSwappedSA(t *testing.T) {
	text := []byte("banana")
	sa := []int64{5, 3, 0, 1, 4, 2} // SA[2],SA[3] swapped relative to the valid SA
	lcp := []int64{0, 1, 3, 0, 0, 2}

	dir, err := scratch.Open(t.TempDir(), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer dir.Close()

	entries, err := Materialize(dir, text, &sliceReader{vals: sa}, &sliceReader{vals: lcp}, int64(len(text)), nil)
	if err != nil {
		t.Fatal(err)
	}
	res, err := Verify(newEngine(t), text, entries)
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted {
		t.Fatal("expected REJECT for a swapped SA, got ACCEPT")
	}
}

func TestMaterializeMississippiLMSCount(t *testing.T) {
	text := []byte("mississippi")
	sa := []int64{10, 7, 4, 1, 0, 9, 8, 6, 3, 5, 2}
	lcp := []int64{0, 1, 1, 4, 0, 0, 1, 0, 2, 1, 3}

	dir, err := scratch.Open(t.TempDir(), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer dir.Close()

	entries, err := Materialize(dir, text, &sliceReader{vals: sa}, &sliceReader{vals: lcp}, int64(len(text)), nil)
	if err != nil {
		t.Fatal(err)
	}
	// LMS text positions are 1, 4 and 7.
	if len(entries) != 3 {
		t.Fatalf("got %d LMS entries, want 3", len(entries))
	}
	res, err := Verify(newEngine(t), text, entries)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Accepted {
		t.Fatalf("expected ACCEPT, got REJECT: %s", res.FailReason)
	}
}
