package direct

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

func mustCheckPermutation(t *testing.T, sa []int64, n int64) (bool, int64) {
	t.Helper()
	dir, err := scratch.Open(t.TempDir(), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer dir.Close()
	ok, bad, err := CheckPermutation(dir, &sliceReader{vals: sa}, n, nil, 0)
	if err != nil {
		t.Fatal(err)
	}
	return ok, bad
}

func TestBananaValidAccepts(t *testing.T) {
	text := []byte("banana")
	sa := []int64{5, 3, 1, 0, 4, 2}
	lcp := []int64{0, 1, 3, 0, 0, 2}

	if ok, bad := mustCheckPermutation(t, sa, int64(len(text))); !ok {
		t.Fatalf("expected valid permutation, got bad rank %d", bad)
	}

	res, err := Verify(newEngine(t), text, &sliceReader{vals: sa}, &sliceReader{vals: lcp}, int64(len(text)))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Accepted {
		t.Fatalf("expected ACCEPT, got REJECT at rank %d: %s", res.FailRank, res.FailReason)
	}
}

func TestBananaCorruptedLCPRejects(t *testing.T) {
	text := []byte("banana")
	sa := []int64{5, 3, 1, 0, 4, 2}
	lcp := []int64{0, 1, 3, 0, 0, 3} // LCP[5] corrupted from 2 to 3

	res, err := Verify(newEngine(t), text, &sliceReader{vals: sa}, &sliceReader{vals: lcp}, int64(len(text)))
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted {
		t.Fatal("expected REJECT for corrupted LCP[5], got ACCEPT")
	}
}

func TestBananaSwappedSARejects(t *testing.T) {
	text := []byte("banana")
	sa := []int64{5, 3, 0, 1, 4, 2} // SA[2],SA[3] swapped relative to the valid SA
	lcp := []int64{0, 1, 3, 0, 0, 2}

	res, err := Verify(newEngine(t), text, &sliceReader{vals: sa}, &sliceReader{vals: lcp}, int64(len(text)))
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted {
		t.Fatal("expected REJECT for a swapped SA, got ACCEPT")
	}
}

func TestAllAQAcceptsAndRejectsGapInLCP(t *testing.T) {
	text := []byte("aaaaaa")
	sa := []int64{5, 4, 3, 2, 1, 0}
	lcp := []int64{0, 1, 2, 3, 4, 5}

	if ok, bad := mustCheckPermutation(t, sa, int64(len(text))); !ok {
		t.Fatalf("expected valid permutation, got bad rank %d", bad)
	}
	res, err := Verify(newEngine(t), text, &sliceReader{vals: sa}, &sliceReader{vals: lcp}, int64(len(text)))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Accepted {
		t.Fatalf("expected ACCEPT, got REJECT at rank %d: %s", res.FailRank, res.FailReason)
	}

	// LCP[5]=6 violates the n-max(SA[4],SA[5]) bound (n=6, max(1,0)=1, bound=5).
	badLCP := []int64{0, 1, 2, 3, 4, 6}
	res, err = Verify(newEngine(t), text, &sliceReader{vals: sa}, &sliceReader{vals: badLCP}, int64(len(text)))
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted {
		t.Fatal("expected REJECT for an out-of-bound LCP value, got ACCEPT")
	}
}

func TestABCRepeatedAccepts(t *testing.T) {
	text := []byte("abcabcabc")
	sa := []int64{0, 3, 6, 1, 4, 7, 2, 5, 8}
	lcp := []int64{0, 6, 3, 0, 5, 2, 0, 4, 1}

	res, err := Verify(newEngine(t), text, &sliceReader{vals: sa}, &sliceReader{vals: lcp}, int64(len(text)))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Accepted {
		t.Fatalf("expected ACCEPT, got REJECT at rank %d: %s", res.FailRank, res.FailReason)
	}
}

func TestMississippiAcceptsThenRejectsOnMutatedLCP(t *testing.T) {
	text := []byte("mississippi")
	sa := []int64{10, 7, 4, 1, 0, 9, 8, 6, 3, 5, 2}
	lcp := []int64{0, 1, 1, 4, 0, 0, 1, 0, 2, 1, 3}

	res, err := Verify(newEngine(t), text, &sliceReader{vals: sa}, &sliceReader{vals: lcp}, int64(len(text)))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Accepted {
		t.Fatalf("expected ACCEPT, got REJECT at rank %d: %s", res.FailRank, res.FailReason)
	}

	mutated := append([]int64(nil), lcp...)
	mutated[3] = 5 // was 4
	res, err = Verify(newEngine(t), text, &sliceReader{vals: sa}, &sliceReader{vals: mutated}, int64(len(text)))
	if err != nil {
		t.Fatal(err)
	}
	if res.Accepted {
		t.Fatal("expected REJECT for mutated LCP[3], got ACCEPT")
	}
}

func TestCheckPermutationDetectsDuplicateAndOutOfRange(t *testing.T) {
	if ok, bad := mustCheckPermutation(t, []int64{0, 1, 1, 3}, 4); ok {
		t.Fatal("expected duplicate position to be rejected")
	} else if bad != 1 {
		t.Fatalf("expected failure reported at sorted value 1, got %d", bad)
	}

	if ok, bad := mustCheckPermutation(t, []int64{0, 1, 2, 9}, 4); ok {
		t.Fatal("expected out-of-range position to be rejected")
	} else if bad != 3 {
		t.Fatalf("expected failure reported at read rank 3, got %d", bad)
	}
}
