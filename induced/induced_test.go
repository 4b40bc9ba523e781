package induced

import (
	"testing"

	"suffixverify/fingerprint"
	"suffixverify/sastype"
)

func newEngine(t *testing.T) *fingerprint.Engine {
	t.Helper()
	p, r := fingerprint.Defaults(fingerprint.WidthRAM)
	e, err := fingerprint.NewEngine(p, r, 64)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// buildInput derives ISA, per-position classification records, and
// LCP_LMS directly (no external-memory scaffolding) for a small T/SA/LCP
// triple, mirroring what lmsverify.Materialize computes the hard way.
func buildInput(t *testing.T, text []byte, sa, lcp []int64) *Input {
	t.Helper()
	n := int64(len(text))

	isa := make([]int64, n)
	for i, p := range sa {
		isa[p] = int64(i)
	}

	recs := make([]sastype.Record, n)
	_, err := sastype.Classify(text, 0, func(r sastype.Record) error {
		recs[r.Index] = r
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	lcpLMS := make(map[int64]int64)
	var firstLMSPos int64 = -1
	runMin := int64(-1)
	for i := int64(0); i < n; i++ {
		lv := lcp[i]
		if runMin < 0 || lv < runMin {
			runMin = lv
		}
		p := sa[i]
		if recs[p].Type == sastype.TypeLMS {
			lcpLMS[p] = runMin
			runMin = -1
			if firstLMSPos < 0 {
				firstLMSPos = p
			}
		}
	}

	return &Input{
		T:            text,
		SA:           sa,
		LCP:          lcp,
		ISA:          isa,
		RecsByPos:    recs,
		LCPLMSByPos:  lcpLMS,
		SeedRightPos: n - 1,
		SeedLeftPos:  firstLMSPos,
		K:            0,
	}
}

func TestBananaValidSAAcceptsBothPasses(t *testing.T) {
	text := []byte("banana")
	sa := []int64{5, 3, 1, 0, 4, 2}
	lcp := []int64{0, 1, 3, 0, 0, 2}
	in := buildInput(t, text, sa, lcp)
	eng := newEngine(t)

	rr, err := VerifyRightward(eng, in)
	if err != nil {
		t.Fatal(err)
	}
	if !rr.Accepted {
		t.Fatalf("rightward pass rejected at char %q: scanned=%d induced=%d", rr.FailChar, rr.FailValue[0], rr.FailValue[1])
	}

	lr, err := VerifyLeftward(eng, in)
	if err != nil {
		t.Fatal(err)
	}
	if !lr.Accepted {
		t.Fatalf("leftward pass rejected at char %q: scanned=%d induced=%d", lr.FailChar, lr.FailValue[0], lr.FailValue[1])
	}
}

func TestBananaCorruptedLCPRejectsRightward(t *testing.T) {
	text := []byte("banana")
	sa := []int64{5, 3, 1, 0, 4, 2}
	lcp := []int64{0, 1, 3, 0, 0, 3} // LCP[5] corrupted from 2 to 3
	in := buildInput(t, text, sa, lcp)
	eng := newEngine(t)

	rr, err := VerifyRightward(eng, in)
	if err != nil {
		t.Fatal(err)
	}
	if rr.Accepted {
		t.Fatal("expected REJECT for corrupted LCP[5], got ACCEPT")
	}
}

func TestMississippiValidSAAcceptsBothPasses(t *testing.T) {
	text := []byte("mississippi")
	sa := []int64{10, 7, 4, 1, 0, 9, 8, 6, 3, 5, 2}
	lcp := []int64{0, 1, 1, 4, 0, 0, 1, 0, 2, 1, 3}
	in := buildInput(t, text, sa, lcp)
	eng := newEngine(t)

	rr, err := VerifyRightward(eng, in)
	if err != nil {
		t.Fatal(err)
	}
	if !rr.Accepted {
		t.Fatalf("rightward pass rejected at char %q: scanned=%d induced=%d", rr.FailChar, rr.FailValue[0], rr.FailValue[1])
	}

	lr, err := VerifyLeftward(eng, in)
	if err != nil {
		t.Fatal(err)
	}
	if !lr.Accepted {
		t.Fatalf("leftward pass rejected at char %q: scanned=%d induced=%d", lr.FailChar, lr.FailValue[0], lr.FailValue[1])
	}
}
