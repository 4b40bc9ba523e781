package sastype

import "testing"

func collect(t *testing.T, text []byte, k int) ([]Record, *BucketInfo) {
	t.Helper()
	var recs []Record
	info, err := Classify(text, k, func(r Record) error {
		recs = append(recs, r)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return recs, info
}

func byIndex(recs []Record) map[int]Record {
	m := make(map[int]Record, len(recs))
	for _, r := range recs {
		m[r.Index] = r
	}
	return m
}

func TestClassifyBanana(t *testing.T) {
	recs, info := collect(t, []byte("banana"), 0)
	if len(recs) != 6 {
		t.Fatalf("got %d records, want 6", len(recs))
	}
	byI := byIndex(recs)
	want := map[int]Type{0: TypeL, 1: TypeLMS, 2: TypeL, 3: TypeLMS, 4: TypeL, 5: TypeL}
	for idx, wantType := range want {
		if got := byI[idx].Type; got != wantType {
			t.Errorf("index %d: type = %v, want %v", idx, got, wantType)
		}
	}
	if byI[0].PreCh != 0 || byI[0].PreType != TypeSentinel {
		t.Errorf("index 0 predecessor = (%d,%v), want synthetic (0,SENTINEL)", byI[0].PreCh, byI[0].PreType)
	}
	if got := info.LMSCount['a']; got != 2 {
		t.Errorf("LMS count for 'a' = %d, want 2", got)
	}
	var total uint64
	for c := 0; c < 256; c++ {
		total += info.TotalLS(byte(c))
	}
	if total != 6 {
		t.Errorf("bucket total = %d, want 6", total)
	}
}

func TestClassifyAllSameByte(t *testing.T) {
	recs, info := collect(t, []byte("aaaaaa"), 0)
	for _, r := range recs {
		if r.Index == 5 {
			continue // seed position, always L
		}
		if r.Type != TypeL {
			t.Errorf("index %d: type = %v, want L (equal-run inherits the L seed's type)", r.Index, r.Type)
		}
	}
	if info.LMSCount['a'] != 0 {
		t.Errorf("a run of identical bytes has no real LMS positions, got %d", info.LMSCount['a'])
	}
	last := recs[len(recs)-1]
	if last.Index != 0 || last.RepCount != 6 {
		t.Errorf("index 0 repCount = %d, want 6", last.RepCount)
	}
}

func TestClassifyRepCountClampedAtK(t *testing.T) {
	recs, _ := collect(t, []byte("aaaaaa"), 3)
	for _, r := range recs {
		if r.RepCount > 3 {
			t.Errorf("index %d: repCount %d exceeds K=3", r.Index, r.RepCount)
		}
	}
}

func TestClassifyLMSBoundNeverExceedsHalf(t *testing.T) {
	_, info := collect(t, []byte("mississippi"), 0)
	var lms uint64
	for c := 0; c < 256; c++ {
		lms += info.LMSCount[byte(c)]
	}
	if lms > 11/2 {
		t.Errorf("LMS count %d exceeds n/2 bound for n=11", lms)
	}
}

func TestClassifyEmptyAndSingleton(t *testing.T) {
	if recs, info := collect(t, nil, 0); len(recs) != 0 || info.TotalLS('a') != 0 {
		t.Fatalf("empty input should yield no records")
	}
	recs, info := collect(t, []byte("x"), 0)
	if len(recs) != 1 || recs[0].Type != TypeL || recs[0].PreType != TypeSentinel {
		t.Fatalf("singleton input: got %+v", recs)
	}
	if info.LCount['x'] != 1 {
		t.Fatalf("singleton bucket count = %d, want 1", info.LCount['x'])
	}
}
