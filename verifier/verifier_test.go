package verifier

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"suffixverify/fingerprint"
	"suffixverify/internal/scratch"
)

func writeBytes(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeRawInts(t *testing.T, dir, name string, width scratch.Width, vals []int64) string {
	t.Helper()
	buf := make([]byte, width.Bytes())
	var out []byte
	for _, v := range vals {
		if err := width.Encode(uint64(v), buf); err != nil {
			t.Fatal(err)
		}
		out = append(out, buf...)
	}
	return writeBytes(t, dir, name, out)
}

type scenario struct {
	name   string
	text   string
	sa     []int64
	lcp    []int64
	accept bool
}

func baseScenarios() []scenario {
	return []scenario{
		{"banana-valid", "banana", []int64{5, 3, 1, 0, 4, 2}, []int64{0, 1, 3, 0, 0, 2}, true},
		{"banana-corrupted-lcp", "banana", []int64{5, 3, 1, 0, 4, 2}, []int64{0, 1, 3, 0, 0, 3}, false},
		{"banana-swapped-sa", "banana", []int64{5, 3, 0, 1, 4, 2}, []int64{0, 1, 3, 0, 0, 2}, false},
		{"all-a", "aaaaaa", []int64{5, 4, 3, 2, 1, 0}, []int64{0, 1, 2, 3, 4, 5}, true},
		{"abc-repeated", "abcabcabc", []int64{0, 3, 6, 1, 4, 7, 2, 5, 8}, []int64{0, 6, 3, 0, 5, 2, 0, 4, 1}, true},
		{"mississippi-valid", "mississippi", []int64{10, 7, 4, 1, 0, 9, 8, 6, 3, 5, 2}, []int64{0, 1, 1, 4, 0, 0, 1, 0, 2, 1, 3}, true},
		{"mississippi-mutated-lcp", "mississippi", []int64{10, 7, 4, 1, 0, 9, 8, 6, 3, 5, 2}, []int64{0, 1, 1, 5, 0, 0, 1, 0, 2, 1, 3}, false},
	}
}

func runScenario(t *testing.T, sc scenario, method Method) Result {
	t.Helper()
	tmp := t.TempDir()
	n := int64(len(sc.text))
	tPath := writeBytes(t, tmp, "T", []byte(sc.text))
	saPath := writeRawInts(t, tmp, "SA", scratch.Width32, sc.sa)
	lcpPath := writeRawInts(t, tmp, "LCP", scratch.Width32, sc.lcp)

	cfg := Config{
		TPath:      tPath,
		SAPath:     saPath,
		LCPPath:    lcpPath,
		N:          n,
		SAWidth:    scratch.Width32,
		Method:     method,
		ScratchDir: filepath.Join(tmp, "scratch"),
	}
	res, err := Run(cfg)
	if err != nil {
		t.Fatalf("%s/%s: Run returned fatal error: %v", sc.name, method, err)
	}
	return res
}

func TestScenariosDirectMethod(t *testing.T) {
	for _, sc := range baseScenarios() {
		sc := sc
		t.Run(sc.name, func(t *testing.T) {
			res := runScenario(t, sc, MethodDirect)
			if res.Accepted != sc.accept {
				t.Fatalf("direct: got Accepted=%v, want %v (reason=%q)", res.Accepted, sc.accept, res.Reason)
			}
		})
	}
}

func TestScenariosInducedMethod(t *testing.T) {
	for _, sc := range baseScenarios() {
		sc := sc
		t.Run(sc.name, func(t *testing.T) {
			res := runScenario(t, sc, MethodInduced)
			if res.Accepted != sc.accept {
				t.Fatalf("induced: got Accepted=%v, want %v (reason=%q)", res.Accepted, sc.accept, res.Reason)
			}
		})
	}
}

// TestModeEquivalence exercises spec §8's "mode equivalence" property:
// direct and induced must agree on every scenario here.
func TestModeEquivalence(t *testing.T) {
	for _, sc := range baseScenarios() {
		sc := sc
		t.Run(sc.name, func(t *testing.T) {
			d := runScenario(t, sc, MethodDirect)
			i := runScenario(t, sc, MethodInduced)
			if d.Accepted != i.Accepted {
				t.Fatalf("mode disagreement: direct=%v induced=%v", d.Accepted, i.Accepted)
			}
		})
	}
}

// TestIdempotence exercises spec §8's "idempotence" property: running
// the same inputs twice yields identical outcomes and identical
// bytes-read counts.
func TestIdempotence(t *testing.T) {
	sc := baseScenarios()[0]
	for _, m := range []Method{MethodDirect, MethodInduced} {
		r1 := runScenario(t, sc, m)
		r2 := runScenario(t, sc, m)
		if r1.Accepted != r2.Accepted {
			t.Fatalf("%v: non-idempotent outcome: %v vs %v", m, r1.Accepted, r2.Accepted)
		}
		if r1.Snapshot.BytesRead != r2.Snapshot.BytesRead {
			t.Fatalf("%v: non-idempotent bytes-read: %d vs %d", m, r1.Snapshot.BytesRead, r2.Snapshot.BytesRead)
		}
	}
}

func TestParseMethod(t *testing.T) {
	if m, err := ParseMethod("direct"); err != nil || m != MethodDirect {
		t.Fatalf("ParseMethod(direct) = %v, %v", m, err)
	}
	if m, err := ParseMethod(""); err != nil || m != MethodDirect {
		t.Fatalf("ParseMethod(\"\") = %v, %v", m, err)
	}
	if m, err := ParseMethod("induced"); err != nil || m != MethodInduced {
		t.Fatalf("ParseMethod(induced) = %v, %v", m, err)
	}
	if _, err := ParseMethod("bogus"); err == nil {
		t.Fatal("expected error for unknown method")
	}
}

func TestConstructKOrderMatchesCandidateLCP(t *testing.T) {
	text := []byte("banana")
	sa := []int64{5, 3, 1, 0, 4, 2}
	want := []int64{0, 1, 3, 0, 0, 2}

	p, r := fingerprint.Defaults(fingerprint.WidthRAM)
	eng, err := fingerprint.NewEngine(p, r, len(text)+1)
	if err != nil {
		t.Fatal(err)
	}
	dir, err := scratch.Open(t.TempDir(), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer dir.Close()

	meta, err := ConstructKOrder(dir, eng, text, &sliceReader{vals: sa}, int64(len(text)), 0, nil)
	if err != nil {
		t.Fatal(err)
	}
	rd, err := scratch.OpenVectorReader(meta, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer rd.Close()
	for i, w := range want {
		v, err := rd.Next()
		if err != nil {
			t.Fatal(err)
		}
		if int64(v) != w {
			t.Fatalf("constructed LCP[%d]=%d, want %d", i, v, w)
		}
	}
}

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
