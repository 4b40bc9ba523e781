// Package config resolves the CLI's flags, environment variables, and
// input file sizes into a validated verifier.Config, failing fast with
// a Malformed error before any pass starts (spec §7 "Malformed input
// ... reported before any pass starts").
//
// Grounded on the teacher's ntru/io.LoadParams: parse permissively
// (accept either the flag or its environment fallback, accept either
// integer width spelling) into a raw struct first, then run one
// explicit validation pass at the end rather than rejecting fields as
// they're read.
package config

import (
	"os"
	"strconv"

	"suffixverify/internal/scratch"
	"suffixverify/internal/verrors"
	"suffixverify/verifier"
)

// Raw holds the as-given CLI flag values before validation; empty
// string/zero fields fall back to their environment variable or
// default, mirroring LoadParams's "accept either spelling" permissiveness.
type Raw struct {
	TPath      string
	SAPath     string
	LCPPath    string
	N          int64
	Method     string
	SAWidth    int // 0 = unset, falls back to 32
	MemBudget  string // e.g. "512MB", "2GB", or a bare byte count
	ScratchDir string
	K          int
}

const (
	defaultSAWidth = 32
	defaultMem     = uint64(256) << 20 // 256 MiB
)

// Resolve turns Raw into a verifier.Config, applying SCRATCH_DIR and
// MEM_LIMIT environment fallbacks (spec §6) and validating every field
// exactly once, at the end.
func Resolve(raw Raw) (verifier.Config, error) {
	if raw.TPath == "" || raw.SAPath == "" || raw.LCPPath == "" {
		return verifier.Config{}, verrors.Malformed("config: T, SA, and LCP paths are all required")
	}
	if raw.N <= 0 {
		n, err := inferN(raw.TPath)
		if err != nil {
			return verifier.Config{}, err
		}
		raw.N = n
	}

	scratchDir := raw.ScratchDir
	if scratchDir == "" {
		scratchDir = os.Getenv("SCRATCH_DIR")
	}
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}

	memRaw := raw.MemBudget
	if memRaw == "" {
		memRaw = os.Getenv("MEM_LIMIT")
	}
	mem := defaultMem
	if memRaw != "" {
		parsed, err := parseByteSize(memRaw)
		if err != nil {
			return verifier.Config{}, err
		}
		mem = parsed
	}

	widthBits := raw.SAWidth
	if widthBits == 0 {
		widthBits = defaultSAWidth
	}
	width, err := scratch.ParseWidth(widthBits)
	if err != nil {
		return verifier.Config{}, err
	}

	method, err := verifier.ParseMethod(raw.Method)
	if err != nil {
		return verifier.Config{}, err
	}

	cfg := verifier.Config{
		TPath:      raw.TPath,
		SAPath:     raw.SAPath,
		LCPPath:    raw.LCPPath,
		N:          raw.N,
		SAWidth:    width,
		Method:     method,
		ScratchDir: scratchDir,
		MemBudget:  mem,
		K:          raw.K,
	}
	return validate(cfg)
}

// validate re-checks every field as a group, the single point where
// Resolve can reject a configuration — mirroring LoadParams's final
// "if p.N == 0 || p.Q == 0" gate after permissively filling the struct.
func validate(cfg verifier.Config) (verifier.Config, error) {
	if cfg.N <= 0 {
		return cfg, verrors.Malformed("config: n must be positive, got %d", cfg.N)
	}
	if cfg.ScratchDir == "" {
		return cfg, verrors.Malformed("config: scratch directory must not be empty")
	}
	st, err := os.Stat(cfg.TPath)
	if err != nil {
		return cfg, verrors.IOFault(err, "stat input file %s", cfg.TPath)
	}
	if st.Size() != cfg.N {
		return cfg, verrors.Malformed("T has %d bytes, want %d", st.Size(), cfg.N)
	}
	want := cfg.N * int64(cfg.SAWidth.Bytes())
	for _, p := range []string{cfg.SAPath, cfg.LCPPath} {
		st, err := os.Stat(p)
		if err != nil {
			return cfg, verrors.IOFault(err, "stat input file %s", p)
		}
		if st.Size() != want {
			return cfg, verrors.Malformed("%s has %d bytes, want %d for %d records at %v", p, st.Size(), want, cfg.N, cfg.SAWidth)
		}
	}
	return cfg, nil
}

func inferN(tPath string) (int64, error) {
	st, err := os.Stat(tPath)
	if err != nil {
		return 0, verrors.IOFault(err, "stat input file %s", tPath)
	}
	return st.Size(), nil
}

// parseByteSize accepts a bare integer (bytes) or a "<int>[KMG]B"
// suffix, the same permissive style LoadParams applies to its Q field
// (accept either a JSON number or a hex/decimal string).
func parseByteSize(s string) (uint64, error) {
	if s == "" {
		return 0, verrors.Malformed("config: empty byte-size value")
	}
	numPart := s
	if len(numPart) > 1 {
		last := numPart[len(numPart)-1]
		if last == 'b' || last == 'B' {
			numPart = numPart[:len(numPart)-1]
		}
	}
	mult := uint64(1)
	switch numPart[len(numPart)-1] {
	case 'k', 'K':
		mult = 1 << 10
		numPart = numPart[:len(numPart)-1]
	case 'm', 'M':
		mult = 1 << 20
		numPart = numPart[:len(numPart)-1]
	case 'g', 'G':
		mult = 1 << 30
		numPart = numPart[:len(numPart)-1]
	}
	v, err := strconv.ParseUint(numPart, 10, 64)
	if err != nil {
		return 0, verrors.Malformed("config: invalid byte-size value %q", s)
	}
	return v * mult, nil
}
