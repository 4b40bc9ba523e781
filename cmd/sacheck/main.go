// Command sacheck is the thin CLI front end the core explicitly treats
// as an external collaborator (spec §1 "explicitly out of scope"):
// argument parsing, environment-variable fallback, and rendering a
// Result into the exit-code/summary-line contract of spec §6.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"suffixverify/fingerprint"
	"suffixverify/internal/config"
	"suffixverify/internal/measure"
	"suffixverify/internal/scratch"
	"suffixverify/internal/verrors"
	"suffixverify/verifier"
)

// ANSI colors for the ACCEPT/REJECT summary line, matching the
// teacher's PIOP/run.go convention (ansiGreen/ansiRed/ansiReset).
const (
	ansiReset = "\033[0m"
	ansiRed   = "\033[31m"
	ansiGreen = "\033[32m"
)

var exitCode int

func main() {
	root := &cobra.Command{
		Use:   "sacheck",
		Short: "Probabilistic verifier for suffix array / LCP array pairs",
	}

	var method, scratchDir, mem string
	var saWidth int

	validateCmd := &cobra.Command{
		Use:          "validate T SA LCP",
		Short:        "Verify that SA and LCP are a consistent pair for T",
		Args:         cobra.ExactArgs(3),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(args[0], args[1], args[2], method, saWidth, mem, scratchDir)
		},
	}
	validateCmd.Flags().StringVar(&method, "method", "direct", "verification strategy: direct or induced")
	validateCmd.Flags().IntVar(&saWidth, "sa-width", 32, "SA/LCP integer width in bits: 32 or 40")
	validateCmd.Flags().StringVar(&mem, "mem", "", "RAM budget for sorters, e.g. 512MB (default: MEM_LIMIT or 256MB)")
	validateCmd.Flags().StringVar(&scratchDir, "scratch-dir", "", "scratch directory (default: SCRATCH_DIR or system temp)")

	var k int
	var output string
	constructCmd := &cobra.Command{
		Use:          "construct T SA",
		Short:        "Construct a K-order LCP array for a candidate SA",
		Args:         cobra.ExactArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConstruct(args[0], args[1], output, k, saWidth, mem, scratchDir)
		},
	}
	constructCmd.Flags().IntVar(&k, "k", 0, "clamp LCP values at K (0 = unclamped)")
	constructCmd.Flags().StringVar(&output, "output", "", "output LCP file path (required)")
	constructCmd.Flags().IntVar(&saWidth, "sa-width", 32, "SA/LCP integer width in bits: 32 or 40")
	constructCmd.Flags().StringVar(&mem, "mem", "", "RAM budget for sorters")
	constructCmd.Flags().StringVar(&scratchDir, "scratch-dir", "", "scratch directory")

	root.AddCommand(validateCmd, constructCmd)
	if err := root.Execute(); err != nil {
		if exitCode == 0 {
			exitCode = 2
		}
	}
	os.Exit(exitCode)
}

func runValidate(tPath, saPath, lcpPath, method string, saWidth int, mem, scratchDir string) error {
	raw := config.Raw{
		TPath:      tPath,
		SAPath:     saPath,
		LCPPath:    lcpPath,
		Method:     method,
		SAWidth:    saWidth,
		MemBudget:  mem,
		ScratchDir: scratchDir,
	}
	cfg, err := config.Resolve(raw)
	if err != nil {
		exitCode = verrors.ExitCode(err)
		return err
	}

	res, err := verifier.Run(cfg)
	if err != nil {
		exitCode = verrors.ExitCode(err)
		return err
	}

	printSnapshot(res.Snapshot)
	if !res.Accepted {
		fmt.Fprintf(os.Stderr, "%sREJECT%s at rank %d: %s\n", ansiRed, ansiReset, res.FailRank, res.Reason)
		exitCode = 1
		return nil
	}
	fmt.Fprintf(os.Stderr, "%sACCEPT%s (%s)\n", ansiGreen, ansiReset, res.Method)
	exitCode = 0
	return nil
}

func runConstruct(tPath, saPath, output string, k, saWidth int, mem, scratchDir string) error {
	if output == "" {
		exitCode = 2
		return verrors.Malformed("construct: --output is required")
	}
	width, err := scratch.ParseWidth(saWidth)
	if err != nil {
		exitCode = verrors.ExitCode(err)
		return err
	}
	st, err := os.Stat(tPath)
	if err != nil {
		exitCode = verrors.ExitCode(verrors.IOFault(err, "stat %s", tPath))
		return err
	}
	n := st.Size()

	dirRoot := scratchDir
	if dirRoot == "" {
		dirRoot = os.Getenv("SCRATCH_DIR")
	}
	if dirRoot == "" {
		dirRoot = os.TempDir()
	}
	run := measure.New()
	dir, err := scratch.Open(dirRoot, 0, run)
	if err != nil {
		exitCode = verrors.ExitCode(err)
		return err
	}
	defer dir.Close()

	tv, err := scratch.OpenMmapView(tPath)
	if err != nil {
		exitCode = verrors.ExitCode(err)
		return err
	}
	defer tv.Close()

	saR, err := scratch.OpenRawIntReader(saPath, width, n)
	if err != nil {
		exitCode = verrors.ExitCode(err)
		return err
	}
	defer saR.Close()

	fw := fingerprint.WidthRAM
	p, r := fingerprint.Defaults(fw)
	eng, err := fingerprint.NewEngine(p, r, int(n)+1)
	if err != nil {
		exitCode = verrors.ExitCode(err)
		return err
	}

	meta, err := verifier.ConstructKOrder(dir, eng, tv.Bytes(), saR, n, k, run)
	if err != nil {
		exitCode = verrors.ExitCode(err)
		return err
	}

	rd, err := scratch.OpenVectorReader(meta, run)
	if err != nil {
		exitCode = verrors.ExitCode(err)
		return err
	}
	defer rd.Close()

	out, err := os.Create(output)
	if err != nil {
		exitCode = verrors.ExitCode(verrors.IOFault(err, "creating output file %s", output))
		return err
	}
	defer out.Close()

	buf := make([]byte, width.Bytes())
	for i := int64(0); i < n; i++ {
		v, err := rd.Next()
		if err != nil {
			exitCode = verrors.ExitCode(err)
			return err
		}
		if err := width.Encode(v, buf); err != nil {
			exitCode = verrors.ExitCode(err)
			return err
		}
		if _, err := out.Write(buf); err != nil {
			exitCode = verrors.ExitCode(verrors.IOFault(err, "writing output file %s", output))
			return err
		}
	}
	fmt.Fprintf(os.Stderr, "wrote %d LCP records to %s\n", n, output)
	exitCode = 0
	return nil
}

func printSnapshot(s measure.Snapshot) {
	fmt.Fprintf(os.Stderr, "bytes read: %d, bytes written: %d, peak scratch: %d, elapsed: %s\n",
		s.BytesRead, s.BytesWritten, s.PeakScratch, s.Elapsed)
	for _, sp := range s.Spans {
		fmt.Fprintf(os.Stderr, "  %-20s %s\n", sp.Label, sp.Dur)
	}
}
