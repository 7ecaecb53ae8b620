// Command minicc drives the backend pipeline: it assembles a textual
// input file (internal/asmparser, spec.md §4.6), runs the requested
// target/optimization/debug/PGO configuration through a codegen.Session
// the same way an AST-driven front end would, and serializes the result
// to a COFF or ELF object file. The C-family lexer/parser/type-checker
// that would normally hand codegen.Session an AST is an external
// collaborator (spec.md §1) this repository does not implement, so the
// Session here compiles an empty translation unit — only the flag-to-ABI
// and flag-to-optimization wiring is demonstrated end to end.
package main

import (
	"fmt"
	"os"

	"github.com/minic-lang/minicc/internal/asmparser"
	"github.com/minic-lang/minicc/internal/codegen"
	"github.com/minic-lang/minicc/internal/diag"
	"github.com/minic-lang/minicc/internal/encoder"
	"github.com/minic-lang/minicc/internal/object"
	"github.com/spf13/cobra"
)

func main() {
	var (
		targetFlag string
		optFlag    string
		debugInfo  bool
		pgoGen     bool
		output     string
	)

	rootCmd := &cobra.Command{
		Use:   "minicc [input.s]",
		Short: "Assemble input.s and write a relocatable object file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseTarget(targetFlag)
			if err != nil {
				return err
			}
			opt, err := parseOptLevel(optFlag)
			if err != nil {
				return err
			}

			in, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open input: %w", err)
			}
			defer in.Close()

			machine := object.MachineAMD64
			if target == codegen.TargetDOSX86 {
				machine = object.MachineI386
			}
			obj := object.New(machine, args[0], mustGetwd())

			if err := asmparser.New(obj).Parse(in); err != nil {
				return fmt.Errorf("assemble: %w", err)
			}

			sess := diag.NewSession()
			bits := 64
			if target == codegen.TargetDOSX86 {
				bits = 32
			}
			enc := encoder.New(obj.Text, bits)
			cg := codegen.NewSession(target, opt, debugInfo, pgoGen, enc, obj, sess)
			if err := runSession(cg); err != nil {
				return err
			}

			var out []byte
			if target == codegen.TargetLinuxX64 {
				out = object.WriteELF(obj)
			} else {
				out = object.WriteCOFF(obj)
			}

			if output == "" {
				output = defaultOutputName(args[0], target)
			}
			f, err := os.Create(output)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer f.Close()
			if _, err := f.Write(out); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			return nil
		},
	}

	rootCmd.Flags().StringVar(&targetFlag, "target", "linux_x64", "target ABI: linux_x64, windows_x64, dos_x86")
	rootCmd.Flags().StringVarP(&optFlag, "opt", "O", "O0", "optimization level: O0, O1, O2, O3, Os, Og")
	rootCmd.Flags().BoolVar(&debugInfo, "debug-info", false, "emit debug-line/debug-variable records")
	rootCmd.Flags().BoolVar(&pgoGen, "pgo-generate", false, "instrument the binary with profile counters")
	rootCmd.Flags().StringVarP(&output, "output", "o", "", "output object file path (default derived from input)")

	if err := rootCmd.Execute(); err != nil {
		diag.NewSession().Logf("%v", err)
		os.Exit(1)
	}
}

// runSession recovers a diag.Error the way the rest of the pipeline does,
// spec.md §7 "fail fast with a diagnostic to stderr and a non-zero exit
// code".
func runSession(cg *codegen.Session) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(*diag.Error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()
	cg.CompileUnit(nil)
	return nil
}

func parseTarget(s string) (codegen.Target, error) {
	switch s {
	case "linux_x64":
		return codegen.TargetLinuxX64, nil
	case "windows_x64":
		return codegen.TargetWindowsX64, nil
	case "dos_x86":
		return codegen.TargetDOSX86, nil
	default:
		return 0, fmt.Errorf("unknown target %q: want linux_x64, windows_x64, or dos_x86", s)
	}
}

func parseOptLevel(s string) (codegen.OptLevel, error) {
	switch s {
	case "O0":
		return codegen.OptO0, nil
	case "O1":
		return codegen.OptO1, nil
	case "O2":
		return codegen.OptO2, nil
	case "O3":
		return codegen.OptO3, nil
	case "Os":
		return codegen.OptOs, nil
	case "Og":
		return codegen.OptOg, nil
	default:
		return 0, fmt.Errorf("unknown optimization level %q", s)
	}
}

func defaultOutputName(input string, t codegen.Target) string {
	base := input
	for i := len(base) - 1; i >= 0; i-- {
		if base[i] == '.' {
			base = base[:i]
			break
		}
	}
	if t == codegen.TargetLinuxX64 {
		return base + ".o"
	}
	return base + ".obj"
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
