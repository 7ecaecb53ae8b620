package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minic-lang/minicc/internal/codegen"
)

func TestParseTarget(t *testing.T) {
	cases := map[string]codegen.Target{
		"linux_x64":   codegen.TargetLinuxX64,
		"windows_x64": codegen.TargetWindowsX64,
		"dos_x86":     codegen.TargetDOSX86,
	}
	for s, want := range cases {
		got, err := parseTarget(s)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := parseTarget("amiga_68k")
	require.Error(t, err)
}

func TestParseOptLevel(t *testing.T) {
	cases := map[string]codegen.OptLevel{
		"O0": codegen.OptO0, "O1": codegen.OptO1, "O2": codegen.OptO2,
		"O3": codegen.OptO3, "Os": codegen.OptOs, "Og": codegen.OptOg,
	}
	for s, want := range cases {
		got, err := parseOptLevel(s)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := parseOptLevel("O9")
	require.Error(t, err)
}

func TestDefaultOutputName(t *testing.T) {
	require.Equal(t, "foo.o", defaultOutputName("foo.s", codegen.TargetLinuxX64))
	require.Equal(t, "foo.obj", defaultOutputName("foo.s", codegen.TargetWindowsX64))
	require.Equal(t, "foo.obj", defaultOutputName("foo.s", codegen.TargetDOSX86))
	require.Equal(t, "dir/foo.o", defaultOutputName("dir/foo.s", codegen.TargetLinuxX64))
}
