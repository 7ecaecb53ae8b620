package object

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleWriter() *Writer {
	w := New(MachineAMD64, "t.c", "/tmp")
	w.Text.WriteBytes([]byte{0x55, 0x48, 0x89, 0xe5, 0xc3})
	w.Data.WriteQword(42)
	w.AddSymbol("main", 0, SectionText, TypeFunction, StorageExternal)
	w.AddSymbol("a_very_long_static_name", 8, SectionData, TypeNone, StorageStatic)
	extIdx := w.InternSymbol("puts")
	w.AddReloc(1, extIdx, FixupPC32, SectionText)
	return w
}

func TestCOFFHeader(t *testing.T) {
	w := sampleWriter()
	out := WriteCOFF(w)
	require.GreaterOrEqual(t, len(out), 20+40*2)
	machine := uint16(out[0]) | uint16(out[1])<<8
	require.Equal(t, uint16(0x8664), machine)
	numSections := uint16(out[2]) | uint16(out[3])<<8
	require.Equal(t, uint16(2), numSections)
}

func TestCOFFLongNameGoesToStringTable(t *testing.T) {
	w := sampleWriter()
	out := WriteCOFF(w)
	require.NotEmpty(t, out)
	// the string table's 4-byte size prefix must be >4 since a long name
	// was interned into it.
	symtabOff := uint32(out[8]) | uint32(out[9])<<8 | uint32(out[10])<<16 | uint32(out[11])<<24
	numSyms := uint32(out[12]) | uint32(out[13])<<8 | uint32(out[14])<<16 | uint32(out[15])<<24
	strtab := out[symtabOff+18*numSyms:]
	size := uint32(strtab[0]) | uint32(strtab[1])<<8 | uint32(strtab[2])<<16 | uint32(strtab[3])<<24
	require.Greater(t, size, uint32(4))
}

func TestELFHeader(t *testing.T) {
	w := sampleWriter()
	out := WriteELF(w)
	require.Equal(t, []byte{0x7f, 'E', 'L', 'F'}, out[0:4])
	require.Equal(t, byte(2), out[4]) // ELFCLASS64
	etype := uint16(out[16]) | uint16(out[17])<<8
	require.Equal(t, uint16(1), etype) // ET_REL
	machine := uint16(out[18]) | uint16(out[19])<<8
	require.Equal(t, uint16(0x3e), machine) // EM_X86_64
}

func TestELFRelocationSectionPresentWhenRelocsExist(t *testing.T) {
	w := sampleWriter()
	out := WriteELF(w)
	require.NotEmpty(t, w.Relocs[SectionText])
	require.Greater(t, len(out), 64)
	require.Contains(t, string(out), ".rela.text")
}

func TestELFNoRelocSectionsWhenEmpty(t *testing.T) {
	w := New(MachineAMD64, "t.c", "/tmp")
	w.Text.WriteBytes([]byte{0xc3})
	out := WriteELF(w)
	require.NotEmpty(t, out)
	require.NotContains(t, string(out), ".rela")
}

func TestDebugSectionOnlyWhenRequested(t *testing.T) {
	w := sampleWriter()
	require.False(t, w.HasDebugInfo())
	w.BeginDebugFunc("main", 0)
	w.AddDebugVar(DebugVar{Name: "x", FrameOff: -8, TypeKind: "int", Size: 4})
	w.EndDebugFunc(5)
	w.AddDebugLine(0, 1, true)
	require.True(t, w.HasDebugInfo())
	out := WriteELF(w)
	require.NotEmpty(t, out)
	require.Contains(t, string(out), ".fadors_debug")
}

func TestFindSymbolAndIntern(t *testing.T) {
	w := New(MachineAMD64, "t.c", "/tmp")
	require.Equal(t, -1, w.FindSymbol("missing"))
	idx := w.InternSymbol("puts")
	require.Equal(t, idx, w.FindSymbol("puts"))
	require.Equal(t, idx, w.InternSymbol("puts"))
}
