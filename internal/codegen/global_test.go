package codegen

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minic-lang/minicc/internal/ast"
	"github.com/minic-lang/minicc/internal/buffer"
	"github.com/minic-lang/minicc/internal/diag"
	"github.com/minic-lang/minicc/internal/encoder"
	"github.com/minic-lang/minicc/internal/object"
)

func newGlobalSession() *Session {
	obj := object.New(object.MachineAMD64, "test.c", "/tmp")
	enc := encoder.New(buffer.New(64), 64)
	return NewSession(TargetLinuxX64, OptO0, false, false, enc, obj, diag.NewSession())
}

func TestCompileGlobalScalarInt(t *testing.T) {
	s := newGlobalSession()
	n := &ast.Node{Name: "counter", VarType: ast.TypeInt, Init1: &ast.Node{Kind: ast.IntLit, IntVal: 42}}
	s.CompileGlobal(n)

	require.Equal(t, uint32(42), leU32(s.Obj.Data.Bytes()[0:4]))
	require.Len(t, s.Obj.Symbols, 1)
	require.Equal(t, "counter", s.Obj.Symbols[0].Name)
	require.Equal(t, uint8(object.StorageExternal), s.Obj.Symbols[0].StorageClass)
}

func TestCompileGlobalStaticScalarUsesStaticStorage(t *testing.T) {
	s := newGlobalSession()
	n := &ast.Node{Name: "hidden", VarType: ast.TypeLong, IsStatic: true, Init1: &ast.Node{Kind: ast.IntLit, IntVal: 7}}
	s.CompileGlobal(n)

	require.Equal(t, uint8(object.StorageStatic), s.Obj.Symbols[0].StorageClass)
	require.Equal(t, uint64(7), leU64(s.Obj.Data.Bytes()[0:8]))
}

func TestCompileGlobalFloatPatchesIEEEBits(t *testing.T) {
	s := newGlobalSession()
	n := &ast.Node{Name: "pi", VarType: ast.TypeDoubl, Init1: &ast.Node{Kind: ast.FloatLit, FloatVal: 3.5}}
	s.CompileGlobal(n)

	require.Equal(t, math.Float64bits(3.5), leU64(s.Obj.Data.Bytes()[0:8]))
}

func TestCompileGlobalAddressOfRecordsRelocation(t *testing.T) {
	s := newGlobalSession()
	n := &ast.Node{
		Name:    "ptr",
		VarType: ast.PointerTo(ast.TypeInt),
		Init1: &ast.Node{
			Kind:    ast.Unary,
			UnaryOp: ast.AddrOf,
			Operand: &ast.Node{Kind: ast.Ident, Name: "target"},
		},
	}
	s.CompileGlobal(n)

	relocs := s.Obj.Relocs[object.SectionData]
	require.Len(t, relocs, 1)
	require.Equal(t, object.FixupAbs64, relocs[0].Fixup)

	sym := s.Obj.Symbols[relocs[0].SymIndex]
	require.Equal(t, "target", sym.Name)
	require.Equal(t, uint8(object.StorageExternal), sym.StorageClass, "an address-of target with no prior declaration interns as undefined-external")
}

func TestCompileGlobalExternRecordsNoBytes(t *testing.T) {
	s := newGlobalSession()
	n := &ast.Node{Name: "imported", VarType: ast.TypeInt, IsExtern: true}
	s.CompileGlobal(n)

	require.Empty(t, s.Obj.Data.Bytes())
	require.Empty(t, s.Obj.Symbols)
	require.Contains(t, s.globals, "imported")
}

func TestCompileGlobalInitListWritesEachElement(t *testing.T) {
	s := newGlobalSession()
	arr := ast.ArrayOf(ast.TypeInt, 3)
	n := &ast.Node{
		Name:    "arr",
		VarType: arr,
		InitList: []ast.InitElem{
			{Index: 0, Value: &ast.Node{Kind: ast.IntLit, IntVal: 1}},
			{Index: 8, Value: &ast.Node{Kind: ast.IntLit, IntVal: 3}},
		},
	}
	s.CompileGlobal(n)

	data := s.Obj.Data.Bytes()[0:12]
	require.Equal(t, uint32(1), leU32(data[0:4]))
	require.Equal(t, uint32(0), leU32(data[4:8]))
	require.Equal(t, uint32(3), leU32(data[8:12]))
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func leU64(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
