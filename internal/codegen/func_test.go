package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minic-lang/minicc/internal/ast"
	"github.com/minic-lang/minicc/internal/buffer"
	"github.com/minic-lang/minicc/internal/diag"
	"github.com/minic-lang/minicc/internal/encoder"
	"github.com/minic-lang/minicc/internal/object"
)

func newFuncSession() *Session {
	obj := object.New(object.MachineAMD64, "test.c", "/tmp")
	enc := encoder.New(buffer.New(256), 64)
	return NewSession(TargetLinuxX64, OptO0, false, false, enc, obj, diag.NewSession())
}

// buildAddFunc constructs "int add(int a, int b) { return a + b; }".
func buildAddFunc() *ast.Node {
	paramA := &ast.Node{Kind: ast.VarDecl, Name: "a", VarType: ast.TypeInt}
	paramB := &ast.Node{Kind: ast.VarDecl, Name: "b", VarType: ast.TypeInt}
	identA := &ast.Node{Kind: ast.Ident, Name: "a", ResolvedType: ast.TypeInt}
	identB := &ast.Node{Kind: ast.Ident, Name: "b", ResolvedType: ast.TypeInt}
	sum := &ast.Node{Kind: ast.Binary, BinaryOp: ast.Add, Lhs: identA, Rhs: identB, ResolvedType: ast.TypeInt}
	ret := &ast.Node{Kind: ast.Return, RetExpr: sum}
	body := &ast.Node{Kind: ast.Block, Stmts: []*ast.Node{ret}}
	return &ast.Node{
		Kind:       ast.FuncDecl,
		Name:       "add",
		ReturnType: ast.TypeInt,
		Params:     []*ast.Node{paramA, paramB},
		FuncBody:   body,
	}
}

func TestCompileFunctionEmitsAddFunction(t *testing.T) {
	s := newFuncSession()
	s.CompileFunction(buildAddFunc())

	require.Len(t, s.Obj.Symbols, 2) // the function symbol and its static end label
	require.Equal(t, "add", s.Obj.Symbols[0].Name)
	require.Equal(t, object.SectionText, s.Obj.Symbols[0].Section)
	require.Equal(t, uint8(object.StorageExternal), s.Obj.Symbols[0].StorageClass)
	require.NotEmpty(t, s.Enc.Buf.Bytes(), "a non-trivial function body must emit machine code")
}

func TestCompileFunctionStaticUsesStaticStorage(t *testing.T) {
	s := newFuncSession()
	fn := buildAddFunc()
	fn.IsStaticFn = true
	s.CompileFunction(fn)

	require.Equal(t, uint8(object.StorageStatic), s.Obj.Symbols[0].StorageClass)
}

func TestCompileFunctionVoidNoReturnExpr(t *testing.T) {
	s := newFuncSession()
	body := &ast.Node{Kind: ast.Block, Stmts: []*ast.Node{{Kind: ast.Return}}}
	fn := &ast.Node{Kind: ast.FuncDecl, Name: "noop", ReturnType: ast.TypeVoid, FuncBody: body}

	require.NotPanics(t, func() { s.CompileFunction(fn) })
	require.NotEmpty(t, s.Enc.Buf.Bytes())
}
