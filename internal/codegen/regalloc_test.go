package codegen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/minic-lang/minicc/internal/ast"
)

func ident(name string) *ast.Node { return &ast.Node{Kind: ast.Ident, Name: name} }

func varDecl(name string, typ *ast.Type) *ast.Node {
	return &ast.Node{Kind: ast.VarDecl, Name: name, VarType: typ}
}

// makeFunc builds "void f(int p) { int a; int b; <uses> }" where uses is a
// flat list of statements referencing a/b/p by Ident, to drive the
// use-count scan deterministically.
func makeFunc(params []*ast.Node, decls []*ast.Node, uses []*ast.Node) *ast.Node {
	stmts := append(append([]*ast.Node{}, decls...), uses...)
	return &ast.Node{
		Kind:     ast.FuncDecl,
		Name:     "f",
		Params:   params,
		FuncBody: &ast.Node{Kind: ast.Block, Stmts: stmts},
	}
}

func TestAllocateRegistersPicksMostUsedEligibleLocals(t *testing.T) {
	fn := makeFunc(
		[]*ast.Node{varDecl("p", ast.TypeInt)},
		[]*ast.Node{varDecl("a", ast.TypeInt), varDecl("b", ast.TypeInt), varDecl("agg", &ast.Type{Kind: ast.Struct, Size: 16})},
		[]*ast.Node{ident("a"), ident("a"), ident("a"), ident("b"), ident("p")},
	)

	s := &Session{Opt: OptO2, locals: make(map[string]*local), abi: abiFor(TargetLinuxX64)}
	alloc := s.allocateRegisters(fn)

	require.Equal(t, "a", alloc.assigned[0], "most-used eligible local wins the first register")
	require.Contains(t, s.locals, "a")
	require.Equal(t, localReg, s.locals["a"].kind)
	require.NotContains(t, s.locals, "agg", "aggregate locals are never register-eligible")
}

func TestAllocateRegistersSkipsAddressTakenLocals(t *testing.T) {
	fn := makeFunc(nil,
		[]*ast.Node{varDecl("a", ast.TypeInt)},
		[]*ast.Node{
			ident("a"), ident("a"), ident("a"),
			{Kind: ast.Unary, UnaryOp: ast.AddrOf, Operand: ident("a")},
		},
	)

	s := &Session{Opt: OptO2, locals: make(map[string]*local), abi: abiFor(TargetLinuxX64)}
	alloc := s.allocateRegisters(fn)

	require.Empty(t, alloc.assigned)
	require.NotContains(t, s.locals, "a")
}

func TestAllocateRegistersNoOpBelowO2(t *testing.T) {
	fn := makeFunc(nil, []*ast.Node{varDecl("a", ast.TypeInt)}, []*ast.Node{ident("a")})

	s := &Session{Opt: OptO1, locals: make(map[string]*local), abi: abiFor(TargetLinuxX64)}
	alloc := s.allocateRegisters(fn)

	require.Empty(t, alloc.assigned)
}

func TestAllocateRegistersSkipsFloatLocals(t *testing.T) {
	fn := makeFunc(nil,
		[]*ast.Node{varDecl("f", ast.TypeDoubl)},
		[]*ast.Node{ident("f"), ident("f")},
	)

	s := &Session{Opt: OptO2, locals: make(map[string]*local), abi: abiFor(TargetLinuxX64)}
	alloc := s.allocateRegisters(fn)

	require.Empty(t, alloc.assigned)
}
