package codegen

import (
	"github.com/minic-lang/minicc/internal/ast"
	"github.com/minic-lang/minicc/internal/pgo"
)

// CompileUnit lowers every top-level declaration of one translation unit,
// spec.md §3 "Backend per-function state is created at function entry and
// destroyed at function exit; per-translation-unit state (string/float
// literal pools, the symbol table) persists across the whole unit." Globals
// are compiled first so a function referencing one later in the same file
// finds it already interned.
func (s *Session) CompileUnit(decls []*ast.Node) {
	for _, d := range decls {
		if d.Kind == ast.VarDecl {
			s.CompileGlobal(d)
		}
	}
	for _, d := range decls {
		if d.Kind == ast.FuncDecl {
			if d.FuncBody == nil {
				continue // prototype only, nothing to emit
			}
			s.CompileFunction(d)
		}
	}
	if s.pgoEnabled() {
		pgo.EmitDumpFunc(s.Enc, s.Obj, s.pgoAlloc)
	}
}
