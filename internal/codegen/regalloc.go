package codegen

import (
	"github.com/samber/lo"

	"github.com/minic-lang/minicc/internal/ast"
)

// varUse is one scan-table entry the register allocator collects while
// walking a function body, spec.md §4.4 "Register allocator" step 1.
type varUse struct {
	name         string
	typ          *ast.Type
	isParam      bool
	addressTaken bool
	useCount     int
}

// allocation is the result handed back to the function emitter: the set of
// locals promoted into callee-saved registers, in assignment order.
type allocation struct {
	assigned []string // variable names, in the order they got a register
}

// scanFunction walks fn's body (plus its parameter list) and builds the
// scan table spec.md §4.4 step 1 describes. Shadowing (the same name
// declared twice) is treated conservatively: both declarations are marked
// address-taken, which step 2 excludes from eligibility.
func scanFunction(fn *ast.Node) map[string]*varUse {
	table := make(map[string]*varUse)

	declare := func(name string, typ *ast.Type, isParam bool) {
		if existing, ok := table[name]; ok {
			existing.addressTaken = true
			return
		}
		table[name] = &varUse{name: name, typ: typ, isParam: isParam}
	}

	for _, p := range fn.Params {
		declare(p.Name, p.VarType, true)
	}

	ast.Walk(fn.FuncBody, func(n *ast.Node) {
		switch n.Kind {
		case ast.VarDecl:
			declare(n.Name, n.VarType, false)
		case ast.Ident:
			if u, ok := table[n.Name]; ok {
				u.useCount++
			}
		case ast.Unary:
			if n.UnaryOp == ast.AddrOf && n.Operand != nil && n.Operand.Kind == ast.Ident {
				if u, ok := table[n.Operand.Name]; ok {
					u.addressTaken = true
				}
			}
		}
	})

	return table
}

// eligible reports whether a scanned variable can be promoted to a
// register, spec.md §4.4 step 2.
func eligible(u *varUse) bool {
	if u.addressTaken {
		return false
	}
	if u.typ == nil {
		return false
	}
	if u.typ.IsAggregate() || u.typ.IsFloat() {
		return false
	}
	return u.typ.IsScalarInt()
}

// allocateRegisters runs the full 8-step algorithm's selection phase
// (steps 1-4); prologue/epilogue wiring (steps 5-8) happens in the
// function emitter, which consults the returned allocation while laying
// out locals.
func (s *Session) allocateRegisters(fn *ast.Node) allocation {
	if s.gateLevel() < OptO2 {
		return allocation{}
	}

	table := scanFunction(fn)

	sorted := lo.Filter(lo.Values(table), func(u *varUse, _ int) bool {
		return eligible(u)
	})

	// Descending by use count, spec.md §4.4 step 3.
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j].useCount > sorted[j-1].useCount; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	trio := s.abi.regAllocTrio()
	n := len(trio)
	if len(sorted) < n {
		n = len(sorted)
	}

	assigned := make([]string, 0, n)
	for i := 0; i < n; i++ {
		u := sorted[i]
		assigned = append(assigned, u.name)
		s.locals[u.name] = &local{
			name:    u.name,
			typ:     u.typ,
			kind:    localReg,
			reg:     trio[i],
			isParam: u.isParam,
		}
	}

	return allocation{assigned: assigned}
}
