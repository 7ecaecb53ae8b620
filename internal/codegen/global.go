package codegen

import (
	"math"
	"strconv"

	"github.com/minic-lang/minicc/internal/ast"
	"github.com/minic-lang/minicc/internal/object"
)

// CompileGlobal lowers one file-scope variable declaration into the data
// section, spec.md §6 "Global variable emission". Extern declarations
// record a type in the global table and emit no bytes.
func (s *Session) CompileGlobal(n *ast.Node) {
	if n.IsExtern {
		s.globals[n.Name] = &Global{Name: n.Name, Typ: n.VarType}
		return
	}
	s.globals[n.Name] = &Global{Name: n.Name, Typ: n.VarType}
	storage := object.StorageExternal
	if n.IsStaticFn || n.IsStatic {
		storage = object.StorageStatic
	}
	s.emitGlobalData(n.Name, uint8(storage), n.VarType, n.Init1, n.InitList)
}

// emitGlobalData writes typ.Size bytes of initial data at the current data
// offset under label, recording ADDR64/ADDR32 relocations for pointer-typed
// sub-elements, spec.md §6.
func (s *Session) emitGlobalData(label string, storage uint8, typ *ast.Type, init1 *ast.Node, initList []ast.InitElem) {
	base := uint32(s.Obj.Data.Len())
	s.Obj.AddSymbol(label, uint64(base), object.SectionData, object.TypeNone, storage)

	switch {
	case initList != nil:
		buf := make([]byte, typ.Size)
		s.Obj.Data.WriteBytes(buf)
		for _, elem := range initList {
			s.writeGlobalElem(base, int32(elem.Index), elemTypeOf(typ), elem)
		}
	case init1 != nil:
		s.Obj.Data.WriteBytes(make([]byte, typ.Size))
		s.writeGlobalScalar(base, 0, typ, init1)
	default:
		s.Obj.Data.WriteBytes(make([]byte, typ.Size))
	}
}

// writeGlobalElem fills one initializer-list slot, recursing into nested
// lists for nested aggregates (spec.md §6 "initializer lists write each
// element at its index").
func (s *Session) writeGlobalElem(base uint32, off int32, typ *ast.Type, elem ast.InitElem) {
	if elem.List != nil {
		for _, sub := range elem.List {
			s.writeGlobalElem(base, off+int32(sub.Index), elemTypeOf(typ), sub)
		}
		return
	}
	if elem.Value != nil {
		s.writeGlobalScalar(base, off, typ, elem.Value)
	}
}

// writeGlobalScalar patches typ.Size bytes at base+off in the data buffer
// with the constant value of expr: an integer or float literal writes its
// bits directly; a string literal or address-of expression writes a
// pointer-sized zero placeholder and records a relocation, spec.md §6
// "address-of initializers emit a size-of-pointer placeholder plus an
// ADDR64 relocation".
func (s *Session) writeGlobalScalar(base uint32, off int32, typ *ast.Type, expr *ast.Node) {
	switch expr.Kind {
	case ast.IntLit:
		s.patchInt(base, off, typ.Size, expr.IntVal)

	case ast.FloatLit:
		s.patchFloat(base, off, typ, expr.FloatVal)

	case ast.StringLit:
		label := s.internGlobalString(expr.StrVal)
		s.addPointerReloc(base, off, label)

	case ast.Unary:
		if expr.UnaryOp == ast.AddrOf {
			target := addressableName(expr.Operand)
			s.addPointerReloc(base, off, target)
		}

	case ast.Ident:
		// Global-to-global aliasing (spec.md §9 Open Question: resolved as
		// "treat like &other" since C has no other way to initialize one
		// global from another's value at link time).
		s.addPointerReloc(base, off, expr.Name)

	case ast.Cast:
		s.writeGlobalScalar(base, off, typ, expr.Rhs)
	}
}

// addressableName resolves the symbol an &expr initializer refers to:
// plain identifiers name themselves; indexed/member forms still resolve to
// the base object's symbol since static initializers can't carry a
// nonzero additive offset beyond what ADDR64+addend encodes, and the
// relocation's addend field (folded into the patched placeholder bytes by
// the linker) covers the rest.
func addressableName(n *ast.Node) string {
	switch n.Kind {
	case ast.Ident:
		return n.Name
	case ast.Index:
		return addressableName(n.Base)
	case ast.Member:
		return addressableName(n.Base)
	}
	return ""
}

// patchInt overwrites size bytes at base+off with v's exact-width bit
// pattern. The data buffer was already zero-filled to the declaration's
// full size, so every initializer write is a patch, never an append.
func (s *Session) patchInt(base uint32, off int32, size int, v int64) {
	at := int(base) + int(off)
	switch size {
	case 1:
		s.Obj.Data.Bytes()[at] = byte(v)
	case 2:
		s.Obj.Data.Bytes()[at] = byte(v)
		s.Obj.Data.Bytes()[at+1] = byte(v >> 8)
	case 4:
		s.Obj.Data.WriteDwordAt(at, uint32(v))
	case 8:
		s.Obj.Data.WriteQwordAt(at, uint64(v))
	}
}

func (s *Session) patchFloat(base uint32, off int32, typ *ast.Type, v float64) {
	at := int(base) + int(off)
	if typ.Size == 4 {
		s.Obj.Data.WriteDwordAt(at, math.Float32bits(float32(v)))
		return
	}
	s.Obj.Data.WriteQwordAt(at, math.Float64bits(v))
}

// addPointerReloc records an absolute relocation against sym for the
// pointer-sized placeholder at base+off, which the declaration's zero fill
// has already cleared, spec.md §6.
func (s *Session) addPointerReloc(base uint32, off int32, sym string) {
	idx := s.Obj.InternSymbol(sym)
	fixup := object.FixupAbs64
	if s.abi.bits == 32 {
		fixup = object.FixupAbs32
	}
	s.Obj.AddReloc(base+uint32(off), idx, fixup, object.SectionData)
}

// internGlobalString interns a string literal into the data section under
// a .LC<n> label the same way the expression emitter does for function
// bodies (spec.md §6), reusing the literal cache so one string used both at
// file scope and inside a function body is only stored once.
func (s *Session) internGlobalString(v string) string {
	if label, ok := s.stringLits[v]; ok {
		return label
	}
	s.litCounter++
	label := ".LC" + strconv.Itoa(s.litCounter)
	s.stringLits[v] = label
	s.Obj.AddSymbol(label, uint64(s.Obj.Data.Len()), object.SectionData, object.TypeNone, object.StorageStatic)
	s.Obj.Data.WriteBytes(append([]byte(v), 0))
	return label
}
