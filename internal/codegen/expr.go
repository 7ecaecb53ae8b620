package codegen

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/minic-lang/minicc/internal/ast"
	"github.com/minic-lang/minicc/internal/encoder"
	"github.com/minic-lang/minicc/internal/object"
)

// genExpr evaluates n, leaving its value in the accumulator (rax/eax for
// integers and pointers, xmm0 for floats), spec.md §4.4 "Code emission
// entry points per AST kind".
func (s *Session) genExpr(n *ast.Node) {
	switch n.Kind {
	case ast.IntLit:
		s.genIntLit(n)
	case ast.FloatLit:
		s.genFloatLit(n)
	case ast.StringLit:
		s.genStringLit(n)
	case ast.Ident:
		s.genIdent(n)
	case ast.Unary:
		s.genUnary(n)
	case ast.Cast:
		s.genCast(n)
	case ast.Binary:
		s.genBinary(n)
	case ast.Assign:
		s.genAssign(n)
	case ast.Index:
		s.genAddr(n)
		s.loadFromAcc(n.ResolvedType)
	case ast.Member:
		s.genAddr(n)
		s.loadFromAcc(n.ResolvedType)
	case ast.Call:
		s.genCall(n)
	case ast.If: // ternary: an If node with a non-nil Else
		s.genTernary(n)
	default:
		s.fail("genExpr: unsupported node kind %v", n.Kind)
	}
}

func (s *Session) genIntLit(n *ast.Node) {
	acc := encoder.Reg(s.accReg())
	if n.IntVal == 0 && s.Opt != OptO0 {
		s.emit("xor", acc, acc)
		return
	}
	s.emit("mov", encoder.Imm(n.IntVal), acc)
}

// internFloat interns a float/double bit pattern under a fresh .LF<n>
// label in the data section, spec.md §4.4 "Float literal".
func (s *Session) internFloat(bits uint64, raw []byte) string {
	if label, ok := s.floatLits[bits]; ok {
		return label
	}
	s.litCounter++
	label := ".LF" + strconv.Itoa(s.litCounter)
	s.floatLits[bits] = label
	s.Obj.AddSymbol(label, uint64(s.Obj.Data.Len()), object.SectionData, 0, object.StorageStatic)
	s.Obj.Data.WriteBytes(raw)
	return label
}

func (s *Session) genFloatLit(n *ast.Node) {
	isDouble := n.ResolvedType == nil || n.ResolvedType.Size == 8
	var bits uint64
	var raw [8]byte
	if isDouble {
		bits = math.Float64bits(n.FloatVal)
		binary.LittleEndian.PutUint64(raw[:], bits)
	} else {
		bits = uint64(math.Float32bits(float32(n.FloatVal)))
		binary.LittleEndian.PutUint32(raw[:4], uint32(bits))
	}
	width := 8
	if !isDouble {
		width = 4
	}
	label := s.internFloat(bits, raw[:width])
	mnem := "movss"
	if isDouble {
		mnem = "movsd"
	}
	s.emit(mnem, encoder.RIP(label, 0), encoder.Reg("xmm0"))
}

func (s *Session) genStringLit(n *ast.Node) {
	label := s.internGlobalString(n.StrVal)
	s.emit("lea", encoder.RIP(label, 0), encoder.Reg(s.accReg()))
}

// genIdent implements the three identifier cases of spec.md §4.4.
func (s *Session) genIdent(n *ast.Node) {
	l, ok := s.locals[n.Name]
	if !ok {
		s.genGlobalLoad(n)
		return
	}
	typ := n.ResolvedType
	if typ != nil && typ.IsAggregate() {
		s.genAddr(n)
		return
	}
	if typ != nil && typ.IsFloat() {
		mnem := "movss"
		if typ.Size == 8 {
			mnem = "movsd"
		}
		switch l.kind {
		case localStack:
			s.emit(mnem, encoder.Mem(s.bpReg(), l.stackOff), encoder.Reg("xmm0"))
		case localStatic:
			s.emit(mnem, encoder.RIP(l.staticName, 0), encoder.Reg("xmm0"))
		}
		return
	}
	switch l.kind {
	case localReg:
		s.movRegToAcc(l.reg, typ)
	case localStatic:
		s.loadWidthFromMem(encoder.RIP(l.staticName, 0), typ)
	case localStack:
		s.loadWidthFromMem(encoder.Mem(s.bpReg(), l.stackOff), typ)
	}
}

// movRegToAcc moves a callee-saved local's register into the accumulator,
// width-appropriate, zero-extending narrow integers per spec.md §4.4
// Identifier case (b)/(c): 1/2-byte values zero-extend explicitly via
// movzb/movzw, a 4-byte value zero-extends implicitly by moving through its
// 32-bit sub-register (writing a 32-bit GPR always clears the upper 32 bits
// on x86-64), and only an 8-byte value moves at the accumulator's full width.
func (s *Session) movRegToAcc(reg string, typ *ast.Type) {
	size := 8
	if typ != nil {
		size = typ.Size
	}
	acc := s.accReg()
	switch size {
	case 1:
		s.emit("movzb", encoder.Reg(widthName(reg, 8)), encoder.Reg(acc))
	case 2:
		s.emit("movzw", encoder.Reg(widthName(reg, 16)), encoder.Reg(acc))
	case 4:
		s.emit("mov", encoder.Reg(widthName(reg, 32)), encoder.Reg(widthName(acc, 32)))
	default:
		s.emit("mov", encoder.Reg(widthName(reg, s.abi.bits)), encoder.Reg(acc))
	}
}

// loadWidthFromMem loads a scalar integer from mem into the accumulator,
// zero-extending 1/2/4-byte values per spec.md §4.4 Identifier case (b)/(c):
// 1/2-byte loads use movzb/movzw so only the addressed bytes are read; a
// 4-byte load uses a plain 32-bit mov into the accumulator's 32-bit
// sub-register, which reads exactly 4 bytes and zero-extends the result to
// 64 bits as a side effect of the write, instead of a 64-bit mov that would
// read 4 bytes past the value's storage.
func (s *Session) loadWidthFromMem(mem encoder.Operand, typ *ast.Type) {
	size := 8
	if typ != nil {
		size = typ.Size
	}
	switch size {
	case 1:
		s.emit("movzb", mem, encoder.Reg(s.accReg()))
	case 2:
		s.emit("movzw", mem, encoder.Reg(s.accReg()))
	case 4:
		s.emit("mov", mem, encoder.Reg(widthName(s.accReg(), 32)))
	default:
		s.emit("mov", mem, encoder.Reg(s.accReg()))
	}
}

// genGlobalLoad handles an identifier that isn't in the local table: a
// file-scope global, loaded by its own name as a label.
func (s *Session) genGlobalLoad(n *ast.Node) {
	typ := n.ResolvedType
	if typ != nil && typ.IsAggregate() {
		s.emit("lea", encoder.RIP(n.Name, 0), encoder.Reg(s.accReg()))
		return
	}
	if typ != nil && typ.IsFloat() {
		mnem := "movss"
		if typ.Size == 8 {
			mnem = "movsd"
		}
		s.emit(mnem, encoder.RIP(n.Name, 0), encoder.Reg("xmm0"))
		return
	}
	s.loadWidthFromMem(encoder.RIP(n.Name, 0), typ)
}

// loadFromAcc loads through the address currently in the accumulator,
// spec.md §4.4 "Member access / array index": "load if the result is a
// scalar; if the member is itself an array/struct/union, the address IS
// the value".
func (s *Session) loadFromAcc(typ *ast.Type) {
	if typ != nil && typ.IsAggregate() {
		return
	}
	acc := s.accReg()
	if typ != nil && typ.IsFloat() {
		mnem := "movss"
		if typ.Size == 8 {
			mnem = "movsd"
		}
		s.emit(mnem, encoder.Mem(acc, 0), encoder.Reg("xmm0"))
		return
	}
	s.loadWidthFromMem(encoder.Mem(acc, 0), typ)
}

// genAddr computes the address of an lvalue expression into the
// accumulator, spec.md §4.4 "Address-of".
func (s *Session) genAddr(n *ast.Node) {
	switch n.Kind {
	case ast.Ident:
		l, ok := s.locals[n.Name]
		if !ok {
			s.emit("lea", encoder.RIP(n.Name, 0), encoder.Reg(s.accReg()))
			return
		}
		switch l.kind {
		case localStatic:
			s.emit("lea", encoder.RIP(l.staticName, 0), encoder.Reg(s.accReg()))
		case localStack:
			s.emit("lea", encoder.Mem(s.bpReg(), l.stackOff), encoder.Reg(s.accReg()))
		default:
			s.fail("address-of register-resident variable %s", n.Name)
		}
	case ast.Unary:
		if n.UnaryOp == ast.Deref {
			s.genExpr(n.Operand)
			return
		}
		s.fail("address-of unsupported unary node")
	case ast.Member:
		s.genAddr(n.Base)
		if n.Arrow {
			s.loadFromAcc(ast.TypeLong)
		}
		if off := memberOffset(n.Base.ResolvedType, n.Field); off != 0 {
			s.emit("add", encoder.Imm(int64(off)), encoder.Reg(s.accReg()))
		}
	case ast.Index:
		s.genExpr(n.Base)
		s.emit("push", encoder.Reg(s.accReg()))
		s.genExpr(n.Idx)
		elemSize := int64(1)
		if n.ResolvedType != nil {
			elemSize = int64(n.ResolvedType.Size)
		}
		if elemSize != 1 {
			s.emit("imul", encoder.Imm(elemSize), encoder.Reg(s.accReg()), encoder.Reg(s.accReg()))
		}
		s.emit("pop", encoder.Reg(s.secReg()))
		s.emit("add", encoder.Reg(s.secReg()), encoder.Reg(s.accReg()))
	default:
		s.fail("genAddr: unsupported node kind %v", n.Kind)
	}
}

func memberOffset(structType *ast.Type, field string) int {
	if structType == nil {
		return 0
	}
	t := structType
	if t.Kind == ast.Pointer {
		t = t.Elem
	}
	for _, m := range t.Members {
		if m.Name == field {
			return m.Offset
		}
	}
	return 0
}

// genAssign implements spec.md §4.4 "Assignment": a register-resident
// scalar local is written directly; anything else stores through its
// address, and a struct/union target copies via memcpy rather than a
// single scalar store.
func (s *Session) genAssign(n *ast.Node) {
	typ := n.ResolvedType

	if typ != nil && typ.IsAggregate() {
		s.genAddr(n.Lhs)
		s.emit("mov", encoder.Reg(s.accReg()), encoder.Reg("rdi"))
		s.genAddr(n.Rhs)
		s.emit("mov", encoder.Reg(s.accReg()), encoder.Reg("rsi"))
		s.emitMemcpyCall(typ)
		s.emit("mov", encoder.Reg("rdi"), encoder.Reg(s.accReg()))
		return
	}

	if typ != nil && !typ.IsFloat() && n.Lhs.Kind == ast.Ident {
		if l, ok := s.locals[n.Lhs.Name]; ok && l.kind == localReg {
			s.genExpr(n.Rhs)
			s.movAccToReg(l.reg, typ)
			return
		}
	}

	s.genAddr(n.Lhs)
	s.emit("push", encoder.Reg(s.accReg()))
	s.genExpr(n.Rhs)
	s.emit("pop", encoder.Reg("rcx"))
	s.storeAccToMem(encoder.Mem("rcx", 0), typ)
}

// genUnary handles the arithmetic/logical unary ops and pre/post
// increment-decrement, spec.md §4.4 "Unary".
func (s *Session) genUnary(n *ast.Node) {
	switch n.UnaryOp {
	case ast.Neg:
		s.genExpr(n.Operand)
		s.emit("neg", encoder.Reg(s.accReg()))
	case ast.Not:
		s.genExpr(n.Operand)
		s.emit("test", encoder.Reg(s.accReg()), encoder.Reg(s.accReg()))
		s.emit("sete", encoder.Reg("al"))
		s.emit("movz", encoder.Reg("al"), encoder.Reg(s.accReg()))
	case ast.BitNot:
		s.genExpr(n.Operand)
		s.emit("not", encoder.Reg(s.accReg()))
	case ast.AddrOf:
		s.genAddr(n.Operand)
	case ast.Deref:
		s.genExpr(n.Operand)
		s.loadFromAcc(n.ResolvedType)
	case ast.PreInc, ast.PreDec, ast.PostInc, ast.PostDec:
		s.genIncDec(n)
	default:
		s.fail("genUnary: unsupported op %v", n.UnaryOp)
	}
}

func (s *Session) genIncDec(n *ast.Node) {
	delta := int64(1)
	if n.Operand.ResolvedType != nil && n.Operand.ResolvedType.Kind == ast.Pointer {
		delta = int64(n.Operand.ResolvedType.Elem.Size)
	}
	isDec := n.UnaryOp == ast.PreDec || n.UnaryOp == ast.PostDec
	isPost := n.UnaryOp == ast.PostInc || n.UnaryOp == ast.PostDec

	if n.Operand.Kind == ast.Ident {
		if l, ok := s.locals[n.Operand.Name]; ok && l.kind == localReg {
			reg := encoder.Reg(widthName(l.reg, s.abi.bits))
			if isPost {
				s.movRegToAcc(l.reg, n.Operand.ResolvedType)
			}
			if isDec {
				s.emit("sub", encoder.Imm(delta), reg)
			} else {
				s.emit("add", encoder.Imm(delta), reg)
			}
			if !isPost {
				s.movRegToAcc(l.reg, n.Operand.ResolvedType)
			}
			return
		}
	}

	s.genAddr(n.Operand)
	s.emit("push", encoder.Reg(s.accReg()))
	s.loadFromAcc(n.Operand.ResolvedType)
	if isPost {
		s.emit("mov", encoder.Reg(s.accReg()), encoder.Reg(s.secReg()))
	}
	if isDec {
		s.emit("sub", encoder.Imm(delta), encoder.Reg(s.accReg()))
	} else {
		s.emit("add", encoder.Imm(delta), encoder.Reg(s.accReg()))
	}
	s.emit("pop", encoder.Reg("rcx"))
	s.emit("mov", encoder.Reg(s.accReg()), encoder.Mem("rcx", 0))
	if isPost {
		s.emit("mov", encoder.Reg(s.secReg()), encoder.Reg(s.accReg()))
	}
}

// genCast implements spec.md §4.4 "Cast".
func (s *Session) genCast(n *ast.Node) {
	s.genExpr(n.Rhs)
	from, to := n.Rhs.ResolvedType, n.ResolvedType
	if from == nil || to == nil {
		return
	}
	switch {
	case from.IsFloat() && to.IsScalarInt():
		mnem := "cvttss2si"
		if from.Size == 8 {
			mnem = "cvttsd2si"
		}
		s.emit(mnem, encoder.Reg("xmm0"), encoder.Reg(s.accReg()))
	case from.IsScalarInt() && to.IsFloat():
		mnem := "cvtsi2ss"
		if to.Size == 8 {
			mnem = "cvtsi2sd"
		}
		s.emit(mnem, encoder.Reg(s.accReg()), encoder.Reg("xmm0"))
	case from.Kind == ast.Float && to.Kind == ast.Double:
		s.emit("cvtss2sd", encoder.Reg("xmm0"), encoder.Reg("xmm0"))
	case from.Kind == ast.Double && to.Kind == ast.Float:
		s.emit("cvtsd2ss", encoder.Reg("xmm0"), encoder.Reg("xmm0"))
	case to.Kind == ast.Char:
		s.emit("movs", encoder.Reg("al"), encoder.Reg(s.accReg()))
	}
}

// genBinary implements spec.md §4.4 "Binary expression".
func (s *Session) genBinary(n *ast.Node) {
	switch n.BinaryOp {
	case ast.LogAnd, ast.LogOr:
		s.genShortCircuit(n)
		return
	case ast.Comma:
		s.genExpr(n.Lhs)
		s.genExpr(n.Rhs)
		return
	}

	if imm, ok := constInt(n.Rhs); ok && admitsImmediate(n.BinaryOp) {
		s.genExpr(n.Lhs)
		s.emitBinOpImm(n.BinaryOp, imm)
		return
	}

	if isSimple(n.Lhs) {
		s.genExpr(n.Rhs)
		s.emit("mov", encoder.Reg(s.accReg()), encoder.Reg(s.secReg()))
		s.genExpr(n.Lhs)
		s.emitBinOpReg(n.BinaryOp, s.secReg())
	} else {
		s.genExpr(n.Rhs)
		s.emit("push", encoder.Reg(s.accReg()))
		s.genExpr(n.Lhs)
		s.emit("pop", encoder.Reg(s.secReg()))
		s.emitBinOpReg(n.BinaryOp, s.secReg())
	}
}

func constInt(n *ast.Node) (int64, bool) {
	if n.Kind == ast.IntLit && n.IntVal >= -128 && n.IntVal <= 127 {
		return n.IntVal, true
	}
	return 0, false
}

func admitsImmediate(op ast.BinaryOp) bool {
	switch op {
	case ast.Add, ast.Sub, ast.BitAnd, ast.BitOr, ast.BitXor, ast.Shl, ast.Shr,
		ast.CmpEq, ast.CmpNe, ast.CmpLt, ast.CmpLe, ast.CmpGt, ast.CmpGe:
		return true
	}
	return false
}

func isSimple(n *ast.Node) bool {
	switch n.Kind {
	case ast.IntLit, ast.Ident:
		return true
	}
	return false
}

func (s *Session) emitBinOpImm(op ast.BinaryOp, imm int64) {
	acc := encoder.Reg(s.accReg())
	switch op {
	case ast.Add:
		s.emit("add", encoder.Imm(imm), acc)
	case ast.Sub:
		s.emit("sub", encoder.Imm(imm), acc)
	case ast.BitAnd:
		s.emit("and", encoder.Imm(imm), acc)
	case ast.BitOr:
		s.emit("or", encoder.Imm(imm), acc)
	case ast.BitXor:
		s.emit("xor", encoder.Imm(imm), acc)
	case ast.Shl:
		s.emit("shl", encoder.Imm(imm), acc)
	case ast.Shr:
		s.emit("shr", encoder.Imm(imm), acc)
	default:
		if cc, ok := cmpCond(op); ok {
			s.emit("cmp", encoder.Imm(imm), acc)
			s.emitSetccToAcc(cc)
		}
	}
}

func (s *Session) emitBinOpReg(op ast.BinaryOp, sec string) {
	acc := encoder.Reg(s.accReg())
	secR := encoder.Reg(sec)
	switch op {
	case ast.Add:
		s.emit("add", secR, acc)
	case ast.Sub:
		s.emit("sub", secR, acc)
	case ast.Mul:
		s.emit("imul", secR, acc)
	case ast.BitAnd:
		s.emit("and", secR, acc)
	case ast.BitOr:
		s.emit("or", secR, acc)
	case ast.BitXor:
		s.emit("xor", secR, acc)
	case ast.Shl:
		s.emit("shl", encoder.Reg("cl"), acc)
	case ast.Shr:
		s.emit("shr", encoder.Reg("cl"), acc)
	case ast.Div, ast.Mod:
		cdq := "cqo"
		if s.abi.bits != 64 {
			cdq = "cdq"
		}
		s.emit(cdq)
		s.emit("idiv", secR)
		if op == ast.Mod {
			s.emit("mov", encoder.Reg(s.dxReg()), acc)
		}
	default:
		if cc, ok := cmpCond(op); ok {
			s.emit("cmp", secR, acc)
			s.emitSetccToAcc(cc)
		}
	}
}

func (s *Session) dxReg() string {
	if s.abi.bits == 64 {
		return "rdx"
	}
	return "edx"
}

func (s *Session) emitSetccToAcc(cc string) {
	s.emit("set"+cc, encoder.Reg("al"))
	s.emit("movz", encoder.Reg("al"), encoder.Reg(s.accReg()))
}

func cmpCond(op ast.BinaryOp) (string, bool) {
	switch op {
	case ast.CmpEq:
		return "e", true
	case ast.CmpNe:
		return "ne", true
	case ast.CmpLt:
		return "l", true
	case ast.CmpLe:
		return "le", true
	case ast.CmpGt:
		return "g", true
	case ast.CmpGe:
		return "ge", true
	}
	return "", false
}

// genShortCircuit lowers && / || to a compare-jump sequence, spec.md §4.4.
func (s *Session) genShortCircuit(n *ast.Node) {
	shortLabel := s.newLabel("sc_short")
	endLabel := s.newLabel("sc_end")
	acc := encoder.Reg(s.accReg())
	isAnd := n.BinaryOp == ast.LogAnd

	s.genExpr(n.Lhs)
	s.emit("test", acc, acc)
	if isAnd {
		s.emit("je", encoder.Label(shortLabel))
	} else {
		s.emit("jne", encoder.Label(shortLabel))
	}

	s.genExpr(n.Rhs)
	s.emit("test", acc, acc)
	s.emit("setne", encoder.Reg("al"))
	s.emit("movz", encoder.Reg("al"), acc)
	s.emit("jmp", encoder.Label(endLabel))

	s.emitLabel(shortLabel)
	if isAnd {
		s.emit("xor", acc, acc)
	} else {
		s.emit("mov", encoder.Imm(1), acc)
	}
	s.emitLabel(endLabel)
}

// genTernary implements spec.md §4.4 "Ternary (if-expression)".
func (s *Session) genTernary(n *ast.Node) {
	acc := encoder.Reg(s.accReg())
	if s.gateLevel() >= OptO2 && !s.Debug && !s.debugPreserve() && isSimple(n.Then) && isSimple(n.Else) {
		s.genExpr(n.Cond)
		s.emit("mov", acc, encoder.Reg(s.secReg()))
		s.genExpr(n.Then)
		s.emit("mov", acc, encoder.Reg("rdi"))
		s.genExpr(n.Else)
		s.emit("test", encoder.Reg(s.secReg()), encoder.Reg(s.secReg()))
		s.emit("cmovne", encoder.Reg("rdi"), acc)
		return
	}

	elseLabel := s.newLabel("tern_else")
	endLabel := s.newLabel("tern_end")
	s.genExpr(n.Cond)
	s.emit("test", acc, acc)
	s.emit("je", encoder.Label(elseLabel))
	s.genExpr(n.Then)
	s.emit("jmp", encoder.Label(endLabel))
	s.emitLabel(elseLabel)
	s.genExpr(n.Else)
	s.emitLabel(endLabel)
}
