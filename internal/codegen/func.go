package codegen

import (
	"github.com/minic-lang/minicc/internal/ast"
	"github.com/minic-lang/minicc/internal/encoder"
	"github.com/minic-lang/minicc/internal/object"
	"github.com/minic-lang/minicc/internal/pgo"
)

// CompileFunction lowers one function declaration to machine code,
// spec.md §4.4's entry point for AST_FUNCTION.
func (s *Session) CompileFunction(fn *ast.Node) {
	s.resetFunction(fn.Name)
	s.retType = fn.ReturnType
	s.hasSret = fn.ReturnType != nil && fn.ReturnType.IsAggregate() && fn.ReturnType.Size > 8

	storage := object.StorageExternal
	if fn.IsStaticFn {
		storage = object.StorageStatic
	}
	s.peepholeFlushAll()
	s.Obj.AddSymbol(fn.Name, uint64(s.Enc.Buf.Len()), object.SectionText, object.TypeFunction, uint8(storage))

	s.emitPrologue(fn)
	if s.pgoEnabled() {
		c := s.pgoAlloc.AllocFuncCounter(fn.Name)
		s.peepholeFlushAll()
		pgo.EmitIncrement(s.Enc, c)
	}
	if s.Debug {
		s.Obj.BeginDebugFunc(fn.Name, uint32(s.Enc.Buf.Len()))
	}

	s.genStmt(fn.FuncBody)

	s.emitLabel(s.funcEnd)
	s.emitEpilogue()
	if s.Debug {
		s.Obj.EndDebugFunc(uint32(s.Enc.Buf.Len()))
	}
}

// emitPrologue pushes rbp, allocates the locally-assigned registers
// (spec.md §4.4 register-allocator steps 5 and 7), and binds parameters.
func (s *Session) emitPrologue(fn *ast.Node) {
	s.emit("push", encoder.Reg(s.bpReg()))
	s.emit("mov", encoder.Reg(s.spReg()), encoder.Reg(s.bpReg()))

	alloc := s.allocateRegisters(fn)
	for _, name := range alloc.assigned {
		l := s.locals[name]
		slot := -(int32(len(s.savedRegs)) + 1) * s.abi.slotSize
		s.emit("push", encoder.Reg(l.reg))
		s.savedRegs = append(s.savedRegs, savedReg{name: l.reg, slotOff: slot})
	}
	s.stackOffset = -int32(len(s.savedRegs)) * s.abi.slotSize

	if s.hasSret {
		s.sretPtrSlot = s.stackOffset - s.abi.slotSize
		s.stackOffset = s.sretPtrSlot
		s.emit("mov", encoder.Reg(s.abi.intArgRegs[0]), encoder.Mem(s.bpReg(), s.sretPtrSlot))
	}

	s.bindParams(fn)
}

// bindParams implements spec.md §4.4 step 7: incoming arguments are moved
// either into their promoted callee-saved register or spilled to a stack
// slot, and the local table records each parameter's home.
func (s *Session) bindParams(fn *ast.Node) {
	intIdx, xmmIdx := 0, 0
	if s.hasSret {
		intIdx = 1
	}
	for _, p := range fn.Params {
		isFloat := p.VarType != nil && p.VarType.IsFloat()
		if l, ok := s.locals[p.Name]; ok && l.kind == localReg {
			if isFloat || s.abi.intArgRegs == nil {
				s.spillParamToStack(p, intIdx, xmmIdx, isFloat)
			} else if intIdx < len(s.abi.intArgRegs) {
				s.emit("mov", encoder.Reg(s.abi.intArgRegs[intIdx]), encoder.Reg(widthName(l.reg, s.abi.bits)))
			}
		} else {
			s.spillParamToStack(p, intIdx, xmmIdx, isFloat)
		}
		if isFloat {
			xmmIdx++
		} else {
			intIdx++
		}
	}
}

func (s *Session) spillParamToStack(p *ast.Node, intIdx, xmmIdx int, isFloat bool) {
	size := s.abi.slotSize
	if p.VarType != nil {
		size = int32(alignUp(p.VarType.Size, int(s.abi.slotSize)))
	}
	s.stackOffset -= size
	off := s.stackOffset
	s.locals[p.Name] = &local{name: p.Name, typ: p.VarType, kind: localStack, stackOff: off, isParam: true}

	if s.abi.intArgRegs == nil {
		// cdecl: parameters already live above the saved return address;
		// the local table's stack offset addressing stays relative to bp
		// through the generic Identifier path, so nothing to move here.
		return
	}
	if isFloat {
		if xmmIdx < len(s.abi.xmmArgRegs) {
			mnem := "movsd"
			if p.VarType != nil && p.VarType.Size == 4 {
				mnem = "movss"
			}
			s.emit(mnem, encoder.Reg(s.abi.xmmArgRegs[xmmIdx]), encoder.Mem(s.bpReg(), off))
		}
		return
	}
	if intIdx < len(s.abi.intArgRegs) {
		s.emit("mov", encoder.Reg(s.abi.intArgRegs[intIdx]), encoder.Mem(s.bpReg(), off))
	}
}

func (s *Session) emitEpilogue() {
	s.restoreSavedRegs()
	s.emit("leave")
	s.emit("ret")
}

// genCall implements spec.md §4.4 "Call".
func (s *Session) genCall(n *ast.Node) {
	s.marshalArgs(n)
	s.emit("call", encoder.Label(n.Callee.Name))
	s.popOverflowArgs(n)
}

// marshalArgs evaluates arguments, pushes them in reverse order, then pops
// them into the ABI-designated registers, padding the stack to 16 bytes
// including shadow space, spec.md §4.4 "Call".
func (s *Session) marshalArgs(n *ast.Node) {
	shift := 0
	if s.hasSretCallee(n) {
		shift = 1
	}

	for i := len(n.Args) - 1; i >= 0; i-- {
		arg := n.Args[i]
		s.genExpr(arg)
		if arg.ResolvedType != nil && arg.ResolvedType.IsFloat() {
			s.pushXMM(arg.ResolvedType)
		} else {
			s.emit("push", encoder.Reg(s.accReg()))
		}
	}

	if depth := len(n.Args); depth > 0 {
		s.alignStackForCall(depth)
	}

	intIdx, xmmIdx := shift, 0
	xmmArgCount := 0
	for _, arg := range n.Args {
		if arg.ResolvedType != nil && arg.ResolvedType.IsFloat() {
			xmmArgCount++
		}
	}
	for _, arg := range n.Args {
		isFloat := arg.ResolvedType != nil && arg.ResolvedType.IsFloat()
		if isFloat {
			if xmmIdx < len(s.abi.xmmArgRegs) {
				mnem := "movsd"
				if arg.ResolvedType.Size == 4 {
					mnem = "movss"
				}
				s.emit(mnem, encoder.Mem(s.spReg(), 0), encoder.Reg(s.abi.xmmArgRegs[xmmIdx]))
				s.emit("add", encoder.Imm(8), encoder.Reg(s.spReg()))
			}
			xmmIdx++
		} else {
			if intIdx < len(s.abi.intArgRegs) {
				s.emit("pop", encoder.Reg(s.abi.intArgRegs[intIdx]))
			}
			intIdx++
		}
	}

	if s.abi.variadicALTrick {
		s.emit("mov", encoder.Imm(int64(xmmArgCount)), encoder.Reg("al"))
	}
	if s.abi.shadowSpace > 0 {
		s.emit("sub", encoder.Imm(int64(s.abi.shadowSpace)), encoder.Reg(s.spReg()))
	}
}

func (s *Session) hasSretCallee(n *ast.Node) bool {
	return n.ResolvedType != nil && n.ResolvedType.IsAggregate() && n.ResolvedType.Size > 8
}

// pushXMM implements the XMM push helper of spec.md §4.4: "sub rsp,8;
// movsd xmm, [rsp]".
func (s *Session) pushXMM(typ *ast.Type) {
	s.emit("sub", encoder.Imm(8), encoder.Reg(s.spReg()))
	mnem := "movsd"
	if typ.Size == 4 {
		mnem = "movss"
	}
	s.emit(mnem, encoder.Reg("xmm0"), encoder.Mem(s.spReg(), 0))
}

// alignStackForCall pads the stack so RSP is 16-byte aligned at the call
// instruction, spec.md §4.4 "Stack discipline".
func (s *Session) alignStackForCall(argsPushed int) {
	depth := int64(argsPushed) * int64(s.abi.slotSize)
	total := depth + int64(s.abi.shadowSpace) - int64(s.stackOffset)
	if total%16 != 0 {
		pad := 16 - (total % 16)
		s.emit("sub", encoder.Imm(pad), encoder.Reg(s.spReg()))
	}
}

// popOverflowArgs restores the shadow-space/overflow adjustment after a
// call, keeping any sret buffer on the stack per spec.md §4.4 "Call".
func (s *Session) popOverflowArgs(n *ast.Node) {
	if s.abi.shadowSpace > 0 {
		s.emit("add", encoder.Imm(int64(s.abi.shadowSpace)), encoder.Reg(s.spReg()))
	}
}
