package codegen

import (
	"strconv"

	"github.com/minic-lang/minicc/internal/ast"
	"github.com/minic-lang/minicc/internal/encoder"
	"github.com/minic-lang/minicc/internal/object"
	"github.com/minic-lang/minicc/internal/pgo"
)

// genStmt emits one statement, spec.md §4.4 "Statements".
func (s *Session) genStmt(n *ast.Node) {
	switch n.Kind {
	case ast.Block:
		s.genBlock(n)
	case ast.If:
		s.genIf(n)
	case ast.While:
		s.genWhile(n)
	case ast.DoWhile:
		s.genDoWhile(n)
	case ast.For:
		s.genFor(n)
	case ast.Switch:
		s.genSwitch(n)
	case ast.Case:
		s.genCaseOrDefault(n)
	case ast.Default:
		s.genCaseOrDefault(n)
	case ast.Break:
		s.genBreak(n)
	case ast.Continue:
		s.genContinue(n)
	case ast.Goto:
		s.emit("jmp", encoder.Label(n.Label))
	case ast.Label:
		s.emitLabel(n.Label)
	case ast.Return:
		s.genReturn(n)
	case ast.VarDecl:
		s.genVarDecl(n)
	case ast.Assert:
		s.genAssert(n)
	default:
		// expression statement
		s.genExpr(n)
	}
}

// genBlock implements spec.md §4.4 "Block statement".
func (s *Session) genBlock(n *ast.Node) {
	savedOff, savedCount := s.stackOffset, s.localsCount
	for _, child := range n.Stmts {
		s.genStmt(child)
	}
	if s.stackOffset != savedOff || s.localsCount != savedCount {
		s.emit("lea", encoder.Mem(s.bpReg(), savedOff), encoder.Reg(s.spReg()))
	}
	s.stackOffset, s.localsCount = savedOff, savedCount
}

// genIf implements spec.md §4.4 "if".
func (s *Session) genIf(n *ast.Node) {
	elseLabel := s.newLabel("if_else")
	endLabel := s.newLabel("if_end")

	s.genExpr(n.Cond)
	s.emit("test", encoder.Reg(s.accReg()), encoder.Reg(s.accReg()))
	s.emit("je", encoder.Label(elseLabel))

	if s.pgoEnabled() {
		site := s.funcName + ":" + strconv.Itoa(n.Line)
		s.peepholeFlushAll()
		pgo.EmitIncrement(s.Enc, s.pgoAlloc.AllocBranchCounter(site, true))
	}

	savedOff := s.stackOffset
	s.genStmt(n.Then)
	s.restoreStackTo(savedOff)
	if n.Else != nil {
		s.emit("jmp", encoder.Label(endLabel))
	}

	s.emitLabel(elseLabel)
	if s.pgoEnabled() && n.Else != nil {
		site := s.funcName + ":" + strconv.Itoa(n.Line)
		s.peepholeFlushAll()
		pgo.EmitIncrement(s.Enc, s.pgoAlloc.AllocBranchCounter(site, false))
	}
	if n.Else != nil {
		s.genStmt(n.Else)
		s.restoreStackTo(savedOff)
	}
	s.emitLabel(endLabel)
}

func (s *Session) restoreStackTo(off int32) {
	if s.stackOffset != off {
		s.emit("lea", encoder.Mem(s.bpReg(), off), encoder.Reg(s.spReg()))
		s.stackOffset = off
	}
}

// genWhile/genFor/genDoWhile share the loop-rotation logic of spec.md §4.4.
func (s *Session) genWhile(n *ast.Node) {
	if n.Vec != nil {
		s.genVectorizedLoop(n)
		return
	}
	s.genLoop(nil, n.Cond, n.Then, nil)
}

func (s *Session) genDoWhile(n *ast.Node) {
	s.genDoWhileLoop(n.Then, n.Cond)
}

func (s *Session) genFor(n *ast.Node) {
	if n.Init != nil {
		s.genStmt(n.Init)
	}
	if n.Vec != nil {
		s.genVectorizedLoop(n)
		return
	}
	s.genLoop(nil, n.Cond, n.Body, n.Post)
}

// genLoop implements the "while"/"for" layouts of spec.md §4.4, including
// loop rotation at -O2+.
func (s *Session) genLoop(_ *ast.Node, cond, body, post *ast.Node) {
	startLabel := s.newLabel("loop_start")
	continueLabel := s.newLabel("loop_cont")
	endLabel := s.newLabel("loop_end")

	savedOff := s.stackOffset
	frame := loopFrame{savedStackOff: savedOff, breakLabel: endLabel, continueLabel: continueLabel}
	s.breakTargets = append(s.breakTargets, frame)
	s.continueLabels = append(s.continueLabels, frame)
	defer func() {
		s.breakTargets = s.breakTargets[:len(s.breakTargets)-1]
		s.continueLabels = s.continueLabels[:len(s.continueLabels)-1]
	}()

	// Loop rotation duplicates the condition check, which -Os's size
	// preference forgoes even though Os otherwise gates as O2.
	if s.gateLevel() >= OptO2 && !s.debugPreserve() && !s.sizePref() {
		if cond != nil {
			s.genExpr(cond)
			s.emit("test", encoder.Reg(s.accReg()), encoder.Reg(s.accReg()))
			s.emit("je", encoder.Label(endLabel))
		}
		s.emitLabel(startLabel)
		s.genStmt(body)
		s.emitLabel(continueLabel)
		if post != nil {
			s.genExpr(post)
		}
		if cond != nil {
			s.genExpr(cond)
			s.emit("test", encoder.Reg(s.accReg()), encoder.Reg(s.accReg()))
			s.emit("jne", encoder.Label(startLabel))
		} else {
			s.emit("jmp", encoder.Label(startLabel))
		}
		s.emitLabel(endLabel)
		return
	}

	s.emitLabel(startLabel)
	if cond != nil {
		s.genExpr(cond)
		s.emit("test", encoder.Reg(s.accReg()), encoder.Reg(s.accReg()))
		s.emit("je", encoder.Label(endLabel))
	}
	s.genStmt(body)
	s.emitLabel(continueLabel)
	if post != nil {
		s.genExpr(post)
	}
	s.emit("jmp", encoder.Label(startLabel))
	s.emitLabel(endLabel)
}

func (s *Session) genDoWhileLoop(body, cond *ast.Node) {
	startLabel := s.newLabel("do_start")
	continueLabel := s.newLabel("do_cont")
	endLabel := s.newLabel("do_end")
	savedOff := s.stackOffset

	frame := loopFrame{savedStackOff: savedOff, breakLabel: endLabel, continueLabel: continueLabel}
	s.breakTargets = append(s.breakTargets, frame)
	s.continueLabels = append(s.continueLabels, frame)
	defer func() {
		s.breakTargets = s.breakTargets[:len(s.breakTargets)-1]
		s.continueLabels = s.continueLabels[:len(s.continueLabels)-1]
	}()

	s.emitLabel(startLabel)
	s.genStmt(body)
	s.emitLabel(continueLabel)
	s.genExpr(cond)
	s.emit("test", encoder.Reg(s.accReg()), encoder.Reg(s.accReg()))
	s.emit("jne", encoder.Label(startLabel))
	s.emitLabel(endLabel)
}

// genSwitch implements spec.md §4.4 "switch".
func (s *Session) genSwitch(n *ast.Node) {
	endLabel := s.newLabel("switch_end")
	savedOff := s.stackOffset
	s.breakTargets = append(s.breakTargets, loopFrame{savedStackOff: savedOff, breakLabel: endLabel})
	defer func() { s.breakTargets = s.breakTargets[:len(s.breakTargets)-1] }()

	var cases []*ast.Node
	var defaultNode *ast.Node
	ast.Walk(n.Body, func(c *ast.Node) {
		switch c.Kind {
		case ast.Case:
			cases = append(cases, c)
		case ast.Default:
			defaultNode = c
		}
	})

	s.genExpr(n.Cond)
	acc := s.accReg()
	for _, c := range cases {
		label := s.newLabel("case")
		s.switchLabels[c] = label
		s.emit("cmp", encoder.Imm(c.CaseVal), encoder.Reg(acc))
		s.emit("je", encoder.Label(label))
	}
	if defaultNode != nil {
		label := s.newLabel("default")
		s.switchLabels[defaultNode] = label
		s.emit("jmp", encoder.Label(label))
	} else {
		s.emit("jmp", encoder.Label(endLabel))
	}

	s.genStmt(n.Body)
	s.emitLabel(endLabel)
}

// genCaseOrDefault re-emits a case/default label collected during
// genSwitch's walk and resets the stack cursor to the switch-entry value,
// spec.md §4.4 "switch": "case/default nodes re-emit their pre-collected
// labels and reset the stack cursor to the switch-entry value on entry".
func (s *Session) genCaseOrDefault(n *ast.Node) {
	if label, ok := s.switchLabels[n]; ok {
		s.emitLabel(label)
	}
	if len(s.breakTargets) > 0 {
		s.stackOffset = s.breakTargets[len(s.breakTargets)-1].savedStackOff
	}
	if n.Body != nil {
		s.genStmt(n.Body)
	}
}

// genBreak restores the nearest enclosing loop's or switch's saved stack
// cursor and jumps to its end label, spec.md §4.4 "break/continue". Loops
// and switches share one stack (breakTargets) so nesting order is honored
// regardless of which kind is innermost.
func (s *Session) genBreak(n *ast.Node) {
	if n.Label != "" {
		s.emit("jmp", encoder.Label(n.Label))
		return
	}
	if len(s.breakTargets) == 0 {
		s.fail("break outside loop/switch")
		return
	}
	f := s.breakTargets[len(s.breakTargets)-1]
	s.restoreStackTo(f.savedStackOff)
	s.emit("jmp", encoder.Label(f.breakLabel))
}

func (s *Session) genContinue(n *ast.Node) {
	if len(s.continueLabels) == 0 {
		s.fail("continue outside loop")
		return
	}
	f := s.continueLabels[len(s.continueLabels)-1]
	s.restoreStackTo(f.savedStackOff)
	s.emit("jmp", encoder.Label(f.continueLabel))
}

// genReturn implements spec.md §4.4 "return", including the tail-call
// fast path for "return f(args)".
func (s *Session) genReturn(n *ast.Node) {
	if n.RetExpr != nil && n.RetExpr.Kind == ast.Call && s.isTailCallEligible(n.RetExpr) {
		s.genTailCall(n.RetExpr)
		return
	}

	if n.RetExpr != nil {
		if s.hasSret {
			s.genAddr(n.RetExpr)
			s.emit("mov", encoder.Reg(s.accReg()), encoder.Reg("rsi"))
			s.emit("mov", encoder.Mem(s.bpReg(), s.sretPtrSlot), encoder.Reg("rdi"))
			s.emitMemcpyCall(n.RetExpr.ResolvedType)
			s.emit("mov", encoder.Mem(s.bpReg(), s.sretPtrSlot), encoder.Reg(s.accReg()))
		} else {
			s.genExpr(n.RetExpr)
			s.convertForReturn(n.RetExpr.ResolvedType)
		}
	}
	s.restoreSavedRegs()
	s.emit("jmp", encoder.Label(s.funcEnd))
}

func (s *Session) convertForReturn(from *ast.Type) {
	if from == nil || s.retType == nil {
		return
	}
	if from.IsFloat() && !s.retType.IsFloat() {
		mnem := "cvttss2si"
		if from.Size == 8 {
			mnem = "cvttsd2si"
		}
		s.emit(mnem, encoder.Reg("xmm0"), encoder.Reg(s.accReg()))
	} else if !from.IsFloat() && s.retType.IsFloat() {
		mnem := "cvtsi2ss"
		if s.retType.Size == 8 {
			mnem = "cvtsi2sd"
		}
		s.emit(mnem, encoder.Reg(s.accReg()), encoder.Reg("xmm0"))
	}
}

func (s *Session) isTailCallEligible(call *ast.Node) bool {
	if s.gateLevel() < OptO2 || s.Debug || s.debugPreserve() || s.hasSret {
		return false
	}
	if len(call.Args) > len(s.abi.intArgRegs) {
		return false
	}
	if call.ResolvedType != nil && call.ResolvedType.IsAggregate() {
		return false
	}
	return true
}

func (s *Session) genTailCall(call *ast.Node) {
	s.marshalArgs(call)
	s.restoreSavedRegs()
	s.emit("leave")
	s.emit("jmp", encoder.Label(call.Callee.Name))
}

func (s *Session) restoreSavedRegs() {
	for i := len(s.savedRegs) - 1; i >= 0; i-- {
		sv := s.savedRegs[i]
		s.emit("mov", encoder.Mem(s.bpReg(), sv.slotOff), encoder.Reg(sv.name))
	}
}

// genAssert implements spec.md §4.4 "assert".
func (s *Session) genAssert(n *ast.Node) {
	okLabel := s.newLabel("assert_ok")
	s.genExpr(n.AssertExpr)
	s.emit("test", encoder.Reg(s.accReg()), encoder.Reg(s.accReg()))
	s.emit("jne", encoder.Label(okLabel))
	s.emit("ud2")
	s.emitLabel(okLabel)
}

// genVarDecl implements spec.md §4.4 "Variable declaration".
func (s *Session) genVarDecl(n *ast.Node) {
	if n.IsExtern {
		s.locals[n.Name] = &local{name: n.Name, typ: n.VarType, kind: localStatic, staticName: n.Name}
		return
	}
	if n.IsStatic {
		s.localsCount++
		label := "_S_" + s.funcName + "_" + n.Name + "_" + strconv.Itoa(s.localsCount)
		s.emitGlobalData(label, object.StorageStatic, n.VarType, n.Init1, n.InitList)
		s.locals[n.Name] = &local{name: n.Name, typ: n.VarType, kind: localStatic, staticName: label}
		return
	}

	if l, ok := s.locals[n.Name]; ok && l.kind == localReg {
		if n.Init1 != nil {
			s.genExpr(n.Init1)
			s.movAccToReg(l.reg, n.VarType)
		}
		return
	}

	size := n.VarType.Size
	slot := alignUp(size, int(s.abi.slotSize))
	s.stackOffset -= int32(slot)
	off := s.stackOffset
	s.localsCount++
	s.locals[n.Name] = &local{name: n.Name, typ: n.VarType, kind: localStack, stackOff: off}

	if n.InitList != nil {
		s.zeroStackSlot(off, size)
		for _, elem := range n.InitList {
			if elem.Value == nil {
				continue
			}
			s.genExpr(elem.Value)
			s.storeAccToMem(encoder.Mem(s.bpReg(), off+int32(elem.Index)), elemTypeOf(n.VarType))
		}
		return
	}

	if n.Init1 != nil {
		s.genExpr(n.Init1)
		s.storeAccToMem(encoder.Mem(s.bpReg(), off), n.VarType)
	}
}

// zeroStackSlot zeros a just-allocated local's storage, 8 bytes at a time
// with a trailing narrower store for any remainder, spec.md §4.4
// "Initializer lists zero the slot then store each element".
func (s *Session) zeroStackSlot(off int32, size int) {
	k := 0
	for ; k+8 <= size; k += 8 {
		s.emit("mov", encoder.Imm(0), encoder.Mem(s.bpReg(), off+int32(k)))
	}
	if rem := size - k; rem > 0 {
		s.emit("movl", encoder.Imm(0), encoder.Mem(s.bpReg(), off+int32(k)))
	}
}

func elemTypeOf(t *ast.Type) *ast.Type {
	if t != nil && t.Elem != nil {
		return t.Elem
	}
	return t
}

func alignUp(n, align int) int {
	if align <= 0 {
		return n
	}
	return (n + align - 1) / align * align
}

func (s *Session) movAccToReg(reg string, typ *ast.Type) {
	width := s.abi.bits
	if typ != nil {
		width = typ.Size * 8
		if width > s.abi.bits {
			width = s.abi.bits
		}
	}
	s.emit("mov", encoder.Reg(widthName(s.accReg(), 0)), encoder.Reg(widthName(reg, width)))
}

// storeAccToMem stores the accumulator (or xmm0 for floats) to mem, at the
// correct width.
func (s *Session) storeAccToMem(mem encoder.Operand, typ *ast.Type) {
	if typ != nil && typ.IsFloat() {
		mnem := "movss"
		if typ.Size == 8 {
			mnem = "movsd"
		}
		s.emit(mnem, encoder.Reg("xmm0"), mem)
		return
	}
	width := 64
	if typ != nil {
		width = typ.Size * 8
	}
	s.emit("mov", encoder.Reg(widthName(s.accReg(), width)), mem)
}

func (s *Session) emitMemcpyCall(typ *ast.Type) {
	size := int64(0)
	if typ != nil {
		size = int64(typ.Size)
	}
	s.emit("mov", encoder.Imm(size), encoder.Reg("rdx"))
	s.emit("call", encoder.Label("memcpy"))
}

