package codegen

import (
	"github.com/minic-lang/minicc/internal/ast"
	"github.com/minic-lang/minicc/internal/encoder"
)

// genVectorizedLoop drives the SSE/AVX code paths for a loop the AST
// optimizer annotated with VecInfo, spec.md §4.4 "Vectorized-loop codegen".
func (s *Session) genVectorizedLoop(n *ast.Node) {
	v := n.Vec
	switch v.Mode {
	case ast.VecElementwise:
		s.genVecElementwise(v)
	case ast.VecReduction:
		s.genVecReduction(v)
	case ast.VecInit:
		s.genVecInit(v)
	default:
		s.fail("unknown vector mode %v", v.Mode)
	}
}

func (s *Session) useAVX(v *ast.VecInfo) bool { return v.Width == 8 }

func (s *Session) vecPackedMov(v *ast.VecInfo) string {
	if v.IsFloat {
		if s.useAVX(v) {
			return "vmovups"
		}
		return "movups"
	}
	if s.useAVX(v) {
		return "vmovdqu"
	}
	return "movdqu"
}

func (s *Session) vecOp(v *ast.VecInfo) string {
	avx := s.useAVX(v)
	switch v.Op {
	case ast.Add:
		if v.IsFloat {
			if avx {
				return "vaddps"
			}
			return "addps"
		}
		if avx {
			return "vpaddd"
		}
		return "paddd"
	case ast.Sub:
		if v.IsFloat {
			if avx {
				return "vsubps"
			}
			return "subps"
		}
		if avx {
			return "vpsubd"
		}
		return "psubd"
	case ast.Mul:
		if avx {
			return "vmulps"
		}
		return "mulps"
	case ast.Div:
		if avx {
			return "vdivps"
		}
		return "divps"
	}
	return ""
}

func (s *Session) vecReg(v *ast.VecInfo, n int) string {
	if s.useAVX(v) {
		return "ymm" + itoaReg(n)
	}
	return "xmm" + itoaReg(n)
}

func itoaReg(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [4]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// genVecElementwise: dst[i] = src1[i] OP src2[i].
func (s *Session) genVecElementwise(v *ast.VecInfo) {
	s.emit("push", encoder.Reg("rbx"))
	s.emit("lea", encoder.RIP(v.Dst, 0), encoder.Reg("rdi"))
	s.emit("lea", encoder.RIP(v.Src1, 0), encoder.Reg("rsi"))
	s.emit("lea", encoder.RIP(v.Src2, 0), encoder.Reg("rdx"))
	s.emit("xor", encoder.Reg("ecx"), encoder.Reg("ecx"))

	loopLabel := s.newLabel("vec_loop")
	remLabel := s.newLabel("vec_rem")
	endLabel := s.newLabel("vec_end")

	fullIters := v.Iterations / v.Width
	s.emit("mov", encoder.Imm(int64(fullIters)), encoder.Reg("ebx"))
	s.emit("test", encoder.Reg("ebx"), encoder.Reg("ebx"))
	s.emit("je", encoder.Label(remLabel))

	vmov := s.vecPackedMov(v)
	vop := s.vecOp(v)
	r0, r1 := s.vecReg(v, 0), s.vecReg(v, 1)
	stride := int32(v.Width * v.ElemSize)

	s.emitLabel(loopLabel)
	s.emit(vmov, encoder.Mem("rsi", 0), encoder.Reg(r0))
	s.emit(vmov, encoder.Mem("rdx", 0), encoder.Reg(r1))
	s.emit(vop, encoder.Reg(r1), encoder.Reg(r0), encoder.Reg(r0))
	s.emit(vmov, encoder.Reg(r0), encoder.Mem("rdi", 0))
	s.emit("add", encoder.Imm(int64(stride)), encoder.Reg("rdi"))
	s.emit("add", encoder.Imm(int64(stride)), encoder.Reg("rsi"))
	s.emit("add", encoder.Imm(int64(stride)), encoder.Reg("rdx"))
	s.emit("add", encoder.Imm(int64(v.Width)), encoder.Reg("ecx"))
	s.emit("sub", encoder.Imm(1), encoder.Reg("ebx"))
	s.emit("jne", encoder.Label(loopLabel))

	if s.useAVX(v) {
		s.emit("vzeroupper")
	}

	s.emitLabel(remLabel)
	s.emit("cmp", encoder.Imm(int64(v.Iterations)), encoder.Reg("ecx"))
	s.emit("jge", encoder.Label(endLabel))
	scalarLabel := s.newLabel("vec_scalar")
	s.emitLabel(scalarLabel)
	s.genScalarElem(v)
	s.emit("add", encoder.Imm(1), encoder.Reg("ecx"))
	s.emit("cmp", encoder.Imm(int64(v.Iterations)), encoder.Reg("ecx"))
	s.emit("jl", encoder.Label(scalarLabel))

	s.emitLabel(endLabel)
	s.emit("pop", encoder.Reg("rbx"))
}

func (s *Session) genScalarElem(v *ast.VecInfo) {
	sz := int64(v.ElemSize)
	if v.IsFloat {
		mnem := "movss"
		arith := map[ast.BinaryOp]string{ast.Add: "addss", ast.Sub: "subss", ast.Mul: "mulss", ast.Div: "divss"}
		if v.ElemSize == 8 {
			mnem = "movsd"
			arith = map[ast.BinaryOp]string{ast.Add: "addsd", ast.Sub: "subsd", ast.Mul: "mulsd", ast.Div: "divsd"}
		}
		s.emit(mnem, encoder.Mem("rsi", 0), encoder.Reg("xmm0"))
		s.emit(mnem, encoder.Mem("rdx", 0), encoder.Reg("xmm1"))
		s.emit(arith[v.Op], encoder.Reg("xmm1"), encoder.Reg("xmm0"))
		s.emit(mnem, encoder.Reg("xmm0"), encoder.Mem("rdi", 0))
	} else {
		s.emit("mov", encoder.Mem("rsi", 0), encoder.Reg("eax"))
		s.emit("mov", encoder.Mem("rdx", 0), encoder.Reg("ecx"))
		s.emitBinOpReg(v.Op, "ecx")
		s.emit("mov", encoder.Reg("eax"), encoder.Mem("rdi", 0))
	}
	s.emit("add", encoder.Imm(sz), encoder.Reg("rdi"))
	s.emit("add", encoder.Imm(sz), encoder.Reg("rsi"))
	s.emit("add", encoder.Imm(sz), encoder.Reg("rdx"))
}

// genVecReduction: accum += arr[i], horizontally reduced at the end.
func (s *Session) genVecReduction(v *ast.VecInfo) {
	s.emit("lea", encoder.RIP(v.Src1, 0), encoder.Reg("rsi"))
	s.emit("xor", encoder.Reg("ecx"), encoder.Reg("ecx"))

	zeroMnem, reg := "pxor", s.vecReg(v, 0)
	if s.useAVX(v) {
		zeroMnem = "vpxor"
	}
	s.emit(zeroMnem, encoder.Reg(reg), encoder.Reg(reg), encoder.Reg(reg))

	loopLabel := s.newLabel("vec_red_loop")
	endVecLabel := s.newLabel("vec_red_end")
	vmov := s.vecPackedMov(v)
	vop := s.vecOp(v)
	fullIters := v.Iterations / v.Width
	stride := int32(v.Width * v.ElemSize)

	s.emit("mov", encoder.Imm(int64(fullIters)), encoder.Reg("ebx"))
	s.emit("test", encoder.Reg("ebx"), encoder.Reg("ebx"))
	s.emit("je", encoder.Label(endVecLabel))

	lane := s.vecReg(v, 1)
	s.emitLabel(loopLabel)
	s.emit(vmov, encoder.Mem("rsi", 0), encoder.Reg(lane))
	s.emit(vop, encoder.Reg(lane), encoder.Reg(reg), encoder.Reg(reg))
	s.emit("add", encoder.Imm(int64(stride)), encoder.Reg("rsi"))
	s.emit("add", encoder.Imm(int64(v.Width)), encoder.Reg("ecx"))
	s.emit("sub", encoder.Imm(1), encoder.Reg("ebx"))
	s.emit("jne", encoder.Label(loopLabel))
	if s.useAVX(v) {
		s.emit("vzeroupper")
	}
	s.emitLabel(endVecLabel)

	if v.IsFloat {
		s.emit("movhlps", encoder.Reg(reg), encoder.Reg("xmm1"))
		s.emit("addps", encoder.Reg("xmm1"), encoder.Reg(reg))
	} else {
		s.emit("pshufd", encoder.Imm(0xee), encoder.Reg(reg), encoder.Reg("xmm1"))
		s.emit("paddd", encoder.Reg("xmm1"), encoder.Reg(reg))
	}

	s.emit("movd", encoder.Reg(reg), encoder.Reg("eax"))
	accAvail := false
	if acc, ok := s.locals[v.AccumVar]; ok && acc.kind == localReg {
		s.emit("add", encoder.Reg("eax"), encoder.Reg(widthName(acc.reg, 32)))
		accAvail = true
	}

	remLabel := s.newLabel("vec_red_rem")
	doneLabel := s.newLabel("vec_red_done")
	s.emitLabel(remLabel)
	s.emit("cmp", encoder.Imm(int64(v.Iterations)), encoder.Reg("ecx"))
	s.emit("jge", encoder.Label(doneLabel))
	s.emit("mov", encoder.SIB("rsi", "rcx", v.ElemSize, 0), encoder.Reg("eax"))
	if accAvail {
		acc := s.locals[v.AccumVar]
		s.emit("add", encoder.Reg("eax"), encoder.Reg(widthName(acc.reg, 32)))
	}
	s.emit("add", encoder.Imm(1), encoder.Reg("ecx"))
	s.emit("jmp", encoder.Label(remLabel))
	s.emitLabel(doneLabel)
}

// genVecInit: arr[i] = i*scale + offset.
func (s *Session) genVecInit(v *ast.VecInfo) {
	s.emit("lea", encoder.RIP(v.Dst, 0), encoder.Reg("rdi"))
	s.emit("xor", encoder.Reg("ecx"), encoder.Reg("ecx"))

	if v.InitScale == 0 {
		s.genBroadcastInit(v)
		return
	}
	s.genStrideInit(v)
}

func (s *Session) genBroadcastInit(v *ast.VecInfo) {
	vmov := s.vecPackedMov(v)
	reg := s.vecReg(v, 0)
	s.emit("mov", encoder.Imm(v.InitOffset), encoder.Reg("eax"))
	s.emit("movd", encoder.Reg("eax"), encoder.Reg("xmm0"))
	s.emit("pshufd", encoder.Imm(0), encoder.Reg("xmm0"), encoder.Reg(reg))

	loopLabel := s.newLabel("vec_init_loop")
	endLabel := s.newLabel("vec_init_end")
	fullIters := v.Iterations / v.Width
	stride := int32(v.Width * v.ElemSize)
	s.emit("mov", encoder.Imm(int64(fullIters)), encoder.Reg("ebx"))
	s.emit("test", encoder.Reg("ebx"), encoder.Reg("ebx"))
	s.emit("je", encoder.Label(endLabel))
	s.emitLabel(loopLabel)
	s.emit(vmov, encoder.Reg(reg), encoder.Mem("rdi", 0))
	s.emit("add", encoder.Imm(int64(stride)), encoder.Reg("rdi"))
	s.emit("sub", encoder.Imm(1), encoder.Reg("ebx"))
	s.emit("jne", encoder.Label(loopLabel))
	s.emitLabel(endLabel)
}

// genStrideInit materializes [0*s+o, 1*s+o, ...] and a stride vector
// [w*s,...] on the stack, then stores+adds the stride each iteration,
// spec.md §4.4 "Mode 2 init".
func (s *Session) genStrideInit(v *ast.VecInfo) {
	initReg, strideReg := s.vecReg(v, 0), s.vecReg(v, 1)
	vmov := s.vecPackedMov(v)

	s.emit("sub", encoder.Imm(int64(v.Width*v.ElemSize*2)), encoder.Reg(s.spReg()))
	for i := 0; i < v.Width; i++ {
		val := v.InitOffset + int64(i)*v.InitScale
		s.emit("mov", encoder.Imm(val), encoder.Reg("eax"))
		s.emit("mov", encoder.Reg("eax"), encoder.Mem(s.spReg(), int32(i*v.ElemSize)))
	}
	strideBase := int32(v.Width * v.ElemSize)
	strideVal := int64(v.Width) * v.InitScale
	for i := 0; i < v.Width; i++ {
		s.emit("mov", encoder.Imm(strideVal), encoder.Reg("eax"))
		s.emit("mov", encoder.Reg("eax"), encoder.Mem(s.spReg(), strideBase+int32(i*v.ElemSize)))
	}
	s.emit(vmov, encoder.Mem(s.spReg(), 0), encoder.Reg(initReg))
	s.emit(vmov, encoder.Mem(s.spReg(), strideBase), encoder.Reg(strideReg))

	loopLabel := s.newLabel("vec_stride_loop")
	endLabel := s.newLabel("vec_stride_end")
	addOp := "paddd"
	if s.useAVX(v) {
		addOp = "vpaddd"
	}
	if v.IsFloat {
		addOp = "addps"
		if s.useAVX(v) {
			addOp = "vaddps"
		}
	}
	fullIters := v.Iterations / v.Width
	stride := int32(v.Width * v.ElemSize)
	s.emit("mov", encoder.Imm(int64(fullIters)), encoder.Reg("ebx"))
	s.emit("test", encoder.Reg("ebx"), encoder.Reg("ebx"))
	s.emit("je", encoder.Label(endLabel))
	s.emitLabel(loopLabel)
	s.emit(vmov, encoder.Reg(initReg), encoder.Mem("rdi", 0))
	if s.useAVX(v) {
		s.emit(addOp, encoder.Reg(strideReg), encoder.Reg(initReg), encoder.Reg(initReg))
	} else {
		s.emit(addOp, encoder.Reg(strideReg), encoder.Reg(initReg))
	}
	s.emit("add", encoder.Imm(int64(stride)), encoder.Reg("rdi"))
	s.emit("sub", encoder.Imm(1), encoder.Reg("ebx"))
	s.emit("jne", encoder.Label(loopLabel))
	s.emitLabel(endLabel)
	s.emit("add", encoder.Imm(int64(v.Width*v.ElemSize*2)), encoder.Reg(s.spReg()))
}
