package encoder

// sseOp describes one scalar/packed SSE mnemonic's fixed legacy-prefix +
// two-byte-escape opcode shape, spec.md §4.2.
type sseOp struct {
	prefix      byte // 0x00 (none), 0x66, 0xf2, 0xf3
	opcode      byte
	storeOpcode byte // 0 if the mnemonic has no distinct "store to memory" form
	gpToXmm     bool // cvtsi2ss/sd: integer GP register source
	xmmToGp     bool // cvttss/sd2si: integer GP register destination
	hasImm8     bool // pshufd
	gpXmmBidi   bool // movd: direction decided per-call by which operand is xmm
}

var sseTable = map[string]sseOp{
	"movss":    {prefix: 0xf3, opcode: 0x10, storeOpcode: 0x11},
	"movsd":    {prefix: 0xf2, opcode: 0x10, storeOpcode: 0x11},
	"addss":    {prefix: 0xf3, opcode: 0x58},
	"addsd":    {prefix: 0xf2, opcode: 0x58},
	"subss":    {prefix: 0xf3, opcode: 0x5c},
	"subsd":    {prefix: 0xf2, opcode: 0x5c},
	"mulss":    {prefix: 0xf3, opcode: 0x59},
	"mulsd":    {prefix: 0xf2, opcode: 0x59},
	"divss":    {prefix: 0xf3, opcode: 0x5e},
	"divsd":    {prefix: 0xf2, opcode: 0x5e},
	"ucomiss":  {opcode: 0x2e},
	"ucomisd":  {prefix: 0x66, opcode: 0x2e},
	"cvtsi2ss": {prefix: 0xf3, opcode: 0x2a, gpToXmm: true},
	"cvtsi2sd": {prefix: 0xf2, opcode: 0x2a, gpToXmm: true},
	"cvttss2si": {prefix: 0xf3, opcode: 0x2c, xmmToGp: true},
	"cvttsd2si": {prefix: 0xf2, opcode: 0x2c, xmmToGp: true},
	"cvtss2sd":  {prefix: 0xf3, opcode: 0x5a},
	"cvtsd2ss":  {prefix: 0xf2, opcode: 0x5a},
	"movups":    {opcode: 0x10, storeOpcode: 0x11},
	"movdqu":    {prefix: 0xf3, opcode: 0x6f, storeOpcode: 0x7f},
	"paddd":     {prefix: 0x66, opcode: 0xfe},
	"psubd":     {prefix: 0x66, opcode: 0xfa},
	"addps":     {opcode: 0x58},
	"subps":     {opcode: 0x5c},
	"mulps":     {opcode: 0x59},
	"divps":     {opcode: 0x5e},
	"pxor":      {prefix: 0x66, opcode: 0xef},
	"pshufd":    {prefix: 0x66, opcode: 0x70, hasImm8: true},
	"movhlps":   {opcode: 0x12},
	"movd":      {prefix: 0x66, opcode: 0x6e, storeOpcode: 0x7e, gpXmmBidi: true},
}

func isMemShaped(op Operand) bool {
	switch op.Kind {
	case OpMem, OpSIB, OpLabel, OpRIP:
		return true
	}
	return false
}

// emitSSE encodes a scalar/packed SSE instruction. Operand order is AT&T
// (source, destination); gpToXmm/xmmToGp convert forms put the GP register
// on the appropriate side per spec.md §4.4 Cast.
func (e *Encoder) emitSSE(op sseOp, ops []Operand) {
	if len(ops) < 2 {
		e.fail("sse op wants at least 2 operands")
		return
	}
	src, dst := ops[0], ops[1]
	if op.prefix != 0 {
		e.Buf.WriteByte(op.prefix)
	}

	switch {
	case op.gpXmmBidi:
		dstR, _ := lookupReg(dst.Reg)
		srcR, _ := lookupReg(src.Reg)
		opc := op.opcode
		regR, rmR := dstR, srcR
		wide := dstR.width == 64 || srcR.width == 64
		if !dstR.isXMM {
			// movd gpr(dst) <- xmm(src): store form, 0F 7E /r, reg=xmm, rm=gpr.
			opc = op.storeOpcode
			regR, rmR = srcR, dstR
		}
		if v, ok := rex(wide, regR.extended(), false, rmR.extended(), false); ok {
			e.Buf.WriteByte(v)
		}
		e.Buf.WriteBytes([]byte{0x0f, opc})
		e.Buf.WriteByte(modrmDirect(3, regR.low3(), rmR.low3()))

	case op.gpToXmm:
		dstR, _ := lookupReg(dst.Reg)
		srcR, _ := lookupReg(src.Reg)
		if v, ok := rex(srcR.width == 64, dstR.extended(), false, srcR.extended(), false); ok {
			e.Buf.WriteByte(v)
		}
		e.Buf.WriteBytes([]byte{0x0f, op.opcode})
		e.Buf.WriteByte(modrmDirect(3, dstR.low3(), srcR.low3()))

	case op.xmmToGp:
		dstR, _ := lookupReg(dst.Reg)
		srcR, _ := lookupReg(src.Reg)
		if v, ok := rex(dstR.width == 64, dstR.extended(), false, srcR.extended(), false); ok {
			e.Buf.WriteByte(v)
		}
		e.Buf.WriteBytes([]byte{0x0f, op.opcode})
		e.Buf.WriteByte(modrmDirect(3, dstR.low3(), srcR.low3()))

	case dst.Kind == OpReg && src.Kind == OpReg:
		dstR, _ := lookupReg(dst.Reg)
		srcR, _ := lookupReg(src.Reg)
		if v, ok := rex(false, dstR.extended(), false, srcR.extended(), false); ok {
			e.Buf.WriteByte(v)
		}
		e.Buf.WriteBytes([]byte{0x0f, op.opcode})
		e.Buf.WriteByte(modrmDirect(3, dstR.low3(), srcR.low3()))
		e.maybeImm8(op, ops)

	case dst.Kind == OpReg && isMemShaped(src):
		dstR, _ := lookupReg(dst.Reg)
		m := e.buildMem(dstR.low3(), src)
		if v, ok := rex(false, dstR.extended(), m.xExt, m.bExt, false); ok {
			e.Buf.WriteByte(v)
		}
		e.Buf.WriteBytes([]byte{0x0f, op.opcode})
		e.emitMemEncoding(m)
		e.maybeImm8(op, ops)

	case isMemShaped(dst) && src.Kind == OpReg:
		srcR, _ := lookupReg(src.Reg)
		opc := op.opcode
		if op.storeOpcode != 0 {
			opc = op.storeOpcode
		}
		m := e.buildMem(srcR.low3(), dst)
		if v, ok := rex(false, srcR.extended(), m.xExt, m.bExt, false); ok {
			e.Buf.WriteByte(v)
		}
		e.Buf.WriteBytes([]byte{0x0f, opc})
		e.emitMemEncoding(m)

	default:
		e.fail("unsupported sse operand shape")
	}
}

func (e *Encoder) maybeImm8(op sseOp, ops []Operand) {
	if op.hasImm8 && len(ops) == 3 {
		e.Buf.WriteByte(byte(ops[2].Imm))
	}
}
