package encoder

// aluTable maps six of the eight ALU mnemonics (adc and sbb are absent) that share the classic x86 "/digit"
// opcode family (00-3D base opcodes, 80/81/83 for immediate forms) to their
// opcode-extension digit, spec.md §4.2.
var aluTable = map[string]byte{
	"add": 0,
	"or":  1,
	"and": 4,
	"sub": 5,
	"xor": 6,
	"cmp": 7,
}

func (e *Encoder) resolveWidth(explicit int, ops []Operand) int {
	if explicit != 0 {
		return explicit
	}
	for _, op := range ops {
		if op.Kind == OpReg {
			if r, ok := lookupReg(op.Reg); ok {
				return r.width
			}
		}
	}
	return e.Bits
}

func opcode8or32(base8 byte, width int) byte {
	if width == 8 {
		return base8
	}
	return base8 + 1
}

func (e *Encoder) maybe66(width int) {
	if width == 16 {
		e.Buf.WriteByte(0x66)
	}
}

// rexRR emits (if needed) the REX prefix for a register-direct ModR/M where
// reg/rm are the two register operands; force is set when either side
// needs SPL/BPL/SIL/DIL-style 8-bit encoding.
func (e *Encoder) rexRR(width int, regOp, rmOp regInfo) {
	force := (width == 8) && (regOp.forceRex || rmOp.forceRex)
	if v, ok := rex(width == 64, regOp.extended(), false, rmOp.extended(), force); ok {
		e.Buf.WriteByte(v)
	}
}

func (e *Encoder) rexMem(width int, regOp regInfo, mem memEncoding, regForce bool) {
	force := (width == 8) && regForce
	if v, ok := rex(width == 64, regOp.extended(), mem.xExt, mem.bExt, force); ok {
		e.Buf.WriteByte(v)
	}
}

// emitALU handles add/or/and/sub/xor/cmp in all supported operand shapes,
// spec.md §4.2: reg-reg, reg-mem, mem-reg, reg-imm, mem-imm. Operand order
// is AT&T (source, destination) per spec.md §4.6.
func (e *Encoder) emitALU(ext byte, ops []Operand, explicitWidth int) {
	if len(ops) != 2 {
		e.fail("alu op wants 2 operands, got %d", len(ops))
		return
	}
	src, dst := ops[0], ops[1]
	width := e.resolveWidth(explicitWidth, ops)

	switch {
	case dst.Kind == OpReg && src.Kind == OpReg:
		dstR, _ := lookupReg(dst.Reg)
		srcR, _ := lookupReg(src.Reg)
		e.maybe66(width)
		e.rexRR(width, srcR, dstR)
		e.Buf.WriteByte(opcode8or32(ext*8, width))
		e.Buf.WriteByte(modrmDirect(3, srcR.low3(), dstR.low3()))

	case dst.Kind == OpReg && src.Kind == OpImm:
		dstR, _ := lookupReg(dst.Reg)
		e.maybe66(width)
		e.rexRR(width, regInfo{}, dstR)
		e.emitImmToRM(ext, width, 3, dstR.low3(), src.Imm)

	case dst.Kind == OpReg && (src.Kind == OpMem || src.Kind == OpSIB || src.Kind == OpLabel):
		dstR, _ := lookupReg(dst.Reg)
		m := e.buildMem(dstR.low3(), src)
		e.maybe66(width)
		e.rexMem(width, dstR, m, false)
		e.Buf.WriteByte(opcode8or32(ext*8+2, width))
		e.emitMemEncoding(m)

	case (dst.Kind == OpMem || dst.Kind == OpSIB || dst.Kind == OpLabel) && src.Kind == OpReg:
		srcR, _ := lookupReg(src.Reg)
		m := e.buildMem(srcR.low3(), dst)
		e.maybe66(width)
		e.rexMem(width, srcR, m, false)
		e.Buf.WriteByte(opcode8or32(ext*8, width))
		e.emitMemEncoding(m)

	case (dst.Kind == OpMem || dst.Kind == OpSIB || dst.Kind == OpLabel) && src.Kind == OpImm:
		m := e.buildMem(ext, dst)
		e.maybe66(width)
		e.rexMem(width, regInfo{}, m, false)
		e.Buf.WriteByte(immOpcodeForWidth(width))
		e.emitMemEncoding(m)
		e.writeImm(width, src.Imm, true)

	default:
		e.fail("unsupported alu operand shape")
	}
}

// emitImmToRM writes the opcode + ModR/M(direct) + immediate for an
// "r/m, imm" ALU form, choosing the sign-extended imm8 opcode (0x83) when
// the value fits in a signed byte, else the imm32 form (0x81), per
// spec.md §4.2 "Sign-extend 8-bit immediate forms when the value fits".
func (e *Encoder) emitImmToRM(ext byte, width int, mod, rm byte, imm int64) {
	if width == 8 {
		e.Buf.WriteByte(0x80)
		e.Buf.WriteByte(modrmDirect(mod, ext, rm))
		e.Buf.WriteByte(byte(imm))
		return
	}
	if imm >= -128 && imm <= 127 {
		e.Buf.WriteByte(0x83)
		e.Buf.WriteByte(modrmDirect(mod, ext, rm))
		e.Buf.WriteByte(byte(int8(imm)))
		return
	}
	e.Buf.WriteByte(0x81)
	e.Buf.WriteByte(modrmDirect(mod, ext, rm))
	e.writeImm(width, imm, false)
}

func immOpcodeForWidth(width int) byte {
	if width == 8 {
		return 0x80
	}
	return 0x81
}

func (e *Encoder) writeImm(width int, imm int64, allowImm8Sext bool) {
	switch width {
	case 8:
		e.Buf.WriteByte(byte(imm))
	case 16:
		e.Buf.WriteWord(uint16(imm))
	default:
		e.Buf.WriteDword(uint32(int32(imm)))
	}
}

// emitTest handles "test a, b" / "test r/m, imm" — spec.md §4.2.
func (e *Encoder) emitTest(ops []Operand, explicitWidth int) {
	if len(ops) != 2 {
		e.fail("test wants 2 operands")
		return
	}
	a, b := ops[0], ops[1]
	width := e.resolveWidth(explicitWidth, ops)
	switch {
	case a.Kind == OpReg && b.Kind == OpReg:
		aR, _ := lookupReg(a.Reg)
		bR, _ := lookupReg(b.Reg)
		e.maybe66(width)
		e.rexRR(width, aR, bR)
		e.Buf.WriteByte(opcode8or32(0x84, width))
		e.Buf.WriteByte(modrmDirect(3, aR.low3(), bR.low3()))
	case b.Kind == OpReg && a.Kind == OpImm:
		bR, _ := lookupReg(b.Reg)
		e.maybe66(width)
		e.rexRR(width, regInfo{}, bR)
		opc := byte(0xf7)
		if width == 8 {
			opc = 0xf6
		}
		e.Buf.WriteByte(opc)
		e.Buf.WriteByte(modrmDirect(3, 0, bR.low3()))
		e.writeImm(width, a.Imm, false)
	default:
		e.fail("unsupported test operand shape")
	}
}
