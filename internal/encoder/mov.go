package encoder

// emitMov handles all "mov"-family operand shapes from spec.md §4.2:
// reg-reg, reg-mem, mem-reg, reg-imm (including the 10-byte REX.W B8+r
// movabs form), mem-imm.
func (e *Encoder) emitMov(ops []Operand, explicitWidth int) {
	if len(ops) != 2 {
		e.fail("mov wants 2 operands")
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
		e.Buf.WriteByte(opcode8or32(0x88, width))
		e.Buf.WriteByte(modrmDirect(3, srcR.low3(), dstR.low3()))

	case dst.Kind == OpReg && (src.Kind == OpMem || src.Kind == OpSIB || src.Kind == OpLabel || src.Kind == OpRIP):
		dstR, _ := lookupReg(dst.Reg)
		m := e.buildMem(dstR.low3(), src)
		e.maybe66(width)
		e.rexMem(width, dstR, m, false)
		e.Buf.WriteByte(opcode8or32(0x8a, width))
		e.emitMemEncoding(m)

	case (dst.Kind == OpMem || dst.Kind == OpSIB || dst.Kind == OpLabel) && src.Kind == OpReg:
		srcR, _ := lookupReg(src.Reg)
		m := e.buildMem(srcR.low3(), dst)
		e.maybe66(width)
		e.rexMem(width, srcR, m, false)
		e.Buf.WriteByte(opcode8or32(0x88, width))
		e.emitMemEncoding(m)

	case dst.Kind == OpReg && src.Kind == OpImm:
		e.emitMovRegImm(dst, src.Imm, width)

	case (dst.Kind == OpMem || dst.Kind == OpSIB || dst.Kind == OpLabel) && src.Kind == OpImm:
		m := e.buildMem(0, dst)
		e.maybe66(width)
		e.rexMem(width, regInfo{}, m, false)
		opc := byte(0xc7)
		if width == 8 {
			opc = 0xc6
		}
		e.Buf.WriteByte(opc)
		e.emitMemEncoding(m)
		e.writeImm(width, src.Imm, false)

	default:
		e.fail("unsupported mov operand shape")
	}
}

// emitMovRegImm picks the short "B8+r imm32/imm16/imm8" form for 8/16/32-bit
// destinations; a 64-bit destination uses REX.W C7 /0 imm32 when the
// immediate fits in a signed 32-bit value and the 10-byte REX.W B8+r imm64
// movabs form otherwise — spec.md §4.2.
func (e *Encoder) emitMovRegImm(dst Operand, imm int64, width int) {
	dstR, _ := lookupReg(dst.Reg)
	if width == 64 {
		if imm >= -2147483648 && imm <= 2147483647 {
			// mov r/m64, imm32 (sign-extended): REX.W + C7 /0 + imm32, 3 bytes shorter than movabs.
			if v, ok := rex(true, false, false, dstR.extended(), false); ok {
				e.Buf.WriteByte(v)
			}
			e.Buf.WriteByte(0xc7)
			e.Buf.WriteByte(modrmDirect(3, 0, dstR.low3()))
			e.Buf.WriteDword(uint32(int32(imm)))
			return
		}
		v, _ := rex(true, false, false, dstR.extended(), false)
		e.Buf.WriteByte(v | 0x40) // always present: REX.W forces emission
		e.Buf.WriteByte(0xb8 + dstR.low3())
		e.Buf.WriteQword(uint64(imm))
		return
	}
	e.maybe66(width)
	if width == 8 {
		if v, ok := rex(false, false, false, dstR.extended(), dstR.forceRex); ok {
			e.Buf.WriteByte(v)
		}
		e.Buf.WriteByte(0xb0 + dstR.low3())
		e.Buf.WriteByte(byte(imm))
		return
	}
	if v, ok := rex(false, false, false, dstR.extended(), false); ok {
		e.Buf.WriteByte(v)
	}
	e.Buf.WriteByte(0xb8 + dstR.low3())
	if width == 16 {
		e.Buf.WriteWord(uint16(imm))
	} else {
		e.Buf.WriteDword(uint32(imm))
	}
}

// emitMovzx handles movzb/movzw (zero-extending load), destination width
// from the destination register, source width from the mnemonic suffix.
func (e *Encoder) emitMovzx(ops []Operand, srcWidth int) {
	if len(ops) != 2 {
		e.fail("movzx wants 2 operands")
		return
	}
	src, dst := ops[0], ops[1]
	dstR, _ := lookupReg(dst.Reg)
	opc := byte(0xb6) // movzx r, r/m8
	if srcWidth == 16 {
		opc = 0xb7
	}
	switch src.Kind {
	case OpReg:
		srcR, _ := lookupReg(src.Reg)
		e.rexRR(dstR.width, dstR, srcR)
		e.Buf.WriteByte(0x0f)
		e.Buf.WriteByte(opc)
		e.Buf.WriteByte(modrmDirect(3, dstR.low3(), srcR.low3()))
	case OpMem, OpSIB, OpLabel:
		m := e.buildMem(dstR.low3(), src)
		e.rexMem(dstR.width, dstR, m, false)
		e.Buf.WriteByte(0x0f)
		e.Buf.WriteByte(opc)
		e.emitMemEncoding(m)
	default:
		e.fail("unsupported movzx source")
	}
}

// emitMovsx handles movsb/movsw (sign-extending load), movsbq-style
// narrowing casts route through here too (spec.md §4.4 Cast: "narrowing to
// char uses movsbq").
func (e *Encoder) emitMovsx(ops []Operand, srcWidth int) {
	if len(ops) != 2 {
		e.fail("movsx wants 2 operands")
		return
	}
	src, dst := ops[0], ops[1]
	dstR, _ := lookupReg(dst.Reg)
	opc := byte(0xbe) // movsx r, r/m8
	if srcWidth == 16 {
		opc = 0xbf
	} else if srcWidth == 32 {
		opc = 0x63 // movsxd, single-byte opcode (no 0x0f escape)
	}
	switch src.Kind {
	case OpReg:
		srcR, _ := lookupReg(src.Reg)
		e.rexRR(dstR.width, dstR, srcR)
		if srcWidth == 32 {
			e.Buf.WriteByte(opc)
		} else {
			e.Buf.WriteByte(0x0f)
			e.Buf.WriteByte(opc)
		}
		e.Buf.WriteByte(modrmDirect(3, dstR.low3(), srcR.low3()))
	case OpMem, OpSIB, OpLabel:
		m := e.buildMem(dstR.low3(), src)
		e.rexMem(dstR.width, dstR, m, false)
		if srcWidth == 32 {
			e.Buf.WriteByte(opc)
		} else {
			e.Buf.WriteByte(0x0f)
			e.Buf.WriteByte(opc)
		}
		e.emitMemEncoding(m)
	default:
		e.fail("unsupported movsx source")
	}
}
