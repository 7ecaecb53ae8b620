package encoder

// avxKind discriminates the VEX operand shapes the backend's AVX-256
// vectorized-loop path uses, spec.md §4.4 "Vectorized-loop codegen".
type avxKind int

const (
	avxZeroOp  avxKind = iota // vzeroupper
	avxLoadStore              // vmovups/vmovdqu: (src, dst) like SSE, with store form
	avxArith                  // vpaddd/vaddps/...: dst = src1 OP src2 (3-operand, non-destructive)
	avxExtract                // vextracti128: dst(reg/mem128), src(ymm), imm8
	avxInsert                 // vinserti128: dst(ymm), src1(ymm), src2(reg/mem128), imm8
)

// avxOp describes one AVX mnemonic's VEX.pp / VEX.mmmmm / opcode shape.
type avxOp struct {
	kind        avxKind
	pp          byte // 00 none, 01 66, 10 F3, 11 F2
	mm          byte // 00001 0F, 00010 0F38, 00011 0F3A
	opcode      byte
	storeOpcode byte
	w           bool // VEX.W
}

var avxTable = map[string]avxOp{
	"vmovups":      {kind: avxLoadStore, pp: 0, mm: 1, opcode: 0x10, storeOpcode: 0x11},
	"vmovdqu":      {kind: avxLoadStore, pp: 2, mm: 1, opcode: 0x6f, storeOpcode: 0x7f},
	"vpaddd":       {kind: avxArith, pp: 1, mm: 1, opcode: 0xfe},
	"vpsubd":       {kind: avxArith, pp: 1, mm: 1, opcode: 0xfa},
	"vaddps":       {kind: avxArith, pp: 0, mm: 1, opcode: 0x58},
	"vsubps":       {kind: avxArith, pp: 0, mm: 1, opcode: 0x5c},
	"vmulps":       {kind: avxArith, pp: 0, mm: 1, opcode: 0x59},
	"vdivps":       {kind: avxArith, pp: 0, mm: 1, opcode: 0x5e},
	"vpxor":        {kind: avxArith, pp: 1, mm: 1, opcode: 0xef},
	"vextracti128": {kind: avxExtract, pp: 1, mm: 3, opcode: 0x39},
	"vinserti128":  {kind: avxInsert, pp: 1, mm: 3, opcode: 0x38},
	"vzeroupper":   {kind: avxZeroOp, pp: 0, mm: 1, opcode: 0x77},
}

// vexLen is the VEX.L bit: 0 for 128-bit (xmm), 1 for 256-bit (ymm). The
// backend only drives this encoder with ymm operands for the width=8 AVX
// path (spec.md §4.4); xmm-width VEX encoding would set L=0 the same way.
func vexLen(r regInfo) byte {
	if r.isYMM {
		return 1
	}
	return 0
}

// emitVEX writes a 2- or 3-byte VEX prefix, picking the 2-byte form when
// legal (no REX.X/B extension and mm==1 and W==0), spec.md §4.2 "picking
// the shorter form when legal".
func (e *Encoder) emitVEX(rExt, xExt, bExt bool, mm byte, w bool, vvvv byte, l byte, pp byte) {
	canUse2Byte := !xExt && !bExt && mm == 1 && !w
	if canUse2Byte {
		b1 := byte(0xc5)
		b2 := (boolBit(!rExt) << 7) | ((^vvvv & 0xf) << 3) | (l << 2) | pp
		e.Buf.WriteByte(b1)
		e.Buf.WriteByte(b2)
		return
	}
	e.Buf.WriteByte(0xc4)
	b2 := (boolBit(!rExt) << 7) | (boolBit(!xExt) << 6) | (boolBit(!bExt) << 5) | mm
	b3 := (boolBit(w) << 7) | ((^vvvv & 0xf) << 3) | (l << 2) | pp
	e.Buf.WriteByte(b2)
	e.Buf.WriteByte(b3)
}

func boolBit(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// emitAVX encodes one AVX/VEX instruction per its avxKind, spec.md §4.4
// vectorized-loop codegen.
func (e *Encoder) emitAVX(op avxOp, ops []Operand) {
	switch op.kind {
	case avxZeroOp:
		e.Buf.WriteByte(0xc5)
		e.Buf.WriteByte(0xf8)
		e.Buf.WriteByte(op.opcode)

	case avxLoadStore:
		if len(ops) != 2 {
			e.fail("avx load/store wants 2 operands")
			return
		}
		src, dst := ops[0], ops[1]
		switch {
		case dst.Kind == OpReg && src.Kind == OpReg:
			dstR, _ := lookupReg(dst.Reg)
			srcR, _ := lookupReg(src.Reg)
			e.emitVEX(dstR.extended(), false, srcR.extended(), op.mm, op.w, 0, vexLen(dstR), op.pp)
			e.Buf.WriteByte(op.opcode)
			e.Buf.WriteByte(modrmDirect(3, dstR.low3(), srcR.low3()))
		case dst.Kind == OpReg && isMemShaped(src):
			dstR, _ := lookupReg(dst.Reg)
			m := e.buildMem(dstR.low3(), src)
			e.emitVEX(dstR.extended(), m.xExt, m.bExt, op.mm, op.w, 0, vexLen(dstR), op.pp)
			e.Buf.WriteByte(op.opcode)
			e.emitMemEncoding(m)
		case isMemShaped(dst) && src.Kind == OpReg:
			srcR, _ := lookupReg(src.Reg)
			m := e.buildMem(srcR.low3(), dst)
			e.emitVEX(srcR.extended(), m.xExt, m.bExt, op.mm, op.w, 0, vexLen(srcR), op.pp)
			e.Buf.WriteByte(op.storeOpcode)
			e.emitMemEncoding(m)
		default:
			e.fail("unsupported avx load/store operand shape")
		}

	case avxArith:
		// AT&T order: src2 (rm), src1 (vvvv), dst (modrm.reg) — dst = src1 OP src2.
		if len(ops) != 3 {
			e.fail("avx arithmetic wants 3 operands")
			return
		}
		src2, src1, dst := ops[0], ops[1], ops[2]
		dstR, _ := lookupReg(dst.Reg)
		src1R, _ := lookupReg(src1.Reg)
		switch {
		case src2.Kind == OpReg:
			src2R, _ := lookupReg(src2.Reg)
			e.emitVEX(dstR.extended(), false, src2R.extended(), op.mm, op.w, byte(src1R.id), vexLen(dstR), op.pp)
			e.Buf.WriteByte(op.opcode)
			e.Buf.WriteByte(modrmDirect(3, dstR.low3(), src2R.low3()))
		case isMemShaped(src2):
			m := e.buildMem(dstR.low3(), src2)
			e.emitVEX(dstR.extended(), m.xExt, m.bExt, op.mm, op.w, byte(src1R.id), vexLen(dstR), op.pp)
			e.Buf.WriteByte(op.opcode)
			e.emitMemEncoding(m)
		default:
			e.fail("unsupported avx arithmetic operand shape")
		}

	case avxExtract:
		// vextracti128 dst(xmm/mem128), src(ymm), imm8 — store-shaped: the
		// VEX.reg field carries the SOURCE, modrm.rm carries the dest.
		if len(ops) != 3 {
			e.fail("vextracti128 wants dst, src, imm8")
			return
		}
		dst, src, imm := ops[0], ops[1], ops[2]
		srcR, _ := lookupReg(src.Reg)
		switch {
		case dst.Kind == OpReg:
			dstR, _ := lookupReg(dst.Reg)
			e.emitVEX(srcR.extended(), false, dstR.extended(), op.mm, op.w, 0, 1, op.pp)
			e.Buf.WriteByte(op.opcode)
			e.Buf.WriteByte(modrmDirect(3, srcR.low3(), dstR.low3()))
		case isMemShaped(dst):
			m := e.buildMem(srcR.low3(), dst)
			e.emitVEX(srcR.extended(), m.xExt, m.bExt, op.mm, op.w, 0, 1, op.pp)
			e.Buf.WriteByte(op.opcode)
			e.emitMemEncoding(m)
		default:
			e.fail("unsupported vextracti128 destination")
		}
		e.Buf.WriteByte(byte(imm.Imm))

	case avxInsert:
		// vinserti128 dst(ymm), src1(ymm), src2(xmm/mem128), imm8.
		if len(ops) != 4 {
			e.fail("vinserti128 wants dst, src1, src2, imm8")
			return
		}
		dst, src1, src2, imm := ops[0], ops[1], ops[2], ops[3]
		dstR, _ := lookupReg(dst.Reg)
		src1R, _ := lookupReg(src1.Reg)
		switch {
		case src2.Kind == OpReg:
			src2R, _ := lookupReg(src2.Reg)
			e.emitVEX(dstR.extended(), false, src2R.extended(), op.mm, op.w, byte(src1R.id), 1, op.pp)
			e.Buf.WriteByte(op.opcode)
			e.Buf.WriteByte(modrmDirect(3, dstR.low3(), src2R.low3()))
		case isMemShaped(src2):
			m := e.buildMem(dstR.low3(), src2)
			e.emitVEX(dstR.extended(), m.xExt, m.bExt, op.mm, op.w, byte(src1R.id), 1, op.pp)
			e.Buf.WriteByte(op.opcode)
			e.emitMemEncoding(m)
		default:
			e.fail("unsupported vinserti128 second source")
		}
		e.Buf.WriteByte(byte(imm.Imm))
	}
}
