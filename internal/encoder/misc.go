package encoder

import (
	"strings"

	"github.com/samber/lo"
)

// condTable maps the condition-code mnemonic suffix to the 4-bit condition
// nibble shared by Jcc (0F 80+cc) and SETcc (0F 90+cc), spec.md §4.2.
var condTable = map[string]byte{
	"e": 4, "z": 4,
	"ne": 5, "nz": 5,
	"l": 0xc, "ge": 0xd, "le": 0xe, "g": 0xf,
	"b": 2, "ae": 3, "be": 6, "a": 7,
}

// invCond is the condition-inverse map the peephole optimizer's
// conditional-over-unconditional collapse (spec.md §4.4 rule 3) consults.
var invCond = map[string]string{
	"e": "ne", "ne": "e",
	"l": "ge", "ge": "l",
	"g": "le", "le": "g",
	"b": "ae", "ae": "b",
	"a": "be", "be": "a",
	"z": "nz", "nz": "z",
}

// InverseCondition returns the inverse of condition suffix cc and whether
// one is known, used by the peephole optimizer.
func InverseCondition(cc string) (string, bool) {
	if !lo.HasKey(invCond, cc) {
		return "", false
	}
	return lo.ValueOr(invCond, cc, ""), true
}

func ccSuffix(base, prefix string) (string, bool) {
	if !strings.HasPrefix(base, prefix) || len(base) <= len(prefix) {
		return "", false
	}
	suffix := base[len(prefix):]
	if _, ok := condTable[suffix]; !ok {
		return "", false
	}
	return suffix, true
}

func (e *Encoder) emitLea(ops []Operand) {
	if len(ops) != 2 {
		e.fail("lea wants 2 operands")
		return
	}
	src, dst := ops[0], ops[1]
	if dst.Kind != OpReg {
		e.fail("lea destination must be a register")
		return
	}
	dstR, _ := lookupReg(dst.Reg)
	m := e.buildMem(dstR.low3(), src)
	e.rexMem(dstR.width, dstR, m, false)
	e.Buf.WriteByte(0x8d)
	e.emitMemEncoding(m)
}

// emitImul handles the 2-operand (reg,reg / reg,mem -> 0F AF) and 3-operand
// (reg, reg/mem, imm -> 69/6B) forms, spec.md §4.2.
func (e *Encoder) emitImul(ops []Operand) {
	switch len(ops) {
	case 2:
		src, dst := ops[0], ops[1]
		dstR, _ := lookupReg(dst.Reg)
		switch src.Kind {
		case OpReg:
			srcR, _ := lookupReg(src.Reg)
			e.rexRR(dstR.width, dstR, srcR)
			e.Buf.WriteBytes([]byte{0x0f, 0xaf})
			e.Buf.WriteByte(modrmDirect(3, dstR.low3(), srcR.low3()))
		case OpMem, OpSIB, OpLabel:
			m := e.buildMem(dstR.low3(), src)
			e.rexMem(dstR.width, dstR, m, false)
			e.Buf.WriteBytes([]byte{0x0f, 0xaf})
			e.emitMemEncoding(m)
		default:
			e.fail("unsupported imul operand shape")
		}
	case 3:
		imm := ops[0]
		src := ops[1]
		dst := ops[2]
		if imm.Kind != OpImm || dst.Kind != OpReg {
			e.fail("imul imm3 form wants imm, reg/mem, reg")
			return
		}
		dstR, _ := lookupReg(dst.Reg)
		sextFits := imm.Imm >= -128 && imm.Imm <= 127
		opc := byte(0x69)
		if sextFits {
			opc = 0x6b
		}
		switch src.Kind {
		case OpReg:
			srcR, _ := lookupReg(src.Reg)
			e.rexRR(dstR.width, dstR, srcR)
			e.Buf.WriteByte(opc)
			e.Buf.WriteByte(modrmDirect(3, dstR.low3(), srcR.low3()))
		case OpMem, OpSIB, OpLabel:
			m := e.buildMem(dstR.low3(), src)
			e.rexMem(dstR.width, dstR, m, false)
			e.Buf.WriteByte(opc)
			e.emitMemEncoding(m)
		default:
			e.fail("unsupported imul operand shape")
		}
		if sextFits {
			e.Buf.WriteByte(byte(int8(imm.Imm)))
		} else {
			e.Buf.WriteDword(uint32(imm.Imm))
		}
	default:
		e.fail("imul wants 2 or 3 operands")
	}
}

func (e *Encoder) emitIDiv(ops []Operand) {
	e.emitUnaryExt(ops, 7)
}

func (e *Encoder) emitNegNot(ops []Operand, ext byte) {
	e.emitUnaryExt(ops, ext)
}

func (e *Encoder) emitUnaryExt(ops []Operand, ext byte) {
	if len(ops) != 1 {
		e.fail("unary op wants 1 operand")
		return
	}
	op := ops[0]
	switch op.Kind {
	case OpReg:
		r, _ := lookupReg(op.Reg)
		opc := byte(0xf7)
		if r.width == 8 {
			opc = 0xf6
		}
		e.rexRR(r.width, regInfo{}, r)
		e.Buf.WriteByte(opc)
		e.Buf.WriteByte(modrmDirect(3, ext, r.low3()))
	case OpMem, OpSIB, OpLabel:
		m := e.buildMem(ext, op)
		e.rexMem(e.Bits, regInfo{}, m, false)
		e.Buf.WriteByte(0xf7)
		e.emitMemEncoding(m)
	default:
		e.fail("unsupported unary operand")
	}
}

// emitIncDec handles inc/dec (opcode group 0xFE/0xFF, /ext 0=inc 1=dec),
// spec.md §6 "at each site emit an inc of the counter's memory location".
func (e *Encoder) emitIncDec(ops []Operand, ext byte) {
	if len(ops) != 1 {
		e.fail("inc/dec wants 1 operand")
		return
	}
	op := ops[0]
	switch op.Kind {
	case OpReg:
		r, _ := lookupReg(op.Reg)
		opc := byte(0xff)
		if r.width == 8 {
			opc = 0xfe
		}
		e.rexRR(r.width, regInfo{}, r)
		e.Buf.WriteByte(opc)
		e.Buf.WriteByte(modrmDirect(3, ext, r.low3()))
	case OpMem, OpSIB, OpLabel, OpRIP:
		m := e.buildMem(ext, op)
		e.rexMem(e.Bits, regInfo{}, m, false)
		e.Buf.WriteByte(0xff)
		e.emitMemEncoding(m)
	default:
		e.fail("unsupported inc/dec operand")
	}
}

// emitShift handles shl/shr/sar with an imm8 count or %cl, spec.md §4.2.
func (e *Encoder) emitShift(ops []Operand, ext byte) {
	if len(ops) != 2 {
		e.fail("shift wants 2 operands")
		return
	}
	count, dst := ops[0], ops[1]
	if dst.Kind != OpReg {
		e.fail("shift destination must be a register")
		return
	}
	dstR, _ := lookupReg(dst.Reg)
	e.rexRR(dstR.width, regInfo{}, dstR)
	switch count.Kind {
	case OpImm:
		if count.Imm == 1 {
			e.Buf.WriteByte(0xd1)
			e.Buf.WriteByte(modrmDirect(3, ext, dstR.low3()))
			return
		}
		e.Buf.WriteByte(0xc1)
		e.Buf.WriteByte(modrmDirect(3, ext, dstR.low3()))
		e.Buf.WriteByte(byte(count.Imm))
	case OpReg:
		e.Buf.WriteByte(0xd3)
		e.Buf.WriteByte(modrmDirect(3, ext, dstR.low3()))
	default:
		e.fail("unsupported shift count operand")
	}
}

func (e *Encoder) emitPush(ops []Operand) {
	if len(ops) != 1 {
		e.fail("push wants 1 operand")
		return
	}
	op := ops[0]
	switch op.Kind {
	case OpReg:
		r, _ := lookupReg(op.Reg)
		if v, ok := rex(false, false, false, r.extended(), false); ok {
			e.Buf.WriteByte(v)
		}
		e.Buf.WriteByte(0x50 + r.low3())
	case OpImm:
		e.Buf.WriteByte(0x68)
		e.Buf.WriteDword(uint32(op.Imm))
	default:
		e.fail("unsupported push operand")
	}
}

func (e *Encoder) emitPop(ops []Operand) {
	if len(ops) != 1 || ops[0].Kind != OpReg {
		e.fail("pop wants 1 register operand")
		return
	}
	r, _ := lookupReg(ops[0].Reg)
	if v, ok := rex(false, false, false, r.extended(), false); ok {
		e.Buf.WriteByte(v)
	}
	e.Buf.WriteByte(0x58 + r.low3())
}

// emitCall handles call label (rel32 placeholder + relocation) and call
// reg (indirect; memory operands are not supported), spec.md §4.2.
func (e *Encoder) emitCall(ops []Operand) {
	if len(ops) != 1 {
		e.fail("call wants 1 operand")
		return
	}
	e.emitCallOrJmpLike(ops[0], 0xe8, 2)
}

func (e *Encoder) emitJmp(ops []Operand) {
	if len(ops) != 1 {
		e.fail("jmp wants 1 operand")
		return
	}
	e.emitCallOrJmpLike(ops[0], 0xe9, 4)
}

func (e *Encoder) emitCallOrJmpLike(op Operand, relOpcode byte, indirectExt byte) {
	switch op.Kind {
	case OpLabel:
		e.Buf.WriteByte(relOpcode)
		off := e.Buf.Len()
		e.Buf.WriteDword(0)
		e.addReloc(off, op.Label, FixupPC32)
	case OpReg:
		r, _ := lookupReg(op.Reg)
		if v, ok := rex(false, false, false, r.extended(), false); ok {
			e.Buf.WriteByte(v)
		}
		e.Buf.WriteByte(0xff)
		e.Buf.WriteByte(modrmDirect(3, indirectExt, r.low3()))
	default:
		e.fail("unsupported call/jmp operand")
	}
}

func (e *Encoder) emitJcc(cc string, ops []Operand) {
	if len(ops) != 1 || ops[0].Kind != OpLabel {
		e.fail("jcc wants 1 label operand")
		return
	}
	e.Buf.WriteBytes([]byte{0x0f, 0x80 + condTable[cc]})
	off := e.Buf.Len()
	e.Buf.WriteDword(0)
	e.addReloc(off, ops[0].Label, FixupPC32)
}

func (e *Encoder) emitSetcc(cc string, ops []Operand) {
	if len(ops) != 1 {
		e.fail("setcc wants 1 operand")
		return
	}
	op := ops[0]
	switch op.Kind {
	case OpReg:
		r, _ := lookupReg(op.Reg)
		e.rexRR(8, regInfo{}, r)
		e.Buf.WriteBytes([]byte{0x0f, 0x90 + condTable[cc]})
		e.Buf.WriteByte(modrmDirect(3, 0, r.low3()))
	case OpMem, OpSIB, OpLabel:
		m := e.buildMem(0, op)
		e.rexMem(8, regInfo{}, m, false)
		e.Buf.WriteBytes([]byte{0x0f, 0x90 + condTable[cc]})
		e.emitMemEncoding(m)
	default:
		e.fail("unsupported setcc operand")
	}
}

// emitCmovcc handles CMOVcc r, r/m (0F 40+cc /r), AT&T order (src, dst).
func (e *Encoder) emitCmovcc(cc string, ops []Operand) {
	if len(ops) != 2 || ops[1].Kind != OpReg {
		e.fail("cmovcc wants src, reg")
		return
	}
	src, dst := ops[0], ops[1]
	dstR, _ := lookupReg(dst.Reg)
	switch src.Kind {
	case OpReg:
		srcR, _ := lookupReg(src.Reg)
		e.rexRR(dstR.width, dstR, srcR)
		e.Buf.WriteBytes([]byte{0x0f, 0x40 + condTable[cc]})
		e.Buf.WriteByte(modrmDirect(3, dstR.low3(), srcR.low3()))
	case OpMem, OpSIB, OpLabel:
		m := e.buildMem(dstR.low3(), src)
		e.rexMem(dstR.width, dstR, m, false)
		e.Buf.WriteBytes([]byte{0x0f, 0x40 + condTable[cc]})
		e.emitMemEncoding(m)
	default:
		e.fail("unsupported cmovcc source")
	}
}
