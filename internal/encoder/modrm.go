package encoder

// memEncoding is the fully-computed ModR/M (+ optional SIB, + optional
// displacement) shape for one memory/RIP/label operand, spec.md §4.2
// "Emit ModR/M and, when the encoded rm is RSP/R12 or when a scaled index
// is present, a SIB byte."
type memEncoding struct {
	modrm     byte
	hasSIB    bool
	sib       byte
	dispBytes int // 0, 1, or 4
	disp      int32
	isLabel   bool // disp32 is a relocation placeholder, not a literal
	label     string
	fixup     FixupType
	bExt      bool // base register id >= 8 (REX.B)
	xExt      bool // index register id >= 8 (REX.X)
}

// buildMem computes the addressing-mode bytes for a memory-shaped operand,
// with regField already holding the /reg or opcode-extension bits for the
// ModR/M byte (caller shifts it into place).
func (e *Encoder) buildMem(regField byte, op Operand) memEncoding {
	switch op.Kind {
	case OpLabel, OpRIP:
		// RIP-relative / absolute-label addressing: mod=00, rm=101, disp32
		// is a zero placeholder the relocation patches (spec.md §4.2: "For
		// every operand that is a label, emit the PC-relative placeholder
		// bytes").
		return memEncoding{
			modrm:     0x00 | (regField << 3) | 0x05,
			dispBytes: 4,
			isLabel:   true,
			label:     op.Label,
			fixup:     FixupPC32,
		}
	case OpSIB:
		base, ok := lookupReg(op.Base)
		if !ok {
			e.fail("unknown base register %q", op.Base)
		}
		var idxLow byte = 0x04 // "no index" encoding
		xExt := false
		if op.Index != "" {
			idx, ok := lookupReg(op.Index)
			if !ok {
				e.fail("unknown index register %q", op.Index)
			}
			idxLow = idx.low3()
			xExt = idx.extended()
		}
		scaleBits := scaleToBits(op.Scale)
		sib := (scaleBits << 6) | (idxLow << 3) | base.low3()
		mod, dispBytes := dispMode(op.Disp, base.low3() == 5)
		return memEncoding{
			modrm:     (mod << 6) | (regField << 3) | 0x04,
			hasSIB:    true,
			sib:       sib,
			dispBytes: dispBytes,
			disp:      op.Disp,
			bExt:      base.extended(),
			xExt:      xExt,
		}
	case OpMem:
		base, ok := lookupReg(op.Base)
		if !ok {
			e.fail("unknown base register %q", op.Base)
		}
		low := base.low3()
		if low == 4 {
			// RSP/R12 as base always needs a SIB byte with no index.
			mod, dispBytes := dispMode(op.Disp, false)
			return memEncoding{
				modrm:     (mod << 6) | (regField << 3) | 0x04,
				hasSIB:    true,
				sib:       (0 << 6) | (0x04 << 3) | low,
				dispBytes: dispBytes,
				disp:      op.Disp,
				bExt:      base.extended(),
			}
		}
		mod, dispBytes := dispMode(op.Disp, low == 5)
		return memEncoding{
			modrm:     (mod << 6) | (regField << 3) | low,
			dispBytes: dispBytes,
			disp:      op.Disp,
			bExt:      base.extended(),
		}
	}
	e.fail("operand is not memory-shaped")
	return memEncoding{}
}

// dispMode picks mod=01 (disp8) vs mod=10 (disp32), forcing a disp8=0 for
// [RBP]/[R13] base with zero displacement since mod=00 with that rm value
// means "RIP-relative / no base" instead, spec.md §4.2.
func dispMode(disp int32, baseIsBPOrR13 bool) (mod byte, dispBytes int) {
	if disp == 0 && !baseIsBPOrR13 {
		return 0, 0
	}
	if disp >= -128 && disp <= 127 {
		return 1, 1
	}
	return 2, 4
}

func scaleToBits(scale int) byte {
	switch scale {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	}
	return 0
}

// emitMemEncoding writes modrm/sib/disp bytes, recording a relocation when
// the displacement is a label placeholder. Relocation offsets must point
// exactly at the start of the (4-byte) placeholder, never at the
// instruction start, per spec.md §4.2.
func (e *Encoder) emitMemEncoding(m memEncoding) {
	e.Buf.WriteByte(m.modrm)
	if m.hasSIB {
		e.Buf.WriteByte(m.sib)
	}
	switch m.dispBytes {
	case 0:
	case 1:
		e.Buf.WriteByte(byte(int8(m.disp)))
	case 4:
		if m.isLabel {
			off := e.Buf.Len()
			e.Buf.WriteDword(0)
			e.addReloc(off, m.label, m.fixup)
		} else {
			e.Buf.WriteDword(uint32(m.disp))
		}
	}
}

// rex builds a REX prefix byte (0x40 base) from its four bit fields and
// reports whether it needs to be emitted at all: spec.md §4.2 says REX is
// required when any of {64-bit width, extended registers 8-15, SIL/DIL/
// BPL/SPL as 8-bit} apply, and a REX byte that would equal exactly 0x40
// collapses to "no REX" UNLESS forced (8-bit low regs 4-7 always need the
// prefix present, even as plain 0x40, to select the SPL/BPL/SIL/DIL
// encoding over AH/BH/CH/DH).
func rex(w, r, x, b, force bool) (byte, bool) {
	v := byte(0x40)
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x {
		v |= 0x02
	}
	if b {
		v |= 0x01
	}
	if v == 0x40 && !force {
		return 0, false
	}
	return v, true
}

func modrmDirect(mod, reg, rm byte) byte {
	return (mod << 6) | ((reg & 7) << 3) | (rm & 7)
}
