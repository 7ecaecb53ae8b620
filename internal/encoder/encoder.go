// Package encoder translates a (mnemonic, operand-tuple) instruction
// description into x86/x86-64 machine bytes, recording symbol relocations
// against the buffer it writes into. It implements spec.md §4.2.
package encoder

import (
	"fmt"
	"strings"

	"github.com/minic-lang/minicc/internal/buffer"
)

// Encoder owns a target buffer and a current bitness (16/32/64), spec.md
// §4.2. It is not reentrant-safe across goroutines — per spec.md §5 the
// whole pipeline is single-threaded.
type Encoder struct {
	Buf    *buffer.Buffer
	Bits   int // 16, 32, or 64
	relocs []Reloc

	// Debug/strict mode: internal invariant violations panic instead of
	// silently emitting nothing, matching spec.md §7's "fail fast".
	Strict bool
}

// New returns an Encoder writing into buf at the given default bitness.
func New(buf *buffer.Buffer, bits int) *Encoder {
	return &Encoder{Buf: buf, Bits: bits, Strict: true}
}

// Relocs returns the relocations recorded so far. The caller (codegen, via
// internal/object) is responsible for interning Symbol names and lowering
// FixupType to the object format's constants.
func (e *Encoder) Relocs() []Reloc { return e.relocs }

// addReloc records a relocation at the 4 (or width/8) bytes that were just
// written as a zero placeholder.
func (e *Encoder) addReloc(off int, sym string, fx FixupType) {
	e.relocs = append(e.relocs, Reloc{Offset: off, Symbol: sym, Fixup: fx})
}

func (e *Encoder) fail(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if e.Strict {
		panic("encoder: " + msg)
	}
}

// suffixWidth maps a trailing size suffix to a bit width; returns 0, false
// if mnemonic carries no recognized suffix.
func suffixWidth(suffix byte) (int, bool) {
	switch suffix {
	case 'b':
		return 8, true
	case 'w':
		return 16, true
	case 'l':
		return 32, true
	case 'q':
		return 64, true
	}
	return 0, false
}

// splitMnemonic separates an optional size suffix from the base mnemonic,
// spec.md §4.2: "Mnemonics are recognized as strings with optional size
// suffixes (b, w, l, q) overriding the default width". Suffixes only apply
// to the mnemonics that are ambiguous without one (mov family, movzx/movsx);
// mnemonics like "add"/"sub" take their width from the operand registers.
func splitMnemonic(mnemonic string) (base string, width int, hasSuffix bool) {
	switch {
	case strings.HasPrefix(mnemonic, "movz"):
		// movzb, movzw — zero-extending load; suffix is the SOURCE width,
		// destination width comes from the destination register.
		if len(mnemonic) > 4 {
			if w, ok := suffixWidth(mnemonic[4]); ok {
				return "movz", w, true
			}
		}
		return "movz", 0, false
	case strings.HasPrefix(mnemonic, "movs") && len(mnemonic) > 4 && mnemonic[4] != 's' && mnemonic[4] != 'd':
		if w, ok := suffixWidth(mnemonic[4]); ok {
			return "movs", w, true
		}
		return "movs", 0, false
	case strings.HasPrefix(mnemonic, "mov") && len(mnemonic) == 4:
		if w, ok := suffixWidth(mnemonic[3]); ok {
			return "mov", w, true
		}
	}
	return mnemonic, 0, false
}

// Emit appends the encoded bytes for (mnemonic, operands) to e.Buf. An
// unrecognized (mnemonic, operand-shape) combination is a programming error
// per spec.md §4.2 "Failure behavior"; in Strict mode (the default) it
// panics rather than silently emitting nothing.
func (e *Encoder) Emit(mnemonic string, ops ...Operand) {
	base, explicitWidth, _ := splitMnemonic(mnemonic)

	if fn, ok := aluTable[base]; ok {
		e.emitALU(fn, ops, explicitWidth)
		return
	}
	if fn, ok := sseTable[base]; ok {
		e.emitSSE(fn, ops)
		return
	}
	if fn, ok := avxTable[base]; ok {
		e.emitAVX(fn, ops)
		return
	}

	switch base {
	case "test":
		e.emitTest(ops, explicitWidth)
	case "mov", "movb", "movw", "movl", "movq":
		e.emitMov(ops, explicitWidth)
	case "movz":
		e.emitMovzx(ops, explicitWidth)
	case "movs":
		e.emitMovsx(ops, explicitWidth)
	case "lea":
		e.emitLea(ops)
	case "imul":
		e.emitImul(ops)
	case "idiv":
		e.emitIDiv(ops)
	case "neg":
		e.emitNegNot(ops, 3)
	case "not":
		e.emitNegNot(ops, 2)
	case "inc":
		e.emitIncDec(ops, 0)
	case "dec":
		e.emitIncDec(ops, 1)
	case "shl":
		e.emitShift(ops, 4)
	case "shr":
		e.emitShift(ops, 5)
	case "sar":
		e.emitShift(ops, 7)
	case "push":
		e.emitPush(ops)
	case "pop":
		e.emitPop(ops)
	case "call":
		e.emitCall(ops)
	case "jmp":
		e.emitJmp(ops)
	case "ret":
		e.Buf.WriteByte(0xc3)
	case "leave":
		e.Buf.WriteByte(0xc9)
	case "cqo":
		e.Buf.WriteBytes([]byte{0x48, 0x99})
	case "cdq":
		e.Buf.WriteByte(0x99)
	case "ud2":
		e.Buf.WriteBytes([]byte{0x0f, 0x0b})
	default:
		if cc, ok := ccSuffix(base, "j"); ok {
			e.emitJcc(cc, ops)
			return
		}
		if cc, ok := ccSuffix(base, "set"); ok {
			e.emitSetcc(cc, ops)
			return
		}
		if cc, ok := ccSuffix(base, "cmov"); ok {
			e.emitCmovcc(cc, ops)
			return
		}
		e.fail("unknown mnemonic %q", mnemonic)
	}
}
